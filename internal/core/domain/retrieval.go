package domain

import "strings"

type SourceType string

const (
	SourceVector   SourceType = "vector"
	SourceGraph    SourceType = "graph"
	SourceDocument SourceType = "document"
)

// EntityRelation is one immediate relation of a graph entity.
type EntityRelation struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// CandidateContent is the tagged payload of a retrieval candidate. Text spans
// come from the vector and document backends; graph hits carry an entity with
// its immediate relations. The Source discriminator tells which half is set.
type CandidateContent struct {
	Source SourceType `json:"source"`

	Text string `json:"text,omitempty"`

	EntityID          string           `json:"entity_id,omitempty"`
	EntityName        string           `json:"entity_name,omitempty"`
	EntityDescription string           `json:"entity_description,omitempty"`
	Relations         []EntityRelation `json:"relations,omitempty"`
}

// ExtractText yields the textual representation used for lexical relevance
// scoring and content-hash deduplication.
func (c CandidateContent) ExtractText() string {
	switch c.Source {
	case SourceGraph:
		parts := make([]string, 0, 2+len(c.Relations))
		if c.EntityName != "" {
			parts = append(parts, c.EntityName)
		}
		if c.EntityDescription != "" {
			parts = append(parts, c.EntityDescription)
		}
		for _, rel := range c.Relations {
			parts = append(parts, rel.Type+" "+rel.Target)
		}
		return strings.Join(parts, ". ")
	default:
		return c.Text
	}
}

// RetrievalCandidate is a single raw result from one backend. Scores are
// backend-local and not comparable across source types until fusion
// normalizes them.
type RetrievalCandidate struct {
	ID      string           `json:"id"`
	Source  SourceType       `json:"source_type"`
	Domain  string           `json:"domain"`
	Score   float64          `json:"score"`
	Content CandidateContent `json:"content"`
}

// FusionKey returns the deduplication identity of the candidate: the entity
// id for graph hits, empty otherwise (fusion then falls back to a content
// hash of the extracted text).
func (c RetrievalCandidate) FusionKey() string {
	if c.Source == SourceGraph && c.Content.EntityID != "" {
		return "entity:" + c.Content.EntityID
	}
	return ""
}
