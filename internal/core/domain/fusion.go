package domain

// SourceContribution records how one backend scored a fused candidate.
type SourceContribution struct {
	Source          SourceType `json:"source"`
	Domain          string     `json:"domain"`
	RawScore        float64    `json:"raw_score"`
	NormalizedScore float64    `json:"normalized_score"`
}

// FusedResult is a deduplicated candidate with a cross-source-comparable
// final score and full attribution of the backends that produced it.
type FusedResult struct {
	ID         string               `json:"id"`
	Domain     string               `json:"domain"`
	Content    CandidateContent     `json:"content"`
	FinalScore float64              `json:"final_score"`
	Relevance  float64              `json:"relevance"`
	Sources    []SourceContribution `json:"sources"`
	Confidence float64              `json:"confidence"`
}

// KnowledgeBundle is the per-request fusion output handed to the generation
// collaborator. An empty bundle (no candidates anywhere) has Confidence 0.
type KnowledgeBundle struct {
	PrimaryKnowledge    []FusedResult `json:"primary_knowledge"`
	SupportingKnowledge []FusedResult `json:"supporting_knowledge"`
	Sources             []SourceRef   `json:"sources"`
	Confidence          float64       `json:"confidence"`
}

// IsEmpty reports whether fusion produced no knowledge at all.
func (b KnowledgeBundle) IsEmpty() bool {
	return len(b.PrimaryKnowledge) == 0 && len(b.SupportingKnowledge) == 0
}
