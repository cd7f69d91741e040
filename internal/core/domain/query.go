package domain

type QueryType string

const (
	QueryTypeAnalytical    QueryType = "analytical"
	QueryTypeTransactional QueryType = "transactional"
	QueryTypeInformational QueryType = "informational"
	QueryTypeNavigational  QueryType = "navigational"
	QueryTypeGenerative    QueryType = "generative"
)

// ClassifiedQuery carries the raw query together with its inferred type and
// the precedence-ordered target domains. RuleFallback is set when the primary
// type classifier was unavailable and rule-based classification took over.
type ClassifiedQuery struct {
	Query         string    `json:"query"`
	Type          QueryType `json:"type"`
	TargetDomains []string  `json:"target_domains"`
	RuleFallback  bool      `json:"rule_fallback,omitempty"`
}

type QueryRequest struct {
	Query     string   `json:"query"`
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id"`
	Domains   []string `json:"domains,omitempty"`
}

type ResponseMetadata struct {
	QueryType          QueryType `json:"query_type"`
	Domains            []string  `json:"domains"`
	ProcessingTimeMS   float64   `json:"processing_time_ms"`
	Personalized       bool      `json:"personalized"`
	ClassifierDegraded bool      `json:"classifier_degraded,omitempty"`
	Cached             bool      `json:"cached,omitempty"`
}

type SourceRef struct {
	Domain     string     `json:"domain"`
	Backend    SourceType `json:"backend"`
	Confidence float64    `json:"confidence"`
}

type QueryResponse struct {
	Response   string           `json:"response"`
	Metadata   ResponseMetadata `json:"metadata"`
	Sources    []SourceRef      `json:"sources"`
	Confidence float64          `json:"confidence"`
}
