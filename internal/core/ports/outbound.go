package ports

import (
	"context"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// ContextStore reads and appends per-user interaction history.
type ContextStore interface {
	ListRecentInteractions(ctx context.Context, userID string, limit int) ([]domain.InteractionRecord, error)
	AppendInteraction(ctx context.Context, record domain.InteractionRecord) error
}

// VectorIndex performs nearest-neighbour search in a domain-scoped index.
type VectorIndex interface {
	Search(ctx context.Context, domainID string, queryVector []float32, limit int) ([]domain.RetrievalCandidate, error)
}

// GraphIndex traverses a domain-scoped knowledge graph for entities matching
// the query, returning each entity with its immediate relations.
type GraphIndex interface {
	Search(ctx context.Context, domainID, query string, limit int) ([]domain.RetrievalCandidate, error)
}

// DocumentIndex runs full-text search over a domain-scoped document store.
type DocumentIndex interface {
	Search(ctx context.Context, domainID, query string, limit int) ([]domain.RetrievalCandidate, error)
}

// Embedder builds a fixed-dimension vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DomainMatcher resolves query text against the configured domain patterns.
// MatchDomains must be deterministic: identical query text always yields the
// same ordered domain list.
type DomainMatcher interface {
	MatchDomains(query string) []string
	DefaultDomain() string
	HasDomain(id string) bool
}

// TypeClassifier maps a query to exactly one query type. Implementations may
// be rule-based or model-backed.
type TypeClassifier interface {
	ClassifyType(ctx context.Context, query string) (domain.QueryType, error)
}

// AnswerGenerator is the external generation collaborator. It consumes the
// fused bundle and user context and returns the response text with its own
// confidence estimate.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, bundle domain.KnowledgeBundle, uctx domain.UserContext) (string, float64, error)
}

// CacheService is a best-effort TTL cache. A miss returns ok=false with a nil
// error; backend outages surface as errors the caller must tolerate.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// InteractionPublisher hands completed interactions to the asynchronous
// history-append path.
type InteractionPublisher interface {
	PublishInteraction(ctx context.Context, record domain.InteractionRecord) error
}
