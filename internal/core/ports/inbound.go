package ports

import (
	"context"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// QueryService is the inbound contract for the full CAG+RAG pipeline:
// context building, classification, routed hybrid retrieval, fusion and
// response generation.
type QueryService interface {
	Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error)
}

// InteractionProcessor is the inbound contract for asynchronous history
// appends performed by the worker.
type InteractionProcessor interface {
	Record(ctx context.Context, record domain.InteractionRecord) error
}
