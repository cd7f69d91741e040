package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/ports"
)

// InteractionRecorder persists interaction records consumed from the queue.
// Appends are idempotent on record id, so queue redelivery is safe.
type InteractionRecorder struct {
	store  ports.ContextStore
	logger *slog.Logger
}

func NewInteractionRecorder(store ports.ContextStore, logger *slog.Logger) *InteractionRecorder {
	return &InteractionRecorder{store: store, logger: logger}
}

func (r *InteractionRecorder) Record(ctx context.Context, record domain.InteractionRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record interaction", fmt.Errorf("record id is required"))
	}
	if strings.TrimSpace(record.UserID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record interaction", fmt.Errorf("user_id is required"))
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if err := r.store.AppendInteraction(ctx, record); err != nil {
		return fmt.Errorf("append interaction %s: %w", record.ID, err)
	}
	r.logger.Debug("interaction_recorded", "record_id", record.ID, "user_id", record.UserID)
	return nil
}
