package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/resilience"
)

// Connection-level failures the client may recover from on its own.
var transientConnErrs = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	for _, transient := range transientConnErrs {
		if errors.Is(err, transient) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}

	return resilience.ErrorClassification{RecordFailure: true}
}

// wrapTemporaryIfNeeded marks transient publish failures so callers can
// keep serving the query while the interaction record is lost.
func wrapTemporaryIfNeeded(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case classifyNATSError(err).Retryable, resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	default:
		return err
	}
}
