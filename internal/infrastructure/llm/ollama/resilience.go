package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/resilience"
)

// HTTPStatusError preserves the upstream status so classification can
// tell retryable server faults apart from model and request errors.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
	}
	return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
}

var retryableFailure = resilience.ErrorClassification{Retryable: true, RecordFailure: true}

func classifyOllamaError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller gave up; neither a retry nor breaker bookkeeping helps.
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return retryableFailure
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if retryableStatus(statusErr.StatusCode) {
			return retryableFailure
		}
		// 4xx means the request itself is wrong; do not punish the breaker.
		return resilience.ErrorClassification{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retryableFailure
	}

	return resilience.ErrorClassification{RecordFailure: true}
}

// wrapTemporaryIfNeeded marks transient Ollama failures so the query
// pipeline can map them to a degraded rather than failed response.
func wrapTemporaryIfNeeded(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case classifyOllamaError(err).Retryable, resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return err
	}
}

func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
