package httpadapter

import (
	"net/http"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDomainUnknown):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrRetrievalExhausted):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
