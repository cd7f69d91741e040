package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/config"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/ports"
	"github.com/kirillkom/knowledge-fusion-engine/internal/observability/metrics"
)

const serviceName = "kfe-api"

type Router struct {
	queryUC  ports.QueryService
	registry *config.DomainRegistry
	metrics  *metrics.QueryServiceMetrics
	cfg      config.Config
}

func NewRouter(
	queryUC ports.QueryService,
	registry *config.DomainRegistry,
	m *metrics.QueryServiceMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		queryUC:  queryUC,
		registry: registry,
		metrics:  m,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.answerQuery)
	mux.HandleFunc("/v1/domains", rt.listDomains)
	mux.Handle("/metrics", rt.metrics.Handler())

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listDomains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default_domain": rt.registry.DefaultDomain(),
		"domains":        rt.registry.Domains,
	})
}

func (rt *Router) answerQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	started := time.Now()
	resp, err := rt.queryUC.Answer(r.Context(), req)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.metrics.RecordQuery(serviceName, "", "error", time.Since(started))
		if status >= http.StatusInternalServerError {
			slog.Error("query_failed",
				"request_id", requestIDFromContext(r.Context()),
				"user_id", req.UserID,
				"error", err,
			)
		}
		writeJSON(w, status, map[string]string{"error": publicError(err, status)})
		return
	}

	rt.recordQueryMetrics(resp, time.Since(started))
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) recordQueryMetrics(resp *domain.QueryResponse, duration time.Duration) {
	rt.metrics.RecordQuery(serviceName, string(resp.Metadata.QueryType), "ok", duration)
	rt.metrics.RecordConfidence(serviceName, resp.Confidence)
	rt.metrics.RecordResultCache(serviceName, resp.Metadata.Cached)
	rt.metrics.RecordSourceAttributions(serviceName, len(resp.Sources))
	if resp.Metadata.ClassifierDegraded {
		rt.metrics.RecordClassifierFallback(serviceName)
	}
	if !resp.Metadata.Personalized {
		rt.metrics.RecordDegradedContext(serviceName)
	}
	for _, src := range resp.Sources {
		rt.metrics.RecordSource(serviceName, src.Domain, string(src.Backend))
	}
}

// publicError keeps backend details out of 5xx bodies.
func publicError(err error, status int) string {
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	switch status {
	case http.StatusBadGateway:
		return "all retrieval backends are unavailable"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
