package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/ports"
)

// QueryUseCase orchestrates the full pipeline: context building,
// classification, routed hybrid retrieval, fusion and generation. Partial
// backend failures degrade quality silently; only invalid input or total
// retrieval exhaustion produce an explicit error.
type QueryUseCase struct {
	builder    *ContextBuilder
	classifier *QueryClassifier
	router     *DomainRouter
	fusion     *KnowledgeFusionEngine
	generator  ports.AnswerGenerator
	matcher    ports.DomainMatcher
	cache      ports.CacheService
	publisher  ports.InteractionPublisher
	logger     *slog.Logger

	resultCacheTTL time.Duration
	publishTimeout time.Duration
}

func NewQueryUseCase(
	builder *ContextBuilder,
	classifier *QueryClassifier,
	router *DomainRouter,
	fusion *KnowledgeFusionEngine,
	generator ports.AnswerGenerator,
	matcher ports.DomainMatcher,
	cache ports.CacheService,
	publisher ports.InteractionPublisher,
	logger *slog.Logger,
	resultCacheTTL time.Duration,
) *QueryUseCase {
	if resultCacheTTL <= 0 {
		resultCacheTTL = time.Hour
	}
	return &QueryUseCase{
		builder:        builder,
		classifier:     classifier,
		router:         router,
		fusion:         fusion,
		generator:      generator,
		matcher:        matcher,
		cache:          cache,
		publisher:      publisher,
		logger:         logger,
		resultCacheTTL: resultCacheTTL,
		publishTimeout: 2 * time.Second,
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	started := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	query := uc.builder.TruncateQuery(strings.TrimSpace(req.Query))

	override, err := uc.normalizeOverride(req.Domains)
	if err != nil {
		return nil, err
	}

	cacheKey := "result:" + QueryFingerprint(req.UserID, query, override)
	if cached := uc.cachedResponse(ctx, cacheKey); cached != nil {
		cached.Metadata.Cached = true
		cached.Metadata.ProcessingTimeMS = elapsedMS(started)
		return cached, nil
	}

	uctx := uc.builder.Build(ctx, req.UserID, req.SessionID, query)

	cq := uc.classifier.Classify(ctx, query, uctx)
	if len(override) > 0 {
		cq.TargetDomains = override
	}

	results := uc.router.Route(ctx, cq)

	candidates := make([]domain.RetrievalCandidate, 0, 64)
	failedDomains := 0
	for _, result := range results {
		if result.Err != nil {
			failedDomains++
		}
		candidates = append(candidates, result.Candidates...)
	}
	if len(candidates) == 0 && failedDomains == len(results) && len(results) > 0 {
		return nil, domain.WrapError(domain.ErrRetrievalExhausted, "answer query",
			fmt.Errorf("all backends failed across %d domains", len(results)))
	}

	bundle := uc.fusion.Fuse(candidates, query, uctx)

	text, genConfidence, err := uc.generator.Generate(ctx, query, bundle, uctx)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	response := &domain.QueryResponse{
		Response: text,
		Metadata: domain.ResponseMetadata{
			QueryType:          cq.Type,
			Domains:            cq.TargetDomains,
			ProcessingTimeMS:   elapsedMS(started),
			Personalized:       uctx.Personalized,
			ClassifierDegraded: cq.RuleFallback,
		},
		Sources:    bundle.Sources,
		Confidence: clamp01(0.5*bundle.Confidence + 0.5*genConfidence),
	}

	uc.storeResponse(ctx, cacheKey, response)
	uc.recordInteraction(ctx, req, query, cq)

	return response, nil
}

func validateRequest(req domain.QueryRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "answer query", fmt.Errorf("query is required"))
	}
	if strings.TrimSpace(req.UserID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "answer query", fmt.Errorf("user_id is required"))
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "answer query", fmt.Errorf("session_id is required"))
	}
	return nil
}

// normalizeOverride validates an explicit domain override against the
// registry. Unknown domains fail fast rather than producing empty retrieval.
func (uc *QueryUseCase) normalizeOverride(domains []string) ([]string, error) {
	if len(domains) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(domains))
	for _, dom := range domains {
		dom = strings.TrimSpace(dom)
		if dom == "" {
			continue
		}
		if !uc.matcher.HasDomain(dom) {
			return nil, domain.WrapError(domain.ErrDomainUnknown, "answer query", fmt.Errorf("domain %q is not configured", dom))
		}
		out = append(out, dom)
	}
	return dedupeDomains(out), nil
}

func (uc *QueryUseCase) cachedResponse(ctx context.Context, key string) *domain.QueryResponse {
	if uc.cache == nil {
		return nil
	}
	raw, ok, err := uc.cache.Get(ctx, key)
	if err != nil {
		uc.logger.Warn("result_cache_read_failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var response domain.QueryResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		uc.logger.Warn("result_cache_decode_failed", "error", err)
		return nil
	}
	return &response
}

func (uc *QueryUseCase) storeResponse(ctx context.Context, key string, response *domain.QueryResponse) {
	if uc.cache == nil {
		return
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := uc.cache.Set(ctx, key, raw, uc.resultCacheTTL); err != nil {
		uc.logger.Warn("result_cache_write_failed", "error", err)
	}
}

// recordInteraction hands the completed interaction to the asynchronous
// history path. It runs detached from the request's cancellation so a client
// disconnect between response and publish does not lose the record.
func (uc *QueryUseCase) recordInteraction(ctx context.Context, req domain.QueryRequest, query string, cq domain.ClassifiedQuery) {
	if uc.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.publishTimeout)
	defer cancel()

	record := domain.InteractionRecord{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Query:     query,
		QueryType: cq.Type,
		Domains:   cq.TargetDomains,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.publisher.PublishInteraction(pctx, record); err != nil {
		uc.logger.Warn("interaction_publish_failed", "user_id", req.UserID, "error", err)
	}
}

func elapsedMS(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000.0
}
