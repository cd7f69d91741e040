package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// DomainResult is the per-domain outcome of a routed retrieval. A failed or
// timed-out domain keeps its entry with Err set so fusion can report partial
// coverage instead of silently dropping the domain.
type DomainResult struct {
	Domain     string
	Candidates []domain.RetrievalCandidate
	Err        error
}

// DomainRouter fans a classified query out to every target domain
// concurrently. Each domain call runs under its own timeout, so total wall
// clock is bounded by the slowest single domain, not the sum.
type DomainRouter struct {
	engine *HybridRetrievalEngine
	logger *slog.Logger

	domainTimeout time.Duration
	topK          int
}

func NewDomainRouter(engine *HybridRetrievalEngine, logger *slog.Logger, domainTimeout time.Duration, topK int) *DomainRouter {
	if domainTimeout <= 0 {
		domainTimeout = 10 * time.Second
	}
	if topK <= 0 {
		topK = 10
	}
	return &DomainRouter{
		engine:        engine,
		logger:        logger,
		domainTimeout: domainTimeout,
		topK:          topK,
	}
}

func (r *DomainRouter) Route(ctx context.Context, cq domain.ClassifiedQuery) map[string]DomainResult {
	results := make(map[string]DomainResult, len(cq.TargetDomains))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, domainID := range cq.TargetDomains {
		wg.Add(1)
		go func(domainID string) {
			defer wg.Done()
			dctx, cancel := context.WithTimeout(ctx, r.domainTimeout)
			defer cancel()

			candidates, err := r.engine.Search(dctx, cq.Query, domainID, r.topK)
			if err == nil && dctx.Err() != nil {
				err = dctx.Err()
			}
			if err != nil {
				r.logger.Warn("domain_retrieval_failed", "domain", domainID, "error", err)
			}

			mu.Lock()
			results[domainID] = DomainResult{Domain: domainID, Candidates: candidates, Err: err}
			mu.Unlock()
		}(domainID)
	}
	wg.Wait()

	return results
}
