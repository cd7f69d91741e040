package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/ports"
)

// HybridRetrievalEngine queries the vector, graph and document backends of a
// single domain concurrently. Each branch is timeout-bound and fails
// independently: a dead backend contributes an empty list, and an error is
// returned only when every branch failed.
type HybridRetrievalEngine struct {
	embedder ports.Embedder
	vector   ports.VectorIndex
	graph    ports.GraphIndex
	document ports.DocumentIndex
	logger   *slog.Logger

	backendTimeout time.Duration
	overFetch      int
}

func NewHybridRetrievalEngine(
	embedder ports.Embedder,
	vector ports.VectorIndex,
	graph ports.GraphIndex,
	document ports.DocumentIndex,
	logger *slog.Logger,
	backendTimeout time.Duration,
	overFetch int,
) *HybridRetrievalEngine {
	if backendTimeout <= 0 {
		backendTimeout = 5 * time.Second
	}
	if overFetch <= 0 {
		overFetch = 2
	}
	return &HybridRetrievalEngine{
		embedder:       embedder,
		vector:         vector,
		graph:          graph,
		document:       document,
		logger:         logger,
		backendTimeout: backendTimeout,
		overFetch:      overFetch,
	}
}

type branchResult struct {
	candidates []domain.RetrievalCandidate
	err        error
}

// Search over-fetches overFetch*topK raw candidates per backend so fusion has
// enough material to re-rank. Cross-source deduplication is fusion's job, not
// this engine's.
func (e *HybridRetrievalEngine) Search(ctx context.Context, query, domainID string, topK int) ([]domain.RetrievalCandidate, error) {
	if topK <= 0 {
		topK = 10
	}
	fetchLimit := topK * e.overFetch

	branches := []struct {
		source domain.SourceType
		run    func(context.Context) ([]domain.RetrievalCandidate, error)
	}{
		{domain.SourceVector, func(bctx context.Context) ([]domain.RetrievalCandidate, error) {
			return e.vectorBranch(bctx, query, domainID, fetchLimit)
		}},
		{domain.SourceGraph, func(bctx context.Context) ([]domain.RetrievalCandidate, error) {
			return e.graph.Search(bctx, domainID, query, fetchLimit)
		}},
		{domain.SourceDocument, func(bctx context.Context) ([]domain.RetrievalCandidate, error) {
			return e.document.Search(bctx, domainID, query, fetchLimit)
		}},
	}

	results := make([]branchResult, len(branches))
	var wg sync.WaitGroup
	for i, branch := range branches {
		wg.Add(1)
		go func(slot int, source domain.SourceType, run func(context.Context) ([]domain.RetrievalCandidate, error)) {
			defer wg.Done()
			bctx, cancel := context.WithTimeout(ctx, e.backendTimeout)
			defer cancel()

			candidates, err := run(bctx)
			if err != nil {
				e.logger.Warn("retrieval_branch_failed",
					"domain", domainID,
					"source", string(source),
					"error", err,
				)
				results[slot] = branchResult{err: err}
				return
			}
			results[slot] = branchResult{candidates: candidates}
		}(i, branch.source, branch.run)
	}
	wg.Wait()

	out := make([]domain.RetrievalCandidate, 0, 3*fetchLimit)
	failures := 0
	for _, result := range results {
		if result.err != nil {
			failures++
			continue
		}
		out = append(out, result.candidates...)
	}

	if failures == len(branches) {
		return nil, domain.WrapError(domain.ErrTemporary, "hybrid search",
			fmt.Errorf("all retrieval backends failed for domain %s", domainID))
	}
	return out, nil
}

// vectorBranch treats an embedding failure the same as a dead vector index:
// the branch yields nothing rather than aborting its siblings.
func (e *HybridRetrievalEngine) vectorBranch(ctx context.Context, query, domainID string, limit int) ([]domain.RetrievalCandidate, error) {
	queryVector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(queryVector) == 0 {
		return nil, nil
	}
	return e.vector.Search(ctx, domainID, queryVector, limit)
}
