package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

type domainAwareVectorFake struct {
	byDomain map[string][]domain.RetrievalCandidate
	errs     map[string]error
}

func (f *domainAwareVectorFake) Search(_ context.Context, domainID string, _ []float32, _ int) ([]domain.RetrievalCandidate, error) {
	if err, ok := f.errs[domainID]; ok {
		return nil, err
	}
	return f.byDomain[domainID], nil
}

func TestRouteCoversEveryTargetDomain(t *testing.T) {
	vector := &domainAwareVectorFake{byDomain: map[string][]domain.RetrievalCandidate{
		"eco":     {textCandidate("vector_1", domain.SourceVector, "eco", "a", 0.9)},
		"finance": {textCandidate("vector_2", domain.SourceVector, "finance", "b", 0.8)},
	}}
	engine := NewHybridRetrievalEngine(
		&embedFake{vec: []float32{0.1}},
		vector, &graphFake{}, &docFake{},
		testLogger(), time.Second, 2,
	)
	router := NewDomainRouter(engine, testLogger(), time.Second, 5)

	results := router.Route(context.Background(), domain.ClassifiedQuery{
		Query:         "query",
		TargetDomains: []string{"eco", "finance"},
	})

	if len(results) != 2 {
		t.Fatalf("expected results for both domains, got %d", len(results))
	}
	if len(results["eco"].Candidates) != 1 || results["eco"].Candidates[0].Domain != "eco" {
		t.Fatalf("unexpected eco candidates: %+v", results["eco"])
	}
	if len(results["finance"].Candidates) != 1 {
		t.Fatalf("unexpected finance candidates: %+v", results["finance"])
	}
}

func TestRouteIsolatesDomainFailures(t *testing.T) {
	vector := &domainAwareVectorFake{
		byDomain: map[string][]domain.RetrievalCandidate{
			"finance": {textCandidate("vector_2", domain.SourceVector, "finance", "b", 0.8)},
		},
		errs: map[string]error{"eco": errors.New("backend down")},
	}
	engine := NewHybridRetrievalEngine(
		&embedFake{vec: []float32{0.1}},
		vector,
		&graphFake{err: errors.New("backend down")},
		&docFake{err: errors.New("backend down")},
		testLogger(), time.Second, 2,
	)
	router := NewDomainRouter(engine, testLogger(), time.Second, 5)

	results := router.Route(context.Background(), domain.ClassifiedQuery{
		Query:         "query",
		TargetDomains: []string{"eco", "finance"},
	})

	if results["eco"].Err == nil {
		t.Fatalf("expected eco failure to be recorded")
	}
	if results["finance"].Err != nil {
		t.Fatalf("expected finance to succeed, got %v", results["finance"].Err)
	}
	if len(results["finance"].Candidates) != 1 {
		t.Fatalf("expected finance candidates to survive eco failure")
	}
}

func TestRouteBoundsTotalLatencyBySlowestDomain(t *testing.T) {
	engine := NewHybridRetrievalEngine(
		&embedFake{vec: []float32{0.1}},
		&vectorFake{delay: 2 * time.Second},
		&graphFake{delay: 2 * time.Second},
		&docFake{delay: 2 * time.Second},
		testLogger(), time.Second, 2,
	)
	router := NewDomainRouter(engine, testLogger(), 50*time.Millisecond, 5)

	started := time.Now()
	results := router.Route(context.Background(), domain.ClassifiedQuery{
		Query:         "query",
		TargetDomains: []string{"eco", "finance", "technology"},
	})

	if elapsed := time.Since(started); elapsed > 800*time.Millisecond {
		t.Fatalf("expected concurrent bounded routing, took %s", elapsed)
	}
	for domainID, result := range results {
		if result.Err == nil {
			t.Fatalf("expected timeout error for domain %s", domainID)
		}
	}
}
