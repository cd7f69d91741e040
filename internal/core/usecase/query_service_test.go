package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

type generatorFake struct {
	text       string
	confidence float64
	err        error
	gotBundle  domain.KnowledgeBundle
}

func (f *generatorFake) Generate(_ context.Context, _ string, bundle domain.KnowledgeBundle, _ domain.UserContext) (string, float64, error) {
	f.gotBundle = bundle
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.confidence, nil
}

type publisherFake struct {
	mu      sync.Mutex
	records []domain.InteractionRecord
	err     error
}

func (f *publisherFake) PublishInteraction(_ context.Context, record domain.InteractionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

type pipelineFixture struct {
	uc        *QueryUseCase
	matcher   *matcherFake
	vector    *domainAwareVectorFake
	cache     *cacheFake
	publisher *publisherFake
	generator *generatorFake
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()

	matcher := newMatcherFake()
	vector := &domainAwareVectorFake{
		byDomain: map[string][]domain.RetrievalCandidate{
			"eco":     {textCandidate("vector_1", domain.SourceVector, "eco", "staking locks tokens", 0.9)},
			"finance": {textCandidate("vector_2", domain.SourceVector, "finance", "dividends explained", 0.8)},
			"general": {textCandidate("vector_3", domain.SourceVector, "general", "general knowledge", 0.7)},
		},
		errs: map[string]error{},
	}
	cache := newCacheFake()
	publisher := &publisherFake{}
	generator := &generatorFake{text: "answer", confidence: 0.8}

	engine := NewHybridRetrievalEngine(
		&embedFake{vec: []float32{0.1}},
		vector, &graphFake{}, &docFake{},
		testLogger(), time.Second, 2,
	)
	builder := NewContextBuilder(&storeFake{}, cache, testLogger(), 10, 5, 100, time.Minute)
	classifier := NewQueryClassifier(nil, matcher, testLogger())
	router := NewDomainRouter(engine, testLogger(), time.Second, 5)
	fusion := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)

	uc := NewQueryUseCase(builder, classifier, router, fusion, generator, matcher, cache, publisher, testLogger(), time.Hour)
	return &pipelineFixture{
		uc:        uc,
		matcher:   matcher,
		vector:    vector,
		cache:     cache,
		publisher: publisher,
		generator: generator,
	}
}

func TestAnswerRejectsMissingFields(t *testing.T) {
	fx := newPipeline(t)

	cases := []domain.QueryRequest{
		{Query: "", UserID: "u1", SessionID: "s1"},
		{Query: "   ", UserID: "u1", SessionID: "s1"},
		{Query: "q", UserID: "", SessionID: "s1"},
		{Query: "q", UserID: "u1", SessionID: ""},
	}
	for _, req := range cases {
		_, err := fx.uc.Answer(context.Background(), req)
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("request %+v: expected invalid input, got %v", req, err)
		}
	}
}

func TestAnswerRejectsUnknownDomainOverride(t *testing.T) {
	fx := newPipeline(t)

	_, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: "q", UserID: "u1", SessionID: "s1",
		Domains: []string{"ghost"},
	})
	if !domain.IsKind(err, domain.ErrDomainUnknown) {
		t.Fatalf("expected unknown domain error, got %v", err)
	}
}

func TestAnswerReturnsEnvelope(t *testing.T) {
	fx := newPipeline(t)
	fx.matcher.matches["how does staking work"] = []string{"eco"}

	resp, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: "how does staking work", UserID: "u1", SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	if resp.Response != "answer" {
		t.Fatalf("unexpected response text %q", resp.Response)
	}
	if resp.Metadata.QueryType != domain.QueryTypeInformational {
		t.Fatalf("expected informational type, got %s", resp.Metadata.QueryType)
	}
	if len(resp.Metadata.Domains) != 1 || resp.Metadata.Domains[0] != "eco" {
		t.Fatalf("expected eco domain, got %v", resp.Metadata.Domains)
	}
	if resp.Metadata.ProcessingTimeMS < 0 {
		t.Fatalf("expected non-negative processing time")
	}
	if resp.Metadata.Cached {
		t.Fatalf("first answer must not be cached")
	}
	if len(resp.Sources) == 0 {
		t.Fatalf("expected source attribution")
	}
	if resp.Confidence <= 0 || resp.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", resp.Confidence)
	}
}

func TestAnswerPublishesInteraction(t *testing.T) {
	fx := newPipeline(t)
	fx.matcher.matches["staking question"] = []string{"eco"}

	if _, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: "staking question", UserID: "u1", SessionID: "s1",
	}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	fx.publisher.mu.Lock()
	defer fx.publisher.mu.Unlock()
	if len(fx.publisher.records) != 1 {
		t.Fatalf("expected one published record, got %d", len(fx.publisher.records))
	}
	rec := fx.publisher.records[0]
	if rec.ID == "" || rec.UserID != "u1" || rec.SessionID != "s1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Domains) != 1 || rec.Domains[0] != "eco" {
		t.Fatalf("expected eco domain on record, got %v", rec.Domains)
	}
}

func TestAnswerSurvivesPublishFailure(t *testing.T) {
	fx := newPipeline(t)
	fx.publisher.err = errors.New("nats down")

	resp, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: "anything", UserID: "u1", SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("expected response despite publish failure, got %v", err)
	}
	if resp.Response == "" {
		t.Fatalf("expected generated response")
	}
}

func TestAnswerAppliesDomainOverride(t *testing.T) {
	fx := newPipeline(t)
	fx.matcher.matches["staking question"] = []string{"eco"}

	resp, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: "staking question", UserID: "u1", SessionID: "s1",
		Domains: []string{"finance"},
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(resp.Metadata.Domains) != 1 || resp.Metadata.Domains[0] != "finance" {
		t.Fatalf("expected override to win, got %v", resp.Metadata.Domains)
	}
}

func TestAnswerServesCachedResponse(t *testing.T) {
	fx := newPipeline(t)

	cached := domain.QueryResponse{
		Response: "cached answer",
		Metadata: domain.ResponseMetadata{QueryType: domain.QueryTypeInformational, Domains: []string{"eco"}},
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal cached response: %v", err)
	}
	fx.cache.data["result:"+QueryFingerprint("u1", "cached question", nil)] = raw
	fx.vector.errs["general"] = errors.New("retrieval must not run on cache hit")
	fx.generator.err = errors.New("generator must not run on cache hit")

	resp, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: "cached question", UserID: "u1", SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Response != "cached answer" {
		t.Fatalf("expected cached response, got %q", resp.Response)
	}
	if !resp.Metadata.Cached {
		t.Fatalf("expected cached flag set")
	}
}

func TestAnswerNeverSharesCachedResponsesAcrossUsers(t *testing.T) {
	fx := newPipeline(t)
	fx.matcher.matches["staking question"] = []string{"eco"}

	cached := domain.QueryResponse{
		Response: "personalized answer for u1",
		Metadata: domain.ResponseMetadata{QueryType: domain.QueryTypeInformational, Domains: []string{"eco"}, Personalized: true},
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal cached response: %v", err)
	}
	fx.cache.data["result:"+QueryFingerprint("u1", "staking question", nil)] = raw

	resp, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: "staking question", UserID: "u2", SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Metadata.Cached {
		t.Fatalf("u2 must not be served u1's cache entry")
	}
	if resp.Response == cached.Response {
		t.Fatalf("u2 received u1's cached response verbatim")
	}
}

func TestAnswerStoresResponseInCache(t *testing.T) {
	fx := newPipeline(t)

	if _, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: "fresh question", UserID: "u1", SessionID: "s1",
	}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	key := "result:" + QueryFingerprint("u1", "fresh question", nil)
	fx.cache.mu.Lock()
	_, ok := fx.cache.data[key]
	fx.cache.mu.Unlock()
	if !ok {
		t.Fatalf("expected response cached under %s", key)
	}
}

func TestAnswerFailsWhenAllDomainsExhausted(t *testing.T) {
	fx := newPipeline(t)
	fx.matcher.matches["doomed"] = []string{"eco", "finance"}
	fx.vector.errs["eco"] = errors.New("down")
	fx.vector.errs["finance"] = errors.New("down")

	engine := NewHybridRetrievalEngine(
		&embedFake{vec: []float32{0.1}},
		fx.vector,
		&graphFake{err: errors.New("down")},
		&docFake{err: errors.New("down")},
		testLogger(), time.Second, 2,
	)
	router := NewDomainRouter(engine, testLogger(), time.Second, 5)
	builder := NewContextBuilder(&storeFake{}, nil, testLogger(), 10, 5, 100, time.Minute)
	classifier := NewQueryClassifier(nil, fx.matcher, testLogger())
	fusion := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)
	uc := NewQueryUseCase(builder, classifier, router, fusion, fx.generator, fx.matcher, nil, nil, testLogger(), time.Hour)

	_, err := uc.Answer(context.Background(), domain.QueryRequest{
		Query: "doomed", UserID: "u1", SessionID: "s1",
	})
	if !domain.IsKind(err, domain.ErrRetrievalExhausted) {
		t.Fatalf("expected retrieval exhausted, got %v", err)
	}
}

func TestAnswerDegradesOnPartialDomainFailure(t *testing.T) {
	fx := newPipeline(t)
	fx.matcher.matches["partial"] = []string{"eco", "finance"}
	fx.vector.errs["eco"] = errors.New("down")

	engine := NewHybridRetrievalEngine(
		&embedFake{vec: []float32{0.1}},
		fx.vector,
		&graphFake{err: errors.New("down")},
		&docFake{err: errors.New("down")},
		testLogger(), time.Second, 2,
	)
	router := NewDomainRouter(engine, testLogger(), time.Second, 5)
	builder := NewContextBuilder(&storeFake{}, nil, testLogger(), 10, 5, 100, time.Minute)
	classifier := NewQueryClassifier(nil, fx.matcher, testLogger())
	fusion := NewKnowledgeFusionEngine(DefaultFusionWeights(), 5, 5)
	uc := NewQueryUseCase(builder, classifier, router, fusion, fx.generator, fx.matcher, nil, nil, testLogger(), time.Hour)

	resp, err := uc.Answer(context.Background(), domain.QueryRequest{
		Query: "partial", UserID: "u1", SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("expected degraded answer, got %v", err)
	}
	if len(resp.Sources) == 0 {
		t.Fatalf("expected sources from the surviving domain")
	}
}

func TestAnswerTruncatesOverlongQueries(t *testing.T) {
	fx := newPipeline(t)

	long := make([]byte, 0, 300)
	for i := 0; i < 300; i++ {
		long = append(long, 'a')
	}
	resp, err := fx.uc.Answer(context.Background(), domain.QueryRequest{
		Query: string(long), UserID: "u1", SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("expected truncation instead of rejection, got %v", err)
	}
	if resp == nil {
		t.Fatalf("expected response for truncated query")
	}

	fx.publisher.mu.Lock()
	defer fx.publisher.mu.Unlock()
	if len(fx.publisher.records) != 1 || len(fx.publisher.records[0].Query) != 100 {
		t.Fatalf("expected the truncated query to flow through the pipeline")
	}
}
