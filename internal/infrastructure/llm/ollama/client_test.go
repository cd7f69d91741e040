package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

func newServerClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "gen-model", "embed-model", "classify-model", nil)
}

func TestEmbedQueryReturnsFirstEmbedding(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "embed-model" {
			t.Fatalf("unexpected model %v", req["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	})

	vec, err := NewEmbedder(client).EmbedQuery(context.Background(), "staking")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedQueryTreatsEmptyEmbeddingsAsNil(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	})

	vec, err := NewEmbedder(client).EmbedQuery(context.Background(), "staking")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vec != nil {
		t.Fatalf("expected nil vector, got %v", vec)
	}
}

func TestGenerateConfidenceTracksBundle(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  answer text \n"})
	})
	generator := NewGenerator(client)

	text, confidence, err := generator.Generate(context.Background(), "q", domain.KnowledgeBundle{}, domain.UserContext{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "answer text" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
	if confidence != 0.2 {
		t.Fatalf("expected empty-bundle confidence 0.2, got %v", confidence)
	}

	bundle := domain.KnowledgeBundle{
		PrimaryKnowledge: []domain.FusedResult{{ID: "vector_1"}},
		Confidence:       0.5,
	}
	_, confidence, err = generator.Generate(context.Background(), "q", bundle, domain.UserContext{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if confidence != 0.3+0.6*0.5 {
		t.Fatalf("expected bundle-tracked confidence, got %v", confidence)
	}
}

func TestClassifyTypeAcceptsKnownTypes(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": " Informational \n"})
	})

	got, err := NewTypeClassifier(client).ClassifyType(context.Background(), "what is staking")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != domain.QueryTypeInformational {
		t.Fatalf("expected informational, got %s", got)
	}
}

func TestClassifyTypeRejectsOffVocabularyAnswer(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "I think this is probably informational"})
	})

	if _, err := NewTypeClassifier(client).ClassifyType(context.Background(), "what is staking"); err == nil {
		t.Fatalf("expected error for off-vocabulary answer")
	}
}

func TestServerErrorIsTemporary(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := NewEmbedder(client).EmbedQuery(context.Background(), "staking")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error kind, got %v", err)
	}
}

func TestClientErrorIsNotTemporary(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad model", http.StatusNotFound)
	})

	_, err := NewEmbedder(client).EmbedQuery(context.Background(), "staking")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be classified as temporary, got %v", err)
	}
}
