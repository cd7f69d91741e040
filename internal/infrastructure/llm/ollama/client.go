package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/resilience"
)

type Client struct {
	baseURL       string
	genModel      string
	embedModel    string
	classifyModel string
	httpClient    *http.Client
	executor      *resilience.Executor
}

func New(baseURL, genModel, embedModel, classifyModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		genModel:      genModel,
		embedModel:    embedModel,
		classifyModel: classifyModel,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
		executor:      executor,
	}
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, call(ctx))
	}
	return wrapTemporaryIfNeeded(operation, c.executor.Execute(ctx, operation, call, classifyOllamaError))
}

// Embedder produces the fixed-dimension query vector for the vector branch.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.execute(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, nil
	}
	return response.Embeddings[0], nil
}

// Generator is the generation collaborator consuming the fused bundle. Its
// confidence tracks the bundle's: an empty bundle yields a low-confidence
// "no knowledge found" style answer rather than an error.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, query string, bundle domain.KnowledgeBundle, uctx domain.UserContext) (string, float64, error) {
	prompt := buildAnswerPrompt(query, bundle, uctx)

	request := map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	err := g.client.execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		return g.client.postJSON(callCtx, "/api/generate", request, &response, "generate")
	})
	if err != nil {
		return "", 0, err
	}

	confidence := 0.2
	if !bundle.IsEmpty() {
		confidence = 0.3 + 0.6*bundle.Confidence
	}
	return strings.TrimSpace(response.Response), confidence, nil
}

// TypeClassifier is the model-backed query type classifier. Any failure or
// off-vocabulary answer is an error; the caller falls back to rules.
type TypeClassifier struct {
	client *Client
}

func NewTypeClassifier(client *Client) *TypeClassifier {
	return &TypeClassifier{client: client}
}

func (c *TypeClassifier) ClassifyType(ctx context.Context, query string) (domain.QueryType, error) {
	request := map[string]any{
		"model":  c.client.classifyModel,
		"prompt": buildTypePrompt(query),
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	err := c.client.execute(ctx, "ollama.classify", func(callCtx context.Context) error {
		return c.client.postJSON(callCtx, "/api/generate", request, &response, "classify")
	})
	if err != nil {
		return "", err
	}

	answer := domain.QueryType(strings.ToLower(strings.TrimSpace(response.Response)))
	switch answer {
	case domain.QueryTypeAnalytical, domain.QueryTypeTransactional, domain.QueryTypeInformational,
		domain.QueryTypeNavigational, domain.QueryTypeGenerative:
		return answer, nil
	default:
		return "", fmt.Errorf("classify: unexpected type %q", response.Response)
	}
}
