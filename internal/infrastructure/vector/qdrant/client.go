package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// Client is a read-only Qdrant search client. Every knowledge domain maps to
// its own collection; index writes happen in a separate ingestion path and
// never on the query path.
type Client struct {
	baseURL     string
	prefix      string
	collections map[string]string
	httpClient  *http.Client
}

func New(baseURL, prefix string, collections map[string]string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		prefix:      prefix,
		collections: collections,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) collection(domainID string) string {
	if name, ok := c.collections[domainID]; ok && name != "" {
		return name
	}
	return c.prefix + "_" + strings.ToLower(domainID)
}

func (c *Client) Search(ctx context.Context, domainID string, queryVector []float32, limit int) ([]domain.RetrievalCandidate, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection(domainID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.RetrievalCandidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievalCandidate{
			ID:     fmt.Sprintf("vector_%v", r.ID),
			Source: domain.SourceVector,
			Domain: domainID,
			Score:  r.Score,
			Content: domain.CandidateContent{
				Source: domain.SourceVector,
				Text:   getStringPayload(r.Payload, "text"),
			},
		})
	}
	return out, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
