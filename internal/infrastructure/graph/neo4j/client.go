package neo4j

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// defaultImportance is the relevance assumed for entities without a
// precomputed importance property.
const defaultImportance = 0.5

var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Client traverses a domain-scoped knowledge graph. Entities are matched on
// name/description tokens and returned together with their immediate
// relations. The query path is read-only.
type Client struct {
	driver neo4j.DriverWithContext
	labels map[string]string
}

// New validates the configured labels up front: Cypher cannot parameterize
// labels, so they are interpolated into the query text and must stay
// identifier-safe.
func New(ctx context.Context, uri, user, password string, labels map[string]string) (*Client, error) {
	for domainID, label := range labels {
		if !labelPattern.MatchString(label) {
			return nil, fmt.Errorf("domain %s: invalid graph label %q", domainID, label)
		}
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Client{driver: driver, labels: labels}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) label(domainID string) string {
	if label, ok := c.labels[domainID]; ok && label != "" {
		return label
	}
	return "Entity"
}

func (c *Client) Search(ctx context.Context, domainID, query string, limit int) ([]domain.RetrievalCandidate, error) {
	tokens := searchTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	cypher := fmt.Sprintf(`
MATCH (e:%s)
WHERE any(t IN $tokens WHERE toLower(e.name) CONTAINS t OR toLower(coalesce(e.description, '')) CONTAINS t)
OPTIONAL MATCH (e)-[r]->(n)
WITH e, collect({type: type(r), target: coalesce(n.name, '')}) AS rels
RETURN e.id AS id,
       e.name AS name,
       coalesce(e.description, '') AS description,
       coalesce(e.importance, $defaultImportance) AS importance,
       rels
ORDER BY importance DESC
LIMIT $limit
`, c.label(domainID))

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"tokens":            tokens,
			"defaultImportance": defaultImportance,
			"limit":             limit,
		})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j entity search: %w", err)
	}

	out := make([]domain.RetrievalCandidate, 0, len(records))
	for _, record := range records {
		entityID := stringValue(record, "id")
		if entityID == "" {
			continue
		}
		out = append(out, domain.RetrievalCandidate{
			ID:     "graph_" + entityID,
			Source: domain.SourceGraph,
			Domain: domainID,
			Score:  floatValue(record, "importance", defaultImportance),
			Content: domain.CandidateContent{
				Source:            domain.SourceGraph,
				EntityID:          entityID,
				EntityName:        stringValue(record, "name"),
				EntityDescription: stringValue(record, "description"),
				Relations:         relationValues(record),
			},
		})
	}
	return out, nil
}

// searchTokens keeps tokens of 3+ runes so CONTAINS matching does not degrade
// into matching every entity on stop-word fragments.
func searchTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimFunc(field, func(r rune) bool {
			return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
		})
		if len([]rune(token)) >= 3 {
			out = append(out, token)
		}
	}
	return out
}

func stringValue(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

func floatValue(record *neo4j.Record, key string, fallback float64) float64 {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

func relationValues(record *neo4j.Record) []domain.EntityRelation {
	v, ok := record.Get("rels")
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	out := make([]domain.EntityRelation, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		relType, _ := m["type"].(string)
		target, _ := m["target"].(string)
		if relType == "" && target == "" {
			continue
		}
		out = append(out, domain.EntityRelation{Type: relType, Target: target})
	}
	return out
}
