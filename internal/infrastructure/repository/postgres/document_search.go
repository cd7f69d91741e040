package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// DocumentSearch runs full-text retrieval over the knowledge_documents table.
// Scores are native ts_rank values; fusion normalizes them before any
// cross-source comparison.
type DocumentSearch struct {
	db         *sql.DB
	categories map[string]string
}

func NewDocumentSearch(db *sql.DB, categories map[string]string) *DocumentSearch {
	return &DocumentSearch{db: db, categories: categories}
}

func (s *DocumentSearch) category(domainID string) string {
	if category, ok := s.categories[domainID]; ok && category != "" {
		return category
	}
	return strings.ToLower(domainID)
}

func (s *DocumentSearch) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS knowledge_documents (
	id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_documents_category ON knowledge_documents(category);
CREATE INDEX IF NOT EXISTS idx_knowledge_documents_fts
	ON knowledge_documents USING GIN (to_tsvector('english', title || ' ' || body));
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *DocumentSearch) Search(ctx context.Context, domainID, query string, limit int) ([]domain.RetrievalCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, body,
	ts_rank(to_tsvector('english', title || ' ' || body), plainto_tsquery('english', $2)) AS rank
FROM knowledge_documents
WHERE category = $1
	AND to_tsvector('english', title || ' ' || body) @@ plainto_tsquery('english', $2)
ORDER BY rank DESC
LIMIT $3
`, s.category(domainID), query, limit)
	if err != nil {
		return nil, fmt.Errorf("document search: %w", err)
	}
	defer rows.Close()

	var out []domain.RetrievalCandidate
	for rows.Next() {
		var id, title, body string
		var rank float64
		if err := rows.Scan(&id, &title, &body, &rank); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, domain.RetrievalCandidate{
			ID:     "document_" + id,
			Source: domain.SourceDocument,
			Domain: domainID,
			Score:  rank,
			Content: domain.CandidateContent{
				Source: domain.SourceDocument,
				Text:   strings.TrimSpace(title + "\n" + body),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}
