package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

// HistoryRepository owns the durable copy of interaction history. The query
// path only reads it; appends arrive asynchronously through the worker after
// the response was already returned.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082902)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	query TEXT NOT NULL,
	query_type TEXT NOT NULL,
	domains JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_user_created ON interactions(user_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListRecentInteractions(ctx context.Context, userID string, limit int) ([]domain.InteractionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, session_id, query, query_type, domains, created_at
FROM interactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.InteractionRecord
	for rows.Next() {
		var record domain.InteractionRecord
		var queryType string
		var domainsRaw []byte
		if err := rows.Scan(
			&record.ID, &record.UserID, &record.SessionID, &record.Query,
			&queryType, &domainsRaw, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		if err := json.Unmarshal(domainsRaw, &record.Domains); err != nil {
			return nil, fmt.Errorf("unmarshal interaction domains: %w", err)
		}
		record.QueryType = domain.QueryType(queryType)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction rows: %w", err)
	}
	return out, nil
}

func (r *HistoryRepository) AppendInteraction(ctx context.Context, record domain.InteractionRecord) error {
	domainsJSON, err := json.Marshal(record.Domains)
	if err != nil {
		return fmt.Errorf("marshal interaction domains: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO interactions (id, user_id, session_id, query, query_type, domains, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`,
		record.ID, record.UserID, record.SessionID, record.Query,
		string(record.QueryType), domainsJSON, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}
