package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
)

// InteractionRepository keeps one row per answered /chat or /search request.
type InteractionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewInteractionRepository(db *sql.DB) *InteractionRepository {
	return &InteractionRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *InteractionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/kbctl startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS retrieval_interactions (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	method TEXT NOT NULL,
	source TEXT,
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	response_time_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_retrieval_interactions_created_at ON retrieval_interactions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_retrieval_interactions_method ON retrieval_interactions(method);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *InteractionRepository) Record(ctx context.Context, in domain.Interaction) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO retrieval_interactions (
	id, question, method, source, score, is_fallback, response_time_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		uuid.NewString(), in.Question, string(in.Method), nullString(in.Source), in.Score,
		in.IsFallback, in.ResponseTimeMS, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// MethodCount is how often one retrieval method answered since a point in
// time.
type MethodCount struct {
	Method domain.Method
	Count  int64
	AvgMS  float64
}

func (r *InteractionRepository) MethodCounts(ctx context.Context, since time.Time) ([]MethodCount, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT method, COUNT(*), COALESCE(AVG(response_time_ms), 0)
FROM retrieval_interactions
WHERE created_at >= $1
GROUP BY method
ORDER BY COUNT(*) DESC, method
`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query method counts: %w", err)
	}
	defer rows.Close()

	var out []MethodCount
	for rows.Next() {
		var (
			method string
			mc     MethodCount
		)
		if err := rows.Scan(&method, &mc.Count, &mc.AvgMS); err != nil {
			return nil, fmt.Errorf("scan method count: %w", err)
		}
		mc.Method = domain.Method(method)
		out = append(out, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate method counts: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
