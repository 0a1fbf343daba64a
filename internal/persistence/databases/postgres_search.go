package databases

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgSearch is the postgres-backed FullTextSearch: one context_nodes row per
// ContextNode, full-text indexed via a generated tsvector column.
type pgSearch struct{ pool *pgxpool.Pool }

// NewPostgresSearch wraps pool and ensures the context_nodes table exists.
// Bootstrap is best-effort: a non-superuser DSN that can't create pg_trgm
// still gets a usable tsvector index. No query here uses pg_trgm; matching
// is tsvector full-text only.
func NewPostgresSearch(pool *pgxpool.Pool) FullTextSearch {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS context_nodes (
  id TEXT PRIMARY KEY,
  content TEXT NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(content,''))) STORED
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS context_nodes_ts_idx ON context_nodes USING GIN (ts)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS context_nodes_metadata_idx ON context_nodes USING GIN (metadata)`)
	return &pgSearch{pool: pool}
}

func (p *pgSearch) Index(ctx context.Context, nodeID, content string, metadata map[string]string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO context_nodes(id, content, metadata) VALUES($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET content=EXCLUDED.content, metadata=EXCLUDED.metadata
`, nodeID, content, mapToJSON(metadata))
	return err
}

func (p *pgSearch) Remove(ctx context.Context, nodeID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM context_nodes WHERE id=$1`, nodeID)
	return err
}

func (p *pgSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, ts_rank(ts, plainto_tsquery('simple',$1)) AS score,
       left(content, 120) AS snippet,
       content,
       metadata
FROM context_nodes
WHERE ts @@ plainto_tsquery('simple',$1)
ORDER BY score DESC
LIMIT $2
`, q, limit)
	if err != nil {
		return nil, err
	}
	return scanSearchRows(rows, limit)
}

// SearchChunks scopes the same full-text query to a userId/projectId/
// contextId filter (§4.5): every ContextNode already IS a chunk, so unlike
// the teacher's two-table (documents vs chunks) fallback this backend has
// a single table and the filter does all the scoping.
func (p *pgSearch) SearchChunks(ctx context.Context, query string, lang string, limit int, filter map[string]string) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	f := mapToJSON(filter)
	stmt := `SELECT id, ts_rank(ts, websearch_to_tsquery(to_regconfig($2), $1)) AS score,
                  left(content, 120) AS snippet, content, metadata
           FROM context_nodes
           WHERE ts @@ websearch_to_tsquery(to_regconfig($2), $1)
             AND metadata @> $3
           ORDER BY score DESC
           LIMIT $4`
	rows, err := p.pool.Query(ctx, stmt, q, lang, f, limit)
	if err == nil {
		return scanSearchRows(rows, limit)
	}
	// websearch_to_tsquery is unavailable on older servers; fall back to plainto_tsquery.
	stmt = `SELECT id, ts_rank(ts, plainto_tsquery(to_regconfig($2), $1)) AS score,
                  left(content, 120) AS snippet, content, metadata
           FROM context_nodes
           WHERE ts @@ plainto_tsquery(to_regconfig($2), $1)
             AND metadata @> $3
           ORDER BY score DESC
           LIMIT $4`
	rows, err = p.pool.Query(ctx, stmt, q, lang, f, limit)
	if err != nil {
		return nil, err
	}
	return scanSearchRows(rows, limit)
}

func (p *pgSearch) GetByID(ctx context.Context, nodeID string) (SearchResult, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, content, metadata FROM context_nodes WHERE id=$1`, nodeID)
	var r SearchResult
	var md map[string]string
	if err := row.Scan(&r.ID, &r.Text, &md); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return SearchResult{}, false, nil
		}
		return SearchResult{}, false, err
	}
	r.Metadata = md
	return r, true, nil
}

func scanSearchRows(rows pgx.Rows, limit int) ([]SearchResult, error) {
	defer rows.Close()
	out := make([]SearchResult, 0, limit)
	for rows.Next() {
		var r SearchResult
		var md map[string]string
		if err := rows.Scan(&r.ID, &r.Score, &r.Snippet, &r.Text, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

// mapToJSON ensures we never hand the driver a nil map: the metadata column
// is NOT NULL JSONB, and a nil Go map marshals to SQL NULL rather than '{}'.
func mapToJSON(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
