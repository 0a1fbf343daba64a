package databases

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgVector is the postgres-backed VectorStore, storing each node's
// embedding in a pgvector column sized to the configured EmbeddingDim.
type pgVector struct {
	pool      *pgxpool.Pool
	dimension int
	metric    string // cosine|l2|ip
}

// NewPostgresVector wraps pool and ensures the node_embeddings table
// exists, sized to dimension (0 leaves the column unconstrained, which
// pgvector allows but loses its dimension-mismatch safety check).
func NewPostgresVector(pool *pgxpool.Pool, dimension int, metric string) VectorStore {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if dimension > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimension)
	}
	_, _ = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS node_embeddings (
  id TEXT PRIMARY KEY,
  embedding %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);
`, vecType))
	return &pgVector{pool: pool, dimension: dimension, metric: strings.ToLower(strings.TrimSpace(metric))}
}

func (p *pgVector) Upsert(ctx context.Context, nodeID string, vector []float32, metadata map[string]string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO node_embeddings(id, embedding, metadata) VALUES($1, $2::vector, $3)
ON CONFLICT (id) DO UPDATE SET embedding=EXCLUDED.embedding, metadata=EXCLUDED.metadata
`, nodeID, toVectorLiteral(vector), mapToJSON(metadata))
	return err
}

func (p *pgVector) Delete(ctx context.Context, nodeID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM node_embeddings WHERE id=$1`, nodeID)
	return err
}

func (p *pgVector) SimilaritySearch(ctx context.Context, query []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	op, scoreExpr := "<=>", "1 - (embedding <=> $1::vector)"
	switch p.metric {
	case "l2", "euclidean":
		op, scoreExpr = "<->", "-(embedding <-> $1::vector)"
	case "ip", "dot":
		op, scoreExpr = "<#>", "-(embedding <#> $1::vector)"
	}
	vecLit := toVectorLiteral(query)
	args := []any{vecLit, k}
	where := ""
	if len(filter) > 0 {
		where = "WHERE metadata @> $3"
		args = []any{vecLit, k, filter}
	}
	stmt := fmt.Sprintf(`SELECT id, %s AS score, metadata FROM node_embeddings %s ORDER BY embedding %s $1::vector LIMIT $2`, scoreExpr, where, op)
	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]VectorResult, 0, k)
	for rows.Next() {
		var r VectorResult
		var md map[string]string
		if err := rows.Scan(&r.ID, &r.Score, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

// toVectorLiteral renders a float32 slice as pgvector's textual input
// format, e.g. "[0.1,0.2,-0.3]".
func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}
