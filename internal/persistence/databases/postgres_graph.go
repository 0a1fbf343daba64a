package databases

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgGraph is the postgres-backed GraphDB: a node table plus a directed
// adjacency table keyed by (source, kind) where kind is a model.EdgeKind
// string ("parent_of", "sibling_of", "similar").
type pgGraph struct{ pool *pgxpool.Pool }

// NewPostgresGraph wraps pool and ensures the graph_nodes/graph_edges
// tables exist.
func NewPostgresGraph(pool *pgxpool.Pool) GraphDB {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS graph_nodes (
  id TEXT PRIMARY KEY,
  labels TEXT[] NOT NULL DEFAULT '{}',
  props JSONB NOT NULL DEFAULT '{}'::jsonb
);
`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS graph_edges (
  id BIGSERIAL PRIMARY KEY,
  source TEXT NOT NULL,
  kind TEXT NOT NULL,
  target TEXT NOT NULL,
  props JSONB NOT NULL DEFAULT '{}'::jsonb,
  UNIQUE(source, kind, target)
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS graph_edges_src_kind ON graph_edges(source, kind)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS graph_edges_dst_kind ON graph_edges(target, kind)`)
	return &pgGraph{pool: pool}
}

func (g *pgGraph) UpsertNode(ctx context.Context, nodeID string, labels []string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_nodes(id, labels, props) VALUES($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET labels=EXCLUDED.labels, props=EXCLUDED.props
`, nodeID, labels, props)
	return err
}

func (g *pgGraph) UpsertEdge(ctx context.Context, sourceID, kind, targetID string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_edges(source, kind, target, props) VALUES($1,$2,$3,$4)
ON CONFLICT (source, kind, target) DO UPDATE SET props=EXCLUDED.props
`, sourceID, kind, targetID, props)
	return err
}

func (g *pgGraph) Neighbors(ctx context.Context, nodeID string, kind string) ([]string, error) {
	rows, err := g.pool.Query(ctx, `SELECT target FROM graph_edges WHERE source=$1 AND kind=$2 ORDER BY target`, nodeID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, rows.Err()
}

func (g *pgGraph) GetNode(ctx context.Context, nodeID string) (Node, bool) {
	row := g.pool.QueryRow(ctx, `SELECT labels, props FROM graph_nodes WHERE id=$1`, nodeID)
	var labels []string
	var props map[string]any
	if err := row.Scan(&labels, &props); err != nil {
		return Node{}, false
	}
	return Node{ID: nodeID, Labels: labels, Props: props}, true
}
