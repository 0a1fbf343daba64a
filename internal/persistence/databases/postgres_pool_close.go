package databases

import "github.com/jackc/pgx/v5/pgxpool"

// Close lets Manager.Close's capability-interface check
// (any(x).(interface{ Close() })) close whichever of the three postgres
// backends share a pool, without Manager needing to know their concrete
// types.
func (p *pgSearch) Close() { p.pool.Close() }
func (p *pgVector) Close() { p.pool.Close() }
func (p *pgGraph) Close()  { p.pool.Close() }

var _ *pgxpool.Pool // referenced only via the method receivers above
