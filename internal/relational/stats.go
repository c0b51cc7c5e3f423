package relational

import (
	"context"
)

// CollectStats counts rows across the core tables for the stats
// operation and the health surface.
func (s *Store) CollectStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		table string
		dst   *int64
	}{
		{"Resources", &stats.Resources},
		{"ResourceChunks", &stats.Chunks},
		{"ChatHistory", &stats.ChatMessages},
		{"ContextLinks", &stats.ContextLinks},
		{"Todos", &stats.Todos},
		{"CodePatterns", &stats.CodePatterns},
		{"ResourceLinks", &stats.ResourceLinks},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, `SELECT COUNT(*) FROM `+c.table); err != nil {
			return nil, storageErr("counting "+c.table, c.table, nil, err)
		}
	}
	last, err := s.LastVectorID(ctx)
	if err != nil {
		return nil, err
	}
	stats.LastVectorID = last
	return stats, nil
}
