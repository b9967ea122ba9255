package settings

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"adswap/internal/content"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) List(ctx context.Context) ([]Override, error) {
	query := `SELECT kind, items, updated_at FROM content_overrides ORDER BY kind`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Override
	for rows.Next() {
		var o Override
		var items pq.StringArray
		if err := rows.Scan(&o.Kind, &items, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Items = []string(items)
		if o.Items == nil {
			o.Items = []string{}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Upsert(ctx context.Context, kind content.Kind, items []string) (*Override, error) {
	query := `
		INSERT INTO content_overrides (kind, items, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (kind) DO UPDATE SET items = EXCLUDED.items, updated_at = NOW()
		RETURNING updated_at
	`
	o := &Override{Kind: kind, Items: items}
	if err := r.db.QueryRowContext(ctx, query, string(kind), pq.Array(items)).Scan(&o.UpdatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, kind content.Kind) error {
	query := `DELETE FROM content_overrides WHERE kind = $1`
	_, err := r.db.ExecContext(ctx, query, string(kind))
	return err
}

// MemoryRepo keeps overrides for the life of the process.
type MemoryRepo struct {
	mu        sync.RWMutex
	overrides map[content.Kind]Override
	now       func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{overrides: make(map[content.Kind]Override), now: time.Now}
}

func (r *MemoryRepo) List(ctx context.Context) ([]Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Override, 0, len(r.overrides))
	for _, o := range r.overrides {
		o.Items = append([]string{}, o.Items...)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, kind content.Kind, items []string) (*Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := Override{Kind: kind, Items: append([]string{}, items...), UpdatedAt: r.now()}
	r.overrides[kind] = o
	return &o, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, kind content.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, kind)
	return nil
}
