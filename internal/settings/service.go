package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"adswap/internal/content"
)

// Override replaces the built-in pool for one content kind.
type Override struct {
	Kind      content.Kind `json:"kind"`
	Items     []string     `json:"items"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type Repository interface {
	List(ctx context.Context) ([]Override, error)
	Upsert(ctx context.Context, kind content.Kind, items []string) (*Override, error)
	Delete(ctx context.Context, kind content.Kind) error
}

// Pool is the effective state of one content kind.
type Pool struct {
	Kind       content.Kind `json:"kind"`
	Items      []string     `json:"items"`
	Overridden bool         `json:"overridden"`
	UpdatedAt  *time.Time   `json:"updated_at,omitempty"`
}

type Settings struct {
	Pools []Pool `json:"pools"`
}

// Listener is told about every pool change. Nil items means the pool was
// reset to its default.
type Listener = func(kind content.Kind, items []string)

type Service struct {
	repo Repository

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, listeners: make(map[int]Listener)}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	overrides, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byKind := make(map[content.Kind]Override, len(overrides))
	for _, o := range overrides {
		byKind[o.Kind] = o
	}

	set := &Settings{Pools: make([]Pool, 0, len(content.PoolKinds))}
	for _, k := range content.PoolKinds {
		p := Pool{Kind: k, Items: content.Defaults(k)}
		if o, ok := byKind[k]; ok {
			updated := o.UpdatedAt
			p.Items = o.Items
			p.Overridden = true
			p.UpdatedAt = &updated
		}
		set.Pools = append(set.Pools, p)
	}
	return set, nil
}

// Overrides returns the stored overrides keyed by kind.
func (s *Service) Overrides(ctx context.Context) (content.Overrides, error) {
	overrides, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(content.Overrides, len(overrides))
	for _, o := range overrides {
		out[o.Kind] = o.Items
	}
	return out, nil
}

// Update stores items as the pool for kind. Blank items are dropped; an
// empty list is a valid override that empties the pool.
func (s *Service) Update(ctx context.Context, kind content.Kind, items []string) (*Override, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}
	cleaned := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			cleaned = append(cleaned, it)
		}
	}

	o, err := s.repo.Upsert(ctx, kind, cleaned)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "content override updated", "kind", kind, "items", len(cleaned))
	s.notify(kind, cleaned)
	return o, nil
}

// Reset drops the override for kind, restoring the built-in default.
func (s *Service) Reset(ctx context.Context, kind content.Kind) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, kind); err != nil {
		return err
	}
	slog.InfoContext(ctx, "content override reset", "kind", kind)
	s.notify(kind, nil)
	return nil
}

// Subscribe registers l for pool changes and returns its removal func.
func (s *Service) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) notify(kind content.Kind, items []string) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(kind, items)
	}
}

func validateKind(kind content.Kind) error {
	k, err := content.ParseKind(string(kind))
	if err != nil {
		return err
	}
	if k == content.KindAny {
		return fmt.Errorf("%w: %q is not a pool", content.ErrUnknownKind, kind)
	}
	return nil
}
