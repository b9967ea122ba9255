// Package content holds the pools of benign text that replace detected ads.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

type Kind string

const (
	KindQuote    Kind = "quote"
	KindActivity Kind = "activity"
	KindReminder Kind = "reminder"
	KindAny      Kind = "any"
)

// PoolKinds are the kinds backed by a pool, in union order.
var PoolKinds = []Kind{KindQuote, KindActivity, KindReminder}

var (
	ErrEmptyPool   = errors.New("content pool is empty")
	ErrUnknownKind = errors.New("unknown content kind")
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindQuote, KindActivity, KindReminder, KindAny:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

var defaults = map[Kind][]string{
	KindQuote: {
		"Every moment is a fresh beginning.",
		"Make today amazing!",
		"You got this!",
		"Small steps, big changes.",
	},
	KindActivity: {
		"Time for a quick stretch!",
		"Have you had water recently?",
		"Take a deep breath.",
		"Stand up and move around!",
	},
	KindReminder: {
		"Remember to drink water.",
		"Take a short break if needed.",
		"You're doing great!",
		"Stay positive!",
	},
}

// Defaults returns a copy of the built-in pool for kind.
func Defaults(kind Kind) []string {
	return append([]string(nil), defaults[kind]...)
}

// Overrides maps a pool kind to its user-supplied replacement. A kind that is
// absent keeps its built-in pool.
type Overrides map[Kind][]string

type DailyQuote struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

func (q DailyQuote) String() string {
	return fmt.Sprintf("%q - %s", q.Content, q.Author)
}

type QuoteFetcher interface {
	FetchQuote(ctx context.Context) (DailyQuote, error)
}

// Library is shared by concurrent detections. Pools are only ever swapped as
// a whole, never edited in place.
type Library struct {
	mu      sync.RWMutex
	pools   map[Kind][]string
	daily   *DailyQuote
	fetcher QuoteFetcher
	intn    func(n int) int
}

func NewLibrary(fetcher QuoteFetcher) *Library {
	l := &Library{
		pools:   make(map[Kind][]string, len(PoolKinds)),
		fetcher: fetcher,
		intn:    rand.IntN,
	}
	l.Initialize(nil)
	return l
}

// Initialize sets every pool to its override, or to the built-in default.
func (l *Library) Initialize(overrides Overrides) {
	pools := make(map[Kind][]string, len(PoolKinds))
	for _, k := range PoolKinds {
		if items, ok := overrides[k]; ok && items != nil {
			pools[k] = append([]string(nil), items...)
		} else {
			pools[k] = Defaults(k)
		}
	}

	l.mu.Lock()
	l.pools = pools
	l.mu.Unlock()
}

// Apply replaces the whole pool for kind. Nil items restores the default.
func (l *Library) Apply(kind Kind, items []string) error {
	if _, ok := defaults[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	pool := Defaults(kind)
	if items != nil {
		pool = append([]string(nil), items...)
	}

	l.mu.Lock()
	l.pools[kind] = pool
	l.mu.Unlock()
	return nil
}

// Pool returns a copy of the pool for kind.
func (l *Library) Pool(kind Kind) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.pools[kind]...)
}

func (l *Library) DailyQuote() (DailyQuote, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.daily == nil {
		return DailyQuote{}, false
	}
	return *l.daily, true
}

// FetchDailyQuote refreshes the daily quote. Failures keep the previous value
// and are only logged.
func (l *Library) FetchDailyQuote(ctx context.Context) {
	if l.fetcher == nil {
		return
	}
	q, err := l.fetcher.FetchQuote(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch daily quote", "error", err)
		return
	}
	l.mu.Lock()
	l.daily = &q
	l.mu.Unlock()
	slog.InfoContext(ctx, "daily quote refreshed", "author", q.Author)
}

// StartRefresh refreshes the daily quote every interval until ctx ends.
// A zero interval disables refreshing.
func (l *Library) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.FetchDailyQuote(ctx)
			}
		}
	}()
}

// SelectRandom picks uniformly from the pool for kind. KindAny draws from the
// union of all pools plus the daily quote, when one is present.
func (l *Library) SelectRandom(kind Kind) (string, error) {
	l.mu.RLock()
	var candidates []string
	switch kind {
	case KindQuote, KindActivity, KindReminder:
		candidates = l.pools[kind]
	case KindAny:
		for _, k := range PoolKinds {
			candidates = append(candidates, l.pools[k]...)
		}
		if l.daily != nil {
			candidates = append(candidates, l.daily.String())
		}
	default:
		l.mu.RUnlock()
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	l.mu.RUnlock()

	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyPool, kind)
	}
	return candidates[l.intn(len(candidates))], nil
}
