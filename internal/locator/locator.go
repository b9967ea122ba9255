// Package locator re-finds an element on the live page from a structural
// selector and the geometry recorded at detection time, then swaps it for a
// placeholder exactly once.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"adswap/internal/element"
	"adswap/internal/message"
	"adswap/internal/middleware"
)

// DefaultTolerance is the per-dimension geometry tolerance, exclusive.
const DefaultTolerance = 5.0

// ErrNoMatch means no live element matched the selector within tolerance.
// It is expected under normal page churn.
var ErrNoMatch = errors.New("no element matched within tolerance")

// ElementID identifies a live element within one page context. It is issued
// by the Page implementation and never crosses a message boundary.
type ElementID string

type Element interface {
	ID() ElementID
	Rect(ctx context.Context) (element.Rect, error)
}

// Placeholder is the element inserted in place of a replaced one.
type Placeholder struct {
	ID   ElementID
	Text string
	Rect element.Rect
}

// Page is the capability the locator needs from a live document.
// Replace must hide el without removing it and insert an adjacent
// placeholder of rect's size carrying text.
type Page interface {
	Query(ctx context.Context, selector string) ([]Element, error)
	Replace(ctx context.Context, el Element, rect element.Rect, text string) (Placeholder, error)
}

type Outcome int

const (
	OutcomeNoMatch Outcome = iota
	OutcomeAlreadyReplaced
	OutcomeReplaced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeAlreadyReplaced:
		return "already_replaced"
	case OutcomeReplaced:
		return "replaced"
	}
	return "unknown"
}

type Locator struct {
	page      Page
	registry  *Registry
	tolerance float64
	timeout   time.Duration
}

func New(page Page, tolerance float64) *Locator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Locator{
		page:      page,
		registry:  NewRegistry(),
		tolerance: tolerance,
		timeout:   10 * time.Second,
	}
}

func (l *Locator) Registry() *Registry {
	return l.registry
}

// Apply resolves cmd against the page and replaces every candidate whose
// current geometry is within tolerance of cmd.Rect and that has not been
// replaced before.
func (l *Locator) Apply(ctx context.Context, cmd element.Replacement) (Outcome, error) {
	candidates, err := l.page.Query(ctx, cmd.Selector)
	if err != nil {
		return OutcomeNoMatch, fmt.Errorf("query %q: %w", cmd.Selector, err)
	}

	outcome := OutcomeNoMatch
	for _, el := range candidates {
		rect, err := l.geometry(ctx, el)
		if err != nil {
			// Detached between query and measurement.
			slog.DebugContext(ctx, "candidate geometry unavailable", "selector", cmd.Selector, "error", err)
			continue
		}
		if !rect.Within(cmd.Rect, l.tolerance) {
			continue
		}

		replaced, err := l.IdempotentReplace(ctx, el, rect, cmd.Text)
		if err != nil {
			return outcome, err
		}
		if replaced {
			outcome = OutcomeReplaced
		} else if outcome == OutcomeNoMatch {
			outcome = OutcomeAlreadyReplaced
		}
	}
	return outcome, nil
}

// geometry measures el. A replaced element is hidden and measures empty, so
// it is compared by the rect recorded when it was replaced.
func (l *Locator) geometry(ctx context.Context, el Element) (element.Rect, error) {
	if ph, ok := l.registry.Lookup(el.ID()); ok {
		return ph.Rect, nil
	}
	return el.Rect(ctx)
}

// IdempotentReplace replaces el unless it already has a placeholder. It
// reports whether a new placeholder was inserted.
func (l *Locator) IdempotentReplace(ctx context.Context, el Element, rect element.Rect, text string) (bool, error) {
	id := el.ID()
	if !l.registry.claim(id) {
		return false, nil
	}

	ph, err := l.page.Replace(ctx, el, rect, text)
	if err != nil {
		l.registry.release(id)
		return false, fmt.Errorf("replace element %s: %w", id, err)
	}
	l.registry.complete(id, ph)
	return true, nil
}

// HandleMessage consumes replaceAd messages addressed to this page context.
func (l *Locator) HandleMessage(m *nsq.Message) error {
	env, msg, err := message.Decode(m.Body)
	ctx := middleware.WithRole(context.Background(), message.TargetPage)
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}
	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}

	cmd, ok := msg.(message.ReplaceAd)
	if !ok {
		slog.WarnContext(ctx, "unexpected message for page context, dropping", "type", env.Type)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	outcome, err := l.Apply(ctx, cmd.Replacement)
	if err != nil {
		slog.ErrorContext(ctx, "replacement failed", "selector", cmd.Selector, "error", err)
		return nil
	}
	switch outcome {
	case OutcomeReplaced:
		slog.InfoContext(ctx, "ad replaced", "selector", cmd.Selector)
	case OutcomeAlreadyReplaced:
		slog.DebugContext(ctx, "element already replaced", "selector", cmd.Selector)
	default:
		slog.DebugContext(ctx, "no element within tolerance", "selector", cmd.Selector, "error", ErrNoMatch)
	}
	return nil
}
