// Package classifier wraps a pluggable scorer behind an explicit readiness
// contract. A score is only produced in the Ready state; every other path
// resolves to an Unavailable result instead of a made-up confidence.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"adswap/internal/features"
)

var (
	ErrNotReady       = errors.New("classifier not ready")
	ErrInvalidScore   = errors.New("scorer returned an invalid confidence")
	ErrAlreadyStarted = errors.New("classifier initialization already started")
	ErrScorerPanicked = errors.New("scorer panicked")
	ErrNoScorerLoaded = errors.New("loader returned no scorer")
)

// Scorer maps a feature vector to a confidence in [0,1].
type Scorer interface {
	Score(ctx context.Context, v features.Vector) (float64, error)
}

// Loader builds the scorer. It may be slow (loading weights, warming up).
type Loader func(ctx context.Context) (Scorer, error)

// Result is either a confidence or Unavailable, never both.
type Result struct {
	Confidence float64
	Available  bool
	Reason     error
	// RequestID names the remote round trip that produced the result, if any.
	RequestID string
}

func Confident(c float64) Result {
	return Result{Confidence: c, Available: true}
}

func Unavailable(reason error) Result {
	return Result{Reason: reason}
}

// ConfidencePtr returns nil for an unavailable result, for wire encoding.
func (r Result) ConfidencePtr() *float64 {
	if !r.Available {
		return nil
	}
	c := r.Confidence
	return &c
}

type Classifier struct {
	readiness *Readiness
	load      Loader
	scorer    Scorer
}

func New(load Loader) *Classifier {
	return &Classifier{
		readiness: NewReadiness(),
		load:      load,
	}
}

func (c *Classifier) Readiness() *Readiness {
	return c.readiness
}

func (c *Classifier) State() State {
	return c.readiness.State()
}

// Initialize runs the loader once. Calling it again returns ErrAlreadyStarted.
func (c *Classifier) Initialize(ctx context.Context) error {
	if !c.readiness.Begin() {
		return ErrAlreadyStarted
	}

	scorer, err := c.load(ctx)
	if err == nil && scorer == nil {
		err = ErrNoScorerLoaded
	}
	if err != nil {
		c.readiness.Fail()
		return fmt.Errorf("classifier initialization: %w", err)
	}

	// scorer is published before the Ready transition; Score reads it only
	// after observing Ready.
	c.scorer = scorer
	c.readiness.Succeed()
	return nil
}

// Score never returns a numeric confidence unless the classifier is Ready and
// the scorer produced a finite value in [0,1] before ctx ended.
func (c *Classifier) Score(ctx context.Context, v features.Vector) Result {
	if !c.readiness.Ready() {
		return Unavailable(ErrNotReady)
	}

	type outcome struct {
		conf float64
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				slog.ErrorContext(ctx, "scorer panicked", "panic", p)
				ch <- outcome{err: ErrScorerPanicked}
			}
		}()
		conf, err := c.scorer.Score(ctx, v)
		ch <- outcome{conf: conf, err: err}
	}()

	select {
	case <-ctx.Done():
		return Unavailable(ctx.Err())
	case out := <-ch:
		if out.err != nil {
			return Unavailable(out.err)
		}
		if math.IsNaN(out.conf) || out.conf < 0 || out.conf > 1 {
			return Unavailable(fmt.Errorf("%w: %v", ErrInvalidScore, out.conf))
		}
		return Confident(out.conf)
	}
}
