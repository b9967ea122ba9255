// Package orchestrator owns the detection pipeline: it gates on classifier
// readiness, combines the classifier score with the rule list, and sends a
// replacement command back to the page context that reported the element.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"adswap/internal/bus"
	"adswap/internal/classifier"
	"adswap/internal/config"
	"adswap/internal/content"
	"adswap/internal/decisionlog"
	"adswap/internal/element"
	"adswap/internal/message"
	"adswap/internal/middleware"
	"adswap/internal/rules"
)

// Classifier is the orchestrator's view of the compute context.
type Classifier interface {
	State() classifier.State
	Initialize(ctx context.Context) error
	Score(ctx context.Context, d element.Descriptor, vp element.Viewport, originContextID string) classifier.Result
}

// OverrideSource supplies persisted content pools and their changes.
type OverrideSource interface {
	Overrides(ctx context.Context) (content.Overrides, error)
	Subscribe(func(kind content.Kind, items []string)) func()
}

type Options struct {
	Threshold        float64
	RuleOnlyFallback bool
	DefaultViewport  element.Viewport
	RuleRefresh      time.Duration
	QuoteRefresh     time.Duration
}

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeNotAd
	OutcomeNoContent
	OutcomeReplaced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNotAd:
		return "not_ad"
	case OutcomeNoContent:
		return "no_content"
	case OutcomeReplaced:
		return "replaced"
	}
	return "unknown"
}

// Decision is the result of one detection.
type Decision struct {
	Outcome     Outcome
	RuleMatch   bool
	Result      classifier.Result
	Replacement *element.Replacement
}

type Orchestrator struct {
	clf       Classifier
	ruleSrc   rules.Source
	library   *content.Library
	overrides OverrideSource
	publisher bus.Publisher
	decisions *decisionlog.Logger
	opts      Options

	libraryMu sync.Mutex
	rules     atomic.Pointer[rules.Set]
	viewports *viewports
	stats     counters

	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

func New(clf Classifier, ruleSrc rules.Source, lib *content.Library, overrides OverrideSource, p bus.Publisher, decisions *decisionlog.Logger, opts Options) *Orchestrator {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	o := &Orchestrator{
		clf:       clf,
		ruleSrc:   ruleSrc,
		library:   lib,
		overrides: overrides,
		publisher: p,
		decisions: decisions,
		opts:      opts,
		viewports: newViewports(opts.DefaultViewport, maxTrackedViewports),
	}
	o.rules.Store(rules.Empty())
	return o
}

// Init loads the rule list and the content library, then starts classifier
// initialization in the background. Detections that arrive before the
// classifier is Ready are skipped.
func (o *Orchestrator) Init(ctx context.Context) error {
	ctx = middleware.WithRole(ctx, message.TargetOrchestrator)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel

	o.refreshRules(ctx)

	// Changes published while the snapshot loads wait until the library is
	// initialized, so none is overwritten by the older snapshot.
	o.libraryMu.Lock()
	var overrides content.Overrides
	if o.overrides != nil {
		o.unsubscribe = o.overrides.Subscribe(func(kind content.Kind, items []string) {
			o.libraryMu.Lock()
			defer o.libraryMu.Unlock()
			if err := o.library.Apply(kind, items); err != nil {
				slog.WarnContext(runCtx, "ignoring content override", "kind", kind, "error", err)
			}
		})
		var err error
		overrides, err = o.overrides.Overrides(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to load content overrides, using defaults", "error", err)
		}
	}
	o.library.Initialize(overrides)
	o.libraryMu.Unlock()
	o.library.FetchDailyQuote(ctx)
	o.library.StartRefresh(runCtx, o.opts.QuoteRefresh)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.clf.Initialize(runCtx); err != nil {
			slog.ErrorContext(runCtx, "classifier unavailable, continuing with rule list only", "error", err, "rule_only_fallback", o.opts.RuleOnlyFallback)
			return
		}
		slog.InfoContext(runCtx, "classifier ready")
	}()

	if o.opts.RuleRefresh > 0 {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			ticker := time.NewTicker(o.opts.RuleRefresh)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					o.refreshRules(runCtx)
				}
			}
		}()
	}
	return nil
}

// Close stops background work. It does not wait for in-flight detections.
func (o *Orchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// refreshRules swaps in a freshly fetched rule list. A failed fetch keeps
// the current list.
func (o *Orchestrator) refreshRules(ctx context.Context) {
	if o.ruleSrc == nil {
		return
	}
	set, err := rules.Load(ctx, o.ruleSrc)
	if err != nil {
		slog.WarnContext(ctx, "failed to load rule list", "error", err, "kept", o.rules.Load().Len())
		return
	}
	o.rules.Store(set)
	slog.InfoContext(ctx, "rule list loaded", "rules", set.Len(), "ignored", set.Ignored())
}

func (o *Orchestrator) Rules() *rules.Set {
	return o.rules.Load()
}

func (o *Orchestrator) Stats() Stats {
	s := o.stats.snapshot()
	s.ClassifierState = o.clf.State().String()
	s.Rules = o.rules.Load().Len()
	return s
}

// OnDetection runs the pipeline for one reported element. vp is the viewport
// the page context reported alongside it, if any.
func (o *Orchestrator) OnDetection(ctx context.Context, d element.Descriptor, originContextID string, vp *element.Viewport) (Decision, error) {
	start := time.Now()
	o.stats.detections.Add(1)

	viewport := o.viewports.resolve(originContextID, vp)
	ruleMatch := o.rules.Load().Matches(d.ClassList)
	entry := decisionlog.Entry{
		CorrelationID:   middleware.GetCorrelationID(ctx),
		OriginContextID: originContextID,
		Selector:        element.Selector(d),
		RuleMatch:       ruleMatch,
	}
	finish := func(dec Decision, verdict decisionlog.Verdict) {
		entry.RequestID = dec.Result.RequestID
		entry.Available = dec.Result.Available
		entry.Confidence = dec.Result.ConfidencePtr()
		if dec.Result.Reason != nil {
			entry.Reason = dec.Result.Reason.Error()
		}
		entry.Verdict = verdict
		entry.LatencyMs = time.Since(start).Milliseconds()
		o.decisions.Log(entry)
	}

	var res classifier.Result
	switch state := o.clf.State(); {
	case state == classifier.StateReady:
		res = o.clf.Score(ctx, d, viewport, originContextID)
		if !res.Available {
			o.stats.unavailable.Add(1)
			slog.WarnContext(ctx, "classifier returned no confidence, using rule list only", "reason", res.Reason)
		}
	case state == classifier.StateFailed && o.opts.RuleOnlyFallback:
		res = classifier.Unavailable(classifier.ErrNotReady)
	default:
		o.stats.skipped.Add(1)
		dec := Decision{Outcome: OutcomeSkipped, RuleMatch: ruleMatch, Result: classifier.Unavailable(classifier.ErrNotReady)}
		slog.WarnContext(ctx, "classifier not ready, skipping detection", "state", state.String(), "origin", originContextID)
		finish(dec, decisionlog.VerdictSkipped)
		return dec, nil
	}

	if ruleMatch {
		o.stats.ruleMatches.Add(1)
	}
	dec := Decision{RuleMatch: ruleMatch, Result: res}
	if !Decide(res, o.opts.Threshold, ruleMatch) {
		o.stats.notAd.Add(1)
		dec.Outcome = OutcomeNotAd
		finish(dec, decisionlog.VerdictNotAd)
		return dec, nil
	}

	text, err := o.library.SelectRandom(content.KindAny)
	if err != nil {
		if errors.Is(err, content.ErrEmptyPool) {
			o.stats.emptyPool.Add(1)
			dec.Outcome = OutcomeNoContent
			slog.WarnContext(ctx, "no replacement content available", "error", err)
			finish(dec, decisionlog.VerdictNoText)
			return dec, nil
		}
		finish(dec, decisionlog.VerdictFailed)
		return dec, err
	}

	cmd := element.Replacement{Selector: entry.Selector, Rect: d.Rect, Text: text}
	if err := o.sendReplacement(ctx, originContextID, cmd); err != nil {
		o.stats.failures.Add(1)
		finish(dec, decisionlog.VerdictFailed)
		return dec, err
	}

	o.stats.replacements.Add(1)
	dec.Outcome = OutcomeReplaced
	dec.Replacement = &cmd
	slog.InfoContext(ctx, "replacement sent", "origin", originContextID, "selector", cmd.Selector, "rule_match", ruleMatch, "confidence", res.ConfidencePtr())
	finish(dec, decisionlog.VerdictReplaced)
	return dec, nil
}

func (o *Orchestrator) sendReplacement(ctx context.Context, originContextID string, cmd element.Replacement) error {
	if originContextID == "" {
		return errors.New("detection has no origin context")
	}
	correlationID, _ := middleware.LookupCorrelationID(ctx)
	body, err := message.Encode(message.ReplaceAd{Replacement: cmd}, correlationID)
	if err != nil {
		return err
	}
	if err := o.publisher.Publish(config.ReplaceTopic(originContextID), body); err != nil {
		return fmt.Errorf("publish replacement: %w", err)
	}
	return nil
}

// HandleMessage consumes checkElement messages from page contexts.
func (o *Orchestrator) HandleMessage(m *nsq.Message) error {
	env, msg, err := message.Decode(m.Body)

	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)
	ctx = middleware.WithRole(ctx, message.TargetOrchestrator)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}

	check, ok := msg.(message.CheckElement)
	if !ok {
		slog.WarnContext(ctx, "unexpected message for orchestrator, dropping", "type", env.Type)
		return nil
	}

	if _, err := o.OnDetection(ctx, check.Element, check.ContextID, check.Viewport); err != nil {
		slog.ErrorContext(ctx, "detection failed", "origin", check.ContextID, "error", err)
	}
	return nil
}
