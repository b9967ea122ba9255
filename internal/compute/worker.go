// Package compute hosts the classifier in its own context and gives the
// orchestrator a request/reply client for it.
package compute

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"adswap/internal/bus"
	"adswap/internal/classifier"
	"adswap/internal/features"
	"adswap/internal/message"
	"adswap/internal/middleware"
)

// Worker answers predict and statusProbe messages.
type Worker struct {
	clf              *classifier.Classifier
	publisher        bus.Publisher
	threshold        float64
	scoreTimeout     time.Duration
	readinessTimeout time.Duration
}

func NewWorker(clf *classifier.Classifier, p bus.Publisher, threshold float64, scoreTimeout, readinessTimeout time.Duration) *Worker {
	return &Worker{
		clf:              clf,
		publisher:        p,
		threshold:        threshold,
		scoreTimeout:     scoreTimeout,
		readinessTimeout: readinessTimeout,
	}
}

// Initialize loads the model. A failure is terminal: the classifier stays
// Failed and every score resolves to Unavailable.
func (w *Worker) Initialize(ctx context.Context) error {
	ctx = middleware.WithRole(ctx, message.TargetCompute)
	slog.InfoContext(ctx, "loading classifier")
	if err := w.clf.Initialize(ctx); err != nil {
		slog.ErrorContext(ctx, "classifier failed to load", "error", err)
		return err
	}
	slog.InfoContext(ctx, "classifier ready")
	return nil
}

func (w *Worker) HandleMessage(m *nsq.Message) error {
	env, msg, err := message.Decode(m.Body)

	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)
	ctx = middleware.WithRole(ctx, message.TargetCompute)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}

	switch msg := msg.(type) {
	case message.Predict:
		w.predict(ctx, correlationID, msg)
	case message.StatusProbe:
		w.status(ctx, correlationID, msg)
	default:
		slog.WarnContext(ctx, "unexpected message for compute context, dropping", "type", env.Type)
	}
	return nil
}

func (w *Worker) predict(ctx context.Context, correlationID string, req message.Predict) {
	if req.ReplyTo == "" {
		slog.WarnContext(ctx, "predict without reply topic, dropping", "request_id", req.RequestID)
		return
	}

	scoreCtx, cancel := context.WithTimeout(ctx, w.scoreTimeout)
	defer cancel()

	res := w.clf.Score(scoreCtx, features.Extract(req.Rect, req.Viewport))
	if !res.Available {
		slog.WarnContext(ctx, "classifier unavailable", "request_id", req.RequestID, "reason", res.Reason)
	}

	w.reply(ctx, req.ReplyTo, message.Prediction{
		RequestID:       req.RequestID,
		IsAd:            res.Available && res.Confidence > w.threshold,
		Confidence:      res.ConfidencePtr(),
		Element:         req.Descriptor,
		OriginContextID: req.OriginContextID,
	}, correlationID)
}

func (w *Worker) status(ctx context.Context, correlationID string, req message.StatusProbe) {
	if req.ReplyTo == "" {
		slog.WarnContext(ctx, "status probe without reply topic, dropping", "request_id", req.RequestID)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, w.readinessTimeout)
	defer cancel()
	state := w.clf.Readiness().Wait(waitCtx)

	w.reply(ctx, req.ReplyTo, message.Status{RequestID: req.RequestID, State: state.String()}, correlationID)
}

func (w *Worker) reply(ctx context.Context, topic string, m message.Message, correlationID string) {
	body, err := message.Encode(m, correlationID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode reply", "type", m.Type(), "error", err)
		return
	}
	if err := w.publisher.Publish(topic, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish reply", "topic", topic, "type", m.Type(), "error", err)
	}
}
