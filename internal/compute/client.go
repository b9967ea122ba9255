package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"adswap/internal/bus"
	"adswap/internal/classifier"
	"adswap/internal/config"
	"adswap/internal/element"
	"adswap/internal/message"
	"adswap/internal/middleware"
)

var (
	// ErrTimeout means no reply arrived within the bounded wait.
	ErrTimeout = errors.New("compute reply timed out")
	// ErrRemoteUnavailable means the compute context answered without a confidence.
	ErrRemoteUnavailable = errors.New("compute context returned no confidence")
)

const defaultMaxProbes = 3

// Client is the orchestrator's handle on a remote classifier. It mirrors the
// remote readiness locally and correlates replies by request id, so
// concurrent score requests never observe each other's results.
type Client struct {
	publisher    bus.Publisher
	replyTopic   string
	readiness    *classifier.Readiness
	scoreTimeout time.Duration
	probeTimeout time.Duration
	maxProbes    int

	mu      sync.Mutex
	pending map[string]chan message.Message
}

// NewClient returns a client whose replies are expected on the reply topic
// of orchestratorID. probeTimeout bounds one readiness probe round trip.
func NewClient(p bus.Publisher, orchestratorID string, scoreTimeout, probeTimeout time.Duration) *Client {
	return &Client{
		publisher:    p,
		replyTopic:   config.ReplyTopic(orchestratorID),
		readiness:    classifier.NewReadiness(),
		scoreTimeout: scoreTimeout,
		probeTimeout: probeTimeout,
		maxProbes:    defaultMaxProbes,
		pending:      make(map[string]chan message.Message),
	}
}

func (c *Client) ReplyTopic() string {
	return c.replyTopic
}

func (c *Client) Readiness() *classifier.Readiness {
	return c.readiness
}

func (c *Client) State() classifier.State {
	return c.readiness.State()
}

// Initialize probes the compute context until it reports a terminal state.
// Probes may be lost, so an unanswered or non-terminal probe is repeated up
// to the probe limit, after which the client is marked Failed.
func (c *Client) Initialize(ctx context.Context) error {
	if !c.readiness.Begin() {
		return classifier.ErrAlreadyStarted
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxProbes; attempt++ {
		state, err := c.probe(ctx)
		switch {
		case err == nil && state == classifier.StateReady:
			c.readiness.Succeed()
			return nil
		case err == nil && state == classifier.StateFailed:
			c.readiness.Fail()
			return fmt.Errorf("compute context reported %s", state)
		case err == nil:
			lastErr = fmt.Errorf("compute context still %s", state)
		default:
			lastErr = err
		}

		slog.WarnContext(ctx, "classifier readiness probe inconclusive", "attempt", attempt, "error", lastErr)
		if ctx.Err() != nil {
			break
		}
	}

	c.readiness.Fail()
	return fmt.Errorf("classifier readiness: %w", lastErr)
}

func (c *Client) probe(ctx context.Context) (classifier.State, error) {
	requestID := uuid.New().String()
	reply, err := c.roundTrip(ctx, c.probeTimeout, requestID, message.StatusProbe{
		RequestID: requestID,
		ReplyTo:   c.replyTopic,
	})
	if err != nil {
		return classifier.StateUninitialized, err
	}

	status, ok := reply.(message.Status)
	if !ok {
		return classifier.StateUninitialized, fmt.Errorf("unexpected reply %s", reply.Type())
	}
	state, ok := classifier.ParseState(status.State)
	if !ok {
		return classifier.StateUninitialized, fmt.Errorf("unknown readiness state %q", status.State)
	}
	return state, nil
}

// Score asks the compute context for a confidence. It resolves to
// Unavailable when the mirror is not Ready, on timeout, and when the remote
// classifier could not score. Every result that reached the wire carries
// its request id.
func (c *Client) Score(ctx context.Context, d element.Descriptor, vp element.Viewport, originContextID string) classifier.Result {
	if !c.readiness.Ready() {
		return classifier.Unavailable(classifier.ErrNotReady)
	}

	requestID := uuid.New().String()
	res := c.predict(ctx, message.Predict{
		RequestID:       requestID,
		ReplyTo:         c.replyTopic,
		OriginContextID: originContextID,
		Descriptor:      d,
		Viewport:        vp,
	})
	res.RequestID = requestID
	return res
}

func (c *Client) predict(ctx context.Context, req message.Predict) classifier.Result {
	reply, err := c.roundTrip(ctx, c.scoreTimeout, req.RequestID, req)
	if err != nil {
		return classifier.Unavailable(err)
	}

	pred, ok := reply.(message.Prediction)
	if !ok {
		return classifier.Unavailable(fmt.Errorf("unexpected reply %s", reply.Type()))
	}
	if pred.Confidence == nil {
		return classifier.Unavailable(ErrRemoteUnavailable)
	}
	conf := *pred.Confidence
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return classifier.Unavailable(fmt.Errorf("%w: %v", classifier.ErrInvalidScore, conf))
	}
	return classifier.Confident(conf)
}

func (c *Client) roundTrip(ctx context.Context, timeout time.Duration, requestID string, req message.Message) (message.Message, error) {
	ch := make(chan message.Message, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	correlationID, _ := middleware.LookupCorrelationID(ctx)
	body, err := message.Encode(req, correlationID)
	if err != nil {
		return nil, err
	}
	if err := c.publisher.Publish(config.TopicPredict, body); err != nil {
		return nil, fmt.Errorf("publish %s: %w", req.Type(), err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending reports the number of requests awaiting a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// HandleMessage routes replies from the compute context to their waiting
// request. Replies for unknown or expired requests are dropped.
func (c *Client) HandleMessage(m *nsq.Message) error {
	env, msg, err := message.Decode(m.Body)
	ctx := middleware.WithRole(context.Background(), message.TargetOrchestrator)
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}
	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}

	var requestID string
	switch msg := msg.(type) {
	case message.Prediction:
		requestID = msg.RequestID
	case message.Status:
		requestID = msg.RequestID
	default:
		slog.WarnContext(ctx, "unexpected message on reply topic, dropping", "type", env.Type)
		return nil
	}

	c.mu.Lock()
	ch, ok := c.pending[requestID]
	c.mu.Unlock()
	if !ok {
		slog.DebugContext(ctx, "late or unknown reply, dropping", "request_id", requestID, "type", env.Type)
		return nil
	}

	select {
	case ch <- msg:
	default:
		// Duplicate reply for a request that already got one.
	}
	return nil
}
