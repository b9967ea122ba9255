package compute_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"adswap/internal/bus"
	"adswap/internal/classifier"
	"adswap/internal/compute"
	"adswap/internal/config"
	"adswap/internal/element"
	"adswap/internal/features"
	"adswap/internal/message"
)

// wire connects a client and a worker over an in-process bus.
func wire(t *testing.T, clf *classifier.Classifier, scoreTimeout time.Duration) (*compute.Client, *bus.Local) {
	t.Helper()
	b := bus.NewLocal()
	w := compute.NewWorker(clf, b, 0.7, time.Second, 200*time.Millisecond)
	c := compute.NewClient(b, "orch-1", scoreTimeout, time.Second)

	require.NoError(t, b.Subscribe(config.TopicPredict, config.ChannelCompute, w))
	require.NoError(t, b.Subscribe(c.ReplyTopic(), config.ChannelOrchestrator, c))
	return c, b
}

func TestClient_InitializeAndScore(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, b := wire(t, readyClassifier(widthScorer), time.Second)
	defer b.Stop()

	assert.Equal(t, classifier.StateUninitialized, c.State())
	res := c.Score(context.Background(), banner, element.Viewport{Width: 1000, Height: 800}, "tab-1")
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Reason, classifier.ErrNotReady)

	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, classifier.StateReady, c.State())

	res = c.Score(context.Background(), banner, element.Viewport{Width: 1000, Height: 800}, "tab-1")
	require.True(t, res.Available)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Equal(t, 0, c.Pending())
	assert.NotEmpty(t, res.RequestID)

	again := c.Score(context.Background(), banner, element.Viewport{Width: 1000, Height: 800}, "tab-1")
	assert.NotEqual(t, res.RequestID, again.RequestID)
}

func TestClient_ScoreCarriesPredictRequestID(t *testing.T) {
	pub := new(MockPublisher)
	c := compute.NewClient(pub, "orch-1", time.Second, time.Second)
	c.Readiness().Begin()
	c.Readiness().Succeed()

	var sent message.Predict
	pub.On("Publish", config.TopicPredict, mock.Anything).Run(func(args mock.Arguments) {
		var ok bool
		sent, ok = decodeAs[message.Predict](args.Get(1).([]byte))
		require.True(t, ok)
		conf := 0.4
		body, err := message.Encode(message.Prediction{RequestID: sent.RequestID, Confidence: &conf}, "")
		require.NoError(t, err)
		go c.HandleMessage(&nsq.Message{Body: body})
	}).Return(nil)

	res := c.Score(context.Background(), banner, element.Viewport{Width: 1000, Height: 800}, "tab-1")
	require.True(t, res.Available)
	assert.Equal(t, sent.RequestID, res.RequestID)
}

func TestClient_ConcurrentScoresAreCorrelated(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, b := wire(t, readyClassifier(widthScorer), time.Second)
	defer b.Stop()
	require.NoError(t, c.Initialize(context.Background()))

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := element.Descriptor{TagName: "div", Rect: element.Rect{Width: float64(i * 10)}}
			res := c.Score(context.Background(), d, element.Viewport{Width: 1000, Height: 800}, fmt.Sprintf("tab-%d", i))
			if assert.True(t, res.Available) {
				assert.InDelta(t, float64(i)/100, res.Confidence, 1e-9)
			}
		}(i)
	}
	wg.Wait()
}

func TestClient_InitializeFailedClassifier(t *testing.T) {
	defer goleak.VerifyNone(t)

	clf := classifier.New(func(ctx context.Context) (classifier.Scorer, error) {
		return nil, errors.New("weights missing")
	})
	_ = clf.Initialize(context.Background())

	c, b := wire(t, clf, time.Second)
	defer b.Stop()

	assert.Error(t, c.Initialize(context.Background()))
	assert.Equal(t, classifier.StateFailed, c.State())
	assert.ErrorIs(t, c.Initialize(context.Background()), classifier.ErrAlreadyStarted)
}

func TestClient_InitializeWithoutComputeContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.NewLocal()
	defer b.Stop()
	c := compute.NewClient(b, "orch-1", time.Second, 10*time.Millisecond)
	require.NoError(t, b.Subscribe(c.ReplyTopic(), config.ChannelOrchestrator, c))

	err := c.Initialize(context.Background())
	assert.ErrorIs(t, err, compute.ErrTimeout)
	assert.Equal(t, classifier.StateFailed, c.State())
}

func TestClient_ScoreTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	// The scorer outlives the client's wait; the late reply is dropped.
	release := make(chan struct{})
	slow := scorerFunc(func(ctx context.Context, _ features.Vector) (float64, error) {
		<-release
		return 0.9, nil
	})
	c, b := wire(t, readyClassifier(slow), 20*time.Millisecond)
	require.NoError(t, c.Initialize(context.Background()))

	res := c.Score(context.Background(), banner, element.Viewport{Width: 1000, Height: 800}, "tab-1")
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Reason, compute.ErrTimeout)
	assert.Equal(t, 0, c.Pending())

	close(release)
	b.Stop()
}

func TestClient_RemoteUnavailable(t *testing.T) {
	pub := new(MockPublisher)
	c := compute.NewClient(pub, "orch-1", time.Second, time.Second)

	// Answer every publish with a reply built from the request.
	pub.On("Publish", config.TopicPredict, mock.Anything).Run(func(args mock.Arguments) {
		_, msg, err := message.Decode(args.Get(1).([]byte))
		require.NoError(t, err)

		var reply message.Message
		switch req := msg.(type) {
		case message.StatusProbe:
			reply = message.Status{RequestID: req.RequestID, State: "ready"}
		case message.Predict:
			reply = message.Prediction{RequestID: req.RequestID, Element: req.Descriptor}
		}
		body, _ := message.Encode(reply, "")
		go c.HandleMessage(&nsq.Message{Body: body})
	}).Return(nil)

	require.NoError(t, c.Initialize(context.Background()))
	res := c.Score(context.Background(), banner, element.Viewport{Width: 1000, Height: 800}, "tab-1")
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Reason, compute.ErrRemoteUnavailable)
}

func TestClient_PublishError(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", config.TopicPredict, mock.Anything).Return(errors.New("nsqd down"))
	c := compute.NewClient(pub, "orch-1", time.Second, time.Second)

	assert.Error(t, c.Initialize(context.Background()))
	assert.Equal(t, classifier.StateFailed, c.State())
	pub.AssertNumberOfCalls(t, "Publish", 3)
}

func TestClient_HandleMessage_DropsUnknownReplies(t *testing.T) {
	c := compute.NewClient(new(MockPublisher), "orch-1", time.Second, time.Second)

	conf := 0.5
	body, _ := message.Encode(message.Prediction{RequestID: "nobody", Confidence: &conf}, "")
	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: body}))

	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: []byte("{")}))

	body, _ = message.Encode(message.CheckElement{ContextID: "tab-1"}, "")
	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: body}))
}
