package compute_test

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"adswap/internal/classifier"
	"adswap/internal/features"
	"adswap/internal/message"
)

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

// scorerFunc scores with a plain function.
type scorerFunc func(ctx context.Context, v features.Vector) (float64, error)

func (f scorerFunc) Score(ctx context.Context, v features.Vector) (float64, error) {
	return f(ctx, v)
}

// widthScorer returns the normalized width as the confidence.
var widthScorer = scorerFunc(func(ctx context.Context, v features.Vector) (float64, error) {
	return v[0], nil
})

func readyClassifier(s classifier.Scorer) *classifier.Classifier {
	clf := classifier.New(func(ctx context.Context) (classifier.Scorer, error) { return s, nil })
	if err := clf.Initialize(context.Background()); err != nil {
		panic(err)
	}
	return clf
}

func decodeAs[T message.Message](body []byte) (T, bool) {
	var zero T
	_, msg, err := message.Decode(body)
	if err != nil {
		return zero, false
	}
	t, ok := msg.(T)
	return t, ok
}

func envelopeOf(body []byte) message.Envelope {
	var env message.Envelope
	_ = json.Unmarshal(body, &env)
	return env
}
