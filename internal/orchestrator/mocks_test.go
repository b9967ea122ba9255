package orchestrator_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"adswap/internal/classifier"
	"adswap/internal/content"
	"adswap/internal/element"
)

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

// fakeClassifier reports a fixed state and result.
type fakeClassifier struct {
	mu      sync.Mutex
	state   classifier.State
	result  classifier.Result
	initErr error
	calls   int
	lastVP  element.Viewport
}

func (f *fakeClassifier) State() classifier.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeClassifier) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		f.state = classifier.StateFailed
		return f.initErr
	}
	f.state = classifier.StateReady
	return nil
}

func (f *fakeClassifier) Score(ctx context.Context, d element.Descriptor, vp element.Viewport, origin string) classifier.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastVP = vp
	return f.result
}

type staticRules struct {
	text string
	err  error
}

func (s staticRules) FetchRules(ctx context.Context) (string, error) {
	return s.text, s.err
}

type fakeOverrides struct {
	mu        sync.Mutex
	overrides content.Overrides
	err       error
	listeners []func(content.Kind, []string)
	// onLoad runs inside Overrides, before the snapshot is returned.
	onLoad func()
}

func (f *fakeOverrides) Overrides(ctx context.Context) (content.Overrides, error) {
	if f.onLoad != nil {
		f.onLoad()
	}
	return f.overrides, f.err
}

func (f *fakeOverrides) Subscribe(l func(content.Kind, []string)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
	idx := len(f.listeners) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listeners[idx] = nil
	}
}

func (f *fakeOverrides) emit(kind content.Kind, items []string) {
	f.mu.Lock()
	ls := append([]func(content.Kind, []string){}, f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		if l != nil {
			l(kind, items)
		}
	}
}
