package bus

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
)

var ErrStopped = errors.New("bus stopped")

// Local is an in-process Bus. Every publish is delivered on its own goroutine
// to one handler per subscribed channel, so handlers observe no ordering.
type Local struct {
	mu       sync.RWMutex
	channels map[string]map[string]nsq.Handler
	stopped  bool
	inflight sync.WaitGroup
}

func NewLocal() *Local {
	return &Local{channels: make(map[string]map[string]nsq.Handler)}
}

func (l *Local) Subscribe(topic, channel string, h nsq.Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrStopped
	}
	if l.channels[topic] == nil {
		l.channels[topic] = make(map[string]nsq.Handler)
	}
	l.channels[topic][channel] = h
	return nil
}

// Unsubscribe removes the channel from topic. Messages already dispatched
// still run.
func (l *Local) Unsubscribe(topic, channel string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.channels[topic], channel)
}

func (l *Local) Publish(topic string, body []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return ErrStopped
	}

	for channel, h := range l.channels[topic] {
		msg := nsq.NewMessage(nsq.MessageID(uuid.New()), append([]byte(nil), body...))
		l.inflight.Add(1)
		go func(channel string, h nsq.Handler) {
			defer l.inflight.Done()
			if err := h.HandleMessage(msg); err != nil {
				slog.Warn("message handler failed, dropping", "topic", topic, "channel", channel, "error", err)
			}
		}(channel, h)
	}
	return nil
}

// Stop rejects further publishes and waits for in-flight handlers.
func (l *Local) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.inflight.Wait()
}
