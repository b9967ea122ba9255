package bus

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"
)

// NSQ publishes through one nsqd producer. Consumers discover producers
// through nsqlookupd, or connect to the same nsqd when no lookupd is set.
// Topics under a direct prefix are per instance and do not exist before the
// first reply, so their consumers also connect to nsqd directly instead of
// waiting for the next lookupd poll.
type NSQ struct {
	producer    *nsq.Producer
	nsqd        string
	lookupd     string
	concurrency int
	direct      []string

	mu        sync.Mutex
	consumers []*nsq.Consumer
}

func NewNSQ(nsqdHost, lookupd string, concurrency int, directPrefixes ...string) (*NSQ, error) {
	producer, err := nsq.NewProducer(nsqdHost, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &NSQ{
		producer:    producer,
		nsqd:        nsqdHost,
		lookupd:     lookupd,
		concurrency: concurrency,
		direct:      directPrefixes,
	}, nil
}

func (n *NSQ) Publish(topic string, body []byte) error {
	return n.producer.Publish(topic, body)
}

func (n *NSQ) Subscribe(topic, channel string, h nsq.Handler) error {
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = n.concurrency
	// Handlers never ask for a retry; a failed message is dropped.
	cfg.MaxAttempts = 1

	consumer, err := nsq.NewConsumer(topic, channel, cfg)
	if err != nil {
		return fmt.Errorf("nsq consumer %s/%s: %w", topic, channel, err)
	}
	consumer.AddConcurrentHandlers(h, n.concurrency)
	if n.connectsDirect(topic) {
		// SUB creates the topic on nsqd, which then registers it with lookupd.
		if err := consumer.ConnectToNSQD(n.nsqd); err != nil {
			consumer.Stop()
			return fmt.Errorf("connect consumer %s/%s to nsqd: %w", topic, channel, err)
		}
	}
	if n.lookupd != "" {
		if err := consumer.ConnectToNSQLookupd(n.lookupd); err != nil {
			consumer.Stop()
			return fmt.Errorf("connect consumer %s/%s to nsqlookupd: %w", topic, channel, err)
		}
	}

	n.mu.Lock()
	n.consumers = append(n.consumers, consumer)
	n.mu.Unlock()
	slog.Info("NSQ consumer connected", "topic", topic, "channel", channel)
	return nil
}

func (n *NSQ) connectsDirect(topic string) bool {
	if n.lookupd == "" {
		return true
	}
	for _, p := range n.direct {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

func (n *NSQ) Stop() {
	n.mu.Lock()
	consumers := n.consumers
	n.consumers = nil
	n.mu.Unlock()

	for _, c := range consumers {
		c.Stop()
		<-c.StopChan
	}
	n.producer.Stop()
}

// CreateTopics asks nsqd to create topics up front so consumers polling
// lookupd do not 404 before the first publish.
func CreateTopics(nsqdHTTP string, topics ...string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		for _, t := range topics {
			create(t)
		}
	}()
}
