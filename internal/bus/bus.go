// Package bus moves encoded messages between execution contexts. Delivery is
// at-most-once and unordered: handler errors are logged, never requeued.
package bus

import (
	"github.com/nsqio/go-nsq"
)

type Publisher interface {
	Publish(topic string, body []byte) error
}

type Subscriber interface {
	Subscribe(topic, channel string, h nsq.Handler) error
}

// Bus is both ends of a transport plus its shutdown.
type Bus interface {
	Publisher
	Subscriber
	Stop()
}
