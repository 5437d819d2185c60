// Package notify carries order events from the state machine to customers:
// KafkaNotifier publishes them, Dispatcher consumes them and decides which
// message each customer gets.
package notify

import (
	"context"
	"strconv"
	"time"

	kafkax "github.com/adamdasovich/goldventure-sub001/internal/kafka"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// KafkaNotifier implements orders.Notifier on top of an order.events
// producer. Publishing only enqueues, so it never waits on the broker.
type KafkaNotifier struct {
	Producer publisher
	Service  string
	Now      func() time.Time
}

func (n *KafkaNotifier) Notify(ctx context.Context, ev orders.StatusChanged) error {
	now := time.Now().UTC()
	if n.Now != nil {
		now = n.Now()
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.EventType,
		EventVersion:  orders.EventVersion,
		OccurredAt:    now,
		Producer:      n.Service,
		CorrelationID: ev.OrderID,
		Payload:       kafkax.MustMarshal(ev),
	}
	return n.Producer.Publish(ctx, orders.PartitionKey(ev.OrderID), kafkax.MustMarshal(env),
		kafka.Header{Key: kafkax.HeaderEventType, Value: []byte(ev.EventType)},
		kafka.Header{Key: kafkax.HeaderEventVersion, Value: []byte(strconv.Itoa(orders.EventVersion))},
	)
}

var _ orders.Notifier = (*KafkaNotifier)(nil)
