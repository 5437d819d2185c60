package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/adamdasovich/goldventure-sub001/internal/kafka"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/adamdasovich/goldventure-sub001/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Template names a customer communication.
type Template string

const (
	TemplateConfirmation Template = "order_confirmation"
	TemplateShipped      Template = "order_shipped"
	TemplateDelivered    Template = "order_delivered"
	TemplateCancelled    Template = "order_cancelled"
	TemplateRefunded     Template = "order_refunded"
)

// templates maps order statuses to what the customer hears about them.
// Moving into processing is internal and sends nothing.
var templates = map[orders.Status]Template{
	orders.StatusPaid:      TemplateConfirmation,
	orders.StatusShipped:   TemplateShipped,
	orders.StatusDelivered: TemplateDelivered,
	orders.StatusCancelled: TemplateCancelled,
	orders.StatusRefunded:  TemplateRefunded,
}

type Message struct {
	Template       Template
	OrderID        string
	TrackingNumber string
	Total          string
}

// Sender delivers one message. Delivery channels live outside this service.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{ Log *zap.Logger }

func (s LogSender) Send(_ context.Context, m Message) error {
	s.Log.Info("customer notification",
		zap.String("template", string(m.Template)),
		zap.String("order_id", m.OrderID),
		zap.String("tracking_number", m.TrackingNumber),
		zap.String("total", m.Total),
	)
	return nil
}

// Deduper remembers processed event ids.
type Deduper interface {
	// Claim reports whether id was not seen before and marks it seen.
	Claim(ctx context.Context, id string) (bool, error)
	// Forget unmarks id so a failed event can be retried.
	Forget(ctx context.Context, id string) error
}

type RedisDeduper struct {
	Redis   redis.Cmdable
	Service string
	TTL     time.Duration
}

func (d *RedisDeduper) key(id string) string { return fmt.Sprintf(redisx.KeyDedup, d.Service, id) }

func (d *RedisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = redisx.TTLDedup
	}
	return redisx.MarkOnce(ctx, d.Redis, d.key(id), ttl)
}

func (d *RedisDeduper) Forget(ctx context.Context, id string) error {
	return d.Redis.Del(ctx, d.key(id)).Err()
}

// Dispatcher is a kafka.Handler for order.events.
type Dispatcher struct {
	Dedup  Deduper
	Sender Sender
	Log    *zap.Logger
}

func (d *Dispatcher) Handle(ctx context.Context, m kafka.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// unreadable messages are never going to parse; drop them
		d.log().Error("drop malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventVersion != orders.EventVersion {
		d.log().Warn("skip unsupported event version", zap.String("event_id", env.EventID), zap.Int("version", env.EventVersion))
		return nil
	}
	ev, err := kafkax.UnwrapPayload[orders.StatusChanged](env.Payload)
	if err != nil {
		d.log().Error("drop event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	tpl, ok := templates[ev.Status]
	if !ok {
		return nil
	}

	first, err := d.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	msg := Message{Template: tpl, OrderID: ev.OrderID, TrackingNumber: ev.TrackingNumber, Total: ev.Total}
	if err := d.Sender.Send(ctx, msg); err != nil {
		if ferr := d.Dedup.Forget(ctx, env.EventID); ferr != nil {
			d.log().Warn("dedup forget failed", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return fmt.Errorf("send %s for order %s: %w", tpl, ev.OrderID, err)
	}
	return nil
}

func (d *Dispatcher) log() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
