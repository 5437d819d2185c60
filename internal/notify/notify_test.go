package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkax "github.com/adamdasovich/goldventure-sub001/internal/kafka"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captured struct {
	key     []byte
	value   []byte
	headers []kafka.Header
}

type fakePublisher struct{ msgs []captured }

func (p *fakePublisher) Publish(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	p.msgs = append(p.msgs, captured{key, value, headers})
	return nil
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memoryDeduper) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memoryDeduper) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

type recordingSender struct {
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, m Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func publish(t *testing.T, ev orders.StatusChanged) kafka.Message {
	t.Helper()
	p := &fakePublisher{}
	n := &KafkaNotifier{Producer: p, Service: "storefront", Now: func() time.Time { return time.Unix(0, 0).UTC() }}
	require.NoError(t, n.Notify(context.Background(), ev))
	require.Len(t, p.msgs, 1)
	return kafka.Message{Key: p.msgs[0].key, Value: p.msgs[0].value, Headers: p.msgs[0].headers}
}

func TestKafkaNotifier_WrapsEventInEnvelope(t *testing.T) {
	m := publish(t, orders.StatusChanged{OrderID: "ord-1", EventType: "shipped", Status: orders.StatusShipped, TrackingNumber: "1Z"})

	assert.Equal(t, "ord-1", string(m.Key))
	assert.Equal(t, "shipped", kafkax.Header(m, kafkax.HeaderEventType))
	assert.Equal(t, "1", kafkax.Header(m, kafkax.HeaderEventVersion))

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	assert.Equal(t, "shipped", env.EventType)
	assert.Equal(t, "ord-1", env.CorrelationID)
	assert.Equal(t, "storefront", env.Producer)
	assert.NotEmpty(t, env.EventID)

	ev, err := kafkax.UnwrapPayload[orders.StatusChanged](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "1Z", ev.TrackingNumber)
}

func newDispatcher() (*Dispatcher, *recordingSender) {
	s := &recordingSender{}
	return &Dispatcher{Dedup: &memoryDeduper{seen: map[string]bool{}}, Sender: s, Log: zap.NewNop()}, s
}

func TestDispatcher_ChoosesTemplatePerStatus(t *testing.T) {
	tests := []struct {
		status orders.Status
		want   Template
	}{
		{orders.StatusPaid, TemplateConfirmation},
		{orders.StatusProcessing, ""},
		{orders.StatusShipped, TemplateShipped},
		{orders.StatusDelivered, TemplateDelivered},
		{orders.StatusCancelled, TemplateCancelled},
		{orders.StatusRefunded, TemplateRefunded},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			d, s := newDispatcher()
			m := publish(t, orders.StatusChanged{OrderID: "ord-1", EventType: string(tt.status), Status: tt.status, Total: "45.00"})

			require.NoError(t, d.Handle(context.Background(), m))
			if tt.want == "" {
				assert.Empty(t, s.sent)
				return
			}
			require.Len(t, s.sent, 1)
			assert.Equal(t, Message{Template: tt.want, OrderID: "ord-1", Total: "45.00"}, s.sent[0])
		})
	}
}

func TestDispatcher_DeliversEachEventOnce(t *testing.T) {
	d, s := newDispatcher()
	m := publish(t, orders.StatusChanged{OrderID: "ord-1", EventType: "paid", Status: orders.StatusPaid})

	require.NoError(t, d.Handle(context.Background(), m))
	require.NoError(t, d.Handle(context.Background(), m))
	assert.Len(t, s.sent, 1)
}

func TestDispatcher_FailedSendCanRetry(t *testing.T) {
	d, s := newDispatcher()
	m := publish(t, orders.StatusChanged{OrderID: "ord-1", EventType: "paid", Status: orders.StatusPaid})

	s.err = errors.New("smtp down")
	require.Error(t, d.Handle(context.Background(), m))

	s.err = nil
	require.NoError(t, d.Handle(context.Background(), m))
	assert.Len(t, s.sent, 1)
}

func TestDispatcher_DropsGarbage(t *testing.T) {
	d, s := newDispatcher()
	require.NoError(t, d.Handle(context.Background(), kafka.Message{Value: []byte("not json")}))

	env := orders.Envelope{EventID: "e1", EventType: "paid", EventVersion: 99, Payload: json.RawMessage(`{}`)}
	require.NoError(t, d.Handle(context.Background(), kafka.Message{Value: kafkax.MustMarshal(env)}))
	assert.Empty(t, s.sent)
}
