package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("kafka: producer closed")

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in memory and writes them from a single
// goroutine. Publish never waits on the broker.
type Producer struct {
	w     messageWriter
	topic string
	log   *zap.Logger

	inbox     chan kafka.Message
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, topic, buf, log)
}

func newProducer(w messageWriter, topic string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w:       w,
		topic:   topic,
		log:     log.With(zap.String("topic", topic)),
		inbox:   make(chan kafka.Message, buf),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the write loop until ctx is cancelled or Close is called, then
// flushes whatever is buffered.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		defer func() {
			if err := p.w.Close(); err != nil {
				p.log.Warn("kafka writer close failed", zap.Error(err))
			}
		}()
		for {
			select {
			case m := <-p.inbox:
				p.write(m)
			case <-ctx.Done():
				p.closeOnce.Do(func() { close(p.closing) })
				p.flush()
				return
			case <-p.closing:
				p.flush()
				return
			}
		}
	}()
}

func (p *Producer) flush() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// Publish enqueues a message. It blocks only while the buffer is full.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	select {
	case <-p.closing:
		return ErrClosed
	default:
	}
	m := kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}
	select {
	case p.inbox <- m:
		return nil
	case <-p.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages and waits until the buffer is flushed.
func (p *Producer) Close() {
	p.closeOnce.Do(func() { close(p.closing) })
	<-p.done
}
