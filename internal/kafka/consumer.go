package kafka

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message was processed and its offset
// may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

const (
	handlerAttempts = 3
	retryBackoff    = 200 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fans messages out to a fixed pool of workers. Messages with the
// same key always go to the same worker, so one order's events are handled
// in the order they were published. Offsets are committed per partition up
// to the oldest message still in flight.
type Consumer struct {
	r       messageReader
	workers int
	offsets *offsets
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if log == nil {
		log = zap.NewNop()
	}
	return newConsumer(r, workers, log.With(zap.String("topic", topic), zap.String("group", group)))
}

func newConsumer(r messageReader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, offsets: newOffsets(), log: log}
}

// Start blocks until ctx is cancelled (returning nil) or the reader fails.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer func() {
		if err := c.r.Close(); err != nil {
			c.log.Warn("kafka reader close failed", zap.Error(err))
		}
	}()

	lanes := make([]chan *inflight, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan *inflight, 64)
		wg.Add(1)
		go func(in <-chan *inflight) {
			defer wg.Done()
			for f := range in {
				c.handle(ctx, h, f)
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[c.lane(m.Key)] <- c.offsets.track(m):
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) lane(key []byte) int {
	if c.workers == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(c.workers))
}

// handle retries h a few times, then marks the message done anyway so one
// poison message cannot stall its partition.
func (c *Consumer) handle(ctx context.Context, h Handler, f *inflight) {
	m := f.m
	var err error
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		if err = h(ctx, m); err == nil {
			break
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		c.log.Warn("handler failed",
			zap.Int("attempt", attempt),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		time.Sleep(retryBackoff * time.Duration(attempt))
	}
	if err != nil {
		c.log.Error("giving up on message",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
	}
	if err := c.offsets.finish(ctx, f, c.r.CommitMessages); err != nil && ctx.Err() == nil {
		c.log.Error("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}
