package kafka

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

type inflight struct {
	m    kafka.Message
	done bool
}

// offsets holds fetched messages per partition in fetch order. A partition's
// offset is committed only up to its lowest unfinished message, so a crash
// never skips work another lane has not finished.
type offsets struct {
	mu      sync.Mutex
	pending map[int][]*inflight
}

func newOffsets() *offsets {
	return &offsets{pending: make(map[int][]*inflight)}
}

func (o *offsets) track(m kafka.Message) *inflight {
	o.mu.Lock()
	defer o.mu.Unlock()
	f := &inflight{m: m}
	o.pending[m.Partition] = append(o.pending[m.Partition], f)
	return f
}

// finish marks f done and commits the last message of the finished prefix
// of its partition, if any. Commits are serialized so offsets never move
// backwards.
func (o *offsets) finish(ctx context.Context, f *inflight, commit func(context.Context, ...kafka.Message) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	f.done = true
	q := o.pending[f.m.Partition]
	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return nil
	}
	last := q[n-1].m
	if n == len(q) {
		delete(o.pending, f.m.Partition)
	} else {
		o.pending[f.m.Partition] = q[n:]
	}
	return commit(ctx, last)
}
