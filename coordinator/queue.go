package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// persistOpTimeout bounds a single durable-store write.
const persistOpTimeout = 30 * time.Second

var errQueueClosed = errors.New("persistence queue closed")

type queuedOp struct {
	kind string
	run  func(ctx context.Context) error
}

// persistQueue applies credential/key persistence operations one at a time,
// in submission order. The protocol client emits mutations faster than a
// remote store can absorb them; serializing the writes keeps later deltas
// from overtaking the earlier ones they depend on.
type persistQueue struct {
	mu     sync.Mutex
	closed bool

	ops      chan queuedOp
	drained  chan struct{}
	onResult func(kind string, err error)
	log      *slog.Logger
}

func newPersistQueue(log *slog.Logger, onResult func(kind string, err error)) *persistQueue {
	q := &persistQueue{
		ops:      make(chan queuedOp, 64),
		drained:  make(chan struct{}),
		onResult: onResult,
		log:      log,
	}
	go q.loop()
	return q
}

func (q *persistQueue) loop() {
	defer close(q.drained)
	for op := range q.ops {
		ctx, cancel := context.WithTimeout(context.Background(), persistOpTimeout)
		err := op.run(ctx)
		cancel()
		if err != nil {
			q.log.Error("Persistence operation failed",
				slog.String("kind", op.kind), "err", err)
		}
		if q.onResult != nil {
			q.onResult(op.kind, err)
		}
	}
}

// Submit enqueues an operation. Blocks when the queue is full rather than
// dropping the delta.
func (q *persistQueue) Submit(kind string, run func(ctx context.Context) error) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errQueueClosed
	}
	// Holding the lock while sending keeps Close from racing the send.
	q.ops <- queuedOp{kind: kind, run: run}
	q.mu.Unlock()
	return nil
}

// Close stops accepting operations and blocks until every queued operation
// has been applied. Called before the store connection is released so no
// delta is silently dropped.
func (q *persistQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.drained
		return
	}
	q.closed = true
	close(q.ops)
	q.mu.Unlock()
	<-q.drained
}
