// Package events forwards domain events to a message bus once the unit of
// work that produced them has committed.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

// TopicTransactionCreated is the topic (routing key) completed transfers are published on.
const TopicTransactionCreated = "transaction-created"

const defaultPublishTimeout = 5 * time.Second

// Publisher delivers a single event to the bus.
type Publisher interface {
	Publish(ctx context.Context, evt domain.TransactionCreated) error
}

// Bridge hands buffered events to a Publisher after commit. Delivery is
// fire-and-forget: failures are logged, never retried.
type Bridge struct {
	publisher Publisher
	logger    *zap.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewBridge(publisher Publisher, logger *zap.Logger, timeout time.Duration) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Bridge{publisher: publisher, logger: logger, timeout: timeout}
}

// Begin opens a buffer bound to one unit of work.
func (b *Bridge) Begin() *Batch {
	return &Batch{bridge: b}
}

// Wait blocks until every flushed batch has been handed to the publisher, or ctx ends.
func (b *Bridge) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) publish(evts []domain.TransactionCreated) {
	defer b.wg.Done()

	for _, evt := range evts {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		err := b.publisher.Publish(ctx, evt)
		cancel()

		if err != nil {
			b.logger.Error("failed to publish transaction event",
				zap.String("topic", TopicTransactionCreated),
				zap.String("from_account", evt.FromAccount),
				zap.String("to_account", evt.ToAccount),
				zap.Error(err),
			)
			continue
		}
		b.logger.Debug("transaction event published",
			zap.String("topic", TopicTransactionCreated),
			zap.String("from_account", evt.FromAccount),
			zap.String("to_account", evt.ToAccount),
		)
	}
}

// Batch buffers events produced inside a unit of work. It is not safe for
// concurrent use; a unit of work runs on one goroutine.
type Batch struct {
	bridge *Bridge
	events []domain.TransactionCreated
	closed bool
}

// Record buffers evt. Nothing leaves the process until Flush.
func (bt *Batch) Record(evt domain.TransactionCreated) {
	if bt.closed {
		return
	}
	bt.events = append(bt.events, evt)
}

// Flush publishes the buffered events asynchronously. Call only after commit succeeded.
func (bt *Batch) Flush() {
	if bt.closed {
		return
	}
	bt.closed = true
	if len(bt.events) == 0 {
		return
	}

	evts := bt.events
	bt.events = nil

	bt.bridge.wg.Add(1)
	go bt.bridge.publish(evts)
}

// Discard drops the buffered events. Call on rollback.
func (bt *Batch) Discard() {
	bt.closed = true
	bt.events = nil
}

// Pending returns the number of buffered events.
func (bt *Batch) Pending() int {
	return len(bt.events)
}
