// Package worker processes transaction events delivered by the bus.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
	"github.com/ibrahimkeyboad/gobank/internal/core/events"
)

// Processor logs every received event and optionally forwards it, e.g. to a webhook.
type Processor struct {
	logger  *zap.Logger
	forward events.Publisher
}

func NewProcessor(logger *zap.Logger, forward events.Publisher) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{logger: logger, forward: forward}
}

func (p *Processor) Handle(ctx context.Context, evt domain.TransactionCreated) error {
	p.logger.Info("transaction event received",
		zap.String("from_account", evt.FromAccount),
		zap.String("to_account", evt.ToAccount),
		zap.String("amount", evt.Amount.String()),
		zap.String("status", string(evt.Status)),
	)

	if p.forward == nil {
		return nil
	}
	if err := p.forward.Publish(ctx, evt); err != nil {
		return fmt.Errorf("failed to forward event: %w", err)
	}
	return nil
}
