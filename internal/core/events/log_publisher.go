package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

// LogPublisher writes events to the log. Used when no bus is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, evt domain.TransactionCreated) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("transaction event",
		zap.String("topic", TopicTransactionCreated),
		zap.String("from_account", evt.FromAccount),
		zap.String("to_account", evt.ToAccount),
		zap.String("amount", evt.Amount.String()),
		zap.String("status", string(evt.Status)),
	)
	return nil
}
