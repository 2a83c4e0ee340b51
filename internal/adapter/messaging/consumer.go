package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
	"github.com/ibrahimkeyboad/gobank/internal/core/events"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, evt domain.TransactionCreated) error

// Consumer reads transaction events from a durable queue bound to the exchange.
type Consumer struct {
	ch      *amqp.Channel
	queue   string
	handler Handler
	logger  *zap.Logger
}

// NewConsumer declares queue, binds it to exchange on the transaction-created key and limits prefetch.
func NewConsumer(conn *amqp.Connection, exchange, queue string, handler Handler, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	setup := func() error {
		if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", queue, err)
		}
		if err := ch.QueueBind(queue, events.TopicTransactionCreated, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", queue, err)
		}
		return ch.Qos(10, 0, false)
	}
	if err := setup(); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return newConsumer(ch, queue, handler, logger), nil
}

func newConsumer(ch *amqp.Channel, queue string, handler Handler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{ch: ch, queue: queue, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started", zap.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}

// handle acks processed events, drops malformed ones and requeues a failed event once.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var evt domain.TransactionCreated
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		c.logger.Error("malformed transaction event", zap.String("message_id", d.MessageId), zap.Error(err))
		c.settle(d, d.Nack(false, false), "nack")
		return
	}

	if err := c.handler(ctx, evt); err != nil {
		requeue := !d.Redelivered
		c.logger.Error("failed to handle transaction event",
			zap.String("message_id", d.MessageId),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		c.settle(d, d.Nack(false, requeue), "nack")
		return
	}

	c.settle(d, d.Ack(false), "ack")
}

func (c *Consumer) settle(d amqp.Delivery, err error, action string) {
	if err != nil {
		c.logger.Warn("failed to "+action+" transaction event",
			zap.String("message_id", d.MessageId),
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Error(err),
		)
	}
}
