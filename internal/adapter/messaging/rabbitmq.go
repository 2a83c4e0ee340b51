// Package messaging carries transaction events over RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
	"github.com/ibrahimkeyboad/gobank/internal/core/events"
)

const exchangeKind = "topic"

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends TransactionCreated events to a topic exchange, routed by
// events.TopicTransactionCreated. Calls go through a circuit breaker so a
// dead broker fails fast instead of tying up publishing goroutines.
type Publisher struct {
	mu       sync.Mutex
	ch       publishChannel
	closer   func() error
	exchange string
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// BreakerSettings returns the breaker configuration used by publishers.
func BreakerSettings(name string, logger *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
}

// NewPublisher opens a channel on conn and declares the exchange.
func NewPublisher(conn *amqp.Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	p := newPublisher(ch, exchange, logger)
	p.closer = ch.Close
	return p, nil
}

func newPublisher(ch publishChannel, exchange string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		breaker:  gobreaker.NewCircuitBreaker(BreakerSettings("amqp-publisher", logger)),
		logger:   logger,
	}
}

func (p *Publisher) Publish(ctx context.Context, evt domain.TransactionCreated) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		return nil, p.ch.PublishWithContext(ctx, p.exchange, events.TopicTransactionCreated, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Type:         events.TopicTransactionCreated,
			Body:         body,
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("broker unavailable: %w", err)
	}
	return err
}

func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
