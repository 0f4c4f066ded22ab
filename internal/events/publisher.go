// Package events delivers order events recorded in the outbox to RabbitMQ.
package events

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
)

const defaultExchange = "orders"

// Publisher sends a single event to the broker.
type Publisher interface {
	Publish(ctx context.Context, ev model.OrderEvent) error
}

// AMQPPublisher publishes events as persistent JSON messages on a topic
// exchange, routed by event type.
type AMQPPublisher struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(cfg config.AMQP) (*AMQPPublisher, error) {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{exchange: exchange, conn: conn, ch: ch}, nil
}

// Publish sends ev with its type as routing key and its ID as message ID.
func (p *AMQPPublisher) Publish(ctx context.Context, ev model.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.CreatedAt,
		Type:         string(ev.Type),
		Body:         ev.Payload,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish %s %s: %w", ev.Type, ev.ID, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}
