// Package broker forwards domain events to RabbitMQ.
package broker

import (
	"context"
	"fmt"
	"time"

	"parish/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	ExchangeKind   = "topic"
	RoutingPrefix  = "parish."
	publishTimeout = 5 * time.Second
)

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   *zerolog.Logger
}

func NewPublisher(url, exchange string, logger *zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, ExchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	return newPublisher(conn, ch, exchange, logger), nil
}

func newPublisher(conn *amqp.Connection, ch channel, exchange string, logger *zerolog.Logger) *Publisher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange, logger: logger}
}

// RoutingKey maps an event type to its topic, e.g. "parish.booking_created".
func RoutingKey(eventType string) string {
	return RoutingPrefix + eventType
}

// Handle publishes the event; it is meant to be subscribed to an events.EventBus.
func (p *Publisher) Handle(event *events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return p.Publish(ctx, event)
}

func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%d", event.ID),
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Body:         event.Payload,
	}

	key := RoutingKey(event.Type)
	if err := p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	p.logger.Debug().Str("exchange", p.exchange).Str("routing_key", key).Msg("event published")
	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
