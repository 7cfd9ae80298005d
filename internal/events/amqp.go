package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes events to a RabbitMQ topic exchange. The routing key
// is "ledger.<contract>.<event>" so indexers can bind to the events they need.
type AMQPPublisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher declares the durable topic exchange and returns a publisher.
func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{channel: channel, exchange: exchange}, nil
}

// Name implements Publisher.
func (p *AMQPPublisher) Name() string {
	return "amqp"
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(msg), false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    msg.EventID,
		Type:         msg.Name,
		Body:         body,
		Timestamp:    msg.EmittedAt,
		DeliveryMode: amqp.Persistent,
	})
}

// Close releases the channel.
func (p *AMQPPublisher) Close() error {
	return p.channel.Close()
}

// RoutingKey derives the topic routing key of a message.
func RoutingKey(msg Message) string {
	return strings.Join([]string{"ledger", msg.Contract, msg.Name}, ".")
}
