package database

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectAMQP dials the RabbitMQ broker.
func ConnectAMQP(url string) (*amqp.Connection, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url must not be empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to amqp broker: %w", err)
	}

	return conn, nil
}
