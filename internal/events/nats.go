package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher builds a publisher for subject.
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Name implements Publisher.
func (p *NATSPublisher) Name() string {
	return "nats"
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, payload)
}
