package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/kramik-ledger-api/internal/observability"
)

// Publisher hands a ledger event to a sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
}

// MultiPublisher fans a message out to every sink and reports all failures.
type MultiPublisher struct {
	sinks []Publisher
}

// NewMultiPublisher ignores nil sinks.
func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	filtered := make([]Publisher, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return &MultiPublisher{sinks: filtered}
}

// Name implements Publisher.
func (m *MultiPublisher) Name() string {
	return "multi"
}

// Len returns the number of sinks.
func (m *MultiPublisher) Len() int {
	return len(m.sinks)
}

// Publish implements Publisher.
func (m *MultiPublisher) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, msg); err != nil {
			observability.EventPublishErrors().WithLabelValues(sink.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
