package events

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
	"github.com/noah-isme/kramik-ledger-api/internal/observability"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
)

const relayBatchSize = 100

// Relay delivers committed events. Dispatch runs right after a block commits;
// RunOnce sweeps the log for events the bus did not accept, so every event
// reaches the bus at least once.
type Relay struct {
	repo   repository.EventRepository
	local  Publisher
	bus    *MultiPublisher
	nodeID string
	logger zerolog.Logger
	now    func() time.Time
	cron   *cron.Cron
}

// NewRelay wires the event log to a local sink (may be nil) and the bus sinks.
func NewRelay(repo repository.EventRepository, local Publisher, bus *MultiPublisher, nodeID string, logger zerolog.Logger) *Relay {
	if bus == nil {
		bus = NewMultiPublisher()
	}
	return &Relay{
		repo:   repo,
		local:  local,
		bus:    bus,
		nodeID: nodeID,
		logger: logger.With().Str("component", "event_relay").Logger(),
		now:    time.Now,
	}
}

// NodeID identifies this process as the source of bus messages.
func (r *Relay) NodeID() string {
	return r.nodeID
}

// Dispatch delivers freshly committed events to the local sink and the bus.
func (r *Relay) Dispatch(ctx context.Context, events []models.LedgerEvent) {
	if len(events) == 0 {
		return
	}

	if r.local != nil {
		for _, event := range events {
			_ = r.local.Publish(ctx, NewMessage(event, r.nodeID))
		}
	}

	if _, err := r.publish(ctx, events); err != nil {
		r.logger.Warn().Err(err).Int("events", len(events)).Msg("event bus publish failed; relay will retry")
	}
}

// RunOnce publishes one batch of unpublished events and returns how many were delivered.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.repo.ListUnpublished(ctx, relayBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load unpublished events: %w", err)
	}
	return r.publish(ctx, pending)
}

// Start schedules RunOnce with a cron spec such as "@every 10s".
func (r *Relay) Start(ctx context.Context, spec string) error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(spec, func() {
		count, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error().Err(err).Msg("event relay run failed")
			return
		}
		if count > 0 {
			r.logger.Info().Int("events", count).Msg("relayed pending events")
		}
	}); err != nil {
		return fmt.Errorf("invalid relay schedule %q: %w", spec, err)
	}
	r.cron.Start()

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (r *Relay) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *Relay) publish(ctx context.Context, events []models.LedgerEvent) (int, error) {
	delivered := make([]uint, 0, len(events))
	var firstErr error

	for _, event := range events {
		if err := r.bus.Publish(ctx, NewMessage(event, r.nodeID)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		observability.EventsPublished().WithLabelValues(event.Name).Inc()
		delivered = append(delivered, event.ID)
	}

	if err := r.repo.MarkPublished(ctx, delivered, r.now().UTC()); err != nil {
		return 0, fmt.Errorf("failed to mark events published: %w", err)
	}
	return len(delivered), firstErr
}
