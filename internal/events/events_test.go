package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
)

type recordingPublisher struct {
	mu       sync.Mutex
	name     string
	fail     error
	messages []Message
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func setupEventDB(t *testing.T) repository.EventRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.LedgerEvent{}))
	return repository.NewEventRepository(db)
}

func sampleEvent(name, address string) models.LedgerEvent {
	return models.LedgerEvent{
		EventID:     uuid.NewString(),
		BlockNumber: 1,
		TxHash:      "0xabc",
		Contract:    "ledger",
		Name:        name,
		Address:     address,
		Payload:     datatypes.JSON(`{"score":85}`),
		EmittedAt:   time.Now().UTC(),
	}
}

func TestHubDeliversByAddressAndWildcard(t *testing.T) {
	hub := NewHub()
	all, cancelAll := hub.Subscribe("")
	defer cancelAll()
	mine, cancelMine := hub.Subscribe("0xAbC")
	other, cancelOther := hub.Subscribe("0xdef")
	defer cancelOther()

	require.Equal(t, 3, hub.Count())
	require.NoError(t, hub.Publish(context.Background(), Message{Name: "QuizSubmitted", Address: "0xabc"}))

	require.Equal(t, "QuizSubmitted", (<-all).Name)
	require.Equal(t, "QuizSubmitted", (<-mine).Name)
	select {
	case <-other:
		t.Fatal("unrelated subscriber received message")
	default:
	}

	cancelMine()
	cancelMine()
	_, open := <-mine
	require.False(t, open)
	require.Equal(t, 2, hub.Count())
}

func TestMultiPublisherJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{name: "ok"}
	broken := &recordingPublisher{name: "broken", fail: errors.New("down")}
	multi := NewMultiPublisher(ok, nil, broken)

	require.Equal(t, 2, multi.Len())
	err := multi.Publish(context.Background(), Message{Name: "StudentRegistered"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken: down")
	require.Equal(t, 1, ok.count())
}

func TestRoutingKey(t *testing.T) {
	require.Equal(t, "ledger.ledger.QuizSubmitted", RoutingKey(Message{Contract: "ledger", Name: "QuizSubmitted"}))
	require.Equal(t, "ledger.registry.AdminRegistered", RoutingKey(Message{Contract: "registry", Name: "AdminRegistered"}))
}

func TestRelayMarksOnlyDeliveredEvents(t *testing.T) {
	ctx := context.Background()
	repo := setupEventDB(t)

	stored := []models.LedgerEvent{sampleEvent("QuizSubmitted", "0xabc"), sampleEvent("CreditsUpdated", "0xabc")}
	require.NoError(t, repo.Append(ctx, stored))

	hub := NewHub()
	local, cancel := hub.Subscribe("0xabc")
	defer cancel()

	sink := &recordingPublisher{name: "sink", fail: errors.New("offline")}
	relay := NewRelay(repo, hub, NewMultiPublisher(sink), "node-a", zerolog.Nop())

	relay.Dispatch(ctx, stored)
	require.Len(t, local, 2)

	pending, err := repo.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()

	count, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 2, sink.count())
	require.Equal(t, "node-a", sink.messages[0].Source)

	pending, err = repo.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	count, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRelayWithoutBusMarksPublished(t *testing.T) {
	ctx := context.Background()
	repo := setupEventDB(t)
	stored := []models.LedgerEvent{sampleEvent("StudentRegistered", "0x1")}
	require.NoError(t, repo.Append(ctx, stored))

	relay := NewRelay(repo, nil, nil, "node-a", zerolog.Nop())
	relay.Dispatch(ctx, stored)

	pending, err := repo.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRedisBridgeSkipsOwnMessages(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	received, unsubscribe := hub.Subscribe("")
	defer unsubscribe()

	bridge := NewBridge(hub, "node-b", client, "kramik:events", nil, "", zerolog.Nop())
	bridge.Start(ctx)

	require.Eventually(t, func() bool {
		return len(mini.PubSubChannels("kramik:events")) == 1
	}, time.Second, 10*time.Millisecond)

	publisher := NewRedisPublisher(client, "kramik:events")
	require.NoError(t, publisher.Publish(ctx, Message{Source: "node-b", Name: "Own"}))
	require.NoError(t, publisher.Publish(ctx, Message{Source: "node-a", Name: "Remote", Address: "0xabc"}))

	select {
	case msg := <-received:
		require.Equal(t, "Remote", msg.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("expected remote event")
	}
}

func TestBridgeDeliversEachEventOnce(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	received, unsubscribe := hub.Subscribe("")
	defer unsubscribe()

	NewBridge(hub, "node-b", client, "kramik:events", nil, "", zerolog.Nop()).Start(ctx)
	require.Eventually(t, func() bool {
		return len(mini.PubSubChannels("kramik:events")) == 1
	}, time.Second, 10*time.Millisecond)

	publisher := NewRedisPublisher(client, "kramik:events")
	first := Message{Source: "node-a", EventID: "evt-1", Name: "QuizRecorded", Address: "0xabc"}
	require.NoError(t, publisher.Publish(ctx, first))
	require.NoError(t, publisher.Publish(ctx, first))
	require.NoError(t, publisher.Publish(ctx, Message{Source: "node-a", EventID: "evt-2", Name: "CreditsUpdated", Address: "0xabc"}))

	var names []string
	for len(names) < 2 {
		select {
		case msg := <-received:
			names = append(names, msg.Name)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected two events, got %v", names)
		}
	}
	require.Equal(t, []string{"QuizRecorded", "CreditsUpdated"}, names)

	select {
	case msg := <-received:
		t.Fatalf("unexpected redelivery of %s", msg.EventID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgeForgetsOldestEventIDs(t *testing.T) {
	bridge := NewBridge(NewHub(), "node-b", nil, "", nil, "", zerolog.Nop())

	require.True(t, bridge.firstDelivery("evt-0"))
	require.False(t, bridge.firstDelivery("evt-0"))
	for i := 1; i <= recentEventWindow; i++ {
		require.True(t, bridge.firstDelivery(fmt.Sprintf("evt-%d", i)))
	}
	require.True(t, bridge.firstDelivery("evt-0"))
	require.Len(t, bridge.seen, recentEventWindow)
}
