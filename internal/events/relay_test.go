package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/repository"
	"rentacar-backend/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

var testConfig = config.EventsConfig{
	Sink:         "log",
	PollInterval: 10 * time.Millisecond,
	BatchSize:    10,
	Lease:        30 * time.Second,
}

// recordingSink keeps published events and fails the ones listed in failing.
type recordingSink struct {
	published []domain.Event
	failing   map[int64]error
}

func (s *recordingSink) Publish(ctx context.Context, e domain.Event) error {
	if err := s.failing[e.ID]; err != nil {
		return err
	}
	s.published = append(s.published, e)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func appendEvents(t *testing.T, store *memory.Store, evs ...domain.Event) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repos) error {
		for i := range evs {
			if err := repos.Events().Append(ctx, &evs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func ev(resID int64, typ domain.EventType, version int32) domain.Event {
	return domain.Event{ReservationID: resID, Type: typ, Version: version, OccurredAt: t0, Payload: []byte(`{}`)}
}

func keys(evs []domain.Event) []string {
	out := make([]string, len(evs))
	for i := range evs {
		out[i] = evs[i].DedupKey()
	}
	return out
}

func TestRelay_PublishesInOrderPerReservation(t *testing.T) {
	store := memory.NewStore()
	now := t0
	store.SetClock(func() time.Time { return now })
	appendEvents(t, store,
		ev(1, domain.EventCreated, 1),
		ev(2, domain.EventCreated, 1),
		ev(1, domain.EventConfirmed, 2),
		ev(1, domain.EventPickedUp, 3),
	)
	sink := &recordingSink{}
	relay := NewRelay(store, sink, "relay-1", testConfig)

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1:CREATED:1", "2:CREATED:1"}, keys(sink.published))

	_, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, []string{"1:CREATED:1", "2:CREATED:1", "1:CONFIRMED:2", "1:PICKED_UP:3"}, keys(sink.published))
	for _, e := range store.Events() {
		assert.NotNil(t, e.PublishedAt, e.DedupKey())
	}
}

func TestRelay_FailedEventBlocksItsReservationOnly(t *testing.T) {
	store := memory.NewStore()
	now := t0
	store.SetClock(func() time.Time { return now })
	appendEvents(t, store,
		ev(1, domain.EventCreated, 1),
		ev(1, domain.EventConfirmed, 2),
		ev(2, domain.EventCreated, 1),
	)
	sink := &recordingSink{failing: map[int64]error{1: errors.New("broker unavailable")}}
	relay := NewRelay(store, sink, "relay-1", testConfig)

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"2:CREATED:1"}, keys(sink.published))

	failed := store.Events()[0]
	assert.Nil(t, failed.PublishedAt)
	assert.Equal(t, 1, failed.Attempts)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "broker unavailable", *failed.LastError)

	// Still leased: nothing for reservation 1 goes out, not even version 2.
	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The lease runs out and the broker is back.
	sink.failing = nil
	now = t0.Add(31 * time.Second)
	_, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2:CREATED:1", "1:CREATED:1", "1:CONFIRMED:2"}, keys(sink.published))
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	appendEvents(t, store, ev(1, domain.EventCreated, 1))
	sink := &recordingSink{}
	relay := NewRelay(store, sink, "relay-1", testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	assert.Eventually(t, func() bool { return store.Events()[0].PublishedAt != nil }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "reservation.picked_up", RoutingKey(domain.EventPickedUp))
	assert.Equal(t, "reservation.created", RoutingKey(domain.EventCreated))
}

func TestNewSink_Unknown(t *testing.T) {
	_, err := NewSink(config.EventsConfig{Sink: "smoke-signals"})
	assert.Error(t, err)
}
