package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loyalty-api/internal/events"
)

type stubStore struct {
	last events.DomainEvent
}

func (s *stubStore) InsertDomainEvent(_ context.Context, event events.DomainEvent) (events.DomainEvent, error) {
	s.last = event
	return event, nil
}

type captureNotifier struct {
	events []events.DomainEvent
}

func (c *captureNotifier) Notify(_ context.Context, event events.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.New()
	payload := map[string]any{"orderId": "123"}
	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicLoyaltySettled, aggregate, payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicLoyaltySettled, store.last.Topic)
	require.JSONEq(t, `{"orderId":"123"}`, string(store.last.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestEmitRequiresTopicAndAggregate(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "  ", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicLoyaltySettled, uuid.Nil, nil)
	require.Error(t, err)
}

func TestEmitRejectsInvalidJSONPayload(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), events.TopicLoyaltySettled, uuid.New(), []byte("{not json"))
	require.Error(t, err)
}
