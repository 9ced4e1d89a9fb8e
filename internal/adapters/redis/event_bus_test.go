package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/storefront/internal/domain/auth"
	"github.com/target/storefront/internal/testutil"
)

func receive(t *testing.T, ch <-chan domainauth.AuthEvent) domainauth.AuthEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domainauth.AuthEvent{}
	}
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	bus := NewEventBus(client, EventBusOptions{})
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "client-1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	other, err := bus.Subscribe(ctx, "client-2")
	require.NoError(t, err)
	defer other.Unsubscribe()

	sess := testSession(time.Now().Add(time.Hour))
	require.NoError(t, bus.Publish(ctx, "client-1", domainauth.AuthEvent{
		Type:       domainauth.EventSignedIn,
		Session:    &sess,
		OccurredAt: time.Now(),
	}))
	require.NoError(t, bus.Publish(ctx, "client-1", domainauth.AuthEvent{Type: "USER_UPDATED"}))

	ev := receive(t, sub.Events())
	assert.Equal(t, domainauth.EventSignedIn, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "user-123", ev.Session.User.ID)

	ev = receive(t, sub.Events())
	assert.Equal(t, domainauth.EventOther, ev.Type)

	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event for other client: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBus_UnsubscribeClosesEvents(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	bus := NewEventBus(client, EventBusOptions{ChannelPrefix: "test:events:"})
	assert.Equal(t, "test:events:c", bus.Channel("c"))

	sub, err := bus.Subscribe(context.Background(), "c")
	require.NoError(t, err)
	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestEventBus_RequiresClientID(t *testing.T) {
	bus := NewEventBus(nil, EventBusOptions{})
	assert.Error(t, bus.Publish(context.Background(), "", domainauth.AuthEvent{}))
	_, err := bus.Subscribe(context.Background(), "")
	assert.Error(t, err)
}
