package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/dittotree/internal/ratelimiter"
	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(recipient tree.UserID) Event {
	return Event{Recipient: recipient, NodeID: tree.NewID(), Kind: EventDeleted, Actor: "admin"}
}

func closeBroadcaster(t *testing.T, b *Broadcaster) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Close(ctx))
}

// TestBroadcaster_IsolatesFailingChannel verifies a failing or panicking
// channel does not prevent delivery through the others.
func TestBroadcaster_IsolatesFailingChannel(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)

	failing := FuncChannel{ChannelName: "mail", Fn: func(context.Context, Event) error {
		return errors.New("smtp down")
	}}
	panicking := FuncChannel{ChannelName: "webhook", Fn: func(context.Context, Event) error {
		panic("bad payload")
	}}
	recorder := NewMemoryChannel("memory")

	b.AddChannel(failing, nil)
	b.AddChannel(panicking, nil)
	b.AddChannel(recorder, nil)

	b.Notify(context.Background(), event("alice"))
	b.Notify(context.Background(), event("bob"))
	closeBroadcaster(t, b)

	events := recorder.Events()
	require.Len(t, events, 2)
	assert.Equal(t, tree.UserID("alice"), events[0].Recipient)
	assert.Equal(t, tree.UserID("bob"), events[1].Recipient)
}

func TestBroadcaster_StuckChannelDoesNotBlockOthers(t *testing.T) {
	b := NewBroadcaster(Config{DeliveryTimeout: 50 * time.Millisecond}, nil)

	release := make(chan struct{})
	defer close(release)
	stuck := FuncChannel{ChannelName: "stuck", Fn: func(context.Context, Event) error {
		<-release
		return nil
	}}
	recorder := NewMemoryChannel("memory")

	b.AddChannel(stuck, nil)
	b.AddChannel(recorder, nil)

	for _, who := range []tree.UserID{"alice", "bob", "carol"} {
		b.Notify(context.Background(), event(who))
	}

	assert.Eventually(t, func() bool {
		return len(recorder.Events()) == 3
	}, 500*time.Millisecond, 5*time.Millisecond)

	// Three abandoned deliveries of 50ms each.
	closeBroadcaster(t, b)
	assert.Len(t, recorder.Events(), 3)
}

func TestBroadcaster_RateLimitDropsExcess(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	recorder := NewMemoryChannel("memory")
	b.AddChannel(recorder, ratelimiter.New(1, 2))

	for i := 0; i < 5; i++ {
		b.Notify(context.Background(), event("alice"))
	}
	closeBroadcaster(t, b)

	assert.Len(t, recorder.Events(), 2)
}

func TestBroadcaster_NotifyAfterCloseIsDropped(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	recorder := NewMemoryChannel("memory")
	b.AddChannel(recorder, nil)
	closeBroadcaster(t, b)

	assert.NotPanics(t, func() {
		b.Notify(context.Background(), event("alice"))
	})
	assert.Empty(t, recorder.Events())
}

func TestOwnerEvent(t *testing.T) {
	node := &tree.Node{ID: tree.NewID(), Name: "Doc", Owner: "alice"}

	_, ok := OwnerEvent(node, EventDeleted, "alice")
	assert.False(t, ok, "owners are not notified of their own changes")

	ev, ok := OwnerEvent(node, EventUnshared, "bob")
	require.True(t, ok)
	assert.Equal(t, tree.UserID("alice"), ev.Recipient)
	assert.Equal(t, EventUnshared, ev.Kind)
}
