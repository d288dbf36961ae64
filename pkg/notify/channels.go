package notify

import (
	"context"
	"sync"

	"github.com/marmos91/dittotree/internal/logger"
)

// LogChannel writes every event to the process log.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Deliver(_ context.Context, event Event) error {
	logger.Info("Notification: to=%s kind=%s node=%s (%s) actor=%s",
		event.Recipient, event.Kind, event.NodeID, event.NodeName, event.Actor)
	return nil
}

// MemoryChannel records events in memory. Useful for tests and for the CLI,
// which prints what would have been sent.
type MemoryChannel struct {
	name   string
	mu     sync.Mutex
	events []Event
}

// NewMemoryChannel creates an empty recording channel.
func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

func (c *MemoryChannel) Name() string { return c.name }

func (c *MemoryChannel) Deliver(_ context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (c *MemoryChannel) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// FuncChannel adapts a function to Channel.
type FuncChannel struct {
	ChannelName string
	Fn          func(ctx context.Context, event Event) error
}

func (c FuncChannel) Name() string { return c.ChannelName }

func (c FuncChannel) Deliver(ctx context.Context, event Event) error {
	return c.Fn(ctx, event)
}
