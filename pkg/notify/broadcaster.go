package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/internal/ratelimiter"
	"github.com/marmos91/dittotree/pkg/metrics"
)

// Config configures a Broadcaster.
type Config struct {
	// QueueSize bounds pending events, both in the shared queue and in each
	// channel's own queue. Events that do not fit are dropped. Default: 1024
	QueueSize int

	// DeliveryTimeout bounds a single channel delivery. A delivery still
	// running after the timeout is abandoned. Default: 10s
	DeliveryTimeout time.Duration
}

// channelWorker owns the queue and goroutine of one channel, so a slow or
// stuck channel only delays its own events.
type channelWorker struct {
	channel Channel
	limiter *ratelimiter.RateLimiter
	queue   chan Event
}

// Broadcaster implements Notifier by fanning events out to channels.
//
// Thread Safety: Safe for concurrent use.
type Broadcaster struct {
	config  Config
	metrics metrics.EngineMetrics

	mu       sync.RWMutex
	channels []*channelWorker
	stopped  bool
	workers  sync.WaitGroup

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
}

// NewBroadcaster starts a broadcaster with no channels. Call Close to drain
// pending events and stop the workers.
func NewBroadcaster(config Config, m metrics.EngineMetrics) *Broadcaster {
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = 10 * time.Second
	}

	b := &Broadcaster{
		config:  config,
		metrics: metrics.OrNoop(m),
		queue:   make(chan Event, config.QueueSize),
		done:    make(chan struct{}),
	}
	go b.worker()
	return b
}

// AddChannel registers ch and starts its worker. A nil limiter means
// unlimited. Channels added after Close are ignored.
func (b *Broadcaster) AddChannel(ch Channel, limiter *ratelimiter.RateLimiter) {
	if limiter == nil {
		limiter = ratelimiter.Unlimited()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		logger.Warn("Notify: broadcaster closed, ignoring channel %s", ch.Name())
		return
	}

	w := &channelWorker{channel: ch, limiter: limiter, queue: make(chan Event, b.config.QueueSize)}
	b.channels = append(b.channels, w)
	b.workers.Add(1)
	go b.channelLoop(w)
}

// Notify queues event for delivery. It never blocks; when the queue is full
// or the broadcaster is closed the event is dropped and logged.
func (b *Broadcaster) Notify(_ context.Context, event Event) {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()

	if b.closed {
		logger.Warn("Notify: broadcaster closed, dropping %s event for %s", event.Kind, event.Recipient)
		return
	}

	select {
	case b.queue <- event:
	default:
		logger.Warn("Notify: queue full, dropping %s event for %s", event.Kind, event.Recipient)
		b.metrics.RecordNotification("queue", "dropped")
	}
}

// Close stops accepting events, delivers everything already queued, and
// waits for every worker (bounded by ctx).
func (b *Broadcaster) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.closeMu.Lock()
		b.closed = true
		close(b.queue)
		b.closeMu.Unlock()
	})

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker fans the shared queue out to the channel queues, then shuts the
// channel workers down once the shared queue is drained.
func (b *Broadcaster) worker() {
	defer close(b.done)
	for event := range b.queue {
		b.dispatch(event)
	}

	b.mu.Lock()
	b.stopped = true
	for _, w := range b.channels {
		close(w.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
}

// dispatch hands one event to every channel without waiting for delivery.
func (b *Broadcaster) dispatch(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, w := range b.channels {
		name := w.channel.Name()

		if !w.limiter.Allow() {
			logger.Warn("Notify: channel %s rate limited, dropping %s event for %s", name, event.Kind, event.Recipient)
			b.metrics.RecordNotification(name, "dropped")
			continue
		}

		select {
		case w.queue <- event:
		default:
			logger.Warn("Notify: channel %s backlog full, dropping %s event for %s", name, event.Kind, event.Recipient)
			b.metrics.RecordNotification(name, "dropped")
		}
	}
}

func (b *Broadcaster) channelLoop(w *channelWorker) {
	defer b.workers.Done()

	name := w.channel.Name()
	for event := range w.queue {
		if err := b.deliver(w.channel, event); err != nil {
			logger.Error("Notify: channel %s failed for %s: %v", name, event.Recipient, err)
			b.metrics.RecordNotification(name, "failed")
			continue
		}
		b.metrics.RecordNotification(name, "delivered")
	}
}

// deliver runs one delivery and waits at most DeliveryTimeout for it. A
// delivery that ignores its context is left running and reported as failed.
func (b *Broadcaster) deliver(ch Channel, event Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.DeliveryTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("channel panicked: %v", r)
			}
		}()
		errCh <- ch.Deliver(ctx, event)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delivery abandoned after %s: %w", b.config.DeliveryTimeout, ctx.Err())
	}
}
