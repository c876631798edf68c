package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/domain/event"
)

// ErrClosed is returned when dispatching through a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes committed workflow events to registered handlers
type Dispatcher interface {
	// Subscribe registers a handler under a generated name
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler for one event type, or for every
	// type when eventType is AnyType
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes the named handler registered for eventType
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs every matching handler in registration order and
	// returns their failures joined
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs matching handlers in the background. Handlers keep
	// the caller's context values but not its cancellation.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Handlers lists the subscriptions that receive eventType
	Handlers(eventType event.Type) []Subscription

	Stats() Stats

	// Close rejects further events and waits for background handlers
	Close() error
}

type eventDispatcher struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs []subscription
	seq  int

	inflight chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger *zap.Logger) Option {
	return func(d *eventDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxInFlight caps the number of background handlers running at once.
// DispatchAsync blocks while the cap is reached.
func WithMaxInFlight(n int) Option {
	return func(d *eventDispatcher) {
		if n > 0 {
			d.inflight = make(chan struct{}, n)
		}
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	d.seq++
	name := fmt.Sprintf("%s#%d", eventType, d.seq)
	d.mu.Unlock()
	d.SubscribeNamed(eventType, name, handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	d.subs = append(d.subs, subscription{
		Subscription: Subscription{Name: name, EventType: eventType},
		handler:      handler,
	})
	d.mu.Unlock()

	d.logger.Debug("Handler registered",
		zap.String("event_type", eventType.String()),
		zap.String("handler_name", name))
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.subs[:0]
	for _, s := range d.subs {
		if s.EventType != eventType || s.Name != name {
			kept = append(kept, s)
		}
	}
	d.subs = kept
}

func (d *eventDispatcher) matching(t event.Type) []subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []subscription
	for _, s := range d.subs {
		if s.matches(t) {
			out = append(out, s)
		}
	}
	return out
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}
	var errs []error
	for _, s := range d.matching(evt.Type) {
		if err := d.run(ctx, evt, s); err != nil {
			errs = append(errs, fmt.Errorf("handler %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logger.Warn("Event dropped, dispatcher is closed",
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID))
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, s := range d.matching(evt.Type) {
		if d.inflight != nil {
			d.inflight <- struct{}{}
		}
		d.wg.Add(1)
		go func(s subscription) {
			defer d.wg.Done()
			if d.inflight != nil {
				defer func() { <-d.inflight }()
			}
			_ = d.run(detached, evt, s)
		}(s)
	}
}

func (d *eventDispatcher) Handlers(eventType event.Type) []Subscription {
	subs := d.matching(eventType)
	out := make([]Subscription, len(subs))
	for i, s := range subs {
		out[i] = s.Subscription
	}
	return out
}

func (d *eventDispatcher) Stats() Stats {
	return Stats{Delivered: d.delivered.Load(), Failed: d.failed.Load()}
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}
	d.wg.Wait()
	d.logger.Info("Dispatcher closed",
		zap.Uint64("delivered", d.delivered.Load()),
		zap.Uint64("failed", d.failed.Load()))
	return nil
}

// run invokes one handler, turning a panic into an error, and logs failures
func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, s subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			d.failed.Add(1)
			d.logger.Error("Event handler failed",
				zap.String("event_type", evt.Type.String()),
				zap.String("event_id", evt.ID),
				zap.String("application", evt.Application.String()),
				zap.String("handler_name", s.Name),
				zap.Error(err))
			return
		}
		d.delivered.Add(1)
	}()
	return s.handler(ctx, evt)
}
