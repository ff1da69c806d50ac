package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/titabash/kugutsu/internal/logging"
)

// DefaultMaxListeners is the leak-diagnostic ceiling on live subscriptions.
const DefaultMaxListeners = 100

// Handler processes one event. Handlers run synchronously on the emitting
// goroutine, in registration order. A handler that panics is logged and
// unregistered; the remaining handlers still fire.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus distributes pipeline events to registered listeners.
type Bus struct {
	maxListeners int
	logger       *logging.Logger

	mu        sync.RWMutex
	listeners []*subscription
	nextID    int
	warned    bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithMaxListeners overrides the listener ceiling.
func WithMaxListeners(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.maxListeners = n
		}
	}
}

// WithLogger routes bus diagnostics to the given logger.
func WithLogger(logger *logging.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		maxListeners: DefaultMaxListeners,
		logger:       logging.New(logging.Default(), "Pipeline", "bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler and returns its unregister handle. Exceeding
// the listener ceiling logs a leak warning but still registers.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, handler: h}
	b.listeners = append(b.listeners, sub)
	count := len(b.listeners)
	warn := count > b.maxListeners && !b.warned
	if warn {
		b.warned = true
	}
	b.mu.Unlock()

	if warn {
		b.logger.Warn("possible listener leak",
			"listeners", count, "max", b.maxListeners)
	}

	return func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.listeners {
		if sub.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of live subscriptions.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Emit dispatches the event to every listener in registration order and
// returns once all have run. Handlers may subscribe, unsubscribe, or emit
// further events; nested emits deliver before the inner Emit returns.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	snapshot := make([]*subscription, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.invoke(sub, e)
	}
}

// invoke runs one handler with panic isolation. A panicking handler is
// removed so it cannot poison later events.
func (b *Bus) invoke(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.unsubscribe(sub.id)
			b.logger.Error("event listener panicked; unregistered",
				"event", string(e.Type), "task", e.TaskID, "panic", fmt.Sprint(r))
		}
	}()
	sub.handler(e)
}

// Close drops all listeners.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = nil
	return nil
}
