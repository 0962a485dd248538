package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize is the number of recent events to retain for replay.
	DefaultHistorySize = 1000

	// DefaultChannelBuffer is the buffer size for subscriber channels.
	DefaultChannelBuffer = 100
)

// ErrClosed is returned once the bus has been closed.
var ErrClosed = errors.New("bus is closed")

// SubscriptionID is a unique identifier for event subscriptions.
type SubscriptionID string

type subscription struct {
	id        SubscriptionID
	eventType EventType // empty matches every event
	handler   func(Event)
	inline    bool // handler runs on the publisher's goroutine
	ch        chan Event
	done      chan struct{}
}

// Bus is a thread-safe pub/sub hub with bounded event history. Each
// subscriber gets its own goroutine and buffer; a slow subscriber loses
// events rather than blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[SubscriptionID]*subscription
	nextID atomic.Uint64

	historyMu   sync.RWMutex
	history     []Event
	historySize int

	dropped atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewBus creates a bus with the default history size.
func NewBus() *Bus {
	return NewBusWithConfig(DefaultHistorySize)
}

// NewBusWithConfig creates a bus retaining historySize events.
func NewBusWithConfig(historySize int) *Bus {
	if historySize < 0 {
		historySize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:        make(map[SubscriptionID]*subscription),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers handler for eventType. EventType("") subscribes to all
// events. Handlers for one subscription run sequentially in publish order.
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	sub := &subscription{
		id:        SubscriptionID(fmt.Sprintf("sub_%d", b.nextID.Add(1))),
		eventType: eventType,
		handler:   handler,
		ch:        make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return ""
	}
	b.subs[sub.id] = sub
	b.wg.Add(1)
	go b.run(sub)
	return sub.id
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case event := <-sub.ch:
			sub.handler(event)
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// SubscribeInline registers handler to run synchronously inside Publish, so
// it never misses an event. The handler must be quick and must not call back
// into the bus.
func (b *Bus) SubscribeInline(eventType EventType, handler func(Event)) SubscriptionID {
	sub := &subscription{
		id:        SubscriptionID(fmt.Sprintf("sub_%d", b.nextID.Add(1))),
		eventType: eventType,
		handler:   handler,
		inline:    true,
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return ""
	}
	b.subs[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription by ID.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	close(sub.done)
	return nil
}

// Publish records event in the history and hands it to matching subscribers.
// The history copy drops Content; message text only reaches live subscribers.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.addToHistory(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.eventType != "" && sub.eventType != event.Type {
			continue
		}
		if sub.inline {
			sub.handler(event)
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

func (b *Bus) addToHistory(event Event) {
	if b.historySize == 0 {
		return
	}
	event.Content = ""

	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	return b.HistorySlice(b.historySize)
}

// HistorySlice returns a copy of the last n events.
func (b *Bus) HistorySlice(n int) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	n = min(max(n, 0), len(b.history))
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriptionsCount returns the number of active subscriptions.
func (b *Bus) SubscriptionsCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops every subscription and waits for running handlers to return.
func (b *Bus) Close() error {
	b.mu.Lock()
	if !b.closed.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return ErrClosed
	}
	b.subs = make(map[SubscriptionID]*subscription)
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}
