package event

import (
	"sync"
	"time"
)

const defaultBuffer = 64

// Bus fans out values of one payload type to any number of subscribers.
// Delivery is coalescing: while the throttle window is open, newer
// publishes overwrite the pending value, so a slow consumer always sees
// the latest state rather than a backlog of intermediate ones.
type Bus[T any] struct {
	mu       sync.Mutex
	subs     map[int]chan T
	nextID   int
	closed   bool
	throttle time.Duration
	buffer   int

	pending  *T
	flushArm bool
	lastSend time.Time
}

// Option configures a Bus.
type Option[T any] func(*Bus[T])

// WithThrottle coalesces publishes closer together than d into one
// delivery carrying the latest value. Zero disables throttling.
func WithThrottle[T any](d time.Duration) Option[T] {
	return func(b *Bus[T]) { b.throttle = d }
}

// WithBuffer sets the per-subscriber channel depth.
func WithBuffer[T any](n int) Option[T] {
	return func(b *Bus[T]) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBus creates an empty bus.
func NewBus[T any](opts ...Option[T]) *Bus[T] {
	b := &Bus[T]{
		subs:   make(map[int]chan T),
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one subscriber's cursor into the bus stream. Cursors
// are independent; cancelling or lagging on one never affects another.
type Subscription[T any] struct {
	bus *Bus[T]
	ch  chan T
	id  int
}

// C returns the delivery channel. It is closed by Cancel or Bus.Close.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Cancel detaches the cursor and closes its channel.
func (s *Subscription[T]) Cancel() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		close(c)
	}
}

// Resubscribe returns a fresh future-only cursor on the same bus. The
// original cursor stays live; values queued on it are not carried over.
func (s *Subscription[T]) Resubscribe() *Subscription[T] {
	return s.bus.Subscribe()
}

// Subscribe registers a new subscriber. Only values published after this
// call are delivered.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	sub := &Subscription[T]{bus: b, ch: ch}
	if b.closed {
		close(ch)
		return sub
	}

	sub.id = b.nextID
	b.nextID++
	b.subs[sub.id] = ch
	return sub
}

// Publish hands a value to every subscriber. When the throttle window is
// open the value is parked and the previously parked one discarded.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if b.throttle <= 0 {
		b.deliverLocked(v)
		return
	}

	elapsed := time.Since(b.lastSend)
	if elapsed >= b.throttle && !b.flushArm {
		b.deliverLocked(v)
		return
	}

	b.pending = &v
	if !b.flushArm {
		b.flushArm = true
		wait := b.throttle - elapsed
		time.AfterFunc(wait, b.flushPending)
	}
}

func (b *Bus[T]) flushPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushArm = false
	if b.closed || b.pending == nil {
		return
	}
	v := *b.pending
	b.pending = nil
	b.deliverLocked(v)
}

// deliverLocked pushes v to every subscriber, dropping the oldest queued
// value when a buffer is full so delivery never blocks the publisher.
func (b *Bus[T]) deliverLocked(v T) {
	b.lastSend = time.Now()
	for _, ch := range b.subs {
		for {
			select {
			case ch <- v:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the bus down. Subsequent publishes are dropped and all
// subscriber channels are closed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.pending = nil
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
