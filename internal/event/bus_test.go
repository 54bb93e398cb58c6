package event

import (
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan int, timeout time.Duration) (int, bool) {
	t.Helper()
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(timeout):
		return 0, false
	}
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	a := bus.Subscribe()
	defer a.Cancel()
	b := bus.Subscribe()
	defer b.Cancel()

	bus.Publish(42)

	if v, ok := recv(t, a.C(), time.Second); !ok || v != 42 {
		t.Errorf("subscriber a got (%d, %v), want (42, true)", v, ok)
	}
	if v, ok := recv(t, b.C(), time.Second); !ok || v != 42 {
		t.Errorf("subscriber b got (%d, %v), want (42, true)", v, ok)
	}
}

func TestBusSubscribeSeesOnlyFutureValues(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	bus.Publish(1)

	sub := bus.Subscribe()
	defer sub.Cancel()

	bus.Publish(2)

	if v, ok := recv(t, sub.C(), time.Second); !ok || v != 2 {
		t.Errorf("got (%d, %v), want (2, true)", v, ok)
	}
	select {
	case v := <-sub.C():
		t.Errorf("unexpected extra value %d", v)
	default:
	}
}

func TestBusThrottleCoalescesToLatest(t *testing.T) {
	bus := NewBus[int](WithThrottle[int](50 * time.Millisecond))
	defer bus.Close()

	sub := bus.Subscribe()
	defer sub.Cancel()

	// First publish goes straight out, the burst behind it collapses
	// into one delivery of the newest value.
	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)
	bus.Publish(4)

	if v, ok := recv(t, sub.C(), time.Second); !ok || v != 1 {
		t.Fatalf("got (%d, %v), want (1, true)", v, ok)
	}
	if v, ok := recv(t, sub.C(), time.Second); !ok || v != 4 {
		t.Fatalf("got (%d, %v), want (4, true)", v, ok)
	}
	select {
	case v := <-sub.C():
		t.Errorf("coalesced values leaked through: %d", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusDropsOldestWhenBufferFull(t *testing.T) {
	bus := NewBus[int](WithBuffer[int](2))
	defer bus.Close()

	sub := bus.Subscribe()
	defer sub.Cancel()

	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)

	if v, ok := recv(t, sub.C(), time.Second); !ok || v != 2 {
		t.Errorf("got (%d, %v), want (2, true)", v, ok)
	}
	if v, ok := recv(t, sub.C(), time.Second); !ok || v != 3 {
		t.Errorf("got (%d, %v), want (3, true)", v, ok)
	}
}

func TestBusResubscribeYieldsFreshCursor(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	sub := bus.Subscribe()
	defer sub.Cancel()

	bus.Publish(1)

	// The fresh cursor is future-only; the value queued on the original
	// cursor does not carry over.
	fresh := sub.Resubscribe()
	defer fresh.Cancel()
	select {
	case v := <-fresh.C():
		t.Fatalf("fresh cursor saw backlog value %d", v)
	default:
	}

	bus.Publish(2)
	if v, ok := recv(t, fresh.C(), time.Second); !ok || v != 2 {
		t.Errorf("fresh cursor got (%d, %v), want (2, true)", v, ok)
	}

	// The cursors are independent: the original still holds both values.
	if v, ok := recv(t, sub.C(), time.Second); !ok || v != 1 {
		t.Errorf("original cursor got (%d, %v), want (1, true)", v, ok)
	}
	if v, ok := recv(t, sub.C(), time.Second); !ok || v != 2 {
		t.Errorf("original cursor got (%d, %v), want (2, true)", v, ok)
	}
}

func TestBusSubscribeAfterCancel(t *testing.T) {
	bus := NewBus[int]()
	defer bus.Close()

	sub := bus.Subscribe()
	sub.Cancel()
	if _, ok := <-sub.C(); ok {
		t.Error("cancelled subscription channel should be closed")
	}

	sub2 := bus.Subscribe()
	defer sub2.Cancel()
	bus.Publish(7)
	if v, ok := recv(t, sub2.C(), time.Second); !ok || v != 7 {
		t.Errorf("got (%d, %v), want (7, true)", v, ok)
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus[int]()
	sub := bus.Subscribe()
	bus.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed after bus close")
	}

	// Publishing and double closing after close must not panic.
	bus.Publish(1)
	bus.Close()

	late := bus.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
