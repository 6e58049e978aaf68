package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tyeom/zeroquant-sub005/internal/metrics"
	"github.com/tyeom/zeroquant-sub005/internal/protocol"
)

// DefaultCapacity is the per-mailbox buffer size.
const DefaultCapacity = 1024

var (
	// ErrEmpty is returned by TryRecv when no event is queued.
	ErrEmpty = errors.New("mailbox empty")
	// ErrClosed is returned once a mailbox has been closed.
	ErrClosed = errors.New("mailbox closed")
)

// LagError reports that events were dropped from a full mailbox since the
// previous receive.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("mailbox lagged: %d events dropped", e.Missed)
}

// Bus fans every published event out to all open mailboxes.
type Bus struct {
	mu        sync.RWMutex
	capacity  int
	mailboxes map[*Mailbox]struct{}
}

// NewBus creates a bus whose mailboxes hold up to capacity events.
// Non-positive capacities fall back to DefaultCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:  capacity,
		mailboxes: make(map[*Mailbox]struct{}),
	}
}

// Subscribe opens a mailbox that receives every event published from now on.
func (b *Bus) Subscribe() *Mailbox {
	m := &Mailbox{
		bus:    b,
		buf:    make([]protocol.Event, b.capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.mailboxes[m] = struct{}{}
	n := len(b.mailboxes)
	b.mu.Unlock()

	metrics.BusMailboxes.Set(float64(n))
	return m
}

// Publish enqueues ev in every open mailbox and returns how many it reached.
// It never blocks on a slow consumer.
func (b *Bus) Publish(ev protocol.Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for m := range b.mailboxes {
		if m.push(ev) {
			delivered++
		}
	}
	return delivered
}

// Len returns the number of open mailboxes.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.mailboxes)
}

// Capacity returns the per-mailbox buffer size.
func (b *Bus) Capacity() int {
	return b.capacity
}

func (b *Bus) remove(m *Mailbox) {
	b.mu.Lock()
	delete(b.mailboxes, m)
	n := len(b.mailboxes)
	b.mu.Unlock()

	metrics.BusMailboxes.Set(float64(n))
}

// Mailbox is one consumer's bounded queue on the bus. It is safe for one
// receiver and any number of publishers.
type Mailbox struct {
	bus *Bus

	mu      sync.Mutex
	buf     []protocol.Event
	head    int
	size    int
	missed  uint64
	dropped uint64
	closed  bool

	notify chan struct{}
}

func (m *Mailbox) push(ev protocol.Event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}

	capacity := len(m.buf)
	if m.size == capacity {
		m.buf[m.head] = nil
		m.head = (m.head + 1) % capacity
		m.size--
		m.missed++
		m.dropped++
		metrics.BusLaggedEventsTotal.Inc()
	}
	m.buf[(m.head+m.size)%capacity] = ev
	m.size++
	m.mu.Unlock()

	m.signal()
	return true
}

func (m *Mailbox) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// TryRecv returns the oldest queued event without waiting. After an
// overflow the first call returns a *LagError carrying the number of
// dropped events; the retained events follow in publish order.
func (m *Mailbox) TryRecv() (protocol.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.missed > 0 {
		missed := m.missed
		m.missed = 0
		return nil, &LagError{Missed: missed}
	}
	if m.size == 0 {
		return nil, ErrEmpty
	}

	ev := m.buf[m.head]
	m.buf[m.head] = nil
	m.head = (m.head + 1) % len(m.buf)
	m.size--
	return ev, nil
}

// Recv waits for the next event, a lag report, closure or ctx cancellation.
func (m *Mailbox) Recv(ctx context.Context) (protocol.Event, error) {
	for {
		ev, err := m.TryRecv()
		if !errors.Is(err, ErrEmpty) {
			return ev, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.notify:
		}
	}
}

// Ready is signalled when events may be available. Callers drain with
// TryRecv until ErrEmpty after each signal.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.notify
}

// Len returns the number of queued events.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Dropped returns the total number of events this mailbox lost to overflow.
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close detaches the mailbox from the bus and discards queued events.
// It is idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	clear(m.buf)
	m.size = 0
	m.mu.Unlock()

	m.bus.remove(m)
	m.signal()
}
