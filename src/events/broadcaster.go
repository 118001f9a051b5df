// Package events fans ticket events out to live viewers.
//
// Subscribers are grouped in per-ticket rooms. Each room has its own lock, so
// activity on one ticket never waits on another. Every subscription owns a
// buffered outbound queue drained by its connection's writer goroutine;
// the broadcaster only ever does non-blocking sends into it. A subscriber
// that has gone away or cannot keep up is dropped from its room and has to
// reconnect, at which point it receives a fresh snapshot.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"freeda-support/src/broker"
	"freeda-support/src/contracts"
	"freeda-support/src/logger"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 64

// Frame is one serialized event as delivered to a subscriber. Data is shared
// between all subscribers of a broadcast and must not be modified.
type Frame struct {
	Type     contracts.EventType
	TicketID string
	Data     []byte
}

// Subscription is one live viewer attached to a ticket.
type Subscription struct {
	ticketID string
	ch       chan Frame
	done     chan struct{}
	once     sync.Once
}

// C returns the outbound queue.
func (s *Subscription) C() <-chan Frame { return s.ch }

// Done is closed once the subscription has been closed by either side.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// TicketID returns the ticket this subscription follows.
func (s *Subscription) TicketID() string { return s.ticketID }

// Close marks the subscription finished. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// offer queues f without blocking.
func (s *Subscription) offer(f Frame) bool {
	if s.closed() {
		return false
	}
	select {
	case s.ch <- f:
		return true
	default:
		return false
	}
}

type room struct {
	mu   sync.Mutex
	subs []*Subscription
	// dead is set once the room was emptied and removed from the registry.
	dead bool
}

// Broadcaster is the process-wide subscription registry.
type Broadcaster struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	buffer int

	mirror     broker.Broker
	instanceID string
	logger     logger.Logger
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithBuffer sets the per-subscription queue length.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithMirror publishes every broadcast event to a broker as well.
func WithMirror(m broker.Broker) Option {
	return func(b *Broadcaster) { b.mirror = m }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Broadcaster) { b.logger = l }
}

// New creates an empty Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		rooms:      make(map[string]*room),
		buffer:     DefaultBuffer,
		instanceID: uuid.NewString(),
		logger:     logger.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new viewer for ticketID. first reports whether it
// is the only subscriber of that ticket right now.
func (b *Broadcaster) Subscribe(ticketID string) (sub *Subscription, first bool) {
	sub = &Subscription{
		ticketID: ticketID,
		ch:       make(chan Frame, b.buffer),
		done:     make(chan struct{}),
	}

	for {
		r := b.getOrCreateRoom(ticketID)
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			b.removeRoom(ticketID, r)
			continue
		}
		r.subs = append(r.subs, sub)
		first = len(r.subs) == 1
		r.mu.Unlock()
		return sub, first
	}
}

// Unsubscribe removes sub from ticketID and closes it. Unknown subscriptions
// are ignored.
func (b *Broadcaster) Unsubscribe(ticketID string, sub *Subscription) {
	if sub == nil {
		return
	}
	defer sub.Close()

	r := b.lookupRoom(ticketID)
	if r == nil {
		return
	}

	r.mu.Lock()
	for i, s := range r.subs {
		if s == sub {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			break
		}
	}
	empty := b.retireIfEmpty(r)
	r.mu.Unlock()

	if empty {
		b.removeRoom(ticketID, r)
	}
}

// Broadcast serializes ev once and offers the same bytes to every subscriber
// of ticketID, in registration order. Subscribers that are closed or full are
// pruned without affecting delivery to the others. With no subscribers this
// is a no-op. The event is also published to the mirror, if any.
func (b *Broadcaster) Broadcast(ctx context.Context, ticketID string, ev contracts.Event) error {
	if ev.TicketID == "" {
		ev.TicketID = ticketID
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	frame := Frame{Type: ev.Type, TicketID: ticketID, Data: data}

	b.fanOut(ticketID, frame)
	b.publishMirror(ctx, ticketID, data)
	return nil
}

// Deliver sends ev to a single subscription, typically the snapshot for a
// viewer that just attached. It reports whether the frame was queued.
func (b *Broadcaster) Deliver(sub *Subscription, ev contracts.Event) (bool, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	return sub.offer(Frame{Type: ev.Type, TicketID: sub.ticketID, Data: data}), nil
}

// Count returns the number of live subscribers for ticketID.
func (b *Broadcaster) Count(ticketID string) int {
	r := b.lookupRoom(ticketID)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Rooms returns the number of tickets with at least one subscriber.
func (b *Broadcaster) Rooms() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}

// Close drops every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	rooms := b.rooms
	b.rooms = make(map[string]*room)
	b.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		for _, s := range r.subs {
			s.Close()
		}
		r.subs = nil
		r.dead = true
		r.mu.Unlock()
	}
}

func (b *Broadcaster) fanOut(ticketID string, frame Frame) {
	r := b.lookupRoom(ticketID)
	if r == nil {
		return
	}

	r.mu.Lock()
	kept := r.subs[:0]
	var pruned []*Subscription
	for _, s := range r.subs {
		if s.offer(frame) {
			kept = append(kept, s)
			continue
		}
		pruned = append(pruned, s)
	}
	for i := len(kept); i < len(r.subs); i++ {
		r.subs[i] = nil
	}
	r.subs = kept
	empty := b.retireIfEmpty(r)
	r.mu.Unlock()

	for _, s := range pruned {
		s.Close()
		b.logger.Debug("[Broadcaster] Dropped subscriber of %s", ticketID)
	}
	if empty {
		b.removeRoom(ticketID, r)
	}
}

// retireIfEmpty marks an empty room dead. Caller holds r.mu.
func (b *Broadcaster) retireIfEmpty(r *room) bool {
	if len(r.subs) == 0 && !r.dead {
		r.dead = true
		return true
	}
	return false
}

func (b *Broadcaster) lookupRoom(ticketID string) *room {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rooms[ticketID]
}

func (b *Broadcaster) getOrCreateRoom(ticketID string) *room {
	if r := b.lookupRoom(ticketID); r != nil {
		return r
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[ticketID]
	if !ok {
		r = &room{}
		b.rooms[ticketID] = r
	}
	return r
}

func (b *Broadcaster) removeRoom(ticketID string, r *room) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rooms[ticketID] == r {
		delete(b.rooms, ticketID)
	}
}
