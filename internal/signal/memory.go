package signal

import (
	"context"
	"sync"
	"time"
)

// subscriberBuffer bounds each subscriber's queue. A full queue blocks the
// publisher rather than dropping, preserving at-least-once delivery.
const subscriberBuffer = 256

// MemoryRelay is an in-process Relay used for tests and single-box runs.
// Insertion order is the delivery order for every subscriber.
type MemoryRelay struct {
	mu     sync.Mutex
	log    []Message
	subs   map[int]*memorySub
	nextID int
	closed bool
}

type memorySub struct {
	roomID string
	ch     chan Message
}

// NewMemoryRelay constructs an empty relay.
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{subs: make(map[int]*memorySub)}
}

// Publish appends the message and fans it out to room subscribers.
func (r *MemoryRelay) Publish(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return context.Canceled
	}
	r.log = append(r.log, msg)
	targets := make([]chan Message, 0, len(r.subs))
	for _, s := range r.subs {
		if s.roomID == msg.RoomID {
			targets = append(targets, s.ch)
		}
	}
	r.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a new room subscriber.
func (r *MemoryRelay) Subscribe(ctx context.Context, roomID string) (<-chan Message, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	sub := &memorySub{roomID: roomID, ch: make(chan Message, subscriberBuffer)}
	r.subs[id] = sub

	cancel := func() {
		r.mu.Lock()
		if s, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(s.ch)
		}
		r.mu.Unlock()
	}
	return sub.ch, cancel, nil
}

// Close shuts down the relay and all subscriptions.
func (r *MemoryRelay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, s := range r.subs {
		delete(r.subs, id)
		close(s.ch)
	}
}

// Log returns a snapshot of every message published so far.
func (r *MemoryRelay) Log() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.log))
	copy(out, r.log)
	return out
}
