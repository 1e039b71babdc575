// Package broadcast fans the current session snapshot out to live dashboard
// viewers.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer bounds how far a viewer may fall behind before it is
// dropped instead of blocking the publish path.
const subscriberBuffer = 16

// Broadcaster is a publish/subscribe fan-out of serialized snapshots. A
// subscriber whose buffer is full is removed rather than blocking or
// crashing the publish call.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]chan []byte
	closed bool
}

// New creates an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]chan []byte),
	}
}

// Subscribe registers a new sink and immediately queues initial as its first
// frame. The returned id releases the sink via Unsubscribe; the channel is
// closed when the sink is removed.
func (b *Broadcaster) Subscribe(initial []byte) (string, <-chan []byte) {
	id := uuid.New().String()
	ch := make(chan []byte, subscriberBuffer)
	ch <- initial

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a sink. Safe to call after the sink was already dropped.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish queues frame on every live sink. Sinks that cannot keep up are
// dropped so one slow viewer never stalls the rest.
func (b *Broadcaster) Publish(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- frame:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}

// SubscriberCount returns the number of live sinks.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every sink and rejects future subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
