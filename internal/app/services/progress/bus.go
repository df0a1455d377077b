// Package progress implements the Progress Bus (C6): an in-process
// single-writer, multi-reader observer list. No subscriber may slow the
// engine, so Publish fans out to subscribers on their own goroutines with a
// bounded, dropping channel rather than blocking the publisher.
package progress

import (
	"sync"

	"github.com/webpdtool/engine/internal/app/domain/session"
)

// Bus fans out session snapshots to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan session.Snapshot
	nextID      int
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]chan session.Snapshot)}
}

// Subscribe registers a new observer and returns a channel of snapshots plus
// an unsubscribe function. The channel has a small buffer; if a slow
// subscriber falls behind, the oldest unread snapshot is dropped rather than
// blocking Publish.
func (b *Bus) Subscribe() (<-chan session.Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan session.Snapshot, 8)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subscribers[id]; ok {
			close(ch)
			delete(b.subscribers, id)
		}
	}
	return ch, unsubscribe
}

// Publish fans snapshot out to every current subscriber. It never blocks: a
// full subscriber channel has its oldest entry dropped to make room.
func (b *Bus) Publish(snapshot session.Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
