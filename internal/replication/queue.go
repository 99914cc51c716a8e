// Package replication forwards mutation events to an external sink over a
// long-lived websocket, best-effort with automatic reconnect.
package replication

import (
	"context"
	"sync"

	"github.com/hivemind-db/hivemind/internal/types"
)

// Queue is the unbounded outbound event queue. Producers never block;
// memory pressure is bounded in practice by the write workload.
type Queue struct {
	mu     sync.Mutex
	items  []types.ReplicationEvent
	signal chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Emit appends an event. It never blocks.
func (q *Queue) Emit(evt types.ReplicationEvent) {
	q.mu.Lock()
	q.items = append(q.items, evt)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Next pops the oldest event, blocking until one is available or the
// context is cancelled. The boolean is false on cancellation.
func (q *Queue) Next(ctx context.Context) (types.ReplicationEvent, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			evt := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return evt, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return types.ReplicationEvent{}, false
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
