package replication

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// reconnectDelay is the fixed sleep between connection attempts.
const reconnectDelay = 5 * time.Second

// Emitter drains the queue into the sink. Events in flight during a
// connection failure are lost: replication is best-effort and the snapshot
// is the durability anchor.
type Emitter struct {
	queue     *Queue
	sinkURL   string
	connected atomic.Bool
	log       *slog.Logger
}

// NewEmitter creates an emitter forwarding queue events to sinkURL.
func NewEmitter(queue *Queue, sinkURL string, log *slog.Logger) *Emitter {
	return &Emitter{
		queue:   queue,
		sinkURL: sinkURL,
		log:     log.With("component", "replication"),
	}
}

// Connected reports whether a sink connection is currently up.
func (em *Emitter) Connected() bool {
	return em.connected.Load()
}

// Run connects to the sink and forwards events until the context is
// cancelled. On connect or send failure it logs, sleeps the fixed delay
// (cut short by cancellation), and reconnects.
func (em *Emitter) Run(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(reconnectDelay), ctx)

	for ctx.Err() == nil {
		err := em.runConnection(ctx)
		if err == nil {
			// Clean exit: shutdown.
			return nil
		}
		em.log.Warn("replication connection lost", "sink", em.sinkURL, "error", err)

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	return nil
}

// runConnection dials the sink and forwards events until the context is
// cancelled (returns nil) or the connection fails (returns the error).
func (em *Emitter) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, em.sinkURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	em.connected.Store(true)
	defer em.connected.Store(false)
	em.log.Info("replication connected", "sink", em.sinkURL)

	for {
		evt, ok := em.queue.Next(ctx)
		if !ok {
			// Shutdown: the current frame has been written; the rest of
			// the queue is abandoned.
			return nil
		}
		if err := conn.WriteJSON(evt); err != nil {
			return err
		}
	}
}
