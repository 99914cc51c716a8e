package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/hivemind-db/hivemind/internal/channels"
	"github.com/hivemind-db/hivemind/internal/engine"
)

// Run saves a snapshot every interval and one final snapshot when the
// context is cancelled. An interval of 0 disables the periodic saves but
// still writes the final one.
func (m *Manager) Run(ctx context.Context, e *engine.Engine, hub *channels.Hub, interval time.Duration, log *slog.Logger) {
	log = log.With("component", "snapshot")

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if err := m.Save(Capture(e, hub)); err != nil {
				log.Error("periodic snapshot failed", "error", err)
			} else {
				log.Debug("snapshot saved", "path", m.Path())
			}
		case <-ctx.Done():
			if err := m.Save(Capture(e, hub)); err != nil {
				log.Error("final snapshot failed", "error", err)
			} else {
				log.Info("final snapshot saved", "path", m.Path())
			}
			return
		}
	}
}
