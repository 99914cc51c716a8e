package engine

import (
	"fmt"

	"github.com/hivemind-db/hivemind/internal/types"
)

// CreateChannel creates the named channel. Creation is idempotent on name;
// the replication event is emitted only when the channel is genuinely new.
func (e *Engine) CreateChannel(req types.CreateChannelRequest) (types.Channel, bool, error) {
	if req.Name == "" {
		return types.Channel{}, false, fmt.Errorf("channel name cannot be empty")
	}
	ch, created := e.hub.Create(req)
	if created {
		e.emit(types.ReplicationEvent{Type: types.EventChannelCreated, Channel: &ch})
	}
	return ch, created, nil
}

// ShareMemory publishes an existing memory onto a channel as a
// memory_shared frame. The memory itself is not mutated and nothing is
// replicated.
func (e *Engine) ShareMemory(channelID int64, req types.ShareToChannelRequest) error {
	mem, err := e.GetMemory(req.MemoryID)
	if err != nil {
		return err
	}
	ch, ok := e.hub.GetByID(channelID)
	if !ok {
		return fmt.Errorf("channel %d: %w", channelID, ErrNotFound)
	}
	e.hub.Publish(ch.Name, types.WsServerMessage{
		Type:     types.WsServerMemoryShared,
		Channel:  ch.Name,
		Memory:   &mem,
		SharedBy: req.SharedBy,
	})
	return nil
}
