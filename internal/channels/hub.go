// Package channels implements the named pub/sub fabric: channels with
// bounded fan-out buses and per-connection subscriber sets.
package channels

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hivemind-db/hivemind/internal/types"
)

// BusCapacity is the per-subscriber buffer size. A subscriber that falls
// more than this far behind starts dropping and observes a lag count on its
// next receive.
const BusCapacity = 256

// Subscriber is one receiver on a channel's fan-out bus.
type Subscriber struct {
	id      int64
	channel string
	agentID string
	ch      chan types.WsServerMessage
	lagged  atomic.Int64
	closed  atomic.Bool
}

// Channel returns the channel name this subscriber is attached to.
func (s *Subscriber) Channel() string { return s.channel }

// C exposes the receive channel for select loops. Callers should call
// TakeLag after each receive to observe drops.
func (s *Subscriber) C() <-chan types.WsServerMessage { return s.ch }

// TakeLag returns the number of messages dropped since the last call and
// resets the counter.
func (s *Subscriber) TakeLag() int64 {
	return s.lagged.Swap(0)
}

type channelState struct {
	mu   sync.RWMutex
	meta types.Channel
	subs map[int64]*Subscriber
	// agents that have subscribed, for introspection
	agents map[string]struct{}
}

// Hub owns all channels and their buses.
type Hub struct {
	mu        sync.RWMutex
	byName    map[string]*channelState
	byID      map[int64]*channelState
	nextID    atomic.Int64
	nextSubID atomic.Int64
	log       *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	h := &Hub{
		byName: make(map[string]*channelState),
		byID:   make(map[int64]*channelState),
		log:    log.With("component", "channels"),
	}
	h.nextID.Store(1)
	return h
}

// Create creates a channel, or returns the existing one unchanged when the
// name is already taken. The boolean reports whether a new channel was
// created.
func (h *Hub) Create(req types.CreateChannelRequest) (types.Channel, bool) {
	chanType := req.ChannelType
	if chanType == "" {
		chanType = types.ChannelPublic
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.byName[req.Name]; ok {
		return st.meta, false
	}
	st := &channelState{
		meta: types.Channel{
			ID:          h.nextID.Add(1) - 1,
			Name:        req.Name,
			Description: req.Description,
			ChannelType: chanType,
			CreatedBy:   req.CreatedBy,
			CreatedAt:   time.Now().UTC(),
		},
		subs:   make(map[int64]*Subscriber),
		agents: make(map[string]struct{}),
	}
	h.byName[req.Name] = st
	h.byID[st.meta.ID] = st
	return st.meta, true
}

// Get returns a channel by name.
func (h *Hub) Get(name string) (types.Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.byName[name]
	if !ok {
		return types.Channel{}, false
	}
	return st.meta, true
}

// GetByID returns a channel by id.
func (h *Hub) GetByID(id int64) (types.Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.byID[id]
	if !ok {
		return types.Channel{}, false
	}
	return st.meta, true
}

// List returns all channels in unspecified order.
func (h *Hub) List() []types.Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Channel, 0, len(h.byName))
	for _, st := range h.byName {
		out = append(out, st.meta)
	}
	return out
}

// Subscribe attaches a new receiver to the named channel, auto-creating the
// channel as public when it does not exist.
func (h *Hub) Subscribe(name, agentID string) *Subscriber {
	h.mu.Lock()
	st, ok := h.byName[name]
	if !ok {
		st = &channelState{
			meta: types.Channel{
				ID:          h.nextID.Add(1) - 1,
				Name:        name,
				ChannelType: types.ChannelPublic,
				CreatedBy:   agentID,
				CreatedAt:   time.Now().UTC(),
			},
			subs:   make(map[int64]*Subscriber),
			agents: make(map[string]struct{}),
		}
		h.byName[name] = st
		h.byID[st.meta.ID] = st
	}
	h.mu.Unlock()

	sub := &Subscriber{
		id:      h.nextSubID.Add(1),
		channel: name,
		agentID: agentID,
		ch:      make(chan types.WsServerMessage, BusCapacity),
	}
	st.mu.Lock()
	st.subs[sub.id] = sub
	if agentID != "" {
		st.agents[agentID] = struct{}{}
	}
	st.mu.Unlock()
	return sub
}

// Unsubscribe detaches a receiver. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil || !sub.closed.CompareAndSwap(false, true) {
		return
	}
	h.mu.RLock()
	st, ok := h.byName[sub.channel]
	h.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	delete(st.subs, sub.id)
	st.mu.Unlock()
}

// Publish sends an event to every subscriber of the named channel. A full
// subscriber buffer is non-fatal: the message is dropped for that
// subscriber and its lag counter is bumped. Publishing to a channel that
// does not exist is a no-op.
func (h *Hub) Publish(name string, msg types.WsServerMessage) {
	h.mu.RLock()
	st, ok := h.byName[name]
	h.mu.RUnlock()
	if !ok {
		return
	}

	st.mu.RLock()
	subs := make([]*Subscriber, 0, len(st.subs))
	for _, s := range st.subs {
		subs = append(subs, s)
	}
	st.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- msg:
		default:
			s.lagged.Add(1)
		}
	}
}

// SubscriberCount returns the number of live subscribers on a channel.
func (h *Hub) SubscriberCount(name string) int {
	h.mu.RLock()
	st, ok := h.byName[name]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.subs)
}

// Restore repopulates the channel list from a snapshot. Live subscribers
// are not carried across restarts. The id counter advances past the
// largest restored id.
func (h *Hub) Restore(chans []types.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var maxID int64
	for _, c := range chans {
		st := &channelState{
			meta:   c,
			subs:   make(map[int64]*Subscriber),
			agents: make(map[string]struct{}),
		}
		h.byName[c.Name] = st
		h.byID[c.ID] = st
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	if maxID >= h.nextID.Load() {
		h.nextID.Store(maxID + 1)
	}
}
