package channels

import (
	"log/slog"
	"testing"
	"time"

	"github.com/hivemind-db/hivemind/internal/types"
)

func newTestHub() *Hub {
	return NewHub(slog.Default())
}

func TestCreateIdempotentOnName(t *testing.T) {
	h := newTestHub()
	first, created := h.Create(types.CreateChannelRequest{Name: "dev", CreatedBy: "a1"})
	if !created {
		t.Fatal("expected first create to report created")
	}
	second, created := h.Create(types.CreateChannelRequest{
		Name: "dev", Description: "changed", ChannelType: types.ChannelPrivate, CreatedBy: "a2",
	})
	if created {
		t.Fatal("expected second create to return existing channel")
	}
	if second.ID != first.ID || second.CreatedBy != "a1" || second.ChannelType != first.ChannelType {
		t.Errorf("existing channel was mutated: %+v vs %+v", second, first)
	}
}

func TestSubscribeAutoCreatesPublic(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("announcements", "agent-1")
	defer h.Unsubscribe(sub)

	ch, ok := h.Get("announcements")
	if !ok {
		t.Fatal("channel not auto-created")
	}
	if ch.ChannelType != types.ChannelPublic {
		t.Errorf("auto-created channel type = %s", ch.ChannelType)
	}
	if h.SubscriberCount("announcements") != 1 {
		t.Errorf("SubscriberCount = %d", h.SubscriberCount("announcements"))
	}
}

func TestPublishDelivery(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("global", "a")
	defer h.Unsubscribe(sub)

	h.Publish("global", types.WsServerMessage{Type: types.WsServerMemoryAdded, Channel: "global"})

	select {
	case msg := <-sub.C():
		if msg.Type != types.WsServerMemoryAdded {
			t.Errorf("got type %s", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
	if sub.TakeLag() != 0 {
		t.Error("unexpected lag")
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	h := newTestHub()
	slow := h.Subscribe("busy", "slow")
	fast := h.Subscribe("busy", "fast")
	defer h.Unsubscribe(slow)
	defer h.Unsubscribe(fast)

	// Overflow the slow subscriber's buffer while draining the fast one.
	total := BusCapacity + 10
	done := make(chan int)
	go func() {
		received := 0
		for range fast.C() {
			received++
			if received == total {
				break
			}
		}
		done <- received
	}()

	for i := 0; i < total; i++ {
		h.Publish("busy", types.WsServerMessage{Type: types.WsServerTaskCreated})
	}

	select {
	case received := <-done:
		if received != total {
			t.Errorf("fast subscriber received %d of %d", received, total)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fast subscriber starved by slow subscriber")
	}

	if lag := slow.TakeLag(); lag != int64(total-BusCapacity) {
		t.Errorf("slow subscriber lag = %d, want %d", lag, total-BusCapacity)
	}
	if slow.TakeLag() != 0 {
		t.Error("TakeLag should reset the counter")
	}
}

func TestPublishUnknownChannelIsNoop(t *testing.T) {
	h := newTestHub()
	h.Publish("nowhere", types.WsServerMessage{Type: types.WsServerPong})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("dev", "a")
	h.Unsubscribe(sub)
	h.Unsubscribe(sub) // second call is a no-op

	h.Publish("dev", types.WsServerMessage{Type: types.WsServerPong})
	select {
	case <-sub.C():
		t.Error("received after unsubscribe")
	default:
	}
	if h.SubscriberCount("dev") != 0 {
		t.Errorf("SubscriberCount = %d", h.SubscriberCount("dev"))
	}
}

func TestRestoreAdvancesIDCounter(t *testing.T) {
	h := newTestHub()
	h.Restore([]types.Channel{
		{ID: 5, Name: "global", ChannelType: types.ChannelPublic, CreatedAt: time.Now()},
		{ID: 9, Name: "tasks", ChannelType: types.ChannelPublic, CreatedAt: time.Now()},
	})
	if _, ok := h.Get("global"); !ok {
		t.Fatal("restored channel missing")
	}
	if h.SubscriberCount("global") != 0 {
		t.Error("restore must not carry subscribers")
	}
	fresh, created := h.Create(types.CreateChannelRequest{Name: "new", CreatedBy: "a"})
	if !created {
		t.Fatal("create after restore failed")
	}
	if fresh.ID <= 9 {
		t.Errorf("new channel id %d not greater than restored max 9", fresh.ID)
	}
}
