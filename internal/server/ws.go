package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hivemind-db/hivemind/internal/channels"
	"github.com/hivemind-db/hivemind/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Agents connect from arbitrary local processes.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn is one live websocket client. All outbound frames funnel through
// the send channel so only writeLoop touches the connection for writes.
type wsConn struct {
	server *Server
	conn   *websocket.Conn
	send   chan types.WsServerMessage
	done   chan struct{}
	subs   []*channels.Subscriber
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.log.Debug("websocket client connected", "remote", conn.RemoteAddr())

	c := &wsConn{
		server: s,
		conn:   conn,
		send:   make(chan types.WsServerMessage, 64),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	c.readLoop()
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop processes client frames until the connection drops, then tears
// down every subscription it created.
func (c *wsConn) readLoop() {
	defer func() {
		close(c.done)
		for _, sub := range c.subs {
			c.server.hub.Unsubscribe(sub)
		}
		_ = c.conn.Close()
		c.server.log.Debug("websocket client disconnected", "remote", c.conn.RemoteAddr())
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg types.WsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(types.WsServerMessage{
				Type:    types.WsServerError,
				Message: "invalid message: " + err.Error(),
			})
			continue
		}
		c.handle(msg)
	}
}

func (c *wsConn) handle(msg types.WsClientMessage) {
	switch msg.Type {
	case types.WsClientSubscribe:
		c.subscribe(msg.Channels, msg.AgentID)
	case types.WsClientSubscribeTasks:
		c.subscribe([]string{types.ChannelNameTasks}, msg.AgentID)
	case types.WsClientUnsubscribe:
		// Subscriptions are torn down on disconnect; per-channel
		// unsubscribe is accepted and ignored.
	case types.WsClientPing:
		c.reply(types.WsServerMessage{Type: types.WsServerPong})
	default:
		c.reply(types.WsServerMessage{
			Type:    types.WsServerError,
			Message: "unknown message type: " + msg.Type,
		})
	}
}

// subscribe attaches the connection to each named channel, auto-creating
// unknown channels as public, and confirms with a subscribed frame.
func (c *wsConn) subscribe(names []string, agentID string) {
	if agentID == "" {
		agentID = "anonymous"
	}
	subscribed := make([]string, 0, len(names))
	for _, name := range names {
		sub := c.server.hub.Subscribe(name, agentID)
		c.subs = append(c.subs, sub)
		subscribed = append(subscribed, name)
		go c.forward(sub)
	}
	c.reply(types.WsServerMessage{
		Type:     types.WsServerSubscribed,
		Channels: subscribed,
	})
}

// forward pumps one subscription into the connection's send channel. Lag on
// the bus is logged, never surfaced to the client.
func (c *wsConn) forward(sub *channels.Subscriber) {
	for {
		select {
		case msg := <-sub.C():
			if lag := sub.TakeLag(); lag > 0 {
				c.server.log.Warn("websocket subscriber lagging",
					"channel", sub.Channel(), "dropped", lag)
			}
			select {
			case c.send <- msg:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) reply(msg types.WsServerMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}
