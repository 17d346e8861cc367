package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/annolab/workview/pkg/backend"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const wsSendBufferSize = 16

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The editor runs on other origins during development
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is one connected realtime socket. topics is guarded by the hub's
// lock.
type wsClient struct {
	conn   *websocket.Conn
	send   chan *backend.ChannelMessage
	topics map[string]bool
}

// hub fans item change events out to the websocket clients subscribed to the
// affected dataset's topic.
type hub struct {
	log     logs.Log
	mu      sync.Mutex
	clients map[*wsClient]bool
	closed  bool
}

func newHub(log logs.Log) *hub {
	return &hub{
		log:     log,
		clients: map[*wsClient]bool{},
	}
}

func (s *Server) httpWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.Log.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	client := &wsClient{
		conn:   conn,
		send:   make(chan *backend.ChannelMessage, wsSendBufferSize),
		topics: map[string]bool{},
	}
	if !s.hub.register(client) {
		conn.Close()
		return
	}
	go s.hub.writePump(client)
	s.hub.readLoop(client)
}

func (h *hub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = true
	return true
}

func (h *hub) unregister(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// readLoop consumes join/leave frames until the socket dies. Anything else a
// client sends is ignored.
func (h *hub) readLoop(client *wsClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()
	for {
		msg := backend.ChannelMessage{}
		if err := client.conn.ReadJSON(&msg); err != nil {
			return
		}
		h.mu.Lock()
		switch msg.Event {
		case backend.EventJoin:
			client.topics[msg.Topic] = true
		case backend.EventLeave:
			delete(client.topics, msg.Topic)
		}
		h.mu.Unlock()
	}
}

func (h *hub) writePump(client *wsClient) {
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := client.conn.WriteJSON(msg); err != nil {
			client.conn.Close()
			// Drain until unregister closes the channel, so broadcasters
			// never block on a dead client.
			for range client.send {
			}
			return
		}
	}
	client.conn.Close()
}

func (h *hub) broadcast(topic string, event string, payload any) {
	payloadB, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorf("Marshal websocket payload: %v", err)
		return
	}
	msg := &backend.ChannelMessage{
		Topic:   topic,
		Event:   event,
		Payload: payloadB,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.topics[topic] {
			continue
		}
		select {
		case client.send <- msg:
		default:
			// The client is too slow to keep up. Dropping the event is fine,
			// the editor reloads item state when it rejoins the topic.
			h.log.Warnf("Dropping %v event for slow websocket client", event)
		}
	}
}

func (h *hub) broadcastItemsUpdated(datasetID int64, items []*backend.Item) {
	h.broadcast(backend.DatasetTopic(datasetID), backend.EventItemsUpdated, &backend.ItemsUpdatedPayload{Items: items})
}

func (h *hub) broadcastItemsDeleted(datasetID int64, itemIDs []string) {
	h.broadcast(backend.DatasetTopic(datasetID), backend.EventItemsDeleted, &backend.ItemsDeletedPayload{ItemIDs: itemIDs})
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()
	for _, client := range clients {
		client.conn.Close()
	}
}
