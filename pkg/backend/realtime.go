package backend

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annolab/workview/pkg/events"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
)

// Realtime channel events.
const (
	EventJoin         = "join"
	EventLeave        = "leave"
	EventItemsUpdated = "items_updated"
	EventItemsDeleted = "items_deleted"
)

// DatasetTopic is the channel topic carrying item updates of one dataset.
func DatasetTopic(datasetID int64) string {
	return fmt.Sprintf("dataset_v2:%v", datasetID)
}

// ChannelMessage is one frame on the realtime socket.
type ChannelMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ItemsUpdatedPayload carries the changed items of a dataset.
type ItemsUpdatedPayload struct {
	Items []*Item `json:"items"`
}

// ItemsDeletedPayload carries ids of removed items.
type ItemsDeletedPayload struct {
	ItemIDs []string `json:"item_ids"`
}

// Realtime maintains one websocket to the service and a subscription to the
// currently selected dataset's topic. Items from other datasets are dropped
// before the update signal fires.
type Realtime struct {
	Log logs.Log

	// OnItemsUpdated fires with updates already filtered to the joined
	// dataset. OnItemsDeleted fires with removed item ids.
	OnItemsUpdated events.Signal[[]*Item]
	OnItemsDeleted events.Signal[[]string]

	conn     *websocket.Conn
	writeMu  sync.Mutex
	mustStop atomic.Bool
	stopped  chan struct{}

	mu        sync.Mutex
	datasetID int64 // 0 when no dataset is joined
}

// DialRealtime connects the realtime socket and starts the read loop.
func DialRealtime(log logs.Log, url string) (*Realtime, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime socket: %w", err)
	}
	r := &Realtime{
		Log:     log,
		conn:    conn,
		stopped: make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

// JoinDataset switches the subscription to a dataset. The old topic is left
// before the new one is joined, so a burst of events during the switch can
// never arrive under the stale topic.
func (r *Realtime) JoinDataset(datasetID int64) error {
	r.mu.Lock()
	old := r.datasetID
	r.datasetID = datasetID
	r.mu.Unlock()

	if old == datasetID {
		return nil
	}
	if old != 0 {
		if err := r.send(ChannelMessage{Topic: DatasetTopic(old), Event: EventLeave}); err != nil {
			return err
		}
	}
	if datasetID != 0 {
		if err := r.send(ChannelMessage{Topic: DatasetTopic(datasetID), Event: EventJoin}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Realtime) send(msg ChannelMessage) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteJSON(msg)
}

func (r *Realtime) readLoop() {
	defer close(r.stopped)
	for {
		var msg ChannelMessage
		if err := r.conn.ReadJSON(&msg); err != nil {
			if !r.mustStop.Load() {
				r.Log.Warnf("Realtime socket closed: %v", err)
			}
			return
		}
		r.handle(&msg)
	}
}

func (r *Realtime) handle(msg *ChannelMessage) {
	r.mu.Lock()
	datasetID := r.datasetID
	r.mu.Unlock()

	if datasetID == 0 || msg.Topic != DatasetTopic(datasetID) {
		return
	}

	switch msg.Event {
	case EventItemsUpdated:
		var payload ItemsUpdatedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			r.Log.Warnf("Bad items_updated payload: %v", err)
			return
		}
		kept := payload.Items[:0]
		for _, item := range payload.Items {
			if item.DatasetID == datasetID {
				kept = append(kept, item)
			}
		}
		if len(kept) > 0 {
			r.OnItemsUpdated.Emit(kept)
		}
	case EventItemsDeleted:
		var payload ItemsDeletedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			r.Log.Warnf("Bad items_deleted payload: %v", err)
			return
		}
		if len(payload.ItemIDs) > 0 {
			r.OnItemsDeleted.Emit(payload.ItemIDs)
		}
	}
}

// Close tears the socket down and waits for the read loop to exit.
func (r *Realtime) Close() {
	r.mustStop.Store(true)
	r.conn.Close()
	<-r.stopped
}
