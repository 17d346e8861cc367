package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestClassifySaveError(t *testing.T) {
	require.Equal(t, SaveErrorStorage, ClassifySaveError(&APIError{StatusCode: 402, Code: CodeOutOfSubscribedStorage}))
	require.Equal(t, SaveErrorWorkflow, ClassifySaveError(&APIError{StatusCode: 409, Code: CodeAlreadyInWorkflow}))
	require.Equal(t, SaveErrorValidation, ClassifySaveError(&APIError{StatusCode: 422}))
	require.Equal(t, SaveErrorGeneric, ClassifySaveError(&APIError{StatusCode: 500}))
	require.Equal(t, SaveErrorGeneric, ClassifySaveError(context.DeadlineExceeded))
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(402)
		w.Write([]byte(`{"errors":{"code":"OUT_OF_SUBSCRIBED_STORAGE","message":"storage quota reached"}}`))
	}))
	defer srv.Close()

	c := NewClient(logs.NewTestingLog(t), srv.URL)
	_, err := c.CreateAnnotation(context.Background(), "item-1", &annotation.Payload{ID: "a"})
	require.Error(t, err)
	require.Equal(t, SaveErrorStorage, ClassifySaveError(err))
	require.Contains(t, err.Error(), "storage quota reached")
}

func TestClientAnnotationRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && strings.HasSuffix(r.URL.Path, "/annotations"):
			var p annotation.Payload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			json.NewEncoder(w).Encode(&p)
		case r.Method == "DELETE":
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(logs.NewTestingLog(t), srv.URL)
	z := 3
	stored, err := c.CreateAnnotation(context.Background(), "item-1", &annotation.Payload{ID: "ann-9", ZIndex: &z})
	require.NoError(t, err)
	require.Equal(t, "ann-9", stored.ID)
	require.Equal(t, 3, *stored.ZIndex)

	require.NoError(t, c.DeleteAnnotation(context.Background(), "ann-9"))
}

func TestGetVariableMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(logs.NewTestingLog(t), srv.URL)
	val, err := c.GetVariable(context.Background(), "isImageSmoothing:png")
	require.NoError(t, err)
	require.Equal(t, "", val)
}

func TestRealtimeFiltersAndSwitchesTopics(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan ChannelMessage, 16)
	var serverConn *websocket.Conn
	connReady := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConn = conn
		close(connReady)
		for {
			var msg ChannelMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	}))
	defer srv.Close()

	rt, err := DialRealtime(logs.NewTestingLog(t), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer rt.Close()

	updates := make(chan []*Item, 4)
	rt.OnItemsUpdated.Listen(func(items []*Item) { updates <- items })

	require.NoError(t, rt.JoinDataset(7))
	<-connReady
	join := <-received
	require.Equal(t, EventJoin, join.Event)
	require.Equal(t, "dataset_v2:7", join.Topic)

	// Switching datasets leaves the old topic before joining the new one.
	require.NoError(t, rt.JoinDataset(9))
	leave := <-received
	require.Equal(t, EventLeave, leave.Event)
	require.Equal(t, "dataset_v2:7", leave.Topic)
	join = <-received
	require.Equal(t, EventJoin, join.Event)
	require.Equal(t, "dataset_v2:9", join.Topic)

	// Updates on a stale topic are dropped; mixed-dataset payloads are
	// filtered to the joined dataset.
	stale, _ := json.Marshal(ItemsUpdatedPayload{Items: []*Item{{ID: "old", DatasetID: 7}}})
	require.NoError(t, serverConn.WriteJSON(ChannelMessage{Topic: "dataset_v2:7", Event: EventItemsUpdated, Payload: stale}))
	mixed, _ := json.Marshal(ItemsUpdatedPayload{Items: []*Item{
		{ID: "keep", DatasetID: 9},
		{ID: "drop", DatasetID: 7},
	}})
	require.NoError(t, serverConn.WriteJSON(ChannelMessage{Topic: "dataset_v2:9", Event: EventItemsUpdated, Payload: mixed}))

	select {
	case items := <-updates:
		require.Len(t, items, 1)
		require.Equal(t, "keep", items[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for filtered items_updated")
	}
}
