package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/backend"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, maxAnnotations int64) (*Server, *httptest.Server) {
	tmp := t.TempDir()
	cfg := Config{
		DB:                       dbh.MakeSqliteConfig(filepath.Join(tmp, "workview.sqlite")),
		MediaRoot:                tmp,
		MaxAnnotationsPerDataset: maxAnnotations,
	}
	cfgB, err := json.Marshal(&cfg)
	require.NoError(t, err)
	cfgPath := filepath.Join(tmp, "workview.json")
	require.NoError(t, os.WriteFile(cfgPath, cfgB, 0644))

	s, err := NewServer(cfgPath)
	require.NoError(t, err)
	ts := httptest.NewServer(s.httpRouter)
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		bodyB, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(bodyB)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func makeTestItem(t *testing.T, baseURL string) (*backend.Item, int64) {
	t.Helper()
	datasetID := int64(0)
	resp := doJSON(t, "POST", baseURL+"/api/datasets", map[string]string{"name": "birds"}, &datasetID)
	require.Equal(t, 200, resp.StatusCode)

	item := backend.Item{}
	resp = doJSON(t, "POST", fmt.Sprintf("%v/api/datasets/%v/items", baseURL, datasetID), map[string]any{
		"name": "frame-001",
		"slots": []backend.Slot{
			{SlotName: "0", FilePath: "frame-001.png", Width: 1920, Height: 1080, TotalFrames: 1},
		},
	}, &item)
	require.Equal(t, 200, resp.StatusCode)
	return &item, datasetID
}

func TestAnnotationAPIRoundTrip(t *testing.T) {
	_, ts := newTestServer(t, 0)
	item, datasetID := makeTestItem(t, ts.URL)
	client := backend.NewClient(logs.NewTestingLog(t), ts.URL)
	ctx := context.Background()

	items, err := client.ListItems(ctx, datasetID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, item.ID, items[0].ID)

	z := 1
	payload := &annotation.Payload{
		ID:      "ann-1",
		ClassID: 2,
		Data: annotation.DataPayload{
			BoundingBox: &annotation.BoundingBoxPayload{X: 10, Y: 20, W: 30, H: 40},
		},
		ZIndex: &z,
	}
	stored, err := client.CreateAnnotation(ctx, item.ID, payload)
	require.NoError(t, err)
	require.Equal(t, "ann-1", stored.ID)

	loaded, err := client.LoadAnnotations(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, int64(2), loaded[0].ClassID)

	z2 := 5
	payload.ZIndex = &z2
	_, err = client.UpdateAnnotation(ctx, payload)
	require.NoError(t, err)
	loaded, err = client.LoadAnnotations(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 5, *loaded[0].ZIndex)

	require.NoError(t, client.DeleteAnnotation(ctx, "ann-1"))
	loaded, err = client.LoadAnnotations(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 0)

	// Annotations of a missing item are a 404, not an empty list
	_, err = client.LoadAnnotations(ctx, "no-such-item")
	require.Error(t, err)
}

func TestVariablesAPI(t *testing.T) {
	_, ts := newTestServer(t, 0)
	client := backend.NewClient(logs.NewTestingLog(t), ts.URL)
	ctx := context.Background()

	value, err := client.GetVariable(ctx, "isImageSmoothing:png")
	require.NoError(t, err)
	require.Equal(t, "", value)

	require.NoError(t, client.SetVariable(ctx, "isImageSmoothing:png", "false"))
	value, err = client.GetVariable(ctx, "isImageSmoothing:png")
	require.NoError(t, err)
	require.Equal(t, "false", value)
}

func TestQuotaReturnsStorageError(t *testing.T) {
	_, ts := newTestServer(t, 1)
	item, _ := makeTestItem(t, ts.URL)
	client := backend.NewClient(logs.NewTestingLog(t), ts.URL)
	ctx := context.Background()

	z := 1
	first := &annotation.Payload{
		ID: "ann-1", ClassID: 1,
		Data:   annotation.DataPayload{BoundingBox: &annotation.BoundingBoxPayload{W: 1, H: 1}},
		ZIndex: &z,
	}
	_, err := client.CreateAnnotation(ctx, item.ID, first)
	require.NoError(t, err)

	second := &annotation.Payload{
		ID: "ann-2", ClassID: 1,
		Data:   annotation.DataPayload{BoundingBox: &annotation.BoundingBoxPayload{W: 1, H: 1}},
		ZIndex: &z,
	}
	_, err = client.CreateAnnotation(ctx, item.ID, second)
	require.Error(t, err)
	require.Equal(t, backend.SaveErrorStorage, backend.ClassifySaveError(err))
}

func TestProcessingItemRejectsEdits(t *testing.T) {
	_, ts := newTestServer(t, 0)
	item, _ := makeTestItem(t, ts.URL)
	client := backend.NewClient(logs.NewTestingLog(t), ts.URL)
	ctx := context.Background()

	resp := doJSON(t, "PUT", ts.URL+"/api/items/"+item.ID+"/status", map[string]string{"status": "processing"}, nil)
	require.Equal(t, 200, resp.StatusCode)

	z := 1
	payload := &annotation.Payload{
		ID: "ann-1", ClassID: 1,
		Data:   annotation.DataPayload{BoundingBox: &annotation.BoundingBoxPayload{W: 1, H: 1}},
		ZIndex: &z,
	}
	_, err := client.CreateAnnotation(ctx, item.ID, payload)
	require.Error(t, err)
	require.Equal(t, backend.SaveErrorWorkflow, backend.ClassifySaveError(err))
}

func TestRealtimeItemEvents(t *testing.T) {
	s, ts := newTestServer(t, 0)
	_, datasetID := makeTestItem(t, ts.URL)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	rt, err := backend.DialRealtime(logs.NewTestingLog(t), wsURL)
	require.NoError(t, err)
	defer rt.Close()

	updated := make(chan []*backend.Item, 4)
	deleted := make(chan []string, 4)
	rt.OnItemsUpdated.Listen(func(items []*backend.Item) { updated <- items })
	rt.OnItemsDeleted.Listen(func(ids []string) { deleted <- ids })
	require.NoError(t, rt.JoinDataset(datasetID))

	// Wait for the hub to process the join before triggering events
	topic := backend.DatasetTopic(datasetID)
	require.Eventually(t, func() bool {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		for client := range s.hub.clients {
			if client.topics[topic] {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	item := backend.Item{}
	resp := doJSON(t, "POST", fmt.Sprintf("%v/api/datasets/%v/items", ts.URL, datasetID), map[string]any{
		"name": "frame-002",
		"slots": []backend.Slot{
			{SlotName: "0", FilePath: "frame-002.png", Width: 64, Height: 64, TotalFrames: 1},
		},
	}, &item)
	require.Equal(t, 200, resp.StatusCode)

	select {
	case items := <-updated:
		require.Len(t, items, 1)
		require.Equal(t, item.ID, items[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("No items_updated event arrived")
	}

	resp = doJSON(t, "DELETE", fmt.Sprintf("%v/api/datasets/%v/items", ts.URL, datasetID), map[string]any{"item_ids": []string{item.ID}}, nil)
	require.Equal(t, 200, resp.StatusCode)

	select {
	case ids := <-deleted:
		require.Equal(t, []string{item.ID}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("No items_deleted event arrived")
	}
}
