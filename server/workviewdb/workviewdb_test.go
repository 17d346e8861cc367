package workviewdb

import (
	"path/filepath"
	"testing"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/backend"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *WorkviewDB {
	db, err := NewWorkviewDB(logs.NewTestingLog(t), dbh.MakeSqliteConfig(filepath.Join(t.TempDir(), "workview.sqlite")))
	require.NoError(t, err)
	return db
}

func boxPayload(id string, z int) *annotation.Payload {
	return &annotation.Payload{
		ID:      id,
		ClassID: 1,
		Data: annotation.DataPayload{
			BoundingBox: &annotation.BoundingBoxPayload{X: 10, Y: 20, W: 30, H: 40},
		},
		ZIndex: &z,
	}
}

func makeItem(t *testing.T, db *WorkviewDB) (*backend.Item, int64) {
	dataset, err := db.CreateDataset("birds")
	require.NoError(t, err)
	item, err := db.CreateItem(dataset.ID, "frame-001", []backend.Slot{
		{SlotName: "0", FilePath: "frame-001.png", Width: 1920, Height: 1080, TotalFrames: 1},
	})
	require.NoError(t, err)
	return item, dataset.ID
}

func TestItemLifecycle(t *testing.T) {
	db := openTestDB(t)
	dataset, err := db.CreateDataset("birds")
	require.NoError(t, err)

	item, err := db.CreateItem(dataset.ID, "clip-1", []backend.Slot{
		{SlotName: "0", FilePath: "clip-1/frames", Width: 1920, Height: 1080, TotalFrames: 30, NativeFPS: 25},
		{SlotName: "1", FilePath: "clip-1/side.png", Width: 640, Height: 480, TotalFrames: 1},
	})
	require.NoError(t, err)
	require.NotEmpty(t, item.ID)
	require.Equal(t, ItemStatusNew, item.Status)
	require.Len(t, item.Slots, 2)
	require.Equal(t, float32(25), item.Slots[0].NativeFPS)

	items, err := db.ListItems(dataset.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, item.ID, items[0].ID)

	// Items of other datasets are not listed
	other, err := db.CreateDataset("planes")
	require.NoError(t, err)
	items, err = db.ListItems(other.ID)
	require.NoError(t, err)
	require.Len(t, items, 0)

	updated, err := db.SetItemStatus(item.ID, ItemStatusAnnotate)
	require.NoError(t, err)
	require.Equal(t, ItemStatusAnnotate, updated.Status)

	_, err = db.SetItemStatus("no-such-item", ItemStatusAnnotate)
	require.Error(t, err)

	deleted, err := db.DeleteItems([]string{item.ID, "no-such-item"})
	require.NoError(t, err)
	require.Equal(t, []string{item.ID}, deleted)

	_, err = db.GetItem(item.ID)
	require.Error(t, err)
}

func TestAnnotationCRUD(t *testing.T) {
	db := openTestDB(t)
	item, _ := makeItem(t, db)

	low := boxPayload("ann-low", 1)
	high := boxPayload("ann-high", 2)
	_, err := db.CreateAnnotation(item.ID, low)
	require.NoError(t, err)
	_, err = db.CreateAnnotation(item.ID, high)
	require.NoError(t, err)

	// Creating the same id again is a conflict
	_, err = db.CreateAnnotation(item.ID, boxPayload("ann-low", 3))
	require.Error(t, err)

	payloads, err := db.ItemAnnotations(item.ID)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	require.Equal(t, "ann-high", payloads[0].ID)
	require.Equal(t, "ann-low", payloads[1].ID)
	require.NotNil(t, payloads[1].Data.BoundingBox)
	require.Equal(t, float32(30), payloads[1].Data.BoundingBox.W)

	itemID, err := db.GetAnnotationItemID("ann-low")
	require.NoError(t, err)
	require.Equal(t, item.ID, itemID)

	moved := boxPayload("ann-low", 9)
	_, err = db.UpdateAnnotation(moved)
	require.NoError(t, err)
	payloads, err = db.ItemAnnotations(item.ID)
	require.NoError(t, err)
	require.Equal(t, "ann-low", payloads[0].ID)
	require.Equal(t, 9, *payloads[0].ZIndex)

	_, err = db.UpdateAnnotation(boxPayload("no-such-annotation", 1))
	require.Error(t, err)

	require.NoError(t, db.DeleteAnnotation("ann-low"))
	require.Error(t, db.DeleteAnnotation("ann-low"))
	payloads, err = db.ItemAnnotations(item.ID)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
}

func TestVideoAnnotationRoundTrip(t *testing.T) {
	db := openTestDB(t)
	item, _ := makeItem(t, db)

	z := 1
	video := &annotation.Payload{
		ID:      "ann-video",
		ClassID: 3,
		Data: annotation.DataPayload{
			Frames: map[string]*annotation.DataPayload{
				"5": {BoundingBox: &annotation.BoundingBoxPayload{X: 1, Y: 2, W: 3, H: 4}, Keyframe: true},
			},
			Segments:     []annotation.Segment{{5, 10}},
			Interpolated: true,
		},
		ZIndex: &z,
	}
	_, err := db.CreateAnnotation(item.ID, video)
	require.NoError(t, err)

	payloads, err := db.ItemAnnotations(item.ID)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	got := payloads[0]
	require.True(t, got.Data.IsVideo())
	require.True(t, got.Data.Frames["5"].Keyframe)
	require.Equal(t, []annotation.Segment{{5, 10}}, got.Data.Segments)

	// The duplicated type column is derived from the first keyframe
	row := Annotation{}
	require.NoError(t, db.DB.First(&row, "id = ?", "ann-video").Error)
	require.Equal(t, string(annotation.TypeBoundingBox), row.Type)
}

func TestCountAnnotations(t *testing.T) {
	db := openTestDB(t)
	item, datasetID := makeItem(t, db)

	count, err := db.CountAnnotations(datasetID)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	_, err = db.CreateAnnotation(item.ID, boxPayload("a1", 1))
	require.NoError(t, err)
	_, err = db.CreateAnnotation(item.ID, boxPayload("a2", 2))
	require.NoError(t, err)

	count, err = db.CountAnnotations(datasetID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// Deleting the item takes its annotations along
	_, err = db.DeleteItems([]string{item.ID})
	require.NoError(t, err)
	count, err = db.CountAnnotations(datasetID)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestVariables(t *testing.T) {
	db := openTestDB(t)

	_, exists, err := db.GetVariable("isImageSmoothing:png")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, db.SetVariable("isImageSmoothing:png", "false"))
	value, exists, err := db.GetVariable("isImageSmoothing:png")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "false", value)

	require.NoError(t, db.SetVariable("isImageSmoothing:png", "true"))
	value, _, err = db.GetVariable("isImageSmoothing:png")
	require.NoError(t, err)
	require.Equal(t, "true", value)
}
