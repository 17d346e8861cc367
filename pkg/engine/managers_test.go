package engine

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// memVars is an in-memory VariableStore.
type memVars struct {
	values map[string]string
}

func newMemVars() *memVars {
	return &memVars{values: map[string]string{}}
}

func (v *memVars) GetVariable(ctx context.Context, key string) (string, error) {
	return v.values[key], nil
}

func (v *memVars) SetVariable(ctx context.Context, key, value string) error {
	v.values[key] = value
	return nil
}

func writeFrameDir(t *testing.T, numFrames int) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "frames")
	require.NoError(t, os.Mkdir(dir, 0755))
	for i := 0; i < numFrames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 4, 3))
		f, err := os.Create(filepath.Join(dir, string(rune('a'+i))+".png"))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	return root
}

func TestFileManagerVideoFrames(t *testing.T) {
	root := writeFrameDir(t, 3)
	slot := &backend.Slot{SlotName: "0", FilePath: "frames", Width: 4, Height: 3, TotalFrames: 3}
	vars := newMemVars()

	fm, err := NewFileManager(logs.NewTestingLog(t), slot, root, vars)
	require.NoError(t, err)
	require.Equal(t, 3, fm.NumFrames())

	loaded := []int{}
	fm.OnFrameLoaded.Listen(func(i int) { loaded = append(loaded, i) })

	img, err := fm.LoadFrame(1)
	require.NoError(t, err)
	require.Equal(t, 4, img.Bounds().Dx())

	// Repeats are served from the cache and fire no further load events
	again, err := fm.LoadFrame(1)
	require.NoError(t, err)
	require.Equal(t, img, again)
	require.Equal(t, []int{1}, loaded)

	_, err = fm.LoadFrame(3)
	require.Error(t, err)
	_, err = fm.LoadFrame(-1)
	require.Error(t, err)
}

func TestFileManagerMissingFrameDir(t *testing.T) {
	slot := &backend.Slot{SlotName: "0", FilePath: "nowhere", Width: 4, Height: 3, TotalFrames: 3}
	_, err := NewFileManager(logs.NewTestingLog(t), slot, t.TempDir(), nil)
	require.Error(t, err)
}

func TestFileManagerSmoothingPreference(t *testing.T) {
	root := writeFrameDir(t, 1)
	slot := &backend.Slot{SlotName: "0", FilePath: "frames", Width: 4, Height: 3, TotalFrames: 3}
	vars := newMemVars()

	fm, err := NewFileManager(logs.NewTestingLog(t), slot, root, vars)
	require.NoError(t, err)
	require.True(t, fm.IsImageSmoothing())

	fm.SetImageSmoothing(false)
	require.False(t, fm.IsImageSmoothing())
	require.Equal(t, "false", vars.values["isImageSmoothing:png"])

	// A second manager for the same extension picks the stored value up
	fm2, err := NewFileManager(logs.NewTestingLog(t), slot, root, vars)
	require.NoError(t, err)
	require.False(t, fm2.IsImageSmoothing())
}

func TestOverlayManagerAnchors(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	om := v.OverlayManager
	om.ClassNames = map[int64]string{1: "car"}

	a := mustCreateBox(t, v, 1, geom.ImageRect{X1: 300, Y1: 300, X2: 600, Y2: 600})
	unnamed := mustCreateBox(t, v, 99, geom.ImageRect{X1: 0, Y1: 0, X2: 50, Y2: 50})

	om.Refresh()
	overlays := om.Overlays()
	require.Len(t, overlays, 1)
	require.Equal(t, a.ID, overlays[0].AnnotationID)
	require.Equal(t, "car", overlays[0].Label)

	// The anchor is the shape centroid in canvas space: scale 2/3, no offset
	require.InDelta(t, 300, overlays[0].Anchor.X, 0.01)
	require.InDelta(t, 300, overlays[0].Anchor.Y, 0.01)

	om.RemoveOverlay(a.ID)
	require.Empty(t, om.Overlays())
	_ = unnamed
}

func TestMeasureManagerLabels(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	mm := v.MeasureManager

	a := mustCreateBox(t, v, 1, geom.ImageRect{X1: 100, Y1: 100, X2: 300, Y2: 200})

	// Without a region there are no measure overlays
	mm.Refresh()
	require.Empty(t, mm.Overlays())

	mm.SetMeasureRegion(&MeasureRegion{Multiplier: 0.5, UnitX: "cm", UnitY: "cm"})
	overlays := mm.Overlays()
	require.Len(t, overlays, 1)
	require.Equal(t, a.ID, overlays[0].AnnotationID)
	require.Equal(t, "100.00cm x 50.00cm", overlays[0].Label)

	mm.SetMeasureRegion(nil)
	require.Empty(t, mm.Overlays())
}

func TestCommentThreads(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	cm := v.CommentManager

	thread := cm.CreateThread(geom.BBox{X: 100, Y: 100, Width: 40, Height: 40}, 7, "what is this?")
	require.Len(t, thread.Comments, 1)
	require.Equal(t, int64(7), thread.AuthorID)

	_, err := cm.AddComment(thread.ID, 8, "a bird, probably")
	require.NoError(t, err)
	got, ok := cm.Thread(thread.ID)
	require.True(t, ok)
	require.Len(t, got.Comments, 2)

	require.Same(t, thread, cm.FindTopThreadAt(geom.ImagePoint{X: 110, Y: 110}))
	require.Nil(t, cm.FindTopThreadAt(geom.ImagePoint{X: 500, Y: 500}))

	require.NoError(t, cm.MoveThread(thread.ID, geom.BBox{X: 500, Y: 500, Width: 40, Height: 40}))
	require.Same(t, thread, cm.FindTopThreadAt(geom.ImagePoint{X: 500, Y: 500}))

	require.NoError(t, cm.ResolveThread(thread.ID))
	require.Empty(t, cm.ThreadsForFrame(0))
	require.Nil(t, cm.FindTopThreadAt(geom.ImagePoint{X: 500, Y: 500}))

	_, err = cm.AddComment("missing", 7, "x")
	require.Error(t, err)
}

func TestItemManagerUpdatesAndDeletes(t *testing.T) {
	im := NewItemManager(logs.NewTestingLog(t), &noLock{})

	fired := 0
	im.OnItemsChanged.Listen(func([]*backend.Item) { fired++ })

	im.SetItems([]*backend.Item{{ID: "a"}, {ID: "b"}})
	require.Len(t, im.Items(), 2)

	// Updating an existing item keeps its slot; a new id appends
	im.ApplyUpdates([]*backend.Item{{ID: "a", Name: "renamed"}, {ID: "c"}})
	items := im.Items()
	require.Len(t, items, 3)
	require.Equal(t, "a", items[0].ID)
	require.Equal(t, "renamed", items[0].Name)
	require.Equal(t, "c", items[2].ID)

	im.ApplyDeletes([]string{"b", "nope"})
	items = im.Items()
	require.Len(t, items, 2)
	_, ok := im.Item("b")
	require.False(t, ok)

	require.Equal(t, 3, fired)
}

// noLock satisfies sync.Locker for tests that never contend.
type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}
