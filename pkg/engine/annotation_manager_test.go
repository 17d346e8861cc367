package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestView(t *testing.T, slot *backend.Slot, persister AnnotationPersister) (*View, *sync.Mutex) {
	log := logs.NewTestingLog(t)
	lock := &sync.Mutex{}
	v, err := NewView(log, lock, ViewConfig{
		Item:      &backend.Item{ID: "item-1"},
		Slot:      slot,
		Registry:  annotation.NewRegistry(),
		Renderers: NewRenderManager(log),
		Persister: persister,
		UserID:    7,
	})
	require.NoError(t, err)
	v.SetViewport(1280, 720)
	return v, lock
}

func imageSlot() *backend.Slot {
	return &backend.Slot{SlotName: "0", FilePath: "frame.png", Width: 1920, Height: 1080, TotalFrames: 1}
}

func videoSlot(frames int) *backend.Slot {
	return &backend.Slot{SlotName: "0", FilePath: "frames", Width: 1920, Height: 1080, TotalFrames: frames, NativeFPS: 25}
}

func mustCreateBox(t *testing.T, v *View, classID int64, rect geom.ImageRect) *annotation.Annotation {
	a, err := v.AnnotationManager.InitializeAnnotation(annotation.Params{
		Type:    annotation.TypeBoundingBox,
		ClassID: classID,
		Data:    annotation.NewBoundingBox(rect),
	})
	require.NoError(t, err)
	require.NoError(t, v.AnnotationManager.CreateAnnotation(a))
	return a
}

func withZIndex(a *annotation.Annotation, z int) *annotation.Annotation {
	sc := a.ShallowClone()
	sc.ZIndex = &z
	return sc
}

// fakePersister counts calls and fails on demand.
type fakePersister struct {
	mu         sync.Mutex
	createErr  error
	updateErr  error
	deleteErr  error
	creates    int
	updates    int
	deletes    int
	lastUpdate *annotation.Payload
}

func (f *fakePersister) CreateAnnotation(ctx context.Context, itemID string, p *annotation.Payload) (*annotation.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return p, f.createErr
}

func (f *fakePersister) UpdateAnnotation(ctx context.Context, p *annotation.Payload) (*annotation.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.lastUpdate = p
	return p, f.updateErr
}

func (f *fakePersister) DeleteAnnotation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func waitFor(t *testing.T, lock *sync.Mutex, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		lock.Lock()
		ok := cond()
		lock.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestZOrderTagsLast(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	am := v.AnnotationManager

	low := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})
	high := mustCreateBox(t, v, 1, geom.ImageRect{X1: 20, Y1: 20, X2: 30, Y2: 30})

	tag, err := am.InitializeAnnotation(annotation.Params{Type: annotation.TypeTag, ClassID: 2, Data: &annotation.Tag{}})
	require.NoError(t, err)
	require.Nil(t, tag.ZIndex)
	require.NoError(t, am.CreateAnnotation(tag))

	ids := am.AnnotationIDs()
	require.Equal(t, []string{high.ID, low.ID, tag.ID}, ids)
	require.Equal(t, 2, am.GetMaxZIndex())
}

func TestAnnotationsMemoizedIdentity(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	am := v.AnnotationManager
	mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})

	first := am.Annotations()
	second := am.Annotations()
	require.Len(t, second, 1)
	require.True(t, &first[0] == &second[0], "expected the identical backing array")

	mustCreateBox(t, v, 1, geom.ImageRect{X1: 5, Y1: 5, X2: 15, Y2: 15})
	third := am.Annotations()
	require.Len(t, third, 2)
}

func TestShiftZIndicesStaysContiguous(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	am := v.AnnotationManager

	a := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})  // z=1
	b := mustCreateBox(t, v, 1, geom.ImageRect{X1: 10, Y1: 0, X2: 20, Y2: 10}) // z=2
	c := mustCreateBox(t, v, 1, geom.ImageRect{X1: 20, Y1: 0, X2: 30, Y2: 10}) // z=3

	// Raise the bottom annotation to the top
	require.NoError(t, am.UpdateAnnotation(withZIndex(a, 3)))

	zOf := func(id string) int {
		ann, ok := am.GetAnnotation(id)
		require.True(t, ok)
		require.NotNil(t, ann.ZIndex)
		return *ann.ZIndex
	}
	require.Equal(t, 3, zOf(a.ID))
	require.Equal(t, 1, zOf(b.ID))
	require.Equal(t, 2, zOf(c.ID))

	// And push it back down
	moved, _ := am.GetAnnotation(a.ID)
	require.NoError(t, am.UpdateAnnotation(withZIndex(moved, 1)))
	require.Equal(t, 1, zOf(a.ID))
	require.Equal(t, 2, zOf(b.ID))
	require.Equal(t, 3, zOf(c.ID))

	seen := map[int]bool{}
	for _, ann := range am.Annotations() {
		require.False(t, seen[*ann.ZIndex])
		seen[*ann.ZIndex] = true
	}
	require.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seen)
}

func TestFrameAnnotationsRespectSegments(t *testing.T) {
	v, _ := newTestView(t, videoSlot(30), nil)
	am := v.AnnotationManager

	vid, err := annotation.NewFromParams(annotation.Params{
		Type:    annotation.TypeBoundingBox,
		ClassID: 1,
		ZIndex:  intRef(1),
		Video: &annotation.VideoData{
			Frames:       map[int]annotation.Data{5: annotation.NewBoundingBox(geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})},
			Segments:     []annotation.Segment{{5, 10}},
			Interpolated: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, am.CreateAnnotation(vid))

	require.Empty(t, am.FrameAnnotations(4))
	require.Len(t, am.FrameAnnotations(5), 1)
	require.Len(t, am.FrameAnnotations(9), 1)
	require.Empty(t, am.FrameAnnotations(10))
}

func TestSetAnnotationsSkipsMalformedPayloads(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	am := v.AnnotationManager

	good := &annotation.Payload{
		ID:      "good",
		ClassID: 1,
		ZIndex:  intRef(1),
		Data: annotation.DataPayload{
			BoundingBox: &annotation.BoundingBoxPayload{X: 0, Y: 0, W: 10, H: 10},
		},
	}
	bad := &annotation.Payload{ID: "bad", ClassID: 1, ZIndex: intRef(2)}

	am.SetAnnotations([]*annotation.Payload{bad, good})
	require.Equal(t, []string{"good"}, am.AnnotationIDs())
	require.True(t, v.MainLayer.Has("good"))
	require.Equal(t, PersistConfirmed, am.PersistState("good"))
}

func TestInitializeAnnotationAssignsZAndActors(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)

	first := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})
	require.Equal(t, 1, *first.ZIndex)
	require.Equal(t, []annotation.Actor{{Role: ActorRoleAnnotator, UserID: 7}}, first.Actors)

	second := mustCreateBox(t, v, 1, geom.ImageRect{X1: 20, Y1: 0, X2: 30, Y2: 10})
	require.Equal(t, 2, *second.ZIndex)
}

func TestInitializeAnnotationWrapsVideoData(t *testing.T) {
	v, _ := newTestView(t, videoSlot(30), nil)
	v.CurrentFrameIndex = 12

	a, err := v.AnnotationManager.InitializeAnnotation(annotation.Params{
		Type:    annotation.TypeBoundingBox,
		ClassID: 1,
		Data:    annotation.NewBoundingBox(geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10}),
	})
	require.NoError(t, err)
	require.True(t, a.IsVideoAnnotation())
	require.Equal(t, []annotation.Segment{{12, 13}}, a.Video().Segments)
	require.True(t, a.Video().Interpolated)
	require.Contains(t, a.Video().Frames, 12)
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	persister := &fakePersister{createErr: &backend.APIError{StatusCode: 402, Code: backend.CodeOutOfSubscribedStorage}}
	v, lock := newTestView(t, imageSlot(), persister)
	am := v.AnnotationManager

	errs := make(chan SaveError, 1)
	am.OnSaveError.Listen(func(e SaveError) { errs <- e })

	lock.Lock()
	a := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})
	require.Equal(t, PersistPending, am.PersistState(a.ID))
	lock.Unlock()

	waitFor(t, lock, func() bool {
		_, exists := am.GetAnnotation(a.ID)
		return !exists
	})
	lock.Lock()
	require.Equal(t, PersistReverted, am.PersistState(a.ID))
	require.False(t, v.MainLayer.Has(a.ID))
	lock.Unlock()

	saveErr := <-errs
	require.Equal(t, backend.SaveErrorStorage, saveErr.Kind)
}

func TestUpdateFailureKeepsLocalEdit(t *testing.T) {
	persister := &fakePersister{updateErr: fmt.Errorf("boom")}
	v, lock := newTestView(t, imageSlot(), persister)
	am := v.AnnotationManager

	errs := make(chan SaveError, 1)
	am.OnSaveError.Listen(func(e SaveError) { errs <- e })

	lock.Lock()
	a := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})
	mustCreateBox(t, v, 1, geom.ImageRect{X1: 20, Y1: 0, X2: 30, Y2: 10})
	require.NoError(t, am.UpdateAnnotation(withZIndex(a, 2)))
	lock.Unlock()

	saveErr := <-errs
	require.Equal(t, backend.SaveErrorGeneric, saveErr.Kind)

	// A failed update does not roll the local edit back
	lock.Lock()
	kept, exists := am.GetAnnotation(a.ID)
	require.True(t, exists)
	require.Equal(t, 2, *kept.ZIndex)
	lock.Unlock()
}

func TestDeleteRollsBackOnFailure(t *testing.T) {
	persister := &fakePersister{deleteErr: &backend.APIError{StatusCode: 409, Code: backend.CodeAlreadyInWorkflow}}
	v, lock := newTestView(t, imageSlot(), persister)
	am := v.AnnotationManager

	errs := make(chan SaveError, 1)
	am.OnSaveError.Listen(func(e SaveError) { errs <- e })

	lock.Lock()
	a := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})
	lock.Unlock()
	waitFor(t, lock, func() bool { return am.PersistState(a.ID) == PersistConfirmed })

	lock.Lock()
	require.NoError(t, am.DeleteAnnotation(a.ID))
	_, exists := am.GetAnnotation(a.ID)
	require.False(t, exists)
	lock.Unlock()

	waitFor(t, lock, func() bool {
		_, exists := am.GetAnnotation(a.ID)
		return exists
	})
	lock.Lock()
	require.Equal(t, PersistReverted, am.PersistState(a.ID))
	require.True(t, v.MainLayer.Has(a.ID))
	lock.Unlock()

	saveErr := <-errs
	require.Equal(t, backend.SaveErrorWorkflow, saveErr.Kind)
}

func TestUpdatePersistenceCoalesces(t *testing.T) {
	persister := &fakePersister{}
	v, lock := newTestView(t, imageSlot(), persister)
	am := v.AnnotationManager

	lock.Lock()
	a := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})
	mustCreateBox(t, v, 1, geom.ImageRect{X1: 20, Y1: 0, X2: 30, Y2: 10})
	mustCreateBox(t, v, 1, geom.ImageRect{X1: 40, Y1: 0, X2: 50, Y2: 10})
	lock.Unlock()

	// A burst of edits within the debounce window becomes one network call
	lock.Lock()
	require.NoError(t, am.UpdateAnnotation(withZIndex(a, 2)))
	moved, _ := am.GetAnnotation(a.ID)
	require.NoError(t, am.UpdateAnnotation(withZIndex(moved, 3)))
	lock.Unlock()

	waitFor(t, lock, func() bool { return am.PersistState(a.ID) == PersistConfirmed })

	persister.mu.Lock()
	defer persister.mu.Unlock()
	require.Equal(t, 1, persister.updates)
	require.Equal(t, 3, *persister.lastUpdate.ZIndex)
}

func TestUpdatePreservesSelection(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	am := v.AnnotationManager

	a := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})
	mustCreateBox(t, v, 1, geom.ImageRect{X1: 20, Y1: 0, X2: 30, Y2: 10})
	require.NoError(t, am.SelectAnnotation(a.ID))

	require.NoError(t, am.UpdateAnnotation(withZIndex(a, 2)))
	updated, _ := am.GetAnnotation(a.ID)
	require.True(t, updated.IsSelected())
	require.Same(t, updated, am.SelectedAnnotation())
}

func TestFindTopAnnotationAt(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	am := v.AnnotationManager

	bottom := mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 100, Y2: 100})
	top := mustCreateBox(t, v, 1, geom.ImageRect{X1: 50, Y1: 50, X2: 150, Y2: 150})

	hit := am.FindTopAnnotationAt(geom.ImagePoint{X: 75, Y: 75})
	require.NotNil(t, hit)
	require.Equal(t, top.ID, hit.ID)

	hit = am.FindTopAnnotationAt(geom.ImagePoint{X: 10, Y: 10})
	require.NotNil(t, hit)
	require.Equal(t, bottom.ID, hit.ID)

	require.Nil(t, am.FindTopAnnotationAt(geom.ImagePoint{X: 500, Y: 500}))
}

func intRef(v int) *int { return &v }
