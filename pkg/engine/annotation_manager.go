package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/pkg/debounce"
	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
)

// persistDebounceDelay coalesces rapid edits (e.g. dragging a vertex) into a
// single update call.
const persistDebounceDelay = 500 * time.Millisecond

// ActorRoleAnnotator is the role recorded on annotations created locally.
const ActorRoleAnnotator = "annotator"

// SaveError is a classified persistence failure, surfaced to the UI layer.
type SaveError struct {
	Kind backend.SaveErrorKind
	Err  error
}

// PersistState tracks where an annotation's optimistic local mutation stands
// against the backend.
type PersistState int

const (
	// PersistConfirmed: local and remote state agree.
	PersistConfirmed PersistState = iota
	// PersistPending: a local mutation has not been acknowledged yet.
	PersistPending
	// PersistReverted: the mutation failed and the local state was rolled back.
	PersistReverted
)

// AnnotationPersister is the slice of the backend client the manager needs.
type AnnotationPersister interface {
	CreateAnnotation(ctx context.Context, itemID string, p *annotation.Payload) (*annotation.Payload, error)
	UpdateAnnotation(ctx context.Context, p *annotation.Payload) (*annotation.Payload, error)
	DeleteAnnotation(ctx context.Context, id string) error
}

// AnnotationManager owns one view's annotations: the id→annotation map, the
// z-ordered id list, memoized derived lists, selection state, and optimistic
// persistence. Local state mutates immediately on every operation; network
// calls run in the background and roll back or surface errors on failure.
//
// All exported methods must be called under the editor lock. Background
// persistence goroutines re-acquire it before touching state.
type AnnotationManager struct {
	Log logs.Log

	// OnAnnotationsChanged fires after any change to the annotation set or
	// its ordering.
	OnAnnotationsChanged events.Signal[struct{}]
	// OnSaveError fires with classified persistence failures.
	OnSaveError events.Signal[SaveError]

	view *View

	annotations   map[string]*annotation.Annotation
	annotationIDs []string // sorted by z descending, tags last

	persistStates map[string]PersistState

	// version increments on every mutation of the map's contents, so memo
	// keys change even when the id list does not.
	version int

	memoAllKey   string
	memoAll      []*annotation.Annotation
	memoTagsKey  string
	memoTags     []*annotation.Annotation
	memoFrameKey string
	memoFrame    []*annotation.Annotation

	saveDebounce *debounce.Keyed[string, *annotation.Payload]

	// One in-flight update call per annotation. A payload arriving while a
	// call is in flight supersedes any previously parked payload.
	inflightMu sync.Mutex
	inflight   map[string]bool
	superseded map[string]*annotation.Payload
}

func NewAnnotationManager(log logs.Log, view *View) *AnnotationManager {
	m := &AnnotationManager{
		Log:           log,
		view:          view,
		annotations:   map[string]*annotation.Annotation{},
		persistStates: map[string]PersistState{},
		inflight:      map[string]bool{},
		superseded:    map[string]*annotation.Payload{},
	}
	m.saveDebounce = debounce.NewKeyed(persistDebounceDelay, m.sendUpdate)
	return m
}

// Cleanup cancels pending persistence work. In-flight calls finish but find
// their state guards failing.
func (m *AnnotationManager) Cleanup() {
	m.saveDebounce.StopAll()
}

func (m *AnnotationManager) resort() {
	ids := make([]string, 0, len(m.annotations))
	for id := range m.annotations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.annotations[ids[i]], m.annotations[ids[j]]
		// Tags have no z order and sort last
		if (a.ZIndex == nil) != (b.ZIndex == nil) {
			return b.ZIndex == nil
		}
		if a.ZIndex != nil && *a.ZIndex != *b.ZIndex {
			return *a.ZIndex > *b.ZIndex
		}
		return a.ID < b.ID
	})
	m.annotationIDs = ids
}

func (m *AnnotationManager) idsKey() string {
	return strconv.Itoa(m.version) + ":" + strings.Join(m.annotationIDs, "-")
}

// Annotations returns the z-ordered annotation list (topmost first, tags
// last). The result is memoized: without intervening mutation, repeated calls
// return the identical slice.
func (m *AnnotationManager) Annotations() []*annotation.Annotation {
	key := m.idsKey()
	if key != m.memoAllKey {
		list := make([]*annotation.Annotation, 0, len(m.annotationIDs))
		for _, id := range m.annotationIDs {
			list = append(list, m.annotations[id])
		}
		m.memoAll = list
		m.memoAllKey = key
	}
	return m.memoAll
}

// TagAnnotations returns only the tag annotations.
func (m *AnnotationManager) TagAnnotations() []*annotation.Annotation {
	key := m.idsKey()
	if key != m.memoTagsKey {
		var tags []*annotation.Annotation
		for _, a := range m.Annotations() {
			if a.Type == annotation.TypeTag {
				tags = append(tags, a)
			}
		}
		m.memoTags = tags
		m.memoTagsKey = key
	}
	return m.memoTags
}

// FrameAnnotations returns the annotations visible at the given video frame:
// image annotations always, video annotations only when a segment covers the
// frame.
func (m *AnnotationManager) FrameAnnotations(frameIndex int) []*annotation.Annotation {
	key := m.idsKey() + "_" + strconv.Itoa(frameIndex)
	if key != m.memoFrameKey {
		var list []*annotation.Annotation
		for _, a := range m.Annotations() {
			if annotationCoversFrame(a, frameIndex) {
				list = append(list, a)
			}
		}
		m.memoFrame = list
		m.memoFrameKey = key
	}
	return m.memoFrame
}

func annotationCoversFrame(a *annotation.Annotation, frameIndex int) bool {
	if a.IsImageAnnotation() {
		return true
	}
	for _, seg := range a.Video().Segments {
		if seg.Contains(frameIndex) {
			return true
		}
	}
	return false
}

func (m *AnnotationManager) GetAnnotation(id string) (*annotation.Annotation, bool) {
	a, ok := m.annotations[id]
	return a, ok
}

// AnnotationIDs returns a copy of the z-ordered id list.
func (m *AnnotationManager) AnnotationIDs() []string {
	ids := make([]string, len(m.annotationIDs))
	copy(ids, m.annotationIDs)
	return ids
}

// PersistState reports where an annotation's last optimistic mutation stands.
// Unknown ids report confirmed.
func (m *AnnotationManager) PersistState(id string) PersistState {
	return m.persistStates[id]
}

// SetAnnotations performs a full reconciliation from backend payloads.
// Bounding boxes are constructed first so types whose setup reads existing
// boxes find them in place. Malformed payloads are skipped independently.
func (m *AnnotationManager) SetAnnotations(payloads []*annotation.Payload) {
	sorted := make([]*annotation.Payload, len(payloads))
	copy(sorted, payloads)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, _ := sorted[i].Data.ShapeType()
		tj, _ := sorted[j].Data.ShapeType()
		return ti == annotation.TypeBoundingBox && tj != annotation.TypeBoundingBox
	})

	m.annotations = map[string]*annotation.Annotation{}
	m.persistStates = map[string]PersistState{}
	for _, p := range sorted {
		a, err := annotation.FromPayload(p, m.view.Registry)
		if err != nil {
			m.Log.Warnf("Skipping malformed annotation '%v': %v", p.ID, err)
			continue
		}
		m.annotations[a.ID] = a
	}
	m.resort()
	m.version++

	m.view.MainLayer.Clear()
	for _, id := range m.annotationIDs {
		m.view.MainLayer.Add(&annotationObject{view: m.view, a: m.annotations[id]})
	}
	m.OnAnnotationsChanged.Emit(struct{}{})
}

// GetMaxZIndex returns the highest z index in the view, or 0 when the view
// holds only tags or nothing.
func (m *AnnotationManager) GetMaxZIndex() int {
	maxZ := 0
	for _, a := range m.annotations {
		if a.ZIndex != nil && *a.ZIndex > maxZ {
			maxZ = *a.ZIndex
		}
	}
	return maxZ
}

// InitializeAnnotation fills in the fields a freshly drawn shape doesn't
// carry: the next z index (nil for tags), the video keyframe wrapper when the
// view shows video content, and the local user as annotator.
func (m *AnnotationManager) InitializeAnnotation(p annotation.Params) (*annotation.Annotation, error) {
	if p.Type != annotation.TypeTag && p.ZIndex == nil {
		z := m.GetMaxZIndex() + 1
		p.ZIndex = &z
	}
	if m.view.IsVideo() && p.Video == nil && p.Data != nil {
		p.Video = annotation.WrapVideo(p.Data, m.view.CurrentFrameIndex)
		p.Data = nil
	}
	if len(p.Actors) == 0 {
		p.Actors = []annotation.Actor{{Role: ActorRoleAnnotator, UserID: m.view.userID}}
	}
	return annotation.NewFromParams(p)
}

func (m *AnnotationManager) insertLocal(a *annotation.Annotation) {
	m.annotations[a.ID] = a
	m.resort()
	m.version++
	m.view.MainLayer.Add(&annotationObject{view: m.view, a: a})
}

func (m *AnnotationManager) removeLocal(id string) {
	delete(m.annotations, id)
	m.resort()
	m.version++
	m.view.MainLayer.Delete(id)
}

// CreateAnnotation adds the annotation locally and dispatches the create call.
// On failure the annotation is removed again and the error surfaced.
func (m *AnnotationManager) CreateAnnotation(a *annotation.Annotation) error {
	if _, exists := m.annotations[a.ID]; exists {
		return fmt.Errorf("annotation '%v' already exists", a.ID)
	}
	payload, err := a.Serialize(m.view.Registry)
	if err != nil {
		return fmt.Errorf("serializing annotation '%v': %w", a.ID, err)
	}
	m.insertLocal(a)
	m.persistStates[a.ID] = PersistPending
	m.OnAnnotationsChanged.Emit(struct{}{})

	if m.view.persister == nil {
		m.persistStates[a.ID] = PersistConfirmed
		return nil
	}
	go func() {
		_, err := m.view.persister.CreateAnnotation(context.Background(), m.view.itemID, payload)
		m.view.lock.Lock()
		defer m.view.lock.Unlock()
		if err != nil {
			if m.persistStates[a.ID] == PersistPending {
				m.removeLocal(a.ID)
				m.persistStates[a.ID] = PersistReverted
				m.OnAnnotationsChanged.Emit(struct{}{})
			}
			m.OnSaveError.Emit(SaveError{Kind: backend.ClassifySaveError(err), Err: err})
			return
		}
		m.persistStates[a.ID] = PersistConfirmed
	}()
	return nil
}

// UpdateAnnotation replaces an annotation with an edited copy. Interaction
// state carries over from the old instance, z indices of other annotations
// shift to stay contiguous, and the update call is debounced.
func (m *AnnotationManager) UpdateAnnotation(updated *annotation.Annotation) error {
	old, exists := m.annotations[updated.ID]
	if !exists {
		return fmt.Errorf("can't get annotation '%v'", updated.ID)
	}

	if old.IsSelected() {
		updated.Select()
	}
	if old.IsHighlighted() {
		updated.Highlight()
	}
	if old.IsVisible() {
		updated.Show()
	} else {
		updated.Hide()
	}
	m.carryVertexState(old, updated)

	if updated.ZIndex != nil && old.ZIndex != nil && *updated.ZIndex != *old.ZIndex {
		m.shiftZIndices(updated.ID, *updated.ZIndex, *old.ZIndex)
	}

	m.annotations[updated.ID] = updated
	m.resort()
	m.version++
	m.view.MainLayer.Add(&annotationObject{view: m.view, a: updated})
	m.view.MainLayer.Update(updated.ID)
	m.OnAnnotationsChanged.Emit(struct{}{})

	return m.persistUpdate(updated)
}

// carryVertexState copies per-vertex selection flags onto the edited copy, so
// dragging a vertex doesn't drop its selection.
func (m *AnnotationManager) carryVertexState(old, updated *annotation.Annotation) {
	cap, err := m.view.Registry.Get(old.Type)
	if err != nil || cap.Vertices == nil {
		return
	}
	frame := m.view.CurrentFrameIndex
	oldData := old.DataForFrame(frame, m.view.Registry)
	newData := updated.DataForFrame(frame, m.view.Registry)
	if oldData == nil || newData == nil {
		return
	}
	oldVerts := cap.Vertices(oldData)
	newVerts := cap.Vertices(newData)
	for i, v := range oldVerts {
		if i >= len(newVerts) {
			break
		}
		newVerts[i].IsSelected = v.IsSelected
		newVerts[i].IsHighlighted = v.IsHighlighted
	}
}

// shiftZIndices keeps non-nil z indices distinct and contiguous after one
// annotation moves from oldZ to newZ: everything between the two bounds
// shifts by one toward the vacated slot.
func (m *AnnotationManager) shiftZIndices(selfID string, newZ, oldZ int) {
	for id, o := range m.annotations {
		if id == selfID || o.ZIndex == nil {
			continue
		}
		if newZ > oldZ && *o.ZIndex <= newZ && *o.ZIndex > oldZ {
			*o.ZIndex--
		} else if newZ < oldZ && *o.ZIndex < oldZ && *o.ZIndex >= newZ {
			*o.ZIndex++
		}
	}
}

func (m *AnnotationManager) persistUpdate(a *annotation.Annotation) error {
	payload, err := a.Serialize(m.view.Registry)
	if err != nil {
		return fmt.Errorf("serializing annotation '%v': %w", a.ID, err)
	}
	if m.view.persister == nil {
		return nil
	}
	m.persistStates[a.ID] = PersistPending
	m.saveDebounce.Call(a.ID, payload)
	return nil
}

// sendUpdate runs on the debounce timer goroutine. At most one update call is
// in flight per annotation; a payload arriving meanwhile replaces any parked
// one and is sent when the current call returns.
func (m *AnnotationManager) sendUpdate(id string, payload *annotation.Payload) {
	m.inflightMu.Lock()
	if m.inflight[id] {
		m.superseded[id] = payload
		m.inflightMu.Unlock()
		return
	}
	m.inflight[id] = true
	m.inflightMu.Unlock()

	for {
		_, err := m.view.persister.UpdateAnnotation(context.Background(), payload)
		m.view.lock.Lock()
		if err != nil {
			// A failed update keeps the local edit. The forced repaint gives
			// immediate feedback; the next full reconciliation corrects drift.
			m.OnSaveError.Emit(SaveError{Kind: backend.ClassifySaveError(err), Err: err})
			m.view.MainLayer.Changed()
		} else if m.persistStates[id] == PersistPending {
			m.persistStates[id] = PersistConfirmed
		}
		m.view.lock.Unlock()

		m.inflightMu.Lock()
		next, ok := m.superseded[id]
		if !ok {
			delete(m.inflight, id)
			m.inflightMu.Unlock()
			return
		}
		delete(m.superseded, id)
		m.inflightMu.Unlock()
		payload = next
	}
}

// DeleteAnnotation removes the annotation locally and dispatches the delete
// call. On failure the annotation is restored.
func (m *AnnotationManager) DeleteAnnotation(id string) error {
	a, exists := m.annotations[id]
	if !exists {
		return fmt.Errorf("can't get annotation '%v'", id)
	}
	m.saveDebounce.Cancel(id)
	m.removeLocal(id)
	m.persistStates[id] = PersistPending
	m.OnAnnotationsChanged.Emit(struct{}{})

	if m.view.persister == nil {
		m.persistStates[id] = PersistConfirmed
		return nil
	}
	go func() {
		err := m.view.persister.DeleteAnnotation(context.Background(), id)
		m.view.lock.Lock()
		defer m.view.lock.Unlock()
		if err != nil {
			if _, readded := m.annotations[id]; !readded {
				m.insertLocal(a)
				m.OnAnnotationsChanged.Emit(struct{}{})
			}
			m.persistStates[id] = PersistReverted
			m.OnSaveError.Emit(SaveError{Kind: backend.ClassifySaveError(err), Err: err})
			return
		}
		m.persistStates[id] = PersistConfirmed
	}()
	return nil
}

// FindTopAnnotationAt returns the topmost annotation whose shape contains the
// image-space point, or nil.
func (m *AnnotationManager) FindTopAnnotationAt(p geom.ImagePoint) *annotation.Annotation {
	id, ok := m.view.MainLayer.HitItemRegion(p)
	if !ok {
		return nil
	}
	return m.annotations[id]
}

// SelectedAnnotation returns the currently selected annotation, or nil.
func (m *AnnotationManager) SelectedAnnotation() *annotation.Annotation {
	for _, a := range m.Annotations() {
		if a.IsSelected() {
			return a
		}
	}
	return nil
}

// SelectAnnotation selects one annotation, deselecting all others, and moves
// it onto the layer's active rendering path so edits repaint immediately.
func (m *AnnotationManager) SelectAnnotation(id string) error {
	a, exists := m.annotations[id]
	if !exists {
		return fmt.Errorf("can't get annotation '%v'", id)
	}
	m.DeselectAll()
	a.Select()
	m.view.MainLayer.Activate(id)
	m.view.MainLayer.Changed()
	return nil
}

func (m *AnnotationManager) DeselectAll() {
	for _, a := range m.Annotations() {
		if a.IsSelected() {
			a.Deselect(m.view.Registry)
			m.view.MainLayer.Deactivate(a.ID)
		}
	}
	m.view.MainLayer.Changed()
}

func (m *AnnotationManager) HighlightAnnotation(id string) error {
	a, exists := m.annotations[id]
	if !exists {
		return fmt.Errorf("can't get annotation '%v'", id)
	}
	m.UnhighlightAll()
	a.Highlight()
	m.view.MainLayer.Changed()
	return nil
}

func (m *AnnotationManager) UnhighlightAll() {
	for _, a := range m.Annotations() {
		if a.IsHighlighted() {
			a.Unhighlight()
		}
	}
	m.view.MainLayer.Changed()
}
