package engine

import (
	"sort"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
)

// Overlay is a floating label anchored to an annotation: class name, sub
// annotation text, measures. Anchors live in canvas space so the UI layer can
// place them without knowing about the camera.
type Overlay struct {
	AnnotationID string
	Label        string
	Anchor       geom.CanvasPoint
}

// OverlayManager keeps one overlay per visible annotation, re-anchored
// whenever the camera or the annotation set changes.
type OverlayManager struct {
	Log logs.Log

	// OnOverlaysChanged fires after Refresh recomputes the overlay set.
	OnOverlaysChanged events.Signal[struct{}]

	view *View

	// ClassNames resolves class ids to display labels. Unknown ids fall back
	// to the empty label and get no overlay.
	ClassNames map[int64]string

	overlays map[string]Overlay
}

func NewOverlayManager(log logs.Log, view *View) *OverlayManager {
	return &OverlayManager{
		Log:        log,
		view:       view,
		ClassNames: map[int64]string{},
		overlays:   map[string]Overlay{},
	}
}

// Refresh recomputes every overlay from the current annotation set, frame and
// camera.
func (m *OverlayManager) Refresh() {
	m.overlays = map[string]Overlay{}
	for _, a := range m.view.AnnotationManager.FrameAnnotations(m.view.CurrentFrameIndex) {
		m.updateOverlay(a)
	}
	m.OnOverlaysChanged.Emit(struct{}{})
}

func (m *OverlayManager) updateOverlay(a *annotation.Annotation) {
	if !a.IsVisible() || a.Type == annotation.TypeTag {
		return
	}
	label := m.ClassNames[a.ClassID]
	if label == "" {
		return
	}
	centroid, ok := a.Centroid(m.view.CurrentFrameIndex, m.view.Registry)
	if !ok {
		return
	}
	m.overlays[a.ID] = Overlay{
		AnnotationID: a.ID,
		Label:        label,
		Anchor:       m.view.Camera.ImageToCanvas(centroid),
	}
}

// UpdateOverlay re-anchors a single annotation's overlay after an edit.
func (m *OverlayManager) UpdateOverlay(a *annotation.Annotation) {
	delete(m.overlays, a.ID)
	m.updateOverlay(a)
	m.OnOverlaysChanged.Emit(struct{}{})
}

func (m *OverlayManager) RemoveOverlay(id string) {
	if _, exists := m.overlays[id]; !exists {
		return
	}
	delete(m.overlays, id)
	m.OnOverlaysChanged.Emit(struct{}{})
}

// Overlays returns the current overlays, ordered by annotation id for
// deterministic iteration.
func (m *OverlayManager) Overlays() []Overlay {
	list := make([]Overlay, 0, len(m.overlays))
	for _, o := range m.overlays {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AnnotationID < list[j].AnnotationID })
	return list
}

func (m *OverlayManager) Cleanup() {
	m.overlays = map[string]Overlay{}
	m.OnOverlaysChanged.Clear()
}
