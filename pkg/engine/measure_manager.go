package engine

import (
	"fmt"
	"sort"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
)

// MeasureRegion calibrates pixel distances to physical units for one slot,
// e.g. microscopy slides where a pixel maps to a known number of microns.
type MeasureRegion struct {
	Multiplier   float32 `json:"multiplier"`
	UnitX        string  `json:"unit_x"`
	UnitY        string  `json:"unit_y"`
	HighPriority bool    `json:"high_priority"`
}

// MeasureOverlay is the formatted physical size of one annotation, anchored
// at the top-left of its bounding box in canvas space.
type MeasureOverlay struct {
	AnnotationID string
	Label        string
	Anchor       geom.CanvasPoint
}

// MeasureManager derives physical-unit size labels for annotations, when the
// slot carries a measure region.
type MeasureManager struct {
	Log logs.Log

	OnMeasuresChanged events.Signal[struct{}]

	view     *View
	region   *MeasureRegion
	overlays map[string]MeasureOverlay
}

func NewMeasureManager(log logs.Log, view *View) *MeasureManager {
	return &MeasureManager{
		Log:      log,
		view:     view,
		overlays: map[string]MeasureOverlay{},
	}
}

// SetMeasureRegion installs (or clears, with nil) the slot's calibration and
// recomputes all overlays.
func (m *MeasureManager) SetMeasureRegion(region *MeasureRegion) {
	m.region = region
	m.Refresh()
}

func (m *MeasureManager) MeasureRegion() *MeasureRegion {
	return m.region
}

// Refresh recomputes measure overlays for the annotations on the current
// frame. Without a measure region there are no overlays.
func (m *MeasureManager) Refresh() {
	m.overlays = map[string]MeasureOverlay{}
	if m.region != nil {
		for _, a := range m.view.AnnotationManager.FrameAnnotations(m.view.CurrentFrameIndex) {
			m.updateOverlay(a)
		}
	}
	m.OnMeasuresChanged.Emit(struct{}{})
}

func (m *MeasureManager) updateOverlay(a *annotation.Annotation) {
	if !a.IsVisible() || a.Type == annotation.TypeTag {
		return
	}
	bbox, ok := a.BBox(m.view.CurrentFrameIndex, m.view.Registry)
	if !ok {
		return
	}
	w := bbox.Width * m.region.Multiplier
	h := bbox.Height * m.region.Multiplier
	label := fmt.Sprintf("%.2f%v x %.2f%v", w, m.region.UnitX, h, m.region.UnitY)
	anchor := m.view.Camera.ImageToCanvas(geom.ImagePoint{X: bbox.MinX(), Y: bbox.MinY()})
	m.overlays[a.ID] = MeasureOverlay{AnnotationID: a.ID, Label: label, Anchor: anchor}
}

// UpdateOverlayForAnnotation recomputes one annotation's measure after an
// edit.
func (m *MeasureManager) UpdateOverlayForAnnotation(a *annotation.Annotation) {
	if m.region == nil {
		return
	}
	delete(m.overlays, a.ID)
	m.updateOverlay(a)
	m.OnMeasuresChanged.Emit(struct{}{})
}

func (m *MeasureManager) RemoveOverlay(id string) {
	if _, exists := m.overlays[id]; !exists {
		return
	}
	delete(m.overlays, id)
	m.OnMeasuresChanged.Emit(struct{}{})
}

func (m *MeasureManager) Overlays() []MeasureOverlay {
	list := make([]MeasureOverlay, 0, len(m.overlays))
	for _, o := range m.overlays {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AnnotationID < list[j].AnnotationID })
	return list
}

func (m *MeasureManager) Cleanup() {
	m.overlays = map[string]MeasureOverlay{}
	m.OnMeasuresChanged.Clear()
}
