package render

import (
	"github.com/cyclopcam/logs"

	"github.com/annolab/workview/pkg/camera"
	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
)

// Layer is a rendering surface holding a pool of objects and knowing how to
// redraw them. Render is idempotent: it does nothing unless the layer has been
// marked changed (or, for optimised layers, the camera moved).
//
// Layers are not internally synchronized; the editor serializes access the
// same way the browser main thread did.
type Layer interface {
	Add(objects ...Object)
	Delete(id string)
	// Update refreshes an object's spatial-index entry after its bounds changed.
	Update(id string)
	Has(id string) bool
	GetItem(id string) (Object, bool)
	GetAll() []Object

	Render()
	// Changed marks the layer dirty so the next Render repaints.
	Changed()
	Clear()
	Destroy()

	// Activate moves an object onto the always-fresh interaction path.
	Activate(id string)
	Deactivate(id string)

	// HitItemRegion returns the topmost object at p, if any.
	HitItemRegion(p geom.ImagePoint) (string, bool)

	// Canvas is the composited output surface.
	Canvas() *Surface

	OnBeforeRender() *events.Signal[*Surface]
	OnRender() *events.Signal[*Surface]
}

// BaseLayer is the plain implementation: one surface, full repaint when dirty.
// The annotation layer uses OptimisedLayer instead; BaseLayer serves overlays
// and other small pools.
type BaseLayer struct {
	log logs.Log
	cam *camera.Camera

	pool       map[string]Object
	order      []string
	index      *spatialIndex
	hasChanges bool

	main *Surface

	beforeRender events.Signal[*Surface]
	afterRender  events.Signal[*Surface]

	camWidthH  events.Handle
	camHeightH events.Handle
}

func NewBaseLayer(log logs.Log, cam *camera.Camera) *BaseLayer {
	l := &BaseLayer{
		log:   log,
		cam:   cam,
		pool:  map[string]Object{},
		index: newSpatialIndex(),
		main:  NewSurface(int(cam.Width), int(cam.Height)),
	}
	l.camWidthH = cam.OnWidthChanged.Listen(func(float32) { l.resize() })
	l.camHeightH = cam.OnHeightChanged.Listen(func(float32) { l.resize() })
	return l
}

func (l *BaseLayer) resize() {
	l.main = NewSurface(int(l.cam.Width), int(l.cam.Height))
	l.hasChanges = true
}

func (l *BaseLayer) Add(objects ...Object) {
	l.hasChanges = true
	for _, o := range objects {
		if _, exists := l.pool[o.ID()]; !exists {
			l.order = append(l.order, o.ID())
		}
		l.pool[o.ID()] = o
		if bbox, ok := objectBBox(o); ok {
			l.index.set(o.ID(), bbox)
		}
	}
}

func (l *BaseLayer) Delete(id string) {
	if _, exists := l.pool[id]; !exists {
		return
	}
	delete(l.pool, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.index.remove(id)
	l.hasChanges = true
}

func (l *BaseLayer) Update(id string) {
	o, exists := l.pool[id]
	if !exists {
		l.log.Warnf("Layer update for unknown item %v", id)
		return
	}
	if bbox, ok := objectBBox(o); ok {
		l.index.set(id, bbox)
	} else {
		l.index.remove(id)
	}
	l.hasChanges = true
}

func (l *BaseLayer) Has(id string) bool {
	_, exists := l.pool[id]
	return exists
}

func (l *BaseLayer) GetItem(id string) (Object, bool) {
	o, exists := l.pool[id]
	return o, exists
}

func (l *BaseLayer) GetAll() []Object {
	all := make([]Object, 0, len(l.order))
	for _, id := range l.order {
		all = append(all, l.pool[id])
	}
	return all
}

func (l *BaseLayer) Changed() {
	l.hasChanges = true
}

func (l *BaseLayer) Render() {
	if !l.hasChanges {
		return
	}
	l.hasChanges = false
	l.beforeRender.Emit(l.main)

	l.main.Clear()
	dc := l.main.DC
	dc.Push()
	applyCamera(dc, l.cam)
	for _, id := range l.order {
		l.pool[id].Render(dc)
	}
	dc.Pop()

	l.afterRender.Emit(l.main)
}

// Activate is a no-op on the plain layer: it has no separate interaction path.
func (l *BaseLayer) Activate(id string)   {}
func (l *BaseLayer) Deactivate(id string) {}

func (l *BaseLayer) HitItemRegion(p geom.ImagePoint) (string, bool) {
	ids := l.index.searchPoint(p, func(id string) int { return objectZIndex(l.pool[id]) })
	for _, id := range ids {
		if hitTest, ok := l.pool[id].(PointHitTester); ok {
			if !hitTest.ContainsPoint(p) {
				continue
			}
		}
		return id, true
	}
	return "", false
}

func (l *BaseLayer) Clear() {
	l.pool = map[string]Object{}
	l.order = nil
	l.index.clear()
	l.hasChanges = true
}

func (l *BaseLayer) Destroy() {
	l.Clear()
	l.cam.OnWidthChanged.Remove(l.camWidthH)
	l.cam.OnHeightChanged.Remove(l.camHeightH)
	l.beforeRender.Clear()
	l.afterRender.Clear()
}

func (l *BaseLayer) Canvas() *Surface { return l.main }

func (l *BaseLayer) OnBeforeRender() *events.Signal[*Surface] { return &l.beforeRender }
func (l *BaseLayer) OnRender() *events.Signal[*Surface]       { return &l.afterRender }
