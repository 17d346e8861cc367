package render

import (
	"image"
	"time"

	"github.com/cyclopcam/logs"

	"github.com/annolab/workview/pkg/camera"
	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
)

// CachedCanvasPadding is extra space kept around the cached canvas so that
// panning does not expose seams at the content edge.
const CachedCanvasPadding = 400

// movingQuietInterval is how long the camera must hold still before the layer
// stops treating the viewport as in motion and allows expensive repaints.
const movingQuietInterval = 50 * time.Millisecond

// OptimisedLayer renders static items once into a cached canvas and re-blits
// that cache while panning/zooming, instead of redrawing every object per
// frame. Items under interaction ("active") are drawn on a separate
// always-fresh surface so dragging never stutters. When zoomed in beyond
// fit-to-screen, visible items are additionally rendered into a
// high-quality cache at the camera transform.
type OptimisedLayer struct {
	log logs.Log
	cam *camera.Camera

	pool  map[string]Object
	order []string
	index *spatialIndex

	cached     *Surface // static items at content scale, padded
	cachedHQ   *Surface // visible items at camera scale
	main       *Surface // composited output
	active     *Surface // items under interaction, repainted every render
	activeDraw *Surface // transient tool drawing

	activeItems map[string]bool

	hasChanges      bool
	hqRepaintQueued bool
	lastMoveAt      time.Time

	// Last composited camera state, to skip main re-blits when nothing moved.
	lastScale  float32
	lastOffset geom.CanvasPoint

	// Camera state at the time the HQ cache was generated.
	lastHQScale  float32
	lastHQOffset geom.CanvasPoint

	beforeRender events.Signal[*Surface]
	afterRender  events.Signal[*Surface]

	camHandles []func()
}

func NewOptimisedLayer(log logs.Log, cam *camera.Camera) *OptimisedLayer {
	l := &OptimisedLayer{
		log:         log,
		cam:         cam,
		pool:        map[string]Object{},
		index:       newSpatialIndex(),
		activeItems: map[string]bool{},
	}
	l.sizeViewportSurfaces()
	l.sizeCachedSurface(cam.Image)

	onMove := func() {
		l.lastMoveAt = time.Now()
		if cam.Scale() > cam.ScaleToFitValue() {
			l.hqRepaintQueued = true
		}
	}
	hScale := cam.OnScaleChanged.Listen(func(float32) { onMove() })
	hOffset := cam.OnOffsetChanged.Listen(func(geom.CanvasPoint) { onMove() })
	hWidth := cam.OnWidthChanged.Listen(func(float32) { l.sizeViewportSurfaces() })
	hHeight := cam.OnHeightChanged.Listen(func(float32) { l.sizeViewportSurfaces() })
	hImage := cam.OnImageSet.Listen(func(dim camera.Dim) { l.sizeCachedSurface(dim) })
	l.camHandles = []func(){
		func() { cam.OnScaleChanged.Remove(hScale) },
		func() { cam.OnOffsetChanged.Remove(hOffset) },
		func() { cam.OnWidthChanged.Remove(hWidth) },
		func() { cam.OnHeightChanged.Remove(hHeight) },
		func() { cam.OnImageSet.Remove(hImage) },
	}
	return l
}

// Viewport-sized surfaces track the camera dimensions.
func (l *OptimisedLayer) sizeViewportSurfaces() {
	w, h := int(l.cam.Width), int(l.cam.Height)
	l.main = NewSurface(w, h)
	l.active = NewSurface(w, h)
	l.activeDraw = NewSurface(w, h)
	l.cachedHQ = NewSurface(w, h)
	l.hasChanges = true
}

// The cached surface tracks the content dimensions, plus padding.
func (l *OptimisedLayer) sizeCachedSurface(dim camera.Dim) {
	l.cached = NewSurface(dim.Width+2*CachedCanvasPadding, dim.Height+2*CachedCanvasPadding)
	l.hasChanges = true
}

func (l *OptimisedLayer) moving() bool {
	return time.Since(l.lastMoveAt) < movingQuietInterval
}

func (l *OptimisedLayer) isBeforeScaleToFit() bool {
	return l.cam.Scale() <= l.cam.ScaleToFitValue()
}

func (l *OptimisedLayer) Add(objects ...Object) {
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

func (l *OptimisedLayer) Delete(id string) {
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
	l.Deactivate(id)
	l.hasChanges = true
}

// Update refreshes an object's spatial-index entry after its bounds changed.
// Calling Update for an id that was never added is a bug in the caller.
func (l *OptimisedLayer) Update(id string) {
	o, exists := l.pool[id]
	if !exists {
		panic("render: update of item that does not exist: " + id)
	}
	if bbox, ok := objectBBox(o); ok {
		l.index.set(id, bbox)
	} else {
		l.index.remove(id)
	}
	l.hasChanges = true
}

func (l *OptimisedLayer) Has(id string) bool {
	_, exists := l.pool[id]
	return exists
}

func (l *OptimisedLayer) GetItem(id string) (Object, bool) {
	o, exists := l.pool[id]
	return o, exists
}

func (l *OptimisedLayer) GetAll() []Object {
	all := make([]Object, 0, len(l.order))
	for _, id := range l.order {
		all = append(all, l.pool[id])
	}
	return all
}

func (l *OptimisedLayer) Changed() {
	l.hasChanges = true
}

func (l *OptimisedLayer) Clear() {
	l.pool = map[string]Object{}
	l.order = nil
	l.index.clear()
	l.activeItems = map[string]bool{}
	l.hasChanges = true
}

func (l *OptimisedLayer) Destroy() {
	l.Clear()
	for _, remove := range l.camHandles {
		remove()
	}
	l.camHandles = nil
	l.beforeRender.Clear()
	l.afterRender.Clear()
}

func (l *OptimisedLayer) Canvas() *Surface { return l.main }

func (l *OptimisedLayer) OnBeforeRender() *events.Signal[*Surface] { return &l.beforeRender }
func (l *OptimisedLayer) OnRender() *events.Signal[*Surface]       { return &l.afterRender }

// Render composites the layer. Active items are repainted every call; the
// cached canvas is regenerated only when the layer is dirty; panning alone
// costs a single re-blit of the cache at the new offset.
func (l *OptimisedLayer) Render() {
	if l.hqRepaintQueued && !l.moving() {
		l.hqRepaintQueued = false
		l.hasChanges = true
	}

	l.renderActive()

	if l.hasChanges && l.isBeforeScaleToFit() {
		l.renderCached()
	}

	l.renderMain()

	if l.hasChanges && !l.isBeforeScaleToFit() {
		l.renderCachedHQ()
	}

	l.hasChanges = false
}

// renderActive repaints items under interaction onto the always-fresh surface.
func (l *OptimisedLayer) renderActive() {
	l.active.Clear()
	if len(l.activeItems) == 0 {
		l.active.Blit(l.activeDraw, 0, 0, float32(l.activeDraw.W), float32(l.activeDraw.H))
		return
	}

	dc := l.active.DC
	dc.Push()
	applyCamera(dc, l.cam)
	for _, id := range l.order {
		if !l.activeItems[id] {
			continue
		}
		l.pool[id].Render(dc)
	}
	dc.Pop()

	l.active.Blit(l.activeDraw, 0, 0, float32(l.activeDraw.W), float32(l.activeDraw.H))
}

// renderCached regenerates the full cached canvas at content scale, skipping
// active items.
func (l *OptimisedLayer) renderCached() {
	l.beforeRender.Emit(l.main)

	l.cached.Clear()
	dc := l.cached.DC
	for _, id := range l.order {
		if l.activeItems[id] {
			continue
		}
		dc.Push()
		dc.Translate(CachedCanvasPadding, CachedCanvasPadding)
		l.pool[id].Render(dc)
		dc.Pop()
	}
}

// renderMain blits the cached canvas onto the output at the camera transform.
func (l *OptimisedLayer) renderMain() {
	scale := l.cam.Scale()
	offset := l.cam.Offset()
	if !l.hasChanges && scale == l.lastScale && offset == l.lastOffset {
		return
	}
	l.lastScale = scale
	l.lastOffset = offset

	l.main.Clear()
	l.main.Blit(l.cached,
		-offset.X-CachedCanvasPadding*scale,
		-offset.Y-CachedCanvasPadding*scale,
		float32(l.cached.W)*scale,
		float32(l.cached.H)*scale)

	l.afterRender.Emit(l.main)
}

// renderCachedHQ regenerates the high-quality viewport cache: visible
// non-active items rendered at the camera transform, stamped back into the
// cached canvas and drawn 1:1 onto the output.
func (l *OptimisedLayer) renderCachedHQ() {
	scale := l.cam.Scale()
	offset := l.cam.Offset()

	l.lastHQScale = scale
	l.lastHQOffset = offset

	// Clear the viewport section of the cached canvas
	l.cached.ClearRect(
		offset.X/scale+CachedCanvasPadding,
		offset.Y/scale+CachedCanvasPadding,
		l.cam.Width/scale,
		l.cam.Height/scale)
	l.cachedHQ.Clear()
	l.main.Clear()

	dc := l.cachedHQ.DC
	for _, id := range l.order {
		if l.activeItems[id] {
			continue
		}
		bbox, hasBBox := objectBBox(l.pool[id])
		if hasBBox && !isVisible(l.cam, bbox) {
			continue
		}
		dc.Push()
		applyCamera(dc, l.cam)
		l.pool[id].Render(dc)
		dc.Pop()
	}

	// Keep the cached canvas fresh under the viewport
	l.cached.Blit(l.cachedHQ,
		offset.X/scale+CachedCanvasPadding,
		offset.Y/scale+CachedCanvasPadding,
		l.cam.Width/scale,
		l.cam.Height/scale)

	l.main.Blit(l.cachedHQ, 0, 0, l.cam.Width, l.cam.Height)

	l.afterRender.Emit(l.main)
}

// repaintCachedItem invalidates only the region touched by one item: it clears
// the item's padded bbox from the cache and redraws the spatial index's
// intersecting neighbors into that region, instead of regenerating the whole
// canvas. This is what keeps editing one shape among thousands smooth.
func (l *OptimisedLayer) repaintCachedItem(id string) {
	item, exists := l.pool[id]
	if !exists {
		return
	}
	bbox, hasBBox := objectBBox(item)
	if !hasBBox {
		return
	}

	padding := 2.0 / l.cam.Scale()
	ax := bbox.MinX() - padding
	ay := bbox.MinY() - padding
	bw := bbox.Width + padding
	bh := bbox.Height + padding

	neighbors := l.index.searchRect(ax, ay, ax+bw, ay+bh)

	if l.isBeforeScaleToFit() {
		l.cached.ClearRect(ax+CachedCanvasPadding, ay+CachedCanvasPadding, bw, bh)

		patch := NewSurface(int(bw)+1, int(bh)+1)
		dc := patch.DC
		for _, nid := range neighbors {
			if l.activeItems[nid] {
				continue
			}
			neighbor := l.pool[nid]
			if nbbox, ok := objectBBox(neighbor); ok && !isVisible(l.cam, nbbox) {
				continue
			}
			dc.Push()
			dc.Translate(float64(-ax), float64(-ay))
			neighbor.Render(dc)
			dc.Pop()
		}
		l.cached.Blit(patch, ax+CachedCanvasPadding, ay+CachedCanvasPadding, bw, bh)

		l.main.Clear()
		l.main.Blit(l.cached,
			-l.cam.Offset().X-CachedCanvasPadding*l.cam.Scale(),
			-l.cam.Offset().Y-CachedCanvasPadding*l.cam.Scale(),
			float32(l.cached.W)*l.cam.Scale(),
			float32(l.cached.H)*l.cam.Scale())
		return
	}

	// Zoomed in: repaint the region inside the HQ cache at camera scale
	scale := l.cam.Scale()
	offset := l.cam.Offset()
	canvasRect := image.Rect(
		int(ax*scale-offset.X),
		int(ay*scale-offset.Y),
		int((ax+bw)*scale-offset.X)+1,
		int((ay+bh)*scale-offset.Y)+1,
	).Intersect(image.Rect(0, 0, l.cachedHQ.W, l.cachedHQ.H))
	if canvasRect.Empty() {
		return
	}

	l.cachedHQ.ClearRect(
		float32(canvasRect.Min.X), float32(canvasRect.Min.Y),
		float32(canvasRect.Dx()), float32(canvasRect.Dy()))

	dc := l.cachedHQ.DC
	for _, nid := range neighbors {
		if l.activeItems[nid] {
			continue
		}
		neighbor := l.pool[nid]
		if nbbox, ok := objectBBox(neighbor); ok && !isVisible(l.cam, nbbox) {
			continue
		}
		dc.Push()
		dc.DrawRectangle(
			float64(canvasRect.Min.X), float64(canvasRect.Min.Y),
			float64(canvasRect.Dx()), float64(canvasRect.Dy()))
		dc.Clip()
		applyCamera(dc, l.cam)
		neighbor.Render(dc)
		dc.ResetClip()
		dc.Pop()
	}

	// Keep the cached canvas fresh under the viewport
	l.cached.ClearRect(
		l.lastHQOffset.X/l.lastHQScale+CachedCanvasPadding,
		l.lastHQOffset.Y/l.lastHQScale+CachedCanvasPadding,
		l.cam.Width/l.lastHQScale,
		l.cam.Height/l.lastHQScale)
	l.cached.Blit(l.cachedHQ,
		l.lastHQOffset.X/l.lastHQScale+CachedCanvasPadding,
		l.lastHQOffset.Y/l.lastHQScale+CachedCanvasPadding,
		float32(l.cachedHQ.W)/l.lastHQScale,
		float32(l.cachedHQ.H)/l.lastHQScale)

	if !l.moving() {
		l.main.ClearRect(
			float32(canvasRect.Min.X), float32(canvasRect.Min.Y),
			float32(canvasRect.Dx()), float32(canvasRect.Dy()))
		l.main.BlitRegion(l.cachedHQ, canvasRect, canvasRect)
	}
}

// Activate moves an object onto the active (always fresh) rendering path and
// erases it from the cache.
func (l *OptimisedLayer) Activate(id string) {
	l.activeItems[id] = true
	l.repaintCachedItem(id)
}

// Deactivate returns an object to the cached rendering path.
func (l *OptimisedLayer) Deactivate(id string) {
	delete(l.activeItems, id)
	if l.Has(id) {
		l.repaintCachedItem(id)
	}
	if len(l.activeItems) == 0 {
		l.active.Clear()
	}
}

func (l *OptimisedLayer) IsItemActive(id string) bool {
	return l.activeItems[id]
}

// Draw paints transient tool geometry (previews, guides) onto the interaction
// surface. The drawing is composited over active items on every render.
func (l *OptimisedLayer) Draw(fn func(dc *Surface)) {
	l.activeDraw.Clear()
	if fn != nil {
		l.activeDraw.DC.Push()
		fn(l.activeDraw)
		l.activeDraw.DC.Pop()
	}
}

// HitItemRegion returns the topmost object whose bounding box contains p and
// whose precise containment check (if implemented) passes. Ties break to the
// highest z-index.
func (l *OptimisedLayer) HitItemRegion(p geom.ImagePoint) (string, bool) {
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
