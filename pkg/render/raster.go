package render

import (
	"fmt"
	"image/color"

	"github.com/cyclopcam/logs"

	"github.com/annolab/workview/pkg/camera"
	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
	"github.com/annolab/workview/pkg/rle"
)

// Raster is a pixel-grid label map shared by all mask annotations of one view.
// Each mask annotation owns one label index in the raster; pixel value 0 is
// background.
type Raster struct {
	ID     string
	Width  int
	Height int
	Buffer []uint8

	OnChanged events.Signal[struct{}]

	labelByAnnotation map[string]uint8
	annotationByLabel map[uint8]string
	nextLabel         uint8
}

func NewRaster(id string, width, height int) *Raster {
	return &Raster{
		ID:                id,
		Width:             width,
		Height:            height,
		Buffer:            make([]uint8, width*height),
		labelByAnnotation: map[string]uint8{},
		annotationByLabel: map[uint8]string{},
		nextLabel:         1,
	}
}

// AssignLabel allocates (or returns the existing) label index for a mask
// annotation.
func (r *Raster) AssignLabel(annotationID string) uint8 {
	if label, ok := r.labelByAnnotation[annotationID]; ok {
		return label
	}
	label := r.nextLabel
	r.nextLabel++
	r.labelByAnnotation[annotationID] = label
	r.annotationByLabel[label] = annotationID
	return label
}

func (r *Raster) LabelForAnnotation(annotationID string) (uint8, bool) {
	label, ok := r.labelByAnnotation[annotationID]
	return label, ok
}

func (r *Raster) AnnotationForLabel(label uint8) (string, bool) {
	id, ok := r.annotationByLabel[label]
	return id, ok
}

// ReleaseLabel removes an annotation's label and clears its pixels.
func (r *Raster) ReleaseLabel(annotationID string) {
	label, ok := r.labelByAnnotation[annotationID]
	if !ok {
		return
	}
	delete(r.labelByAnnotation, annotationID)
	delete(r.annotationByLabel, label)
	for i, v := range r.Buffer {
		if v == label {
			r.Buffer[i] = 0
		}
	}
	r.OnChanged.Emit(struct{}{})
}

func (r *Raster) Get(x, y int) uint8 {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return 0
	}
	return r.Buffer[y*r.Width+x]
}

func (r *Raster) Set(x, y int, label uint8) {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return
	}
	r.Buffer[y*r.Width+x] = label
}

// FillCircle paints a brush dab of the given label. Used by brush/eraser
// painting (label 0 erases).
func (r *Raster) FillCircle(cx, cy, radius float32, label uint8) {
	minX := int(cx - radius)
	maxX := int(cx+radius) + 1
	minY := int(cy - radius)
	maxY := int(cy+radius) + 1
	r2 := radius * radius
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := float32(x) + 0.5 - cx
			dy := float32(y) + 0.5 - cy
			if dx*dx+dy*dy <= r2 {
				r.Set(x, y, label)
			}
		}
	}
	r.OnChanged.Emit(struct{}{})
}

// BoundsForAnnotation scans the buffer for the annotation's label extent.
// Returns false if the annotation has no painted pixels.
func (r *Raster) BoundsForAnnotation(annotationID string) (rle.Bounds, bool) {
	label, ok := r.labelByAnnotation[annotationID]
	if !ok {
		return rle.Bounds{}, false
	}
	bounds := rle.Bounds{MinX: r.Width, MinY: r.Height, MaxX: -1, MaxY: -1}
	found := false
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if r.Buffer[y*r.Width+x] != label {
				continue
			}
			found = true
			bounds.MinX = min(bounds.MinX, x)
			bounds.MinY = min(bounds.MinY, y)
			bounds.MaxX = max(bounds.MaxX, x)
			bounds.MaxY = max(bounds.MaxY, y)
		}
	}
	return bounds, found
}

// Encode compresses the buffer with dense RLE for persistence.
func (r *Raster) Encode() []int {
	return rle.Encode(r.Buffer)
}

// SetFromDense replaces the buffer from a dense RLE payload.
func (r *Raster) SetFromDense(dense []int) error {
	buffer, _, err := rle.Decode(dense, r.Width*r.Height, r.Width)
	if err != nil {
		return fmt.Errorf("raster %v: %w", r.ID, err)
	}
	r.Buffer = buffer
	r.OnChanged.Emit(struct{}{})
	return nil
}

// RasterLayer renders a raster label map through the camera transform. Mask
// annotations share the one raster, so the whole layer repaints as a unit.
type RasterLayer struct {
	log logs.Log
	cam *camera.Camera

	raster     *Raster
	labelColor map[uint8]color.RGBA
	hasChanges bool

	content *Surface // raster colored at content scale
	main    *Surface // composited output

	rasterH events.Handle
	camH    []func()
}

func NewRasterLayer(log logs.Log, cam *camera.Camera) *RasterLayer {
	l := &RasterLayer{
		log:        log,
		cam:        cam,
		labelColor: map[uint8]color.RGBA{},
		main:       NewSurface(int(cam.Width), int(cam.Height)),
		content:    NewSurface(1, 1),
	}
	hW := cam.OnWidthChanged.Listen(func(float32) { l.resize() })
	hH := cam.OnHeightChanged.Listen(func(float32) { l.resize() })
	hS := cam.OnScaleChanged.Listen(func(float32) { l.hasChanges = true })
	hO := cam.OnOffsetChanged.Listen(func(geom.CanvasPoint) { l.hasChanges = true })
	l.camH = []func(){
		func() { cam.OnWidthChanged.Remove(hW) },
		func() { cam.OnHeightChanged.Remove(hH) },
		func() { cam.OnScaleChanged.Remove(hS) },
		func() { cam.OnOffsetChanged.Remove(hO) },
	}
	return l
}

func (l *RasterLayer) resize() {
	l.main = NewSurface(int(l.cam.Width), int(l.cam.Height))
	l.hasChanges = true
}

// SetRaster attaches the shared raster. The layer repaints whenever the raster
// reports a change.
func (l *RasterLayer) SetRaster(raster *Raster) {
	if l.raster != nil {
		l.raster.OnChanged.Remove(l.rasterH)
	}
	l.raster = raster
	if raster != nil {
		l.content = NewSurface(raster.Width, raster.Height)
		l.rasterH = raster.OnChanged.Listen(func(struct{}) { l.hasChanges = true })
	}
	l.hasChanges = true
}

func (l *RasterLayer) Raster() *Raster { return l.raster }

func (l *RasterLayer) SetLabelColor(label uint8, c color.RGBA) {
	l.labelColor[label] = c
	l.hasChanges = true
}

func (l *RasterLayer) Changed() { l.hasChanges = true }

func (l *RasterLayer) Canvas() *Surface { return l.main }

// Render recolors the raster into the content surface and blits it at the
// camera transform. No-op while clean.
func (l *RasterLayer) Render() {
	if !l.hasChanges {
		return
	}
	l.hasChanges = false
	l.main.Clear()
	if l.raster == nil {
		return
	}

	l.content.Clear()
	for y := 0; y < l.raster.Height; y++ {
		for x := 0; x < l.raster.Width; x++ {
			label := l.raster.Buffer[y*l.raster.Width+x]
			if label == 0 {
				continue
			}
			c, ok := l.labelColor[label]
			if !ok {
				c = defaultLabelColor(label)
			}
			l.content.SetPixel(x, y, c)
		}
	}

	scale := l.cam.Scale()
	offset := l.cam.Offset()
	l.main.Blit(l.content,
		-offset.X, -offset.Y,
		float32(l.raster.Width)*scale,
		float32(l.raster.Height)*scale)
}

func (l *RasterLayer) Destroy() {
	if l.raster != nil {
		l.raster.OnChanged.Remove(l.rasterH)
		l.raster = nil
	}
	for _, remove := range l.camH {
		remove()
	}
	l.camH = nil
}

// defaultLabelColor gives each label a distinct half-transparent color.
func defaultLabelColor(label uint8) color.RGBA {
	palette := []color.RGBA{
		{R: 255, G: 99, B: 71, A: 128},
		{R: 65, G: 105, B: 225, A: 128},
		{R: 60, G: 179, B: 113, A: 128},
		{R: 238, G: 130, B: 238, A: 128},
		{R: 255, G: 165, B: 0, A: 128},
		{R: 0, G: 206, B: 209, A: 128},
	}
	return palette[int(label-1)%len(palette)]
}
