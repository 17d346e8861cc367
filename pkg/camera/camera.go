// Package camera maps between image (content) and canvas (viewport) space.
package camera

import (
	"github.com/chewxy/math32"

	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
)

const (
	// MaxScale is the hard zoom-in ceiling.
	MaxScale = 50

	// ContentVisibilityMargin is how many canvas pixels of content must remain
	// visible when panning; scrolling clamps the offset to honor it.
	ContentVisibilityMargin = 20

	// CursorFirstVertexMaxDistance is the canvas-pixel radius within which a
	// cursor counts as touching the first vertex of an in-progress path.
	CursorFirstVertexMaxDistance = 8

	DefaultZoomFactor    = 1.25
	DefaultScrollScaling = 2
)

// Dim is a content (image/frame) dimension in pixels.
type Dim struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Camera holds the viewport state of one view: canvas size, content size,
// scale and offset. Every mutation emits its change signal synchronously, so
// layers can invalidate caches in the same tick.
//
// A camera belongs to exactly one view and is not safe for concurrent
// mutation; the editor serializes access.
type Camera struct {
	Width  float32 // Canvas width in pixels
	Height float32 // Canvas height in pixels
	Image  Dim     // Content dimensions

	OnScaleChanged  events.Signal[float32]
	OnOffsetChanged events.Signal[geom.CanvasPoint]
	OnWidthChanged  events.Signal[float32]
	OnHeightChanged events.Signal[float32]
	OnImageSet      events.Signal[Dim]

	scale  float32
	offset geom.CanvasPoint
}

func NewCamera() *Camera {
	return &Camera{
		Width:  1,
		Height: 1,
		Image:  Dim{Width: 1, Height: 1},
		scale:  1,
	}
}

func (c *Camera) Scale() float32 { return c.scale }

func (c *Camera) SetScale(scale float32) {
	c.scale = scale
	c.OnScaleChanged.Emit(c.scale)
}

func (c *Camera) Offset() geom.CanvasPoint { return c.offset }

func (c *Camera) SetOffset(offset geom.CanvasPoint) {
	c.offset = offset
	c.OnOffsetChanged.Emit(c.offset)
}

func (c *Camera) SetWidth(width float32) {
	c.Width = width
	c.OnWidthChanged.Emit(width)
}

func (c *Camera) SetHeight(height float32) {
	c.Height = height
	c.OnHeightChanged.Emit(height)
}

// SetImage sets the content dimensions. With resetZoom, the camera re-fits the
// content to the canvas.
func (c *Camera) SetImage(image Dim, resetZoom bool) {
	c.Image = image
	c.OnImageSet.Emit(image)
	if resetZoom {
		c.ScaleToFit()
	}
}

// MinZoom is the zoom-out floor: half of the fit-to-screen scale.
func (c *Camera) MinZoom() float32 {
	hRatio := c.Height / float32(c.Image.Height)
	wRatio := c.Width / float32(c.Image.Width)
	return min(hRatio, wRatio) / 2
}

// ScaleToFitValue is the scale at which the content exactly fits the canvas.
func (c *Camera) ScaleToFitValue() float32 {
	hRatio := c.Height / float32(c.Image.Height)
	wRatio := c.Width / float32(c.Image.Width)
	return min(hRatio, wRatio)
}

// ScaleToFit fits the content to the canvas and centers it horizontally.
func (c *Camera) ScaleToFit() {
	c.SetScale(c.ScaleToFitValue())
	xBorder := c.Width - float32(c.Image.Width)*c.scale
	c.SetOffset(geom.CanvasPoint{X: -xBorder / 2, Y: 0})
}

func (c *Camera) CanvasToImage(p geom.CanvasPoint) geom.ImagePoint {
	return geom.ImagePoint{
		X: (p.X + c.offset.X) / c.scale,
		Y: (p.Y + c.offset.Y) / c.scale,
	}
}

func (c *Camera) ImageToCanvas(p geom.ImagePoint) geom.CanvasPoint {
	return geom.CanvasPoint{
		X: p.X*c.scale - c.offset.X,
		Y: p.Y*c.scale - c.offset.Y,
	}
}

// CursorIsClosingPath reports whether the cursor is close enough to the first
// vertex of an in-progress path to close it.
func (c *Camera) CursorIsClosingPath(cursor geom.CanvasPoint, initial geom.ImagePoint) bool {
	return geom.EuclideanDistance(c.CanvasToImage(cursor), initial) <
		CursorFirstVertexMaxDistance/c.scale
}

// ImageDrawRect is the canvas-space rectangle that the content occupies at the
// current scale and offset.
func (c *Camera) ImageDrawRect() geom.CanvasRect {
	return geom.CanvasRect{
		X1: -c.offset.X,
		Y1: -c.offset.Y,
		X2: -c.offset.X + float32(c.Image.Width)*c.scale,
		Y2: -c.offset.Y + float32(c.Image.Height)*c.scale,
	}
}

// ZoomToBox zooms so that the canvas-space rectangle spanned by p1,p2 fills
// the viewport, capped at MaxScale.
func (c *Camera) ZoomToBox(p1, p2 geom.CanvasPoint) {
	srcInitial := p1.Add(c.offset).Mul(1 / c.scale)
	srcEnd := p2.Add(c.offset).Mul(1 / c.scale)

	w := c.Width
	h := c.Height
	nw := math32.Abs(srcEnd.X - srcInitial.X)
	nh := math32.Abs(srcEnd.Y - srcInitial.Y)
	if w/h < nw/nh {
		c.SetScale(min(w/nw, MaxScale))
	} else {
		c.SetScale(min(h/nh, MaxScale))
	}

	rectStart := geom.CanvasPoint{
		X: min(srcInitial.X, srcEnd.X),
		Y: min(srcInitial.Y, srcEnd.Y),
	}.Mul(c.scale)
	rectEnd := geom.CanvasPoint{
		X: max(srcInitial.X, srcEnd.X),
		Y: max(srcInitial.Y, srcEnd.Y),
	}.Mul(c.scale)
	viewportEnd := rectStart.Add(geom.CanvasPoint{X: w, Y: h})

	c.SetOffset(rectStart.Sub(viewportEnd.Sub(rectEnd).Mul(0.5)))
}

// Zoom dispatches to ZoomIn or ZoomOut based on the magnification factor.
func (c *Camera) Zoom(magnificationFactor float32, offset geom.CanvasPoint) {
	if magnificationFactor > 1 {
		c.ZoomIn(offset, magnificationFactor)
	} else {
		c.ZoomOut(offset, 1/magnificationFactor)
	}
}

// ZoomIn magnifies, anchored at the given canvas point.
func (c *Camera) ZoomIn(offset geom.CanvasPoint, magnificationFactor float32) {
	// Cursor position in the unscaled image
	src := offset.Add(c.offset).Mul(1 / c.scale)
	c.SetScale(min(c.scale*magnificationFactor, MaxScale))
	// Move the camera so the anchor point stays put on screen
	c.SetOffset(src.Mul(c.scale - 1).Add(src.Sub(offset)))
}

// ZoomOut shrinks, anchored at the given canvas point, floored at MinZoom.
func (c *Camera) ZoomOut(offset geom.CanvasPoint, magnificationFactor float32) {
	src := offset.Add(c.offset).Mul(1 / c.scale)
	c.SetScale(max(c.scale/magnificationFactor, c.MinZoom()))
	c.SetOffset(src.Mul(c.scale - 1).Add(src.Sub(offset)))
}

// Scroll pans by delta/scalingFactor, clamped so that at least
// ContentVisibilityMargin pixels of content remain on screen.
func (c *Camera) Scroll(delta geom.CanvasPoint, scalingFactor float32) {
	delta = delta.Div(scalingFactor)
	c.offset.Shift(delta)

	maxHorizontal := float32(c.Image.Width)*c.scale - ContentVisibilityMargin
	minHorizontal := -c.Width + ContentVisibilityMargin
	maxVertical := float32(c.Image.Height)*c.scale - ContentVisibilityMargin
	minVertical := -c.Height + ContentVisibilityMargin

	if c.offset.X > maxHorizontal {
		c.offset.X = maxHorizontal
	} else if c.offset.X < minHorizontal {
		c.offset.X = minHorizontal
	}
	if c.offset.Y > maxVertical {
		c.offset.Y = maxVertical
	} else if c.offset.Y < minVertical {
		c.offset.Y = minVertical
	}

	c.OnOffsetChanged.Emit(c.offset)
}
