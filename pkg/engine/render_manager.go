package engine

import (
	"image/color"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/geom"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
)

// Style carries the per-annotation drawing state a renderer needs.
type Style struct {
	Color       color.RGBA
	Inferred    bool
	Selected    bool
	Highlighted bool
}

// Renderer draws one annotation type's geometry in image space. The layer
// applies the camera transform before calling into renderers.
type Renderer interface {
	Render(dc *gg.Context, d annotation.Data, style Style)
}

// RenderManager resolves annotation types to renderers. Types without a
// renderer (tags, sub-annotation types) simply don't draw.
type RenderManager struct {
	Log       logs.Log
	renderers map[annotation.Type]Renderer
}

func NewRenderManager(log logs.Log) *RenderManager {
	m := &RenderManager{
		Log:       log,
		renderers: map[annotation.Type]Renderer{},
	}
	m.RegisterRenderer(annotation.TypeBoundingBox, &boundingBoxRenderer{})
	m.RegisterRenderer(annotation.TypePolygon, &polygonRenderer{})
	m.RegisterRenderer(annotation.TypePolyline, &polylineRenderer{})
	m.RegisterRenderer(annotation.TypeEllipse, &ellipseRenderer{})
	m.RegisterRenderer(annotation.TypeKeypoint, &keypointRenderer{})
	return m
}

func (m *RenderManager) RegisterRenderer(t annotation.Type, r Renderer) {
	m.renderers[t] = r
}

func (m *RenderManager) RendererFor(t annotation.Type) (Renderer, bool) {
	r, ok := m.renderers[t]
	return r, ok
}

// classPalette cycles a fixed set of distinguishable colors by class id.
var classPalette = []color.RGBA{
	{R: 211, G: 88, B: 77, A: 255},
	{R: 64, G: 143, B: 227, A: 255},
	{R: 99, G: 190, B: 123, A: 255},
	{R: 232, G: 172, B: 49, A: 255},
	{R: 156, G: 105, B: 211, A: 255},
	{R: 70, G: 190, B: 190, A: 255},
	{R: 227, G: 120, B: 180, A: 255},
}

func ColorForClass(classID int64) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return classPalette[int(classID)%len(classPalette)]
}

func setStrokeStyle(dc *gg.Context, style Style) {
	c := style.Color
	alpha := 1.0
	if style.Inferred {
		alpha = 0.6
	}
	dc.SetRGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, alpha)
	if style.Selected {
		dc.SetLineWidth(2)
	} else {
		dc.SetLineWidth(1)
	}
}

func setFillStyle(dc *gg.Context, style Style) {
	c := style.Color
	alpha := 0.1
	if style.Highlighted {
		alpha = 0.25
	}
	dc.SetRGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, alpha)
}

func drawVertices(dc *gg.Context, style Style, vertices []geom.EditablePoint[geom.ImageSpace]) {
	if !style.Selected {
		return
	}
	for _, v := range vertices {
		dc.DrawCircle(float64(v.X), float64(v.Y), 3.5)
		if v.IsSelected || v.IsHighlighted {
			dc.SetRGBA(1, 1, 1, 1)
		} else {
			c := style.Color
			dc.SetRGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, 1)
		}
		dc.Fill()
	}
}

type boundingBoxRenderer struct{}

func (*boundingBoxRenderer) Render(dc *gg.Context, d annotation.Data, style Style) {
	box, ok := d.(*annotation.BoundingBox)
	if !ok {
		return
	}
	rect := box.Rect()
	dc.DrawRectangle(float64(rect.X1), float64(rect.Y1), float64(rect.Width()), float64(rect.Height()))
	setFillStyle(dc, style)
	dc.FillPreserve()
	setStrokeStyle(dc, style)
	dc.Stroke()
	drawVertices(dc, style, []geom.EditablePoint[geom.ImageSpace]{
		box.TopLeft, box.TopRight, box.BottomRight, box.BottomLeft,
	})
}

type polygonRenderer struct{}

func tracePath(dc *gg.Context, path geom.Path, closed bool) {
	if len(path) == 0 {
		return
	}
	dc.MoveTo(float64(path[0].X), float64(path[0].Y))
	for _, p := range path[1:] {
		dc.LineTo(float64(p.X), float64(p.Y))
	}
	if closed {
		dc.ClosePath()
	}
}

func (*polygonRenderer) Render(dc *gg.Context, d annotation.Data, style Style) {
	poly, ok := d.(*annotation.Polygon)
	if !ok || len(poly.Path) == 0 {
		return
	}
	tracePath(dc, poly.Path, true)
	for _, path := range poly.AdditionalPaths {
		tracePath(dc, path, true)
	}
	setFillStyle(dc, style)
	dc.FillPreserve()
	setStrokeStyle(dc, style)
	dc.Stroke()
	drawVertices(dc, style, poly.Path)
}

type polylineRenderer struct{}

func (*polylineRenderer) Render(dc *gg.Context, d annotation.Data, style Style) {
	line, ok := d.(*annotation.Polyline)
	if !ok || len(line.Path) == 0 {
		return
	}
	tracePath(dc, line.Path, false)
	setStrokeStyle(dc, style)
	dc.Stroke()
	drawVertices(dc, style, line.Path)
}

type ellipseRenderer struct{}

func (*ellipseRenderer) Render(dc *gg.Context, d annotation.Data, style Style) {
	e, ok := d.(*annotation.Ellipse)
	if !ok {
		return
	}
	rx, ry := e.RadiusX(), e.RadiusY()
	if rx == 0 || ry == 0 {
		return
	}
	right := e.Right.Point.Sub(e.Center.Point)
	angle := math32.Atan2(right.Y, right.X)
	dc.Push()
	dc.RotateAbout(float64(angle), float64(e.Center.X), float64(e.Center.Y))
	dc.DrawEllipse(float64(e.Center.X), float64(e.Center.Y), float64(rx), float64(ry))
	setFillStyle(dc, style)
	dc.FillPreserve()
	setStrokeStyle(dc, style)
	dc.Stroke()
	dc.Pop()
	drawVertices(dc, style, []geom.EditablePoint[geom.ImageSpace]{
		e.Center, e.Top, e.Right, e.Bottom, e.Left,
	})
}

type keypointRenderer struct{}

func (*keypointRenderer) Render(dc *gg.Context, d annotation.Data, style Style) {
	k, ok := d.(*annotation.Keypoint)
	if !ok {
		return
	}
	dc.DrawCircle(float64(k.Point.X), float64(k.Point.Y), 3.5)
	setFillStyle(dc, style)
	dc.FillPreserve()
	setStrokeStyle(dc, style)
	dc.Stroke()
}
