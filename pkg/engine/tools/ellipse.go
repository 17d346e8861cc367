package tools

import (
	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/engine"
	"github.com/annolab/workview/pkg/geom"
	"github.com/annolab/workview/pkg/render"
	"github.com/chewxy/math32"
)

// EllipseTool drags out an ellipse from its center. The release point becomes
// the end of the major axis; the minor axis starts at the same length and is
// adjusted afterwards with the select tool.
type EllipseTool struct {
	nopTool

	ClassID int64

	dragging bool
	center   geom.CanvasPoint
	current  geom.CanvasPoint
}

func NewEllipseTool() *EllipseTool {
	return &EllipseTool{}
}

func (t *EllipseTool) Name() string { return "ellipse" }

func (t *EllipseTool) Reset(ctx *engine.ToolContext) {
	t.dragging = false
	if view := ctx.View(); view != nil {
		view.MainLayer.Draw(nil)
	}
}

func (t *EllipseTool) Deactivate(ctx *engine.ToolContext) {
	t.Reset(ctx)
}

func (t *EllipseTool) OnMouseDown(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if ctx.View() == nil || e.Button != engine.MouseLeft {
		return engine.CallbackContinue
	}
	t.dragging = true
	t.center = e.Canvas
	t.current = e.Canvas
	return engine.CallbackStop
}

func (t *EllipseTool) OnMouseMove(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if !t.dragging {
		return engine.CallbackContinue
	}
	t.current = e.Canvas
	t.drawPreview(ctx.View())
	return engine.CallbackStop
}

func (t *EllipseTool) OnMouseUp(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if !t.dragging {
		return engine.CallbackContinue
	}
	view := ctx.View()
	t.current = e.Canvas
	t.dragging = false
	view.MainLayer.Draw(nil)

	cam := view.Camera
	center := cam.CanvasToImage(t.center)
	edge := cam.CanvasToImage(t.current)
	radius := center.Distance(edge)
	if radius < minShapeSize {
		return engine.CallbackStop
	}

	dir := edge.Sub(center).Div(radius)
	perp := geom.ImagePoint{X: -dir.Y, Y: dir.X}
	a, err := view.AnnotationManager.InitializeAnnotation(annotation.Params{
		Type:    annotation.TypeEllipse,
		ClassID: t.ClassID,
		Data: &annotation.Ellipse{
			Center: geom.Editable(center),
			Right:  geom.Editable(edge),
			Left:   geom.Editable(center.Sub(dir.Mul(radius))),
			Top:    geom.Editable(center.Sub(perp.Mul(radius))),
			Bottom: geom.Editable(center.Add(perp.Mul(radius))),
		},
	})
	if err != nil {
		ctx.Log.Warnf("Initializing ellipse: %v", err)
		return engine.CallbackStop
	}
	if err := ctx.Editor.ActionManager.Do(createAction(view, a)); err != nil {
		ctx.Log.Warnf("Creating ellipse: %v", err)
	}
	return engine.CallbackStop
}

func (t *EllipseTool) drawPreview(view *engine.View) {
	center, current := t.center, t.current
	view.MainLayer.Draw(func(s *render.Surface) {
		dc := s.DC
		r := math32.Sqrt(sq(current.X-center.X) + sq(current.Y-center.Y))
		if r < 1 {
			return
		}
		angle := math32.Atan2(current.Y-center.Y, current.X-center.X)
		dc.Push()
		dc.RotateAbout(float64(angle), float64(center.X), float64(center.Y))
		dc.DrawEllipse(float64(center.X), float64(center.Y), float64(r), float64(r))
		dc.Pop()
		dc.SetRGBA(1, 1, 1, 0.9)
		dc.SetLineWidth(1)
		dc.SetDash(4, 4)
		dc.Stroke()
	})
}

func sq(v float32) float32 { return v * v }
