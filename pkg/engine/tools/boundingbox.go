package tools

import (
	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/engine"
	"github.com/annolab/workview/pkg/geom"
	"github.com/annolab/workview/pkg/render"
)

// minShapeSize is the smallest span (in image pixels) a drawn shape may have.
// Anything smaller is treated as an accidental click.
const minShapeSize = 1

// BoundingBoxTool draws axis-aligned boxes with a press-drag-release gesture.
type BoundingBoxTool struct {
	nopTool

	// ClassID is assigned to annotations the tool creates.
	ClassID int64

	dragging bool
	start    geom.CanvasPoint
	current  geom.CanvasPoint
}

func NewBoundingBoxTool() *BoundingBoxTool {
	return &BoundingBoxTool{}
}

func (t *BoundingBoxTool) Name() string { return "bounding_box" }

func (t *BoundingBoxTool) Reset(ctx *engine.ToolContext) {
	t.dragging = false
	if view := ctx.View(); view != nil {
		view.MainLayer.Draw(nil)
	}
}

func (t *BoundingBoxTool) Deactivate(ctx *engine.ToolContext) {
	t.Reset(ctx)
}

func (t *BoundingBoxTool) OnMouseDown(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if ctx.View() == nil || e.Button != engine.MouseLeft {
		return engine.CallbackContinue
	}
	t.dragging = true
	t.start = e.Canvas
	t.current = e.Canvas
	return engine.CallbackStop
}

func (t *BoundingBoxTool) OnMouseMove(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if !t.dragging {
		return engine.CallbackContinue
	}
	t.current = e.Canvas
	t.drawPreview(ctx.View())
	return engine.CallbackStop
}

func (t *BoundingBoxTool) OnMouseUp(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if !t.dragging {
		return engine.CallbackContinue
	}
	view := ctx.View()
	t.current = e.Canvas
	t.dragging = false
	view.MainLayer.Draw(nil)

	cam := view.Camera
	rect := geom.RectFromPoints(cam.CanvasToImage(t.start), cam.CanvasToImage(t.current))
	rect.Normalize()
	if !rect.IsValid(minShapeSize) {
		return engine.CallbackStop
	}
	rect.Clamp(float32(cam.Image.Width), float32(cam.Image.Height))

	a, err := view.AnnotationManager.InitializeAnnotation(annotation.Params{
		Type:    annotation.TypeBoundingBox,
		ClassID: t.ClassID,
		Data:    annotation.NewBoundingBox(rect),
	})
	if err != nil {
		ctx.Log.Warnf("Initializing bounding box: %v", err)
		return engine.CallbackStop
	}
	if err := ctx.Editor.ActionManager.Do(createAction(view, a)); err != nil {
		ctx.Log.Warnf("Creating bounding box: %v", err)
	}
	return engine.CallbackStop
}

func (t *BoundingBoxTool) drawPreview(view *engine.View) {
	start, current := t.start, t.current
	view.MainLayer.Draw(func(s *render.Surface) {
		dc := s.DC
		x := float64(min(start.X, current.X))
		y := float64(min(start.Y, current.Y))
		w := float64(max(start.X, current.X)) - x
		h := float64(max(start.Y, current.Y)) - y
		dc.SetRGBA(1, 1, 1, 0.9)
		dc.SetLineWidth(1)
		dc.SetDash(4, 4)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()
	})
}
