package tools

import (
	"github.com/annolab/workview/pkg/camera"
	"github.com/annolab/workview/pkg/engine"
	"github.com/annolab/workview/pkg/geom"
	"github.com/annolab/workview/pkg/render"
)

// zoomDragThreshold separates a click (point zoom) from a drag (box zoom),
// in canvas pixels.
const zoomDragThreshold = 5

// ZoomTool zooms to a dragged box, or by one step around a clicked point.
// Shift-click zooms out.
type ZoomTool struct {
	nopTool

	dragging bool
	start    geom.CanvasPoint
	current  geom.CanvasPoint
}

func NewZoomTool() *ZoomTool {
	return &ZoomTool{}
}

func (t *ZoomTool) Name() string { return "zoom" }

func (t *ZoomTool) Reset(ctx *engine.ToolContext) {
	t.dragging = false
	if view := ctx.View(); view != nil {
		view.MainLayer.Draw(nil)
	}
}

func (t *ZoomTool) Deactivate(ctx *engine.ToolContext) {
	t.Reset(ctx)
}

func (t *ZoomTool) OnMouseDown(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if ctx.View() == nil || e.Button != engine.MouseLeft {
		return engine.CallbackContinue
	}
	t.dragging = true
	t.start = e.Canvas
	t.current = e.Canvas
	return engine.CallbackStop
}

func (t *ZoomTool) OnMouseMove(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if !t.dragging {
		return engine.CallbackContinue
	}
	t.current = e.Canvas
	t.drawPreview(ctx.View())
	return engine.CallbackStop
}

func (t *ZoomTool) OnMouseUp(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if !t.dragging {
		return engine.CallbackContinue
	}
	view := ctx.View()
	t.current = e.Canvas
	t.dragging = false
	view.MainLayer.Draw(nil)

	cam := view.Camera
	dx := t.current.X - t.start.X
	dy := t.current.Y - t.start.Y
	if dx*dx+dy*dy > zoomDragThreshold*zoomDragThreshold {
		cam.ZoomToBox(t.start, t.current)
	} else if e.Shift {
		cam.ZoomOut(e.Canvas, camera.DefaultZoomFactor)
	} else {
		cam.ZoomIn(e.Canvas, camera.DefaultZoomFactor)
	}
	view.MainLayer.Changed()
	return engine.CallbackStop
}

func (t *ZoomTool) drawPreview(view *engine.View) {
	start, current := t.start, t.current
	view.MainLayer.Draw(func(s *render.Surface) {
		dc := s.DC
		x := float64(min(start.X, current.X))
		y := float64(min(start.Y, current.Y))
		w := float64(max(start.X, current.X)) - x
		h := float64(max(start.Y, current.Y)) - y
		dc.SetRGBA(1, 1, 1, 0.7)
		dc.SetLineWidth(1)
		dc.SetDash(2, 2)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()
	})
}
