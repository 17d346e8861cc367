package tools

import (
	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/engine"
	"github.com/annolab/workview/pkg/geom"
	"github.com/annolab/workview/pkg/render"
)

// PolygonTool places vertices click by click. Clicking back on the first
// vertex (or pressing Enter) closes the path; Backspace drops the last
// vertex; Escape abandons the path.
type PolygonTool struct {
	nopTool

	ClassID int64

	path      []geom.ImagePoint
	cursor    geom.CanvasPoint
	hasCursor bool
}

func NewPolygonTool() *PolygonTool {
	return &PolygonTool{}
}

func (t *PolygonTool) Name() string { return "polygon" }

func (t *PolygonTool) Reset(ctx *engine.ToolContext) {
	t.path = nil
	t.hasCursor = false
	if view := ctx.View(); view != nil {
		view.MainLayer.Draw(nil)
	}
}

func (t *PolygonTool) Deactivate(ctx *engine.ToolContext) {
	t.Reset(ctx)
}

func (t *PolygonTool) OnMouseDown(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	view := ctx.View()
	if view == nil || e.Button != engine.MouseLeft {
		return engine.CallbackContinue
	}
	if len(t.path) >= 3 && view.Camera.CursorIsClosingPath(e.Canvas, t.path[0]) {
		t.commit(ctx)
		return engine.CallbackStop
	}
	t.path = append(t.path, view.Camera.CanvasToImage(e.Canvas))
	t.drawPreview(view)
	return engine.CallbackStop
}

func (t *PolygonTool) OnMouseMove(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if len(t.path) == 0 {
		return engine.CallbackContinue
	}
	t.cursor = e.Canvas
	t.hasCursor = true
	t.drawPreview(ctx.View())
	return engine.CallbackStop
}

func (t *PolygonTool) OnKeyDown(ctx *engine.ToolContext, e engine.KeyEvent) engine.CallbackStatus {
	switch e.Key {
	case "Escape":
		if len(t.path) == 0 {
			return engine.CallbackContinue
		}
		t.Reset(ctx)
		return engine.CallbackStop
	case "Backspace":
		if len(t.path) == 0 {
			return engine.CallbackContinue
		}
		t.path = t.path[:len(t.path)-1]
		t.drawPreview(ctx.View())
		return engine.CallbackStop
	case "Enter":
		if len(t.path) < 3 {
			return engine.CallbackContinue
		}
		t.commit(ctx)
		return engine.CallbackStop
	}
	return engine.CallbackContinue
}

func (t *PolygonTool) commit(ctx *engine.ToolContext) {
	view := ctx.View()
	a, err := view.AnnotationManager.InitializeAnnotation(annotation.Params{
		Type:    annotation.TypePolygon,
		ClassID: t.ClassID,
		Data:    &annotation.Polygon{Path: geom.MakePath(t.path)},
	})
	if err != nil {
		ctx.Log.Warnf("Initializing polygon: %v", err)
		t.Reset(ctx)
		return
	}
	if err := ctx.Editor.ActionManager.Do(createAction(view, a)); err != nil {
		ctx.Log.Warnf("Creating polygon: %v", err)
	}
	t.Reset(ctx)
}

func (t *PolygonTool) drawPreview(view *engine.View) {
	path := t.path
	cursor, hasCursor := t.cursor, t.hasCursor
	cam := view.Camera
	view.MainLayer.Draw(func(s *render.Surface) {
		if len(path) == 0 {
			return
		}
		dc := s.DC
		first := cam.ImageToCanvas(path[0])
		dc.MoveTo(float64(first.X), float64(first.Y))
		for _, p := range path[1:] {
			c := cam.ImageToCanvas(p)
			dc.LineTo(float64(c.X), float64(c.Y))
		}
		if hasCursor {
			dc.LineTo(float64(cursor.X), float64(cursor.Y))
		}
		dc.SetRGBA(1, 1, 1, 0.9)
		dc.SetLineWidth(1)
		dc.Stroke()
		for _, p := range path {
			c := cam.ImageToCanvas(p)
			dc.DrawCircle(float64(c.X), float64(c.Y), 3)
			dc.Fill()
		}
	})
}
