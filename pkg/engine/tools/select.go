package tools

import (
	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/engine"
	"github.com/annolab/workview/pkg/geom"
)

// vertexGrabRadius is the canvas-pixel radius within which a press grabs a
// vertex of the selected annotation.
const vertexGrabRadius = 5

type selectMode int

const (
	selectIdle selectMode = iota
	selectDragVertex
	selectDragShape
)

// SelectTool selects annotations and edits them: dragging a vertex reshapes,
// dragging the body translates. Each completed drag becomes one undoable
// action.
type SelectTool struct {
	nopTool

	mode      selectMode
	target    *annotation.Annotation
	vertex    *geom.EditablePoint[geom.ImageSpace]
	startData annotation.Data
	lastPoint geom.ImagePoint
}

func NewSelectTool() *SelectTool {
	return &SelectTool{}
}

func (t *SelectTool) Name() string { return "select" }

func (t *SelectTool) Reset(ctx *engine.ToolContext) {
	if t.mode != selectIdle && t.target != nil {
		if view := ctx.View(); view != nil {
			view.MainLayer.Deactivate(t.target.ID)
		}
	}
	t.mode = selectIdle
	t.target = nil
	t.vertex = nil
	t.startData = nil
}

func (t *SelectTool) Deactivate(ctx *engine.ToolContext) {
	t.Reset(ctx)
}

func (t *SelectTool) OnMouseDown(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	view := ctx.View()
	if view == nil || e.Button != engine.MouseLeft {
		return engine.CallbackContinue
	}
	am := view.AnnotationManager
	p := view.Camera.CanvasToImage(e.Canvas)

	if sel := am.SelectedAnnotation(); sel != nil {
		if v, d := t.grabVertex(view, sel, p); v != nil {
			view.Registry.ClearVertexSelection(sel.Type, d)
			v.IsSelected = true
			t.mode = selectDragVertex
			t.target = sel
			t.vertex = v
			t.startData = t.cloneData(view, sel, d)
			view.MainLayer.Activate(sel.ID)
			return engine.CallbackStop
		}
	}

	hit := am.FindTopAnnotationAt(p)
	if hit == nil {
		am.DeselectAll()
		return engine.CallbackContinue
	}
	if !hit.IsSelected() {
		if err := am.SelectAnnotation(hit.ID); err != nil {
			ctx.Log.Warnf("Selecting annotation: %v", err)
			return engine.CallbackStop
		}
	}
	d := materializeFrame(view, hit)
	if d == nil {
		return engine.CallbackStop
	}
	t.mode = selectDragShape
	t.target = hit
	t.startData = t.cloneData(view, hit, d)
	t.lastPoint = p
	view.MainLayer.Activate(hit.ID)
	return engine.CallbackStop
}

func (t *SelectTool) OnMouseMove(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if t.mode == selectIdle {
		return engine.CallbackContinue
	}
	view := ctx.View()
	p := view.Camera.CanvasToImage(e.Canvas)

	switch t.mode {
	case selectDragVertex:
		t.vertex.X = p.X
		t.vertex.Y = p.Y
	case selectDragShape:
		cap, err := view.Registry.Get(t.target.Type)
		if err != nil || cap.Translate == nil {
			return engine.CallbackStop
		}
		d := t.target.DataForFrame(view.CurrentFrameIndex, view.Registry)
		if d != nil {
			cap.Translate(d, p.Sub(t.lastPoint))
		}
		t.lastPoint = p
	}
	t.target.ClearCache()
	view.MainLayer.Changed()
	return engine.CallbackStop
}

func (t *SelectTool) OnMouseUp(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if t.mode == selectIdle {
		return engine.CallbackContinue
	}
	view := ctx.View()
	target := t.target
	oldData := t.startData

	t.mode = selectIdle
	t.target = nil
	t.vertex = nil
	t.startData = nil

	view.MainLayer.Deactivate(target.ID)
	d := target.DataForFrame(view.CurrentFrameIndex, view.Registry)
	if d == nil || oldData == nil {
		return engine.CallbackStop
	}
	newData := t.cloneData(view, target, d)
	if err := ctx.Editor.ActionManager.Do(editAction(view, target, oldData, newData)); err != nil {
		ctx.Log.Warnf("Applying edit: %v", err)
	}
	return engine.CallbackStop
}

func (t *SelectTool) OnKeyDown(ctx *engine.ToolContext, e engine.KeyEvent) engine.CallbackStatus {
	if e.Key != "Backspace" && e.Key != "Delete" {
		return engine.CallbackContinue
	}
	view := ctx.View()
	if view == nil {
		return engine.CallbackContinue
	}
	sel := view.AnnotationManager.SelectedAnnotation()
	if sel == nil {
		return engine.CallbackContinue
	}
	if err := ctx.Editor.ActionManager.Do(deleteAction(view, sel)); err != nil {
		ctx.Log.Warnf("Deleting annotation: %v", err)
	}
	return engine.CallbackStop
}

// grabVertex returns the nearest vertex of the annotation within grab range
// of p, along with the frame data it belongs to.
func (t *SelectTool) grabVertex(view *engine.View, a *annotation.Annotation, p geom.ImagePoint) (*geom.EditablePoint[geom.ImageSpace], annotation.Data) {
	cap, err := view.Registry.Get(a.Type)
	if err != nil || cap.Vertices == nil {
		return nil, nil
	}
	d := materializeFrame(view, a)
	if d == nil {
		return nil, nil
	}
	maxDist := vertexGrabRadius / view.Camera.Scale()
	var best *geom.EditablePoint[geom.ImageSpace]
	bestDist := maxDist
	for _, v := range cap.Vertices(d) {
		dist := v.Point.Distance(p)
		if dist <= bestDist {
			best = v
			bestDist = dist
		}
	}
	return best, d
}

func (t *SelectTool) cloneData(view *engine.View, a *annotation.Annotation, d annotation.Data) annotation.Data {
	cap, err := view.Registry.Get(a.Type)
	if err != nil || cap.Clone == nil {
		return nil
	}
	return cap.Clone(d)
}
