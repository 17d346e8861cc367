package tools

import (
	"context"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/engine"
	"github.com/annolab/workview/pkg/geom"
	"github.com/annolab/workview/pkg/inference"
	"github.com/annolab/workview/pkg/render"
	"github.com/google/uuid"
)

// ClickKindAdd/Remove are the correction click kinds the model understands.
const (
	ClickKindAdd    = "add"
	ClickKindRemove = "remove"
)

type clickerState int

const (
	clickerIdle clickerState = iota
	clickerDrawingBox
	clickerAwaitingInference
	clickerEditingClicks
)

// ClickerTool is the model-assisted annotation tool: drag a box around an
// object, let the model propose a shape, then refine it with positive
// (click) and negative (alt-click) correction clicks. Enter commits the
// accumulated result as one undoable action; Escape abandons it.
//
// Inference runs in the background. Every request bumps the tool's instance
// id, and a response carrying a stale id is discarded without touching any
// state, so canceling and restarting never lets an old response through.
type ClickerTool struct {
	nopTool

	ClassID int64

	infer InferenceRunner

	state    clickerState
	instance string

	box     geom.ImageRect
	clicks  []annotation.Click
	pending *annotation.Annotation

	start   geom.CanvasPoint
	current geom.CanvasPoint
}

func NewClickerTool(infer InferenceRunner) *ClickerTool {
	return &ClickerTool{infer: infer}
}

func (t *ClickerTool) Name() string { return "clicker" }

// Reset abandons the in-progress proposal, removing any uncommitted
// annotation.
func (t *ClickerTool) Reset(ctx *engine.ToolContext) {
	t.instance = ""
	if t.pending != nil {
		if view := ctx.View(); view != nil {
			if err := view.AnnotationManager.DeleteAnnotation(t.pending.ID); err != nil {
				ctx.Log.Warnf("Removing uncommitted annotation: %v", err)
			}
		}
	}
	t.pending = nil
	t.clicks = nil
	t.state = clickerIdle
	if view := ctx.View(); view != nil {
		view.MainLayer.Draw(nil)
	}
}

func (t *ClickerTool) Deactivate(ctx *engine.ToolContext) {
	t.Reset(ctx)
}

// Busy reports whether an inference request is outstanding; the UI shows a
// spinner while true.
func (t *ClickerTool) Busy() bool {
	return t.state == clickerAwaitingInference
}

func (t *ClickerTool) OnMouseDown(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	view := ctx.View()
	if view == nil || e.Button != engine.MouseLeft {
		return engine.CallbackContinue
	}
	switch t.state {
	case clickerIdle:
		if t.infer == nil {
			return engine.CallbackContinue
		}
		t.state = clickerDrawingBox
		t.start = e.Canvas
		t.current = e.Canvas
		return engine.CallbackStop
	case clickerAwaitingInference:
		return engine.CallbackStop
	case clickerEditingClicks:
		p := view.Camera.CanvasToImage(e.Canvas)
		if !t.box.Contains(p) {
			t.commit(ctx)
			return engine.CallbackContinue
		}
		kind := ClickKindAdd
		if e.Alt {
			kind = ClickKindRemove
		}
		t.clicks = append(t.clicks, annotation.Click{X: p.X, Y: p.Y, Kind: kind})
		t.requestInference(ctx)
		return engine.CallbackStop
	}
	return engine.CallbackContinue
}

func (t *ClickerTool) OnMouseMove(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if t.state != clickerDrawingBox {
		return engine.CallbackContinue
	}
	t.current = e.Canvas
	t.drawPreview(ctx.View())
	return engine.CallbackStop
}

func (t *ClickerTool) OnMouseUp(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	if t.state != clickerDrawingBox {
		return engine.CallbackContinue
	}
	view := ctx.View()
	t.current = e.Canvas
	view.MainLayer.Draw(nil)

	cam := view.Camera
	rect := geom.RectFromPoints(cam.CanvasToImage(t.start), cam.CanvasToImage(t.current))
	rect.Normalize()
	if !rect.IsValid(minShapeSize) {
		t.state = clickerIdle
		return engine.CallbackStop
	}
	rect.Clamp(float32(cam.Image.Width), float32(cam.Image.Height))
	t.box = rect
	t.clicks = nil
	t.requestInference(ctx)
	return engine.CallbackStop
}

func (t *ClickerTool) OnKeyDown(ctx *engine.ToolContext, e engine.KeyEvent) engine.CallbackStatus {
	if t.state == clickerIdle {
		return engine.CallbackContinue
	}
	switch e.Key {
	case "Escape":
		t.Reset(ctx)
		return engine.CallbackStop
	case "Enter":
		if t.state == clickerEditingClicks {
			t.commit(ctx)
			return engine.CallbackStop
		}
	}
	return engine.CallbackContinue
}

// commit converts the accumulated proposal into one undoable create action
// and returns to idle. The annotation is already live, so the action's first
// Do is a no-op.
func (t *ClickerTool) commit(ctx *engine.ToolContext) {
	if t.pending != nil {
		if err := ctx.Editor.ActionManager.Do(createAction(ctx.View(), t.pending)); err != nil {
			ctx.Log.Warnf("Committing annotation: %v", err)
		}
	}
	t.instance = ""
	t.pending = nil
	t.clicks = nil
	t.state = clickerIdle
}

func (t *ClickerTool) requestInference(ctx *engine.ToolContext) {
	view := ctx.View()
	t.state = clickerAwaitingInference
	t.instance = uuid.NewString()
	inst := t.instance

	req := &inference.Request{
		Image:  inference.ImageRef{URL: view.Slot.FilePath},
		BBox:   t.box,
		Clicks: append([]annotation.Click(nil), t.clicks...),
	}
	editor := ctx.Editor
	log := ctx.Log

	go func() {
		results, err := t.infer.Run(context.Background(), req)
		editor.Lock()
		defer editor.Unlock()
		if inst != t.instance {
			return
		}
		if err != nil {
			log.Warnf("Inference failed: %v", err)
			t.afterInference(ctx)
			return
		}
		if len(results) == 0 {
			log.Infof("Inference returned no results")
			t.afterInference(ctx)
			return
		}
		d, typ, err := results[0].Data()
		if err != nil {
			log.Warnf("Inference result unusable: %v", err)
			t.afterInference(ctx)
			return
		}
		t.applyResult(ctx, typ, d)
	}()
}

// afterInference returns to the state the failed request was issued from.
func (t *ClickerTool) afterInference(ctx *engine.ToolContext) {
	if t.pending != nil {
		t.state = clickerEditingClicks
	} else {
		t.state = clickerIdle
	}
}

func (t *ClickerTool) applyResult(ctx *engine.ToolContext, typ annotation.Type, d annotation.Data) {
	view := ctx.View()
	am := view.AnnotationManager
	if t.pending == nil {
		a, err := am.InitializeAnnotation(annotation.Params{
			Type:    typ,
			ClassID: t.ClassID,
			Data:    d,
		})
		if err != nil {
			ctx.Log.Warnf("Initializing inferred annotation: %v", err)
			t.state = clickerIdle
			return
		}
		if err := am.CreateAnnotation(a); err != nil {
			ctx.Log.Warnf("Creating inferred annotation: %v", err)
			t.state = clickerIdle
			return
		}
		t.pending = a
	} else {
		if err := applyData(view, t.pending, d); err != nil {
			ctx.Log.Warnf("Updating inferred annotation: %v", err)
		}
	}
	t.state = clickerEditingClicks
}

func (t *ClickerTool) drawPreview(view *engine.View) {
	start, current := t.start, t.current
	view.MainLayer.Draw(func(s *render.Surface) {
		dc := s.DC
		x := float64(min(start.X, current.X))
		y := float64(min(start.Y, current.Y))
		w := float64(max(start.X, current.X)) - x
		h := float64(max(start.Y, current.Y)) - y
		dc.SetRGBA(0.4, 0.75, 1, 0.9)
		dc.SetLineWidth(1)
		dc.SetDash(4, 4)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()
	})
}
