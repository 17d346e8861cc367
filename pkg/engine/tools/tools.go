// Package tools implements the editor's interaction modes: shape drawing,
// selection/editing, zooming, and model-assisted annotation.
package tools

import (
	"context"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/engine"
	"github.com/annolab/workview/pkg/inference"
)

// InferenceRunner is the slice of the inference client the clicker tool
// needs.
type InferenceRunner interface {
	Run(ctx context.Context, req *inference.Request) ([]inference.Result, error)
}

// RegisterAll installs the standard tool set. infer may be nil; the clicker
// tool then rejects activation-time use gracefully by doing nothing on box
// completion.
func RegisterAll(e *engine.Editor, infer InferenceRunner) {
	tm := e.ToolManager
	tm.Register(NewSelectTool())
	tm.Register(NewBoundingBoxTool())
	tm.Register(NewPolygonTool())
	tm.Register(NewEllipseTool())
	tm.Register(NewZoomTool())
	tm.Register(NewClickerTool(infer))
}

// nopTool provides default no-op handlers so each tool only implements the
// events it cares about.
type nopTool struct{}

func (nopTool) Activate(ctx *engine.ToolContext)   {}
func (nopTool) Deactivate(ctx *engine.ToolContext) {}
func (nopTool) Reset(ctx *engine.ToolContext)      {}

func (nopTool) OnMouseDown(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	return engine.CallbackContinue
}
func (nopTool) OnMouseMove(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	return engine.CallbackContinue
}
func (nopTool) OnMouseUp(ctx *engine.ToolContext, e engine.MouseEvent) engine.CallbackStatus {
	return engine.CallbackContinue
}
func (nopTool) OnKeyDown(ctx *engine.ToolContext, e engine.KeyEvent) engine.CallbackStatus {
	return engine.CallbackContinue
}

// createAction wraps an annotation creation as an undoable action. Do
// tolerates the annotation already existing, so performing the action after
// an optimistic create is a no-op.
func createAction(view *engine.View, a *annotation.Annotation) *engine.Action {
	return &engine.Action{
		Name: "create " + string(a.Type),
		Do: func() error {
			if _, exists := view.AnnotationManager.GetAnnotation(a.ID); exists {
				return nil
			}
			return view.AnnotationManager.CreateAnnotation(a)
		},
		Undo: func() error {
			return view.AnnotationManager.DeleteAnnotation(a.ID)
		},
	}
}

func deleteAction(view *engine.View, a *annotation.Annotation) *engine.Action {
	return &engine.Action{
		Name: "delete " + string(a.Type),
		Do: func() error {
			return view.AnnotationManager.DeleteAnnotation(a.ID)
		},
		Undo: func() error {
			return view.AnnotationManager.CreateAnnotation(a)
		},
	}
}

// applyData writes frame data onto an annotation: static data for image
// annotations, a keyframe at the view's current frame for video annotations.
func applyData(view *engine.View, a *annotation.Annotation, d annotation.Data) error {
	if a.IsImageAnnotation() {
		a.SetStaticData(d)
	} else {
		a.Video().Frames[view.CurrentFrameIndex] = d
	}
	a.ClearCache()
	return view.AnnotationManager.UpdateAnnotation(a)
}

// materializeFrame returns the annotation's editable data for the view's
// current frame. On video annotations, a frame holding interpolated data
// becomes an explicit keyframe first, so the edit lands on stored data.
func materializeFrame(view *engine.View, a *annotation.Annotation) annotation.Data {
	d := a.DataForFrame(view.CurrentFrameIndex, view.Registry)
	if d == nil || a.IsImageAnnotation() {
		return d
	}
	frames := a.Video().Frames
	if stored, isKeyframe := frames[view.CurrentFrameIndex]; isKeyframe {
		return stored
	}
	if cap, err := view.Registry.Get(a.Type); err == nil && cap.Clone != nil {
		d = cap.Clone(d)
	}
	frames[view.CurrentFrameIndex] = d
	a.ClearCache()
	return d
}

// editAction wraps a completed geometry edit as an undoable action. The edit
// has already been applied when the action is constructed, so the first Do
// re-applies identical data.
func editAction(view *engine.View, a *annotation.Annotation, oldData, newData annotation.Data) *engine.Action {
	return &engine.Action{
		Name: "edit " + string(a.Type),
		Do: func() error {
			return applyData(view, a, newData)
		},
		Undo: func() error {
			return applyData(view, a, oldData)
		},
	}
}
