package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestEditor(t *testing.T) *Editor {
	e := NewEditor(logs.NewTestingLog(t), Config{CanvasWidth: 1280, CanvasHeight: 720})
	t.Cleanup(e.Close)
	item := &backend.Item{
		ID:    "item-1",
		Slots: []backend.Slot{*imageSlot()},
	}
	require.NoError(t, e.LoadItem(context.Background(), item, LayoutSingle))
	return e
}

func TestActionManagerUndoRedo(t *testing.T) {
	am := NewActionManager(logs.NewTestingLog(t))

	value := 0
	set := func(v int) *Action {
		prev := value
		return &Action{
			Name: "set",
			Do:   func() error { value = v; return nil },
			Undo: func() error { value = prev; return nil },
		}
	}

	require.NoError(t, am.Do(set(1)))
	require.NoError(t, am.Do(set(2)))
	require.Equal(t, 2, value)
	require.True(t, am.CanUndo())
	require.False(t, am.CanRedo())

	require.NoError(t, am.Undo())
	require.Equal(t, 1, value)
	require.True(t, am.CanRedo())

	require.NoError(t, am.Undo())
	require.Equal(t, 0, value)
	require.False(t, am.CanUndo())

	// Undo on an empty history is a no-op
	require.NoError(t, am.Undo())
	require.Equal(t, 0, value)

	require.NoError(t, am.Redo())
	require.NoError(t, am.Redo())
	require.Equal(t, 2, value)
	require.NoError(t, am.Redo())
	require.Equal(t, 2, value)
}

func TestActionManagerDoClearsRedoStack(t *testing.T) {
	am := NewActionManager(logs.NewTestingLog(t))
	nop := &Action{Name: "nop", Do: func() error { return nil }, Undo: func() error { return nil }}

	require.NoError(t, am.Do(nop))
	require.NoError(t, am.Undo())
	require.True(t, am.CanRedo())

	require.NoError(t, am.Do(nop))
	require.False(t, am.CanRedo())
}

func TestActionManagerFailedDoIsNotRecorded(t *testing.T) {
	am := NewActionManager(logs.NewTestingLog(t))
	fail := &Action{Name: "fail", Do: func() error { return fmt.Errorf("nope") }, Undo: func() error { return nil }}

	require.Error(t, am.Do(fail))
	require.False(t, am.CanUndo())
}

// recordingTool notes every lifecycle call it receives.
type recordingTool struct {
	name  string
	trace *[]string
}

func (r *recordingTool) Name() string { return r.name }

func (r *recordingTool) Activate(ctx *ToolContext) {
	*r.trace = append(*r.trace, r.name+":activate")
}

func (r *recordingTool) Deactivate(ctx *ToolContext) {
	*r.trace = append(*r.trace, r.name+":deactivate")
}

func (r *recordingTool) Reset(ctx *ToolContext) {
	*r.trace = append(*r.trace, r.name+":reset")
}
func (r *recordingTool) OnMouseDown(ctx *ToolContext, e MouseEvent) CallbackStatus {
	return CallbackStop
}
func (r *recordingTool) OnMouseMove(ctx *ToolContext, e MouseEvent) CallbackStatus {
	return CallbackContinue
}
func (r *recordingTool) OnMouseUp(ctx *ToolContext, e MouseEvent) CallbackStatus {
	return CallbackContinue
}
func (r *recordingTool) OnKeyDown(ctx *ToolContext, e KeyEvent) CallbackStatus {
	return CallbackContinue
}

func TestToolManagerSwitchDeactivatesFirst(t *testing.T) {
	tm := NewToolManager(logs.NewTestingLog(t), nil)
	trace := []string{}
	tm.Register(&recordingTool{name: "a", trace: &trace})
	tm.Register(&recordingTool{name: "b", trace: &trace})

	require.Error(t, tm.Activate("missing"))

	require.NoError(t, tm.Activate("a"))
	require.NoError(t, tm.Activate("b"))
	require.Equal(t, []string{"a:activate", "a:deactivate", "b:activate"}, trace)
	require.Equal(t, "b", tm.CurrentToolName())

	// Re-activating the current tool resets it instead of cycling it
	require.NoError(t, tm.Activate("b"))
	require.Equal(t, "b:reset", trace[len(trace)-1])

	tm.Deactivate()
	require.Nil(t, tm.CurrentTool())
}

func TestViewSetCurrentFrameClamps(t *testing.T) {
	v, _ := newTestView(t, videoSlot(30), nil)

	fired := []int{}
	v.OnFrameChanged.Listen(func(f int) { fired = append(fired, f) })

	v.SetCurrentFrame(10)
	v.SetCurrentFrame(-5)
	v.SetCurrentFrame(100)
	require.Equal(t, []int{10, 0, 29}, fired)
	require.Equal(t, 29, v.CurrentFrameIndex)

	// Setting the same frame again is a no-op
	v.SetCurrentFrame(29)
	require.Len(t, fired, 3)
}

func TestViewIsFramesAnnotation(t *testing.T) {
	v, _ := newTestView(t, imageSlot(), nil)
	mustCreateBox(t, v, 1, geom.ImageRect{X1: 0, Y1: 0, X2: 10, Y2: 10})
	require.True(t, v.IsFramesAnnotation())

	empty, _ := newTestView(t, imageSlot(), nil)
	require.True(t, empty.IsFramesAnnotation())
}

func TestEditorSelectsAnnotationOnClick(t *testing.T) {
	e := newTestEditor(t)

	e.Lock()
	view := e.ActiveView()
	require.NotNil(t, view)
	a := mustCreateBox(t, view, 1, geom.ImageRect{X1: 300, Y1: 300, X2: 600, Y2: 600})
	center := view.Camera.ImageToCanvas(geom.ImagePoint{X: 450, Y: 450})
	outside := view.Camera.ImageToCanvas(geom.ImagePoint{X: 50, Y: 50})
	e.Unlock()

	e.HandleMouseDown(MouseEvent{Canvas: center})
	e.Lock()
	require.Same(t, a, view.AnnotationManager.SelectedAnnotation())
	e.Unlock()

	e.HandleMouseDown(MouseEvent{Canvas: outside})
	e.Lock()
	require.Nil(t, view.AnnotationManager.SelectedAnnotation())
	e.Unlock()
}

func TestEditorUndoRedoShortcuts(t *testing.T) {
	e := newTestEditor(t)

	value := 0
	e.Lock()
	require.NoError(t, e.ActionManager.Do(&Action{
		Name: "inc",
		Do:   func() error { value++; return nil },
		Undo: func() error { value--; return nil },
	}))
	e.Unlock()
	require.Equal(t, 1, value)

	e.HandleKeyDown(KeyEvent{Key: "z", Ctrl: true})
	require.Equal(t, 0, value)
	e.HandleKeyDown(KeyEvent{Key: "z", Ctrl: true, Shift: true})
	require.Equal(t, 1, value)
}

func TestEditorGridLayout(t *testing.T) {
	e := NewEditor(logs.NewTestingLog(t), Config{CanvasWidth: 1280, CanvasHeight: 720})
	t.Cleanup(e.Close)

	item := &backend.Item{
		ID: "item-2",
		Slots: []backend.Slot{
			{SlotName: "0", FilePath: "a.png", Width: 640, Height: 480, TotalFrames: 1},
			{SlotName: "1", FilePath: "b.png", Width: 640, Height: 480, TotalFrames: 1},
		},
	}
	require.NoError(t, e.LoadItem(context.Background(), item, LayoutGrid))

	e.Lock()
	views := e.Layout.Views()
	require.Len(t, views, 2)
	require.Same(t, views[0], e.ActiveView())
	require.NoError(t, e.Layout.SetActiveView(1))
	require.Same(t, views[1], e.ActiveView())
	e.Unlock()

	// Loading a single-slot layout over it tears the grid down
	single := &backend.Item{ID: "item-3", Slots: []backend.Slot{*imageSlot()}}
	require.NoError(t, e.LoadItem(context.Background(), single, LayoutSingle))
	e.Lock()
	require.Len(t, e.Layout.Views(), 1)
	e.Unlock()
}
