package engine

import (
	"fmt"

	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
)

// CallbackStatus tells the dispatcher whether an event handler consumed the
// event or whether later handlers should still see it.
type CallbackStatus int

const (
	CallbackContinue CallbackStatus = iota
	CallbackStop
)

type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
)

// MouseEvent is a pointer event in canvas space. Tools that need image
// coordinates go through the active view's camera.
type MouseEvent struct {
	Canvas geom.CanvasPoint
	Button MouseButton
	Shift  bool
	Alt    bool
	Ctrl   bool
}

// KeyEvent is a keyboard event. Key follows the DOM KeyboardEvent.key naming
// ("Escape", "Backspace", "z").
type KeyEvent struct {
	Key   string
	Shift bool
	Ctrl  bool
}

// ToolContext is what a tool sees of the editor.
type ToolContext struct {
	Editor *Editor
	Log    logs.Log
}

// View returns the view the tool is operating on.
func (c *ToolContext) View() *View {
	return c.Editor.ActiveView()
}

// Tool is a mode of pointer interaction (drawing a box, editing vertices,
// zooming). Exactly one tool is active at a time; activating a new tool
// deactivates the previous one first.
type Tool interface {
	Name() string
	Activate(ctx *ToolContext)
	Deactivate(ctx *ToolContext)
	// Reset abandons any in-progress interaction without deactivating.
	Reset(ctx *ToolContext)

	OnMouseDown(ctx *ToolContext, e MouseEvent) CallbackStatus
	OnMouseMove(ctx *ToolContext, e MouseEvent) CallbackStatus
	OnMouseUp(ctx *ToolContext, e MouseEvent) CallbackStatus
	OnKeyDown(ctx *ToolContext, e KeyEvent) CallbackStatus
}

// ToolManager owns the registered tools and the currently active one, and
// routes input events to it.
type ToolManager struct {
	Log logs.Log

	// OnToolChanged fires with the new tool's name after activation.
	OnToolChanged events.Signal[string]

	ctx         *ToolContext
	tools       map[string]Tool
	currentName string
}

func NewToolManager(log logs.Log, editor *Editor) *ToolManager {
	return &ToolManager{
		Log:   log,
		ctx:   &ToolContext{Editor: editor, Log: log},
		tools: map[string]Tool{},
	}
}

func (m *ToolManager) Register(t Tool) {
	m.tools[t.Name()] = t
}

// CurrentTool returns nil when no tool is active.
func (m *ToolManager) CurrentTool() Tool {
	if m.currentName == "" {
		return nil
	}
	return m.tools[m.currentName]
}

func (m *ToolManager) CurrentToolName() string {
	return m.currentName
}

// Activate switches to the named tool. The old tool is deactivated before the
// new one activates, so a tool never observes two active modes. Re-activating
// the current tool resets it instead.
func (m *ToolManager) Activate(name string) error {
	next, ok := m.tools[name]
	if !ok {
		return fmt.Errorf("unknown tool '%v'", name)
	}
	if name == m.currentName {
		next.Reset(m.ctx)
		return nil
	}
	if current := m.CurrentTool(); current != nil {
		current.Deactivate(m.ctx)
	}
	m.currentName = name
	next.Activate(m.ctx)
	m.OnToolChanged.Emit(name)
	return nil
}

// Deactivate leaves the editor with no active tool.
func (m *ToolManager) Deactivate() {
	if current := m.CurrentTool(); current != nil {
		current.Deactivate(m.ctx)
	}
	m.currentName = ""
}

func (m *ToolManager) HandleMouseDown(e MouseEvent) CallbackStatus {
	if t := m.CurrentTool(); t != nil {
		return t.OnMouseDown(m.ctx, e)
	}
	return CallbackContinue
}

func (m *ToolManager) HandleMouseMove(e MouseEvent) CallbackStatus {
	if t := m.CurrentTool(); t != nil {
		return t.OnMouseMove(m.ctx, e)
	}
	return CallbackContinue
}

func (m *ToolManager) HandleMouseUp(e MouseEvent) CallbackStatus {
	if t := m.CurrentTool(); t != nil {
		return t.OnMouseUp(m.ctx, e)
	}
	return CallbackContinue
}

func (m *ToolManager) HandleKeyDown(e KeyEvent) CallbackStatus {
	if t := m.CurrentTool(); t != nil {
		return t.OnKeyDown(m.ctx, e)
	}
	return CallbackContinue
}
