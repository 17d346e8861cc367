package engine

import (
	"fmt"

	"github.com/annolab/workview/pkg/events"
	"github.com/cyclopcam/logs"
)

// Action is one undoable user operation. Do is run when the action is first
// performed and again on redo; Undo reverses it. Both closures capture the
// state they need at creation time.
type Action struct {
	Name string
	Do   func() error
	Undo func() error
}

// ActionManager keeps the undo/redo history. Performing a new action clears
// the redo stack.
type ActionManager struct {
	Log logs.Log

	// OnChanged fires after every successful Do/Undo/Redo/Clear.
	OnChanged events.Signal[struct{}]

	done   []*Action
	undone []*Action
}

func NewActionManager(log logs.Log) *ActionManager {
	return &ActionManager{Log: log}
}

// Do performs the action and records it. A failed Do leaves the history
// untouched.
func (m *ActionManager) Do(a *Action) error {
	if err := a.Do(); err != nil {
		return fmt.Errorf("action '%v': %w", a.Name, err)
	}
	m.done = append(m.done, a)
	m.undone = nil
	m.OnChanged.Emit(struct{}{})
	return nil
}

func (m *ActionManager) CanUndo() bool { return len(m.done) > 0 }
func (m *ActionManager) CanRedo() bool { return len(m.undone) > 0 }

func (m *ActionManager) Undo() error {
	if len(m.done) == 0 {
		return nil
	}
	a := m.done[len(m.done)-1]
	if err := a.Undo(); err != nil {
		return fmt.Errorf("undo '%v': %w", a.Name, err)
	}
	m.done = m.done[:len(m.done)-1]
	m.undone = append(m.undone, a)
	m.OnChanged.Emit(struct{}{})
	return nil
}

func (m *ActionManager) Redo() error {
	if len(m.undone) == 0 {
		return nil
	}
	a := m.undone[len(m.undone)-1]
	if err := a.Do(); err != nil {
		return fmt.Errorf("redo '%v': %w", a.Name, err)
	}
	m.undone = m.undone[:len(m.undone)-1]
	m.done = append(m.done, a)
	m.OnChanged.Emit(struct{}{})
	return nil
}

// Clear drops the whole history, for example when switching items.
func (m *ActionManager) Clear() {
	m.done = nil
	m.undone = nil
	m.OnChanged.Emit(struct{}{})
}
