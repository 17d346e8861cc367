package engine

import (
	"fmt"
	"math"

	"github.com/annolab/workview/pkg/backend"
	"github.com/cyclopcam/logs"
)

type LayoutType string

const (
	// LayoutSingle shows only the item's first slot.
	LayoutSingle LayoutType = "single"
	// LayoutGrid tiles all slots of a multi-slot item.
	LayoutGrid LayoutType = "grid"
)

// Layout arranges the views for the open item: one view for single-slot
// items, a grid of views for multi-slot items. Reconfiguring tears down the
// old views.
type Layout struct {
	Log logs.Log

	editor *Editor
	typ    LayoutType
	views  []*View

	activeIndex int

	width  float32
	height float32
}

func NewLayout(log logs.Log, editor *Editor, width, height float32) *Layout {
	return &Layout{
		Log:    log,
		editor: editor,
		typ:    LayoutSingle,
		width:  width,
		height: height,
	}
}

func (l *Layout) Type() LayoutType { return l.typ }

func (l *Layout) Views() []*View { return l.views }

// ActiveView is the view receiving tool input. Nil when no item is open.
func (l *Layout) ActiveView() *View {
	if l.activeIndex < 0 || l.activeIndex >= len(l.views) {
		return nil
	}
	return l.views[l.activeIndex]
}

func (l *Layout) SetActiveView(index int) error {
	if index < 0 || index >= len(l.views) {
		return fmt.Errorf("view index %v out of range", index)
	}
	l.activeIndex = index
	return nil
}

// Configure builds the views for an item. Existing views are cleaned up
// first.
func (l *Layout) Configure(item *backend.Item, typ LayoutType) error {
	if len(item.Slots) == 0 {
		return fmt.Errorf("item '%v' has no slots", item.ID)
	}
	l.Cleanup()
	l.typ = typ

	slots := item.Slots
	if typ == LayoutSingle {
		slots = slots[:1]
	}

	cols := 1
	rows := 1
	if typ == LayoutGrid {
		cols = int(math.Ceil(math.Sqrt(float64(len(slots)))))
		rows = (len(slots) + cols - 1) / cols
	}
	cellW := l.width / float32(cols)
	cellH := l.height / float32(rows)

	for i := range slots {
		view, err := NewView(l.Log, &l.editor.lock, ViewConfig{
			Item:      item,
			Slot:      &slots[i],
			Registry:  l.editor.Registry,
			Renderers: l.editor.RenderManager,
			Persister: l.editor.persister,
			Vars:      l.editor.vars,
			UserID:    l.editor.userID,
			MediaRoot: l.editor.mediaRoot,
		})
		if err != nil {
			l.Cleanup()
			return fmt.Errorf("creating view for slot '%v': %w", slots[i].SlotName, err)
		}
		view.SetViewport(cellW, cellH)
		l.views = append(l.views, view)
	}
	l.activeIndex = 0
	return nil
}

// Resize redistributes the canvas across the views.
func (l *Layout) Resize(width, height float32) {
	l.width = width
	l.height = height
	cols := 1
	rows := 1
	if l.typ == LayoutGrid && len(l.views) > 0 {
		cols = int(math.Ceil(math.Sqrt(float64(len(l.views)))))
		rows = (len(l.views) + cols - 1) / cols
	}
	for _, v := range l.views {
		v.SetViewport(width/float32(cols), height/float32(rows))
	}
}

func (l *Layout) Cleanup() {
	for _, v := range l.views {
		v.Cleanup()
	}
	l.views = nil
	l.activeIndex = 0
}
