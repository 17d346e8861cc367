// Package engine is the annotation editor: views composited over cached
// layers, per-view managers for annotations, overlays, measures and comments,
// and the editor facade owning the render loop, tools and undo history.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/backend"
	"github.com/cyclopcam/logs"
)

// renderInterval paces the render loop at roughly 60 passes per second. A
// pass is close to free when nothing is dirty.
const renderInterval = 16 * time.Millisecond

// AnnotationLoader fetches an item's annotations.
type AnnotationLoader interface {
	LoadAnnotations(ctx context.Context, itemID string) ([]*annotation.Payload, error)
}

// Config carries the editor's collaborators. A nil Backend runs the editor
// fully local: no persistence, no preferences.
type Config struct {
	Backend      *backend.Client
	UserID       int64
	MediaRoot    string
	CanvasWidth  float32
	CanvasHeight float32
}

// Editor is the top-level facade. It owns the layout (which owns the views),
// the global managers shared across views, and the render loop.
//
// A single mutex serializes all access to editor state: input dispatch, the
// render loop, and background persistence callbacks all take it. External
// callers mutating views directly must hold it via Lock/Unlock.
type Editor struct {
	Log logs.Log

	Registry      *annotation.Registry
	RenderManager *RenderManager
	ToolManager   *ToolManager
	ActionManager *ActionManager
	ItemManager   *ItemManager
	Layout        *Layout

	lock sync.Mutex

	persister AnnotationPersister
	loader    AnnotationLoader
	vars      VariableStore
	userID    int64
	mediaRoot string

	mustStop atomic.Bool
	stopped  chan struct{}
}

func NewEditor(log logs.Log, cfg Config) *Editor {
	e := &Editor{
		Log:           log,
		Registry:      annotation.NewRegistry(),
		RenderManager: NewRenderManager(log),
		ActionManager: NewActionManager(log),
		userID:        cfg.UserID,
		mediaRoot:     cfg.MediaRoot,
		stopped:       make(chan struct{}),
	}
	if cfg.Backend != nil {
		e.persister = cfg.Backend
		e.loader = cfg.Backend
		e.vars = cfg.Backend
	}
	e.ToolManager = NewToolManager(log, e)
	e.ItemManager = NewItemManager(log, &e.lock)

	width := cfg.CanvasWidth
	height := cfg.CanvasHeight
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	e.Layout = NewLayout(log, e, width, height)

	go e.renderLoop()
	return e
}

// Lock/Unlock expose the editor mutex for callers driving views directly.
func (e *Editor) Lock()   { e.lock.Lock() }
func (e *Editor) Unlock() { e.lock.Unlock() }

// ActiveView is the view receiving input. Must be called under the editor
// lock.
func (e *Editor) ActiveView() *View {
	return e.Layout.ActiveView()
}

// LoadItem opens an item: the layout builds its views and each view loads the
// item's annotations. The undo history is cleared.
func (e *Editor) LoadItem(ctx context.Context, item *backend.Item, typ LayoutType) error {
	var payloads []*annotation.Payload
	if e.loader != nil {
		var err error
		payloads, err = e.loader.LoadAnnotations(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("loading annotations for item '%v': %w", item.ID, err)
		}
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.Layout.Configure(item, typ); err != nil {
		return err
	}
	for _, view := range e.Layout.Views() {
		view.AnnotationManager.SetAnnotations(payloads)
	}
	e.ActionManager.Clear()
	return nil
}

// ConnectRealtime wires the item list to the realtime channel.
func (e *Editor) ConnectRealtime(rt *backend.Realtime) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.ItemManager.Bind(rt)
}

// Input dispatch. Events go to the active tool first; an unconsumed mouse
// down falls back to hit-test selection.

func (e *Editor) HandleMouseDown(ev MouseEvent) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.ToolManager.HandleMouseDown(ev) == CallbackStop {
		return
	}
	view := e.ActiveView()
	if view == nil {
		return
	}
	p := view.Camera.CanvasToImage(ev.Canvas)
	if hit := view.AnnotationManager.FindTopAnnotationAt(p); hit != nil {
		if err := view.AnnotationManager.SelectAnnotation(hit.ID); err != nil {
			e.Log.Warnf("Selecting annotation: %v", err)
		}
	} else {
		view.AnnotationManager.DeselectAll()
	}
}

func (e *Editor) HandleMouseMove(ev MouseEvent) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.ToolManager.HandleMouseMove(ev) == CallbackStop {
		return
	}
	view := e.ActiveView()
	if view == nil {
		return
	}
	p := view.Camera.CanvasToImage(ev.Canvas)
	if hit := view.AnnotationManager.FindTopAnnotationAt(p); hit != nil {
		if !hit.IsHighlighted() {
			if err := view.AnnotationManager.HighlightAnnotation(hit.ID); err != nil {
				e.Log.Warnf("Highlighting annotation: %v", err)
			}
		}
	} else {
		view.AnnotationManager.UnhighlightAll()
	}
}

func (e *Editor) HandleMouseUp(ev MouseEvent) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.ToolManager.HandleMouseUp(ev)
}

func (e *Editor) HandleKeyDown(ev KeyEvent) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.ToolManager.HandleKeyDown(ev) == CallbackStop {
		return
	}
	switch {
	case ev.Key == "z" && ev.Ctrl && ev.Shift:
		if err := e.ActionManager.Redo(); err != nil {
			e.Log.Warnf("Redo: %v", err)
		}
	case ev.Key == "z" && ev.Ctrl:
		if err := e.ActionManager.Undo(); err != nil {
			e.Log.Warnf("Undo: %v", err)
		}
	}
}

func (e *Editor) renderLoop() {
	defer close(e.stopped)
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()
	for !e.mustStop.Load() {
		<-ticker.C
		e.lock.Lock()
		for _, view := range e.Layout.Views() {
			view.Render()
		}
		e.lock.Unlock()
	}
}

// Close stops the render loop and tears down the views. No render pass runs
// after Close returns.
func (e *Editor) Close() {
	e.mustStop.Store(true)
	<-e.stopped

	e.lock.Lock()
	defer e.lock.Unlock()
	e.ToolManager.Deactivate()
	e.ItemManager.Unbind()
	e.Layout.Cleanup()
}
