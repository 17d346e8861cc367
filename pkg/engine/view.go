package engine

import (
	"sync"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/pkg/camera"
	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/render"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
)

// View is one viewport onto one slot of an item: a camera, a compositing
// layer, and the per-view managers. Views are created by the layout and torn
// down with Cleanup when the layout reconfigures.
type View struct {
	Log logs.Log
	ID  string

	Camera    *camera.Camera
	MainLayer *render.OptimisedLayer

	Registry      *annotation.Registry
	RenderManager *RenderManager

	AnnotationManager *AnnotationManager
	FileManager       *FileManager
	OverlayManager    *OverlayManager
	MeasureManager    *MeasureManager
	CommentManager    *CommentManager

	Item *backend.Item
	Slot *backend.Slot

	CurrentFrameIndex int

	// OnFrameChanged fires with the new frame index.
	OnFrameChanged events.Signal[int]

	lock      sync.Locker
	persister AnnotationPersister
	itemID    string
	userID    int64
}

// ViewConfig carries the collaborators a view needs. Registry and
// RenderManager are shared across views; Persister and Vars may be nil for
// offline use.
type ViewConfig struct {
	Item      *backend.Item
	Slot      *backend.Slot
	Registry  *annotation.Registry
	Renderers *RenderManager
	Persister AnnotationPersister
	Vars      VariableStore
	UserID    int64
	MediaRoot string
}

func NewView(log logs.Log, lock sync.Locker, cfg ViewConfig) (*View, error) {
	v := &View{
		Log:           log,
		ID:            uuid.NewString(),
		Camera:        camera.NewCamera(),
		Registry:      cfg.Registry,
		RenderManager: cfg.Renderers,
		Item:          cfg.Item,
		Slot:          cfg.Slot,
		lock:          lock,
		persister:     cfg.Persister,
		userID:        cfg.UserID,
	}
	if cfg.Item != nil {
		v.itemID = cfg.Item.ID
	}
	v.MainLayer = render.NewOptimisedLayer(log, v.Camera)
	v.AnnotationManager = NewAnnotationManager(log, v)
	v.OverlayManager = NewOverlayManager(log, v)
	v.MeasureManager = NewMeasureManager(log, v)
	v.CommentManager = NewCommentManager(log, v)

	if cfg.Slot != nil {
		fm, err := NewFileManager(log, cfg.Slot, cfg.MediaRoot, cfg.Vars)
		if err != nil {
			// Media may not be synced yet; the view still works for
			// annotation data.
			log.Warnf("View %v has no media: %v", v.ID, err)
		}
		v.FileManager = fm
		v.Camera.SetImage(camera.Dim{Width: cfg.Slot.Width, Height: cfg.Slot.Height}, true)
	}
	return v, nil
}

// SetViewport resizes the view's canvas.
func (v *View) SetViewport(width, height float32) {
	v.Camera.SetWidth(width)
	v.Camera.SetHeight(height)
	v.Camera.ScaleToFit()
}

func (v *View) IsVideo() bool {
	return v.Slot != nil && v.Slot.IsVideo()
}

func (v *View) TotalFrames() int {
	if v.Slot == nil || v.Slot.TotalFrames < 1 {
		return 1
	}
	return v.Slot.TotalFrames
}

// IsFramesAnnotation reports whether the view's annotations are stored per
// frame. The trailing fallback makes this unconditionally true, so the scan
// only ever short-circuits; the behavior is kept as-is because downstream
// code depends on it.
func (v *View) IsFramesAnnotation() bool {
	for _, a := range v.AnnotationManager.Annotations() {
		if a.IsVideoAnnotation() {
			return true
		}
	}
	return true
}

// SetCurrentFrame moves the view to another video frame, clamped to the slot's
// frame range. Cached per-frame geometry and spatial index entries are
// refreshed.
func (v *View) SetCurrentFrame(frameIndex int) {
	if frameIndex < 0 {
		frameIndex = 0
	}
	if frameIndex > v.TotalFrames()-1 {
		frameIndex = v.TotalFrames() - 1
	}
	if frameIndex == v.CurrentFrameIndex {
		return
	}
	v.CurrentFrameIndex = frameIndex

	for _, a := range v.AnnotationManager.Annotations() {
		a.ClearCache()
		if v.MainLayer.Has(a.ID) {
			v.MainLayer.Update(a.ID)
		}
	}
	v.MainLayer.Changed()
	v.OverlayManager.Refresh()
	v.MeasureManager.Refresh()
	v.OnFrameChanged.Emit(frameIndex)
}

// Render composites the view's layer. Called from the editor's render loop.
func (v *View) Render() {
	v.MainLayer.Render()
}

// Cleanup tears the view down: pending persistence is cancelled and the layer
// and managers release their resources.
func (v *View) Cleanup() {
	v.AnnotationManager.Cleanup()
	v.OverlayManager.Cleanup()
	v.MeasureManager.Cleanup()
	v.CommentManager.Cleanup()
	if v.FileManager != nil {
		v.FileManager.Cleanup()
	}
	v.MainLayer.Destroy()
	v.OnFrameChanged.Clear()
}
