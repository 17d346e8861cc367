package engine

import (
	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/geom"
	"github.com/annolab/workview/pkg/render"
	"github.com/fogleman/gg"
)

// annotationObject adapts an Annotation to the layer's render pool. The view
// back-reference supplies the current frame and the type registries; the
// object owns nothing.
type annotationObject struct {
	view *View
	a    *annotation.Annotation
}

func (o *annotationObject) ID() string { return o.a.ID }

func (o *annotationObject) Render(dc *gg.Context) {
	a := o.a
	if !a.IsVisible() {
		return
	}
	d := a.DataForFrame(o.view.CurrentFrameIndex, o.view.Registry)
	if d == nil {
		return
	}
	r, ok := o.view.RenderManager.RendererFor(a.Type)
	if !ok {
		return
	}
	r.Render(dc, d, Style{
		Color:       ColorForClass(a.ClassID),
		Selected:    a.IsSelected(),
		Highlighted: a.IsHighlighted(),
	})
}

func (o *annotationObject) GetBBox() (render.BBox, bool) {
	return o.a.BBox(o.view.CurrentFrameIndex, o.view.Registry)
}

func (o *annotationObject) ContainsPoint(p geom.ImagePoint) bool {
	d := o.a.DataForFrame(o.view.CurrentFrameIndex, o.view.Registry)
	if d == nil {
		return false
	}
	cap, err := o.view.Registry.Get(o.a.Type)
	if err != nil || cap.ContainsPoint == nil {
		return false
	}
	return cap.ContainsPoint(d, p)
}

func (o *annotationObject) ZIndex() int {
	if o.a.ZIndex == nil {
		return 0
	}
	return *o.a.ZIndex
}
