package render

import (
	"github.com/fogleman/gg"

	"github.com/annolab/workview/pkg/geom"
)

// BBox is re-exported so layer consumers don't need a separate geom import for
// the common case.
type BBox = geom.BBox

// Object is a renderable item in a layer's render pool.
// Render is always called with a context already transformed to image space.
type Object interface {
	ID() string
	Render(dc *gg.Context)
}

// Bounded objects participate in the spatial index. An object whose GetBBox
// returns false is kept in the render pool but excluded from the index and
// from hit-testing.
type Bounded interface {
	GetBBox() (BBox, bool)
}

// PointHitTester refines bbox hits with a precise containment check.
type PointHitTester interface {
	ContainsPoint(p geom.ImagePoint) bool
}

// ZIndexed objects are hit-tested topmost first.
type ZIndexed interface {
	ZIndex() int
}

func objectBBox(o Object) (BBox, bool) {
	if b, ok := o.(Bounded); ok {
		return b.GetBBox()
	}
	return BBox{}, false
}

func objectZIndex(o Object) int {
	if z, ok := o.(ZIndexed); ok {
		return z.ZIndex()
	}
	return 0
}
