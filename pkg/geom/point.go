package geom

import (
	"github.com/chewxy/math32"
)

// Coordinate spaces.
// A point in Image space is measured in content pixels. A point in Canvas space
// is measured in viewport pixels. Values from different spaces cannot be mixed
// without going through a camera transform.
type (
	ImageSpace  struct{}
	CanvasSpace struct{}
)

type Space interface {
	ImageSpace | CanvasSpace
}

// Point is a 2D point/vector tagged with its coordinate space.
type Point[S Space] struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

type (
	ImagePoint  = Point[ImageSpace]
	CanvasPoint = Point[CanvasSpace]
)

func Pt[S Space](x, y float32) Point[S] {
	return Point[S]{X: x, Y: y}
}

func (p Point[S]) Add(b Point[S]) Point[S] {
	return Point[S]{X: p.X + b.X, Y: p.Y + b.Y}
}

func (p Point[S]) Sub(b Point[S]) Point[S] {
	return Point[S]{X: p.X - b.X, Y: p.Y - b.Y}
}

func (p Point[S]) Mul(f float32) Point[S] {
	return Point[S]{X: p.X * f, Y: p.Y * f}
}

func (p Point[S]) Div(f float32) Point[S] {
	return Point[S]{X: p.X / f, Y: p.Y / f}
}

// Shift adds b to p in place.
func (p *Point[S]) Shift(b Point[S]) {
	p.X += b.X
	p.Y += b.Y
}

func (p Point[S]) Distance(b Point[S]) float32 {
	return math32.Sqrt((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y))
}

// EditablePoint is a vertex carrying UI state, so that individual vertices of a
// path can be selected/highlighted while editing.
type EditablePoint[S Space] struct {
	Point[S]
	IsSelected    bool `json:"-"`
	IsHighlighted bool `json:"-"`
}

func Editable[S Space](p Point[S]) EditablePoint[S] {
	return EditablePoint[S]{Point: p}
}

// Path is a polygon/polyline boundary in image space.
type Path []EditablePoint[ImageSpace]

// Points strips the vertex UI state off a path.
func (path Path) Points() []ImagePoint {
	pts := make([]ImagePoint, len(path))
	for i := range path {
		pts[i] = path[i].Point
	}
	return pts
}

// MakePath wraps plain points into editable vertices.
func MakePath(pts []ImagePoint) Path {
	path := make(Path, len(pts))
	for i := range pts {
		path[i] = Editable(pts[i])
	}
	return path
}

func (path Path) Clone() Path {
	out := make(Path, len(path))
	copy(out, path)
	return out
}
