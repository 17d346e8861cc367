package geom

// Rectangle is an axis-aligned box. Normalize guarantees X1 <= X2 and Y1 <= Y2;
// all derived accessors assume a normalized rectangle.
type Rectangle[S Space] struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

type (
	ImageRect  = Rectangle[ImageSpace]
	CanvasRect = Rectangle[CanvasSpace]
)

// RectFromPoints builds a normalized rectangle spanning a and b.
func RectFromPoints[S Space](a, b Point[S]) Rectangle[S] {
	r := Rectangle[S]{X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y}
	r.Normalize()
	return r
}

func (r *Rectangle[S]) Normalize() {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
}

func (r Rectangle[S]) Width() float32  { return r.X2 - r.X1 }
func (r Rectangle[S]) Height() float32 { return r.Y2 - r.Y1 }

func (r Rectangle[S]) TopLeft() Point[S]     { return Point[S]{X: r.X1, Y: r.Y1} }
func (r Rectangle[S]) TopRight() Point[S]    { return Point[S]{X: r.X2, Y: r.Y1} }
func (r Rectangle[S]) BottomRight() Point[S] { return Point[S]{X: r.X2, Y: r.Y2} }
func (r Rectangle[S]) BottomLeft() Point[S]  { return Point[S]{X: r.X1, Y: r.Y2} }

func (r Rectangle[S]) Center() Point[S] {
	return Point[S]{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// IsValid reports whether both dimensions meet the minimum size threshold.
func (r Rectangle[S]) IsValid(threshold float32) bool {
	return r.Width() >= threshold && r.Height() >= threshold
}

// Clamp constrains the rectangle to [0,0]-[width,height].
func (r *Rectangle[S]) Clamp(width, height float32) {
	r.X1 = clamp(r.X1, 0, width)
	r.X2 = clamp(r.X2, 0, width)
	r.Y1 = clamp(r.Y1, 0, height)
	r.Y2 = clamp(r.Y2, 0, height)
}

func (r Rectangle[S]) Contains(p Point[S]) bool {
	return p.X >= r.X1 && p.X <= r.X2 && p.Y >= r.Y1 && p.Y <= r.Y2
}

func (r Rectangle[S]) Intersects(b Rectangle[S]) bool {
	return r.X1 <= b.X2 && r.X2 >= b.X1 && r.Y1 <= b.Y2 && r.Y2 >= b.Y1
}

func (r Rectangle[S]) Union(b Rectangle[S]) Rectangle[S] {
	return Rectangle[S]{
		X1: min(r.X1, b.X1),
		Y1: min(r.Y1, b.Y1),
		X2: max(r.X2, b.X2),
		Y2: max(r.Y2, b.Y2),
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BBox is the bounding box of a renderable object. X,Y is the box center, in
// image pixels. The spatial index and partial repaint logic work off BBoxes.
type BBox struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

func (b BBox) MinX() float32 { return b.X - b.Width/2 }
func (b BBox) MinY() float32 { return b.Y - b.Height/2 }
func (b BBox) MaxX() float32 { return b.X + b.Width/2 }
func (b BBox) MaxY() float32 { return b.Y + b.Height/2 }

func (b BBox) IsZero() bool {
	return b.Width == 0 && b.Height == 0
}

// BBoxOfRect converts a normalized image rectangle to a center-based BBox.
func BBoxOfRect(r ImageRect) BBox {
	c := r.Center()
	return BBox{X: c.X, Y: c.Y, Width: r.Width(), Height: r.Height()}
}

// BBoxOfPath is the center-based bounding box of a path.
// Returns a zero BBox for an empty path.
func BBoxOfPath(path Path) BBox {
	if len(path) == 0 {
		return BBox{}
	}
	minX, minY := path[0].X, path[0].Y
	maxX, maxY := minX, minY
	for _, p := range path[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return BBox{
		X:      (minX + maxX) / 2,
		Y:      (minY + maxY) / 2,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}
