package geom

import (
	"github.com/chewxy/math32"
)

// EuclideanDistance between two image points.
func EuclideanDistance(a, b ImagePoint) float32 {
	return a.Distance(b)
}

// Centroid of a path (mean of vertices).
func Centroid(path Path) ImagePoint {
	if len(path) == 0 {
		return ImagePoint{}
	}
	var sx, sy float32
	for _, p := range path {
		sx += p.X
		sy += p.Y
	}
	n := float32(len(path))
	return ImagePoint{X: sx / n, Y: sy / n}
}

// PathContainsPoint is a ray-casting point-in-polygon test.
func PathContainsPoint(path Path, p ImagePoint) bool {
	inside := false
	n := len(path)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a := path[i]
		b := path[j]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// SimplifyPolygon reduces the number of vertices in a path using
// Ramer-Douglas-Peucker. Endpoints are always retained, so the result never
// has more points than the input.
func SimplifyPolygon(path []ImagePoint, epsilon float32) []ImagePoint {
	if len(path) < 3 {
		out := make([]ImagePoint, len(path))
		copy(out, path)
		return out
	}
	keep := make([]bool, len(path))
	keep[0] = true
	keep[len(path)-1] = true
	simplifySection(path, 0, len(path)-1, epsilon, keep)
	out := []ImagePoint{}
	for i, k := range keep {
		if k {
			out = append(out, path[i])
		}
	}
	return out
}

// MaybeSimplifyPolygon simplifies the path, but refuses to degenerate it:
// if simplification would leave fewer than 3 points, the original path is
// returned untouched.
func MaybeSimplifyPolygon(path []ImagePoint, epsilon float32) []ImagePoint {
	simplified := SimplifyPolygon(path, epsilon)
	if len(simplified) < 3 {
		return path
	}
	return simplified
}

func simplifySection(path []ImagePoint, first, last int, epsilon float32, keep []bool) {
	if last <= first+1 {
		return
	}
	maxDist := float32(0)
	maxIdx := -1
	for i := first + 1; i < last; i++ {
		d := perpendicularDistance(path[i], path[first], path[last])
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}
	if maxIdx != -1 && maxDist > epsilon {
		keep[maxIdx] = true
		simplifySection(path, first, maxIdx, epsilon, keep)
		simplifySection(path, maxIdx, last, epsilon, keep)
	}
}

func perpendicularDistance(p, a, b ImagePoint) float32 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	length := math32.Sqrt(dx*dx + dy*dy)
	if length == 0 {
		return p.Distance(a)
	}
	return math32.Abs(dx*(p.Y-a.Y)-dy*(p.X-a.X)) / length
}
