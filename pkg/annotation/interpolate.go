package annotation

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/annolab/workview/pkg/geom"
	"github.com/chewxy/math32"
)

// Interpolation algorithm tags. linear-1.0 lerps vertices pairwise in stored
// order. linear-1.1 additionally rotates the later polygon ring to the start
// offset that minimizes total vertex travel, which removes the "swirling"
// artifact when the two keyframes were drawn starting at different vertices.
const (
	AlgorithmLinear10 = "linear-1.0"
	AlgorithmLinear11 = "linear-1.1"
)

// InterpolationParams parameterizes keyframe interpolation. Factor is the
// normalized position between the previous and next keyframe,
// (frame - prevIdx) / (nextIdx - prevIdx), so it is always in (0, 1).
type InterpolationParams struct {
	Algorithm string
	Factor    float32
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func lerpPoint(a, b geom.ImagePoint, t float32) geom.ImagePoint {
	return geom.ImagePoint{X: lerp(a.X, b.X, t), Y: lerp(a.Y, b.Y, t)}
}

func lerpEditable(a, b geom.EditablePoint[geom.ImageSpace], t float32) geom.EditablePoint[geom.ImageSpace] {
	return geom.Editable(lerpPoint(a.Point, b.Point, t))
}

// resampleRing redistributes n vertices evenly by arc length along a closed
// ring. Used to give two keyframe polygons matching vertex counts before
// pairwise lerping.
func resampleRing(pts []geom.ImagePoint, n int) []geom.ImagePoint {
	if len(pts) == 0 || n <= 0 {
		return nil
	}
	if len(pts) == 1 {
		out := make([]geom.ImagePoint, n)
		for i := range out {
			out[i] = pts[0]
		}
		return out
	}

	segLens := make([]float32, len(pts))
	total := float32(0)
	for i := range pts {
		next := pts[(i+1)%len(pts)]
		segLens[i] = pts[i].Distance(next)
		total += segLens[i]
	}
	if total == 0 {
		out := make([]geom.ImagePoint, n)
		for i := range out {
			out[i] = pts[0]
		}
		return out
	}

	out := make([]geom.ImagePoint, 0, n)
	step := total / float32(n)
	seg := 0
	segPos := float32(0)
	for i := 0; i < n; i++ {
		target := float32(i) * step
		for target > segPos+segLens[seg] && seg < len(pts)-1 {
			segPos += segLens[seg]
			seg++
		}
		t := float32(0)
		if segLens[seg] > 0 {
			t = (target - segPos) / segLens[seg]
		}
		next := pts[(seg+1)%len(pts)]
		out = append(out, lerpPoint(pts[seg], next, t))
	}
	return out
}

// bestRingOffset finds the rotation of b that minimizes total squared vertex
// distance to a. Both rings must have the same length.
func bestRingOffset(a, b []geom.ImagePoint) int {
	n := len(a)
	bestOffset := 0
	bestCost := float32(math32.MaxFloat32)
	for offset := 0; offset < n; offset++ {
		cost := float32(0)
		for i := 0; i < n; i++ {
			d := a[i].Sub(b[(i+offset)%n])
			cost += d.X*d.X + d.Y*d.Y
		}
		if cost < bestCost {
			bestCost = cost
			bestOffset = offset
		}
	}
	return bestOffset
}

// interpolateRing blends two closed rings. When the vertex counts differ,
// both rings are resampled to the larger count first. linear-1.1 additionally
// aligns the rings before pairwise lerping; linear-1.0 blends in stored order.
func interpolateRing(prev, next []geom.ImagePoint, params InterpolationParams) []geom.ImagePoint {
	if len(prev) == 0 {
		return append([]geom.ImagePoint(nil), next...)
	}
	if len(next) == 0 {
		return append([]geom.ImagePoint(nil), prev...)
	}

	a, b := prev, next
	if len(a) != len(b) {
		n := max(len(a), len(b))
		a = resampleRing(a, n)
		b = resampleRing(b, n)
	}

	if params.Algorithm == AlgorithmLinear11 {
		offset := bestRingOffset(a, b)
		if offset != 0 {
			rotated := make([]geom.ImagePoint, len(b))
			for i := range b {
				rotated[i] = b[(i+offset)%len(b)]
			}
			b = rotated
		}
	}

	out := make([]geom.ImagePoint, len(a))
	for i := range a {
		out[i] = lerpPoint(a[i], b[i], params.Factor)
	}
	return out
}

// interpolationMemoKey hashes the two keyframe polygons and the factor.
// Interpolated polygon results are memoized under this key so a static frame
// rendered repeatedly does not recompute the blend.
func interpolationMemoKey(prev, next *Polygon, factor float32) string {
	h := md5.New()
	var buf [4]byte
	writePoint := func(p geom.ImagePoint) {
		binary.LittleEndian.PutUint32(buf[:], math32.Float32bits(p.X))
		h.Write(buf[:])
		binary.LittleEndian.PutUint32(buf[:], math32.Float32bits(p.Y))
		h.Write(buf[:])
	}
	writePath := func(path geom.Path) {
		binary.LittleEndian.PutUint32(buf[:], uint32(len(path)))
		h.Write(buf[:])
		for i := range path {
			writePoint(path[i].Point)
		}
	}
	writePath(prev.Path)
	for _, p := range prev.AdditionalPaths {
		writePath(p)
	}
	writePath(next.Path)
	for _, p := range next.AdditionalPaths {
		writePath(p)
	}
	binary.LittleEndian.PutUint32(buf[:], math32.Float32bits(factor))
	h.Write(buf[:])
	return fmt.Sprintf("%x", h.Sum(nil))
}

func interpolatePolygon(prev, next *Polygon, params InterpolationParams) *Polygon {
	out := &Polygon{
		Path: geom.MakePath(interpolateRing(prev.Path.Points(), next.Path.Points(), params)),
	}
	// Additional paths are blended index-wise where both keyframes have one,
	// otherwise the previous keyframe's path is held.
	for i, path := range prev.AdditionalPaths {
		if i < len(next.AdditionalPaths) {
			out.AdditionalPaths = append(out.AdditionalPaths,
				geom.MakePath(interpolateRing(path.Points(), next.AdditionalPaths[i].Points(), params)))
		} else {
			out.AdditionalPaths = append(out.AdditionalPaths, path.Clone())
		}
	}
	return out
}
