// Package render implements the layer compositor: render pools of 2D objects,
// cached-canvas compositing, spatial indexing and hit-testing.
package render

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/annolab/workview/pkg/camera"
)

// Surface is an offscreen drawing canvas. It pairs a gg context (vector
// drawing) with its backing RGBA image (region clears, blits).
type Surface struct {
	W, H int
	DC   *gg.Context
}

func NewSurface(w, h int) *Surface {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return &Surface{W: w, H: h, DC: gg.NewContext(w, h)}
}

func (s *Surface) RGBA() *image.RGBA {
	return s.DC.Image().(*image.RGBA)
}

// Clear resets the whole surface to transparent.
func (s *Surface) Clear() {
	img := s.RGBA()
	for i := range img.Pix {
		img.Pix[i] = 0
	}
}

// ClearRect resets a region to transparent.
func (s *Surface) ClearRect(x, y, w, h float32) {
	rect := image.Rect(int(x), int(y), int(x+w)+1, int(y+h)+1)
	rect = rect.Intersect(s.RGBA().Bounds())
	if rect.Empty() {
		return
	}
	img := s.RGBA()
	for py := rect.Min.Y; py < rect.Max.Y; py++ {
		row := img.Pix[py*img.Stride+rect.Min.X*4 : py*img.Stride+rect.Max.X*4]
		for i := range row {
			row[i] = 0
		}
	}
}

// Blit draws src onto dst at (dx,dy) scaled to (dw,dh), compositing over
// existing content. Destination coordinates may extend outside dst; the draw
// is clipped.
func (dst *Surface) Blit(src *Surface, dx, dy, dw, dh float32) {
	dstRect := image.Rect(int(dx), int(dy), int(dx+dw), int(dy+dh))
	if dstRect.Empty() {
		return
	}
	if dstRect.Dx() == src.W && dstRect.Dy() == src.H {
		xdraw.Draw(dst.RGBA(), dstRect, src.RGBA(), image.Point{}, xdraw.Over)
		return
	}
	xdraw.ApproxBiLinear.Scale(dst.RGBA(), dstRect, src.RGBA(), src.RGBA().Bounds(), xdraw.Over, nil)
}

// BlitRegion draws the srcRect region of src into the dstRect region of dst.
func (dst *Surface) BlitRegion(src *Surface, srcRect, dstRect image.Rectangle) {
	if srcRect.Empty() || dstRect.Empty() {
		return
	}
	xdraw.ApproxBiLinear.Scale(dst.RGBA(), dstRect, src.RGBA(), srcRect, xdraw.Over, nil)
}

// SetPixel writes one pixel, used by raster layers.
func (s *Surface) SetPixel(x, y int, c color.RGBA) {
	s.RGBA().SetRGBA(x, y, c)
}

// applyCamera transforms dc so that drawing in image coordinates lands at the
// right canvas position for the camera's scale and offset.
func applyCamera(dc *gg.Context, cam *camera.Camera) {
	scale := float64(cam.Scale())
	dc.Scale(scale, scale)
	dc.Translate(float64(-cam.Offset().X)/scale, float64(-cam.Offset().Y)/scale)
}

// isVisible reports whether bbox intersects the camera viewport.
func isVisible(cam *camera.Camera, bbox BBox) bool {
	if bbox.IsZero() {
		return false
	}
	scale := cam.Scale()
	minX := bbox.MinX()*scale - cam.Offset().X
	minY := bbox.MinY()*scale - cam.Offset().Y
	maxX := bbox.MaxX()*scale - cam.Offset().X
	maxY := bbox.MaxY()*scale - cam.Offset().Y
	return maxX >= 0 && maxY >= 0 && minX <= cam.Width && minY <= cam.Height
}
