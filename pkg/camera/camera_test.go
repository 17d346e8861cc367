package camera

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annolab/workview/pkg/geom"
)

func TestScaleToFitCentersHorizontally(t *testing.T) {
	c := NewCamera()
	c.SetWidth(800)
	c.SetHeight(600)
	c.SetImage(Dim{Width: 1920, Height: 1080}, false)
	c.ScaleToFit()

	want := min(float32(600)/1080, float32(800)/1920)
	require.Equal(t, want, c.Scale())
	require.Equal(t, -(800-1920*c.Scale())/2, c.Offset().X)
	require.Equal(t, float32(0), c.Offset().Y)
}

func TestCoordinateRoundTrip(t *testing.T) {
	c := NewCamera()
	c.SetWidth(640)
	c.SetHeight(480)
	c.SetImage(Dim{Width: 1000, Height: 800}, true)
	c.ZoomIn(geom.CanvasPoint{X: 100, Y: 120}, DefaultZoomFactor)
	c.Scroll(geom.CanvasPoint{X: 30, Y: -45}, DefaultScrollScaling)

	pts := []geom.CanvasPoint{
		{X: 0, Y: 0},
		{X: 320, Y: 240},
		{X: 639, Y: 479},
		{X: -15, Y: 700},
	}
	for _, p := range pts {
		back := c.ImageToCanvas(c.CanvasToImage(p))
		require.InDelta(t, p.X, back.X, 0.01)
		require.InDelta(t, p.Y, back.Y, 0.01)
	}
	imgPts := []geom.ImagePoint{{X: 0, Y: 0}, {X: 500, Y: 400}, {X: 999, Y: 799}}
	for _, p := range imgPts {
		back := c.CanvasToImage(c.ImageToCanvas(p))
		require.InDelta(t, p.X, back.X, 0.01)
		require.InDelta(t, p.Y, back.Y, 0.01)
	}
}

func TestZoomAnchorStaysPut(t *testing.T) {
	c := NewCamera()
	c.SetWidth(800)
	c.SetHeight(600)
	c.SetImage(Dim{Width: 1600, Height: 1200}, true)

	anchor := geom.CanvasPoint{X: 400, Y: 300}
	before := c.CanvasToImage(anchor)
	c.ZoomIn(anchor, DefaultZoomFactor)
	after := c.CanvasToImage(anchor)
	require.InDelta(t, before.X, after.X, 0.5)
	require.InDelta(t, before.Y, after.Y, 0.5)
}

func TestZoomInCapsAtMaxScale(t *testing.T) {
	c := NewCamera()
	c.SetWidth(800)
	c.SetHeight(600)
	c.SetImage(Dim{Width: 100, Height: 100}, true)
	for i := 0; i < 100; i++ {
		c.ZoomIn(geom.CanvasPoint{X: 400, Y: 300}, DefaultZoomFactor)
	}
	require.Equal(t, float32(MaxScale), c.Scale())
}

func TestZoomOutFlooredAtMinZoom(t *testing.T) {
	c := NewCamera()
	c.SetWidth(800)
	c.SetHeight(600)
	c.SetImage(Dim{Width: 1600, Height: 1200}, true)
	for i := 0; i < 100; i++ {
		c.ZoomOut(geom.CanvasPoint{X: 0, Y: 0}, DefaultZoomFactor)
	}
	require.Equal(t, c.MinZoom(), c.Scale())
	require.Equal(t, c.ScaleToFitValue()/2, c.Scale())
}

func TestScrollClampsToVisibilityMargin(t *testing.T) {
	c := NewCamera()
	c.SetWidth(800)
	c.SetHeight(600)
	c.SetImage(Dim{Width: 1000, Height: 1000}, true)

	// Drag way off to the bottom-right
	c.Scroll(geom.CanvasPoint{X: 1e7, Y: 1e7}, 1)
	require.Equal(t, 1000*c.Scale()-ContentVisibilityMargin, c.Offset().X)
	require.Equal(t, 1000*c.Scale()-ContentVisibilityMargin, c.Offset().Y)

	// And back off to the top-left
	c.Scroll(geom.CanvasPoint{X: -1e7, Y: -1e7}, 1)
	require.Equal(t, -c.Width+ContentVisibilityMargin, c.Offset().X)
	require.Equal(t, -c.Height+ContentVisibilityMargin, c.Offset().Y)
}

func TestMutationsEmitSynchronously(t *testing.T) {
	c := NewCamera()
	scaleEvents := 0
	offsetEvents := 0
	c.OnScaleChanged.Listen(func(float32) { scaleEvents++ })
	c.OnOffsetChanged.Listen(func(geom.CanvasPoint) { offsetEvents++ })

	c.SetScale(2)
	require.Equal(t, 1, scaleEvents)

	c.ScaleToFit()
	require.Equal(t, 2, scaleEvents)
	require.Equal(t, 1, offsetEvents)

	c.Scroll(geom.CanvasPoint{X: 5, Y: 5}, DefaultScrollScaling)
	require.Equal(t, 2, offsetEvents)
}

func TestZoomToBox(t *testing.T) {
	c := NewCamera()
	c.SetWidth(800)
	c.SetHeight(600)
	c.SetImage(Dim{Width: 800, Height: 600}, true)

	c.ZoomToBox(geom.CanvasPoint{X: 100, Y: 100}, geom.CanvasPoint{X: 300, Y: 250})
	require.Greater(t, c.Scale(), float32(1))
	require.LessOrEqual(t, c.Scale(), float32(MaxScale))

	// A tiny box hits the MaxScale cap
	c.ScaleToFit()
	c.ZoomToBox(geom.CanvasPoint{X: 100, Y: 100}, geom.CanvasPoint{X: 101, Y: 101})
	require.Equal(t, float32(MaxScale), c.Scale())
}
