// Package rle provides dense run-length encoding for raster mask buffers.
//
// A mask is a flat row-major buffer of label indices (0 = background). The
// dense encoding is a sequence of (value, runLength) pairs. Decoding also
// derives per-label bounding boxes from the runs, which is much cheaper than
// decoding the full label map and scanning every pixel.
package rle

import (
	"errors"
	"math"
)

var (
	ErrOddLength      = errors.New("dense RLE length must be a multiple of 2 (encoded in pairs)")
	ErrWidthMismatch  = errors.New("totalPixels is not an integer multiple of the imageWidth")
	ErrBufferOverrun  = errors.New("encoded data exceeds totalPixels given")
	ErrBufferUnderrun = errors.New("encoded data does not fill totalPixels given")
)

// Bounds is an inclusive pixel-space bounding box of a label's runs.
type Bounds struct {
	MinX, MinY int
	MaxX, MaxY int
}

func newBounds() Bounds {
	return Bounds{
		MinX: math.MaxInt, MinY: math.MaxInt,
		MaxX: math.MinInt, MaxY: math.MinInt,
	}
}

// Encode compresses a mask buffer into (value, runLength) pairs.
func Encode(mask []uint8) []int {
	if len(mask) == 0 {
		return nil
	}
	out := []int{}
	current := mask[0]
	run := 1
	for _, v := range mask[1:] {
		if v == current {
			run++
			continue
		}
		out = append(out, int(current), run)
		current = v
		run = 1
	}
	return append(out, int(current), run)
}

// Decode expands dense RLE pairs into a mask buffer of totalPixels, and
// returns the bounding box of each non-zero label.
func Decode(dense []int, totalPixels, imageWidth int) (mask []uint8, boundsPerLabel map[uint8]Bounds, err error) {
	if len(dense)%2 != 0 {
		return nil, nil, ErrOddLength
	}
	if imageWidth <= 0 || totalPixels%imageWidth != 0 {
		return nil, nil, ErrWidthMismatch
	}

	mask = make([]uint8, totalPixels)
	boundsPerLabel = map[uint8]Bounds{}

	pixel := 0
	for pair := 0; pair < len(dense); pair += 2 {
		value := uint8(dense[pair])
		runLength := dense[pair+1]
		if pixel+runLength > totalPixels {
			return nil, nil, ErrBufferOverrun
		}
		start := pixel
		for i := 0; i < runLength; i++ {
			mask[pixel] = value
			pixel++
		}
		if value != 0 {
			updateBounds(boundsPerLabel, value, start, pixel-1, imageWidth)
		}
	}
	if pixel != totalPixels {
		return nil, nil, ErrBufferUnderrun
	}
	return mask, boundsPerLabel, nil
}

// updateBounds grows a label's bounds from one run, without visiting every
// pixel. A run that spans more than one row necessarily touches both the left
// and right edges of the image.
func updateBounds(boundsPerLabel map[uint8]Bounds, label uint8, startPixel, endPixel, imageWidth int) {
	b, ok := boundsPerLabel[label]
	if !ok {
		b = newBounds()
	}

	startX, startY := startPixel%imageWidth, startPixel/imageWidth
	endX, endY := endPixel%imageWidth, endPixel/imageWidth

	if endY > startY {
		// Run wraps: it covers full rows between startY and endY
		b.MinX = 0
		b.MaxX = imageWidth - 1
	} else {
		b.MinX = min(b.MinX, startX)
		b.MaxX = max(b.MaxX, endX)
	}
	b.MinY = min(b.MinY, startY)
	b.MaxY = max(b.MaxY, endY)

	boundsPerLabel[label] = b
}
