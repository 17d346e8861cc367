package rle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	// 4x3 mask with two labels
	mask := []uint8{
		0, 0, 1, 1,
		0, 2, 2, 1,
		0, 0, 0, 0,
	}
	dense := Encode(mask)
	decoded, bounds, err := Decode(dense, len(mask), 4)
	require.NoError(t, err)
	require.Equal(t, mask, decoded)

	require.Equal(t, Bounds{MinX: 2, MinY: 0, MaxX: 3, MaxY: 1}, bounds[1])
	require.Equal(t, Bounds{MinX: 1, MinY: 1, MaxX: 2, MaxY: 1}, bounds[2])
}

func TestRoundTripSparse(t *testing.T) {
	mask := make([]uint8, 100*100)
	mask[5050] = 7
	dense := Encode(mask)
	require.Len(t, dense, 6)

	decoded, bounds, err := Decode(dense, len(mask), 100)
	require.NoError(t, err)
	require.Equal(t, mask, decoded)
	require.Equal(t, Bounds{MinX: 50, MinY: 50, MaxX: 50, MaxY: 50}, bounds[7])
}

func TestWrappingRunTouchesImageEdges(t *testing.T) {
	// One run of label 3 spanning two full rows
	dense := []int{0, 4, 3, 8, 0, 4}
	_, bounds, err := Decode(dense, 16, 4)
	require.NoError(t, err)
	require.Equal(t, Bounds{MinX: 0, MinY: 1, MaxX: 3, MaxY: 2}, bounds[3])
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode([]int{1, 2, 3}, 4, 2)
	require.ErrorIs(t, err, ErrOddLength)

	_, _, err = Decode([]int{1, 2}, 5, 2)
	require.ErrorIs(t, err, ErrWidthMismatch)

	_, _, err = Decode([]int{1, 10}, 4, 2)
	require.ErrorIs(t, err, ErrBufferOverrun)

	_, _, err = Decode([]int{1, 2}, 4, 2)
	require.ErrorIs(t, err, ErrBufferUnderrun)
}

func TestEncodeEmpty(t *testing.T) {
	require.Nil(t, Encode(nil))
}
