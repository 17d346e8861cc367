package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignalEmitIsSynchronous(t *testing.T) {
	s := Signal[int]{}
	got := []int{}
	s.Listen(func(v int) { got = append(got, v) })
	s.Emit(1)
	s.Emit(2)
	require.Equal(t, []int{1, 2}, got)
}

func TestSignalRemove(t *testing.T) {
	s := Signal[string]{}
	count := 0
	h := s.Listen(func(string) { count++ })
	s.Listen(func(string) { count += 10 })
	s.Emit("a")
	require.Equal(t, 11, count)

	s.Remove(h)
	s.Emit("b")
	require.Equal(t, 21, count)

	// Removing twice is harmless
	s.Remove(h)
	require.Equal(t, 1, s.Count())
}

func TestSignalListenerMayRemoveItself(t *testing.T) {
	s := Signal[int]{}
	fired := 0
	var h Handle
	h = s.Listen(func(int) {
		fired++
		s.Remove(h)
	})
	s.Emit(0)
	s.Emit(0)
	require.Equal(t, 1, fired)
}
