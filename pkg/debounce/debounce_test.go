package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrailingEdgeCoalescing(t *testing.T) {
	var mu sync.Mutex
	got := []int{}
	d := New(20*time.Millisecond, func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	// A burst of calls produces exactly one invocation, with the last payload
	for i := 1; i <= 5; i++ {
		d.Call(i)
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{5}, got)
}

func TestStopCancelsPending(t *testing.T) {
	fired := make(chan int, 1)
	d := New(10*time.Millisecond, func(v int) { fired <- v })
	d.Call(1)
	d.Stop()
	select {
	case v := <-fired:
		t.Errorf("Debouncer fired %v after Stop", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFlush(t *testing.T) {
	fired := make(chan int, 1)
	d := New(time.Hour, func(v int) { fired <- v })
	d.Call(42)
	d.Flush()
	select {
	case v := <-fired:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Flush did not fire")
	}
	// Flush with nothing pending is a no-op
	d.Flush()
}

func TestKeyedIndependence(t *testing.T) {
	var mu sync.Mutex
	got := map[string]int{}
	k := NewKeyed(15*time.Millisecond, func(key string, v int) {
		mu.Lock()
		got[key] = v
		mu.Unlock()
	})

	k.Call("a", 1)
	k.Call("b", 1)
	k.Call("a", 2)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, map[string]int{"a": 2, "b": 1}, got)
}

func TestKeyedCancel(t *testing.T) {
	fired := make(chan string, 1)
	k := NewKeyed(10*time.Millisecond, func(key string, v int) { fired <- key })
	k.Call("a", 1)
	k.Cancel("a")
	select {
	case key := <-fired:
		t.Errorf("Keyed debouncer fired %v after Cancel", key)
	case <-time.After(50 * time.Millisecond):
	}
}
