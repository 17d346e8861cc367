package engine

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/pkg/camera"
	"github.com/annolab/workview/pkg/events"
	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// frameCacheSize is how many decoded frames we keep around, so stepping back
// and forth over nearby frames doesn't re-decode.
const frameCacheSize = 32

// smoothingVariablePrefix keys the per-extension image smoothing preference in
// the backend variable store.
const smoothingVariablePrefix = "isImageSmoothing:"

// VariableStore persists small client preferences.
type VariableStore interface {
	GetVariable(ctx context.Context, key string) (string, error)
	SetVariable(ctx context.Context, key, value string) error
}

type cachedFrame struct {
	index int
	img   image.Image
}

// FileManager loads and caches the media behind one slot. An image slot has a
// single frame; a video slot is a directory of extracted frame files, indexed
// in filename order.
type FileManager struct {
	Log  logs.Log
	Slot *backend.Slot

	// OnFrameLoaded fires with the frame index after a decode completes.
	OnFrameLoaded events.Signal[int]

	vars VariableStore
	ext  string

	framePaths []string
	cache      ringbuffer.RingP[cachedFrame]

	smoothing       bool
	smoothingLoaded bool
}

func NewFileManager(log logs.Log, slot *backend.Slot, mediaRoot string, vars VariableStore) (*FileManager, error) {
	m := &FileManager{
		Log:   log,
		Slot:  slot,
		vars:  vars,
		cache: ringbuffer.NewRingP[cachedFrame](frameCacheSize),
	}
	path := filepath.Join(mediaRoot, slot.FilePath)
	if slot.IsVideo() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("reading frame directory '%v': %w", path, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			m.framePaths = append(m.framePaths, filepath.Join(path, entry.Name()))
		}
		sort.Strings(m.framePaths)
		if len(m.framePaths) == 0 {
			return nil, fmt.Errorf("frame directory '%v' is empty", path)
		}
	} else {
		m.framePaths = []string{path}
	}
	m.ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(m.framePaths[0]), "."))
	return m, nil
}

// NumFrames is the frame count actually present on disk, which may lag the
// slot's declared total while extraction is in progress.
func (m *FileManager) NumFrames() int {
	return len(m.framePaths)
}

func (m *FileManager) Dimensions() camera.Dim {
	return camera.Dim{Width: m.Slot.Width, Height: m.Slot.Height}
}

// LoadFrame decodes the frame at the given index, serving repeats from the
// cache.
func (m *FileManager) LoadFrame(index int) (image.Image, error) {
	if index < 0 || index >= len(m.framePaths) {
		return nil, fmt.Errorf("frame %v out of range [0, %v)", index, len(m.framePaths))
	}
	for i := 0; i < m.cache.Len(); i++ {
		if f := m.cache.Peek(i); f.index == index {
			return f.img, nil
		}
	}
	img, err := imaging.Open(m.framePaths[index])
	if err != nil {
		return nil, fmt.Errorf("decoding frame %v ('%v'): %w", index, m.framePaths[index], err)
	}
	m.cache.Add(cachedFrame{index: index, img: img})
	m.OnFrameLoaded.Emit(index)
	return img, nil
}

// IsImageSmoothing reads the user's per-extension smoothing preference,
// defaulting to smooth. The value is fetched once and cached.
func (m *FileManager) IsImageSmoothing() bool {
	if !m.smoothingLoaded {
		m.smoothing = true
		if m.vars != nil {
			value, err := m.vars.GetVariable(context.Background(), smoothingVariablePrefix+m.ext)
			if err != nil {
				m.Log.Warnf("Failed to read smoothing preference: %v", err)
			} else if value != "" {
				m.smoothing = value == "true"
			}
		}
		m.smoothingLoaded = true
	}
	return m.smoothing
}

func (m *FileManager) SetImageSmoothing(smoothing bool) {
	m.smoothing = smoothing
	m.smoothingLoaded = true
	if m.vars == nil {
		return
	}
	value := "false"
	if smoothing {
		value = "true"
	}
	if err := m.vars.SetVariable(context.Background(), smoothingVariablePrefix+m.ext, value); err != nil {
		m.Log.Warnf("Failed to store smoothing preference: %v", err)
	}
}

// ScaleFrame resizes a decoded frame for display. Pixel-peeping users turn
// smoothing off to see hard pixel boundaries when zoomed in.
func (m *FileManager) ScaleFrame(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if m.IsImageSmoothing() {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	} else {
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	}
	return dst
}

func (m *FileManager) Cleanup() {
	m.cache = ringbuffer.NewRingP[cachedFrame](frameCacheSize)
	m.OnFrameLoaded.Clear()
}
