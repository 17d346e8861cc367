package render

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"

	"github.com/annolab/workview/pkg/geom"
)

// spatialIndex maps object bounding boxes to object ids for fast point/region
// queries. Flatbush is a static index, so we rebuild it lazily: mutations mark
// it stale, and the next query pays for one rebuild.
type spatialIndex struct {
	ids   []string
	boxes map[string]BBox
	fb    *flatbush.Flatbush[float32]
	byIdx []string // flatbush insertion order -> id
	stale bool
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{boxes: map[string]BBox{}, stale: true}
}

func (s *spatialIndex) set(id string, bbox BBox) {
	if _, ok := s.boxes[id]; !ok {
		s.ids = append(s.ids, id)
	}
	s.boxes[id] = bbox
	s.stale = true
}

func (s *spatialIndex) remove(id string) {
	if _, ok := s.boxes[id]; !ok {
		return
	}
	delete(s.boxes, id)
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
	s.stale = true
}

func (s *spatialIndex) clear() {
	s.ids = nil
	s.boxes = map[string]BBox{}
	s.fb = nil
	s.byIdx = nil
	s.stale = true
}

func (s *spatialIndex) rebuild() {
	if len(s.ids) == 0 {
		s.fb = nil
		s.byIdx = nil
		s.stale = false
		return
	}
	fb := flatbush.NewFlatbush[float32]()
	fb.Reserve(len(s.ids))
	byIdx := make([]string, 0, len(s.ids))
	for _, id := range s.ids {
		b := s.boxes[id]
		fb.Add(b.MinX(), b.MinY(), b.MaxX(), b.MaxY())
		byIdx = append(byIdx, id)
	}
	fb.Finish()
	s.fb = fb
	s.byIdx = byIdx
	s.stale = false
}

// searchRect returns the ids of all boxes intersecting the query rectangle.
func (s *spatialIndex) searchRect(minX, minY, maxX, maxY float32) []string {
	if s.stale {
		s.rebuild()
	}
	if s.fb == nil || len(s.byIdx) == 0 {
		return nil
	}
	found := s.fb.Search(minX, minY, maxX, maxY)
	ids := make([]string, 0, len(found))
	for _, idx := range found {
		ids = append(ids, s.byIdx[idx])
	}
	return ids
}

// searchPoint returns ids whose boxes contain p, topmost z-index first.
// zIndexOf supplies the tie-break order.
func (s *spatialIndex) searchPoint(p geom.ImagePoint, zIndexOf func(id string) int) []string {
	ids := s.searchRect(p.X, p.Y, p.X, p.Y)
	sort.SliceStable(ids, func(i, j int) bool {
		return zIndexOf(ids[i]) > zIndexOf(ids[j])
	})
	return ids
}
