package annotation

import (
	"fmt"

	"github.com/annolab/workview/pkg/geom"
	"github.com/google/uuid"
)

// subTypes are the annotation types that attach to a parent annotation
// instead of standing alone.
var subTypes = []Type{TypeText, TypeAttributes, TypeAutoAnnotate}

// Annotation is the central entity of the editor: one labeled region of an
// image, or one keyframed region of a video. Geometry lives in exactly one of
// data (static) or video (time-varying), decided at construction.
type Annotation struct {
	ID              string
	ParentID        string
	ClassID         int64
	Type            Type
	WorkflowStageID int64
	Actors          []Actor

	// ZIndex is nil only for tag annotations.
	ZIndex *int

	data  Data
	video *VideoData

	// Subs holds sub-annotations of a static annotation. SubFrames holds them
	// per keyframe for a video annotation. Mirroring data/video, only one is
	// ever populated.
	Subs      []*Annotation
	SubFrames map[int][]*Annotation

	isVisible     bool
	isSelected    bool
	isHighlighted bool

	// Lazily computed, dropped by ClearCache.
	cachedBBox *geom.BBox

	// Single-entry memo for interpolated polygon frames.
	interpMemoKey  string
	interpMemoData Data
}

// Params carries the fields for NewFromParams. Data xor Video must be set.
type Params struct {
	ID              string // generated when empty
	ClassID         int64
	Type            Type
	Data            Data
	Video           *VideoData
	ZIndex          *int
	WorkflowStageID int64
	Actors          []Actor
	IsSelected      bool
	IsHighlighted   bool
}

// NewFromParams constructs a new user-drawn annotation.
func NewFromParams(p Params) (*Annotation, error) {
	if p.Type == "" {
		return nil, fmt.Errorf("annotation params missing type")
	}
	if (p.Data == nil) == (p.Video == nil) {
		return nil, fmt.Errorf("annotation params must set exactly one of data or video")
	}
	a := &Annotation{
		ID:              p.ID,
		ClassID:         p.ClassID,
		Type:            p.Type,
		WorkflowStageID: p.WorkflowStageID,
		Actors:          p.Actors,
		ZIndex:          p.ZIndex,
		data:            p.Data,
		video:           p.Video,
		isVisible:       true,
		isSelected:      p.IsSelected,
		isHighlighted:   p.IsHighlighted,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Type == TypeTag {
		a.isSelected = false
		a.isHighlighted = false
	}
	if a.video != nil {
		a.SubFrames = map[int][]*Annotation{}
	}
	return a, nil
}

// WrapVideo lifts single-frame data into the initial keyframe structure of a
// video annotation: one keyframe at the current frame and a one-frame
// visibility segment.
func WrapVideo(d Data, frameIndex int) *VideoData {
	return &VideoData{
		Frames:               map[int]Data{frameIndex: d},
		Segments:             []Segment{{frameIndex, frameIndex + 1}},
		Interpolated:         true,
		InterpolateAlgorithm: AlgorithmLinear11,
	}
}

// NewSubAnnotation constructs a sub-annotation attached to parent. It shares
// the parent's class and z order.
func NewSubAnnotation(t Type, parent *Annotation, d Data) *Annotation {
	return &Annotation{
		ID:              uuid.NewString(),
		ParentID:        parent.ID,
		ClassID:         parent.ClassID,
		Type:            t,
		WorkflowStageID: parent.WorkflowStageID,
		ZIndex:          parent.ZIndex,
		data:            d,
		isVisible:       true,
	}
}

// NewFromInference constructs an annotation from a model output. Inference
// results carry no z order or actors; the manager assigns those if the result
// is committed.
func NewFromInference(id string, t Type, classID int64, d Data) (*Annotation, error) {
	if d == nil {
		return nil, fmt.Errorf("inference result has no data")
	}
	if id == "" {
		id = uuid.NewString()
	}
	zero := 0
	return &Annotation{
		ID:        id,
		ClassID:   classID,
		Type:      t,
		ZIndex:    &zero,
		data:      d,
		isVisible: true,
	}, nil
}

// FromPayload deserializes a backend payload.
func FromPayload(p *Payload, reg *Registry) (*Annotation, error) {
	t, err := p.Data.ShapeType()
	if err != nil {
		return nil, fmt.Errorf("annotation %v: %w", p.ID, err)
	}
	a := &Annotation{
		ID:        p.ID,
		ClassID:   p.ClassID,
		Type:      t,
		Actors:    p.Actors,
		ZIndex:    p.ZIndex,
		isVisible: true,
	}

	if p.Data.IsVideo() {
		video := &VideoData{
			Frames:               map[int]Data{},
			Segments:             p.Data.Segments,
			Interpolated:         p.Data.Interpolated,
			InterpolateAlgorithm: p.Data.InterpolateAlgorithm,
		}
		a.SubFrames = map[int][]*Annotation{}
		for key, framePayload := range p.Data.Frames {
			idx, err := parseFrameKey(key)
			if err != nil {
				return nil, fmt.Errorf("annotation %v: %w", p.ID, err)
			}
			c, err := reg.Get(t)
			if err != nil {
				return nil, err
			}
			d, err := c.Deserialize(framePayload)
			if err != nil {
				return nil, fmt.Errorf("annotation %v frame %d: %w", p.ID, idx, err)
			}
			video.Frames[idx] = d
		}
		for key, subPayload := range p.Data.SubFrames {
			idx, err := parseFrameKey(key)
			if err != nil {
				return nil, fmt.Errorf("annotation %v: %w", p.ID, err)
			}
			subs, err := extractSubs(subPayload, a, reg)
			if err != nil {
				return nil, err
			}
			if len(subs) > 0 {
				a.SubFrames[idx] = subs
			}
		}
		a.video = video
		return a, nil
	}

	c, err := reg.Get(t)
	if err != nil {
		return nil, err
	}
	d, err := c.Deserialize(&p.Data)
	if err != nil {
		return nil, fmt.Errorf("annotation %v: %w", p.ID, err)
	}
	a.data = d
	subs, err := extractSubs(&p.Data, a, reg)
	if err != nil {
		return nil, err
	}
	a.Subs = subs
	return a, nil
}

// extractSubs builds sub-annotations from the sub-type fields of a payload.
func extractSubs(p *DataPayload, parent *Annotation, reg *Registry) ([]*Annotation, error) {
	var subs []*Annotation
	for _, t := range subTypes {
		if !hasSubField(p, t) {
			continue
		}
		c, err := reg.Get(t)
		if err != nil {
			return nil, err
		}
		d, err := c.Deserialize(p)
		if err != nil {
			return nil, fmt.Errorf("annotation %v sub %v: %w", parent.ID, t, err)
		}
		subs = append(subs, NewSubAnnotation(t, parent, d))
	}
	return subs, nil
}

func hasSubField(p *DataPayload, t Type) bool {
	switch t {
	case TypeText:
		return p.Text != nil
	case TypeAttributes:
		return p.Attributes != nil
	case TypeAutoAnnotate:
		return p.AutoAnnotate != nil
	}
	return false
}

// Type guards. Video and image are mutually exclusive; raster overlaps
// either.
func (a *Annotation) IsVideoAnnotation() bool { return a.video != nil }
func (a *Annotation) IsImageAnnotation() bool { return a.video == nil }
func (a *Annotation) IsRasterAnnotation() bool {
	return a.Type == TypeMask || a.Type == TypeRasterLayer
}

// StaticData is the geometry of an image annotation, nil for video.
func (a *Annotation) StaticData() Data { return a.data }

// Video is the keyframe structure of a video annotation, nil for image.
func (a *Annotation) Video() *VideoData { return a.video }

// SetStaticData replaces the geometry of an image annotation and drops caches.
func (a *Annotation) SetStaticData(d Data) {
	a.data = d
	a.ClearCache()
}

func (a *Annotation) IsVisible() bool     { return a.isVisible }
func (a *Annotation) IsSelected() bool    { return a.isSelected }
func (a *Annotation) IsHighlighted() bool { return a.isHighlighted }

func (a *Annotation) Show() { a.isVisible = true }
func (a *Annotation) Hide() { a.isVisible = false }

func (a *Annotation) Select()    { a.isSelected = true }
func (a *Annotation) Highlight() { a.isHighlighted = true }

// Deselect clears the annotation's selection along with the vertex-level
// selection flags of its current geometry.
func (a *Annotation) Deselect(reg *Registry) {
	a.isSelected = false
	if a.data != nil {
		reg.ClearVertexSelection(a.Type, a.data)
	}
	if a.video != nil {
		for _, d := range a.video.Frames {
			reg.ClearVertexSelection(a.Type, d)
		}
	}
}

func (a *Annotation) Unhighlight() { a.isHighlighted = false }

// InferredData is the effective geometry of a video annotation at one frame.
// Data is nil when the annotation is not present on that frame.
type InferredData struct {
	Data        Data
	Subs        []*Annotation
	Keyframe    bool
	SubKeyframe bool
	Algorithm   string
}

func emptyInferredData() InferredData {
	return InferredData{Algorithm: AlgorithmLinear11}
}

// InferVideoData resolves the annotation's geometry at frameIndex. On a
// keyframe the stored value is returned verbatim. Between keyframes the value
// is interpolated when the type supports it and interpolation is enabled,
// otherwise the previous keyframe is held. Outside all segments, or with only
// a keyframe on one side, the nearest keyframe is clamped to (no
// extrapolation).
func (a *Annotation) InferVideoData(frameIndex int, reg *Registry) InferredData {
	if a.video == nil {
		return emptyInferredData()
	}

	inRange := false
	for _, seg := range a.video.Segments {
		if seg.Contains(frameIndex) {
			inRange = true
			break
		}
	}
	if !inRange {
		return emptyInferredData()
	}

	frames := a.video.Frames
	algorithm := a.video.InterpolateAlgorithm

	if d, ok := frames[frameIndex]; ok {
		_, subKeyframe := a.SubFrames[frameIndex]
		return InferredData{
			Data:        d,
			Subs:        a.SubFrames[frameIndex],
			Keyframe:    true,
			SubKeyframe: subKeyframe,
			Algorithm:   algorithm,
		}
	}

	prevIdx, nextIdx := -1, -1
	for _, idx := range sortedFrameIndices(frames) {
		if idx < frameIndex {
			prevIdx = idx
		}
		if idx > frameIndex {
			nextIdx = idx
			break
		}
	}

	if prevIdx < 0 && nextIdx < 0 {
		return emptyInferredData()
	}
	if prevIdx < 0 {
		return InferredData{Data: frames[nextIdx], Algorithm: algorithm}
	}
	if nextIdx < 0 {
		return InferredData{Data: frames[prevIdx], Subs: a.SubFrames[prevIdx], Algorithm: algorithm}
	}

	c, err := reg.Get(a.Type)
	supported := err == nil && c.SupportsInterpolation
	if !supported || !a.video.Interpolated {
		return InferredData{Data: frames[prevIdx], Subs: a.SubFrames[prevIdx], Algorithm: algorithm}
	}

	params := InterpolationParams{
		Algorithm: algorithm,
		Factor:    float32(frameIndex-prevIdx) / float32(nextIdx-prevIdx),
	}
	if params.Algorithm == "" {
		params.Algorithm = AlgorithmLinear10
	}

	d, err := a.interpolateMemoized(frames[prevIdx], frames[nextIdx], params, reg)
	if err != nil || d == nil {
		return emptyInferredData()
	}
	return InferredData{Data: d, Subs: a.SubFrames[prevIdx], Algorithm: algorithm}
}

// interpolateMemoized caches the last interpolated polygon by a content hash
// of both keyframes plus the factor, so repeated renders of a paused frame
// skip the blend. Other types are cheap enough to recompute.
func (a *Annotation) interpolateMemoized(prev, next Data, params InterpolationParams, reg *Registry) (Data, error) {
	if a.Type != TypePolygon {
		return reg.Interpolate(a.Type, prev, next, params)
	}
	key := interpolationMemoKey(prev.(*Polygon), next.(*Polygon), params.Factor)
	if a.interpMemoKey == key && a.interpMemoData != nil {
		return a.interpMemoData, nil
	}
	d, err := reg.Interpolate(a.Type, prev, next, params)
	if err != nil {
		return nil, err
	}
	a.interpMemoKey = key
	a.interpMemoData = d
	return d, nil
}

// DataForFrame is the effective geometry at a frame: the static data of an
// image annotation, or the inferred frame value of a video one.
func (a *Annotation) DataForFrame(frameIndex int, reg *Registry) Data {
	if a.IsImageAnnotation() {
		return a.data
	}
	return a.InferVideoData(frameIndex, reg).Data
}

// BBox is the annotation's bounding box at a frame. Static results are cached
// until ClearCache.
func (a *Annotation) BBox(frameIndex int, reg *Registry) (geom.BBox, bool) {
	if a.IsImageAnnotation() && a.cachedBBox != nil {
		return *a.cachedBBox, true
	}
	d := a.DataForFrame(frameIndex, reg)
	if d == nil {
		return geom.BBox{}, false
	}
	c, err := reg.Get(a.Type)
	if err != nil || c.BBox == nil {
		return geom.BBox{}, false
	}
	box, ok := c.BBox(d)
	if ok && a.IsImageAnnotation() {
		a.cachedBBox = &box
	}
	return box, ok
}

// Centroid is the label anchor point of the annotation at a frame.
func (a *Annotation) Centroid(frameIndex int, reg *Registry) (geom.ImagePoint, bool) {
	d := a.DataForFrame(frameIndex, reg)
	if d == nil {
		return geom.ImagePoint{}, false
	}
	c, err := reg.Get(a.Type)
	if err != nil || c.Centroid == nil {
		return geom.ImagePoint{}, false
	}
	return c.Centroid(d)
}

// Serialize produces the backend-ready payload. Video annotations emit all
// keyframes tagged keyframe, plus per-frame sub-annotation payloads.
func (a *Annotation) Serialize(reg *Registry) (*Payload, error) {
	c, err := reg.Get(a.Type)
	if err != nil {
		return nil, err
	}
	out := &Payload{
		ID:      a.ID,
		ClassID: a.ClassID,
		Actors:  a.Actors,
		ZIndex:  a.ZIndex,
	}

	if a.IsImageAnnotation() {
		if a.data == nil {
			return nil, fmt.Errorf("annotation %v has no data", a.ID)
		}
		payload := c.Serialize(a.data)
		for _, sub := range a.Subs {
			if err := mergeSubPayload(payload, sub, reg); err != nil {
				return nil, err
			}
		}
		out.Data = *payload
		return out, nil
	}

	data := DataPayload{
		Frames:               map[string]*DataPayload{},
		SubFrames:            map[string]*DataPayload{},
		Segments:             a.video.Segments,
		Interpolated:         a.video.Interpolated,
		InterpolateAlgorithm: a.video.InterpolateAlgorithm,
	}
	for idx, frameData := range a.video.Frames {
		framePayload := c.Serialize(frameData)
		framePayload.Keyframe = true
		data.Frames[frameKey(idx)] = framePayload
	}
	for idx, subs := range a.SubFrames {
		if len(subs) == 0 {
			continue
		}
		subPayload := &DataPayload{Keyframe: true}
		for _, sub := range subs {
			if err := mergeSubPayload(subPayload, sub, reg); err != nil {
				return nil, err
			}
		}
		data.SubFrames[frameKey(idx)] = subPayload
	}
	out.Data = data
	return out, nil
}

func mergeSubPayload(into *DataPayload, sub *Annotation, reg *Registry) error {
	c, err := reg.Get(sub.Type)
	if err != nil {
		return err
	}
	p := c.Serialize(sub.data)
	switch sub.Type {
	case TypeText:
		into.Text = p.Text
	case TypeAttributes:
		into.Attributes = p.Attributes
	case TypeAutoAnnotate:
		into.AutoAnnotate = p.AutoAnnotate
	default:
		return fmt.Errorf("type %q cannot be a sub-annotation", sub.Type)
	}
	return nil
}

// ShallowClone copies the annotation head while sharing data and
// sub-annotations, for transient render-time overrides. Mutate the returned
// value, never its shared data.
func (a *Annotation) ShallowClone() *Annotation {
	clone := *a
	return &clone
}

// Clone deep-copies the annotation under a fresh id, for true duplication.
func (a *Annotation) Clone(reg *Registry) (*Annotation, error) {
	c, err := reg.Get(a.Type)
	if err != nil {
		return nil, err
	}
	clone := *a
	clone.ID = uuid.NewString()
	clone.cachedBBox = nil
	clone.interpMemoKey = ""
	clone.interpMemoData = nil

	if a.data != nil {
		clone.data = c.Clone(a.data)
	}
	if a.video != nil {
		video := *a.video
		video.Frames = make(map[int]Data, len(a.video.Frames))
		for idx, d := range a.video.Frames {
			video.Frames[idx] = c.Clone(d)
		}
		video.Segments = append([]Segment(nil), a.video.Segments...)
		clone.video = &video
	}

	clone.Subs = nil
	for _, sub := range a.Subs {
		subC, err := reg.Get(sub.Type)
		if err != nil {
			return nil, err
		}
		clone.Subs = append(clone.Subs, NewSubAnnotation(sub.Type, &clone, subC.Clone(sub.data)))
	}
	if a.SubFrames != nil {
		clone.SubFrames = make(map[int][]*Annotation, len(a.SubFrames))
		for idx, subs := range a.SubFrames {
			for _, sub := range subs {
				subC, err := reg.Get(sub.Type)
				if err != nil {
					return nil, err
				}
				clone.SubFrames[idx] = append(clone.SubFrames[idx],
					NewSubAnnotation(sub.Type, &clone, subC.Clone(sub.data)))
			}
		}
	}
	return &clone, nil
}

// ClearCache drops lazily computed values after a geometry mutation.
func (a *Annotation) ClearCache() {
	a.cachedBBox = nil
	a.interpMemoKey = ""
	a.interpMemoData = nil
}

// Clear detaches the annotation's data when it is removed from its manager.
func (a *Annotation) Clear() {
	a.ClearCache()
	a.data = nil
	a.video = nil
	a.Subs = nil
	a.SubFrames = nil
}
