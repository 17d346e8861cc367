package annotation

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/annolab/workview/pkg/geom"
)

// Payload is the wire form of an annotation, as sent to and received from the
// backend.
type Payload struct {
	ID      string      `json:"id"`
	ClassID int64       `json:"annotation_class_id"`
	Data    DataPayload `json:"data"`
	Actors  []Actor     `json:"actors,omitempty"`
	ZIndex  *int        `json:"z_index"`
}

// DataPayload is the union wire form of annotation data. Exactly one of the
// shape fields is set for a static payload. A video payload instead carries
// Frames/SubFrames/Segments, where each frame value is itself a static
// DataPayload.
type DataPayload struct {
	BoundingBox  *BoundingBoxPayload  `json:"bounding_box,omitempty"`
	Polygon      *PolygonPayload      `json:"polygon,omitempty"`
	Ellipse      *EllipsePayload      `json:"ellipse,omitempty"`
	Line         *PathPayload         `json:"line,omitempty"`
	Keypoint     *geom.ImagePoint     `json:"keypoint,omitempty"`
	Mask         *MaskPayload         `json:"mask,omitempty"`
	RasterLayer  *RasterLayerPayload  `json:"raster_layer,omitempty"`
	Tag          *TagPayload          `json:"tag,omitempty"`
	Text         *TextPayload         `json:"text,omitempty"`
	Attributes   *AttributesPayload   `json:"attributes,omitempty"`
	AutoAnnotate *AutoAnnotatePayload `json:"auto_annotate,omitempty"`

	// Set on frame payloads inside a video's Frames map to mark an explicit
	// keyframe, as opposed to a value synthesized by interpolation.
	Keyframe bool `json:"keyframe,omitempty"`

	// Video fields. Frame indices are JSON object keys, so they travel as
	// strings.
	Frames               map[string]*DataPayload `json:"frames,omitempty"`
	SubFrames            map[string]*DataPayload `json:"sub_frames,omitempty"`
	Segments             []Segment               `json:"segments,omitempty"`
	Interpolated         bool                    `json:"interpolated,omitempty"`
	InterpolateAlgorithm string                  `json:"interpolate_algorithm,omitempty"`
}

// IsVideo reports whether the payload carries per-frame data.
func (d *DataPayload) IsVideo() bool {
	return d.Frames != nil
}

// ShapeType is the annotation type implied by which shape field is set.
// For video payloads it inspects the first keyframe.
func (d *DataPayload) ShapeType() (Type, error) {
	if d.IsVideo() {
		for _, frame := range d.Frames {
			return frame.ShapeType()
		}
		return "", fmt.Errorf("video payload has no keyframes")
	}
	switch {
	case d.BoundingBox != nil:
		return TypeBoundingBox, nil
	case d.Polygon != nil:
		return TypePolygon, nil
	case d.Ellipse != nil:
		return TypeEllipse, nil
	case d.Line != nil:
		return TypePolyline, nil
	case d.Keypoint != nil:
		return TypeKeypoint, nil
	case d.Mask != nil:
		return TypeMask, nil
	case d.RasterLayer != nil:
		return TypeRasterLayer, nil
	case d.Tag != nil:
		return TypeTag, nil
	case d.Text != nil:
		return TypeText, nil
	case d.Attributes != nil:
		return TypeAttributes, nil
	case d.AutoAnnotate != nil:
		return TypeAutoAnnotate, nil
	}
	return "", fmt.Errorf("payload carries no recognized shape")
}

type BoundingBoxPayload struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	W float32 `json:"w"`
	H float32 `json:"h"`
}

type PolygonPayload struct {
	Path            []geom.ImagePoint   `json:"path"`
	AdditionalPaths [][]geom.ImagePoint `json:"additional_paths,omitempty"`
}

type EllipsePayload struct {
	Angle  float32         `json:"angle"`
	Center geom.ImagePoint `json:"center"`
	Radius geom.ImagePoint `json:"radius"`
}

type PathPayload struct {
	Path []geom.ImagePoint `json:"path"`
}

type MaskPayload struct {
	SparseRLE   []int               `json:"sparse_rle"`
	BoundingBox *BoundingBoxPayload `json:"bounding_box,omitempty"`
}

type RasterLayerPayload struct {
	MaskAnnotationIDMapping map[string]int `json:"mask_annotation_ids_mapping"`
	TotalPixels             int            `json:"total_pixels"`
	DenseRLE                []int          `json:"dense_rle"`
}

type TagPayload struct{}

type TextPayload struct {
	Text string `json:"text"`
}

type AttributesPayload struct {
	Attributes []string `json:"attributes"`
}

type AutoAnnotatePayload struct {
	Clicks []Click        `json:"clicks"`
	BBox   geom.ImageRect `json:"bbox"`
	Model  string         `json:"model"`
}

// frameKey converts a frame index to its JSON object key.
func frameKey(frame int) string {
	return strconv.Itoa(frame)
}

// parseFrameKey converts a JSON object key back to a frame index.
func parseFrameKey(key string) (int, error) {
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("invalid frame index %q: %w", key, err)
	}
	return n, nil
}

// sortedFrameIndices returns the keyframe indices of a frames map in
// ascending order.
func sortedFrameIndices[V any](frames map[int]V) []int {
	indices := make([]int, 0, len(frames))
	for idx := range frames {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}
