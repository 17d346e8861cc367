// Package annotation holds the in-memory model of a labeled region: its
// geometric data (static or keyframed over video time), sub-annotations,
// serialization to and from backend payloads, and interpolation between
// keyframes.
package annotation

import (
	"github.com/annolab/workview/pkg/geom"
)

// Type enumerates the known annotation kinds. The set is closed: behaviors
// are looked up in a Registry, and resolving an unregistered type yields an
// explicit not-found result, never a crash.
type Type string

const (
	TypeBoundingBox Type = "bounding_box"
	TypePolygon     Type = "polygon"
	TypeEllipse     Type = "ellipse"
	TypePolyline    Type = "line"
	TypeKeypoint    Type = "keypoint"
	TypeMask        Type = "mask"
	TypeRasterLayer Type = "raster_layer"
	TypeTag         Type = "tag"

	// Sub-annotation types
	TypeText         Type = "text"
	TypeAttributes   Type = "attributes"
	TypeAutoAnnotate Type = "auto_annotate"
)

// Data is the geometric payload of an annotation at one instant in time.
// Exactly one concrete shape type implements it per annotation.
type Data interface {
	DataType() Type
}

// BoundingBox is four linked corner vertices.
type BoundingBox struct {
	TopLeft     geom.EditablePoint[geom.ImageSpace]
	TopRight    geom.EditablePoint[geom.ImageSpace]
	BottomRight geom.EditablePoint[geom.ImageSpace]
	BottomLeft  geom.EditablePoint[geom.ImageSpace]
}

func (*BoundingBox) DataType() Type { return TypeBoundingBox }

func NewBoundingBox(r geom.ImageRect) *BoundingBox {
	return &BoundingBox{
		TopLeft:     geom.Editable(r.TopLeft()),
		TopRight:    geom.Editable(r.TopRight()),
		BottomRight: geom.Editable(r.BottomRight()),
		BottomLeft:  geom.Editable(r.BottomLeft()),
	}
}

// Rect is the normalized rectangle spanned by the corners.
func (b *BoundingBox) Rect() geom.ImageRect {
	return geom.RectFromPoints(b.TopLeft.Point, b.BottomRight.Point)
}

// Polygon is a closed path, optionally with additional paths (holes or
// disjoint parts of a complex polygon).
type Polygon struct {
	Path            geom.Path
	AdditionalPaths []geom.Path
}

func (*Polygon) DataType() Type { return TypePolygon }

// Ellipse is stored as a center plus four axis-end vertices, which is what
// vertex editing manipulates. The wire form is center/radius/angle.
type Ellipse struct {
	Center geom.EditablePoint[geom.ImageSpace]
	Top    geom.EditablePoint[geom.ImageSpace]
	Right  geom.EditablePoint[geom.ImageSpace]
	Bottom geom.EditablePoint[geom.ImageSpace]
	Left   geom.EditablePoint[geom.ImageSpace]
}

func (*Ellipse) DataType() Type { return TypeEllipse }

// RadiusX is the horizontal semi-axis length.
func (e *Ellipse) RadiusX() float32 {
	return e.Right.Point.Distance(e.Center.Point)
}

// RadiusY is the vertical semi-axis length.
func (e *Ellipse) RadiusY() float32 {
	return e.Top.Point.Distance(e.Center.Point)
}

// Polyline is an open path.
type Polyline struct {
	Path geom.Path
}

func (*Polyline) DataType() Type { return TypePolyline }

// Keypoint is a single labeled vertex.
type Keypoint struct {
	Point geom.EditablePoint[geom.ImageSpace]
}

func (*Keypoint) DataType() Type { return TypeKeypoint }

// Mask references one label inside a view's shared raster. The bounding box
// is cached from the raster's runs so selection doesn't need a pixel scan.
// RasterID is resolved locally from the raster layer's id mapping and is not
// part of the wire form.
type Mask struct {
	RasterID    string
	SparseRLE   []int
	BoundingBox *geom.BBox
}

func (*Mask) DataType() Type { return TypeMask }

// RasterLayer is the backing bitmap shared by the mask annotations of a view.
// MaskAnnotationIDMapping maps mask annotation ids to their label values
// within the dense run-length encoding.
type RasterLayer struct {
	RasterID                string
	MaskAnnotationIDMapping map[string]int
	DenseRLE                []int
	TotalPixels             int
}

func (*RasterLayer) DataType() Type { return TypeRasterLayer }

// Tag has no spatial data; it labels the whole item.
type Tag struct{}

func (*Tag) DataType() Type { return TypeTag }

// Text is a sub-annotation: free text attached to a parent.
type Text struct {
	Text string
}

func (*Text) DataType() Type { return TypeText }

// Attributes is a sub-annotation: attribute class ids attached to a parent.
type Attributes struct {
	AttributeIDs []string
}

func (*Attributes) DataType() Type { return TypeAttributes }

// AutoAnnotate is a sub-annotation recording the clicker provenance of a
// shape: the crop it was inferred within, the correction clicks, and the model.
type AutoAnnotate struct {
	Clicks []Click
	BBox   geom.ImageRect
	Model  string
}

func (*AutoAnnotate) DataType() Type { return TypeAutoAnnotate }

// Click is a single positive or negative clicker correction.
type Click struct {
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Kind string  `json:"type"` // "add" or "remove"
}

// Segment is a [Start,End) frame range during which a video annotation is
// present.
type Segment [2]int

func (s Segment) Contains(frame int) bool {
	return frame >= s[0] && frame < s[1]
}

// VideoData is the time-varying payload of a video annotation: explicit
// keyframes, visibility segments, and the interpolation setting for the gaps.
type VideoData struct {
	Frames               map[int]Data
	Segments             []Segment
	Interpolated         bool
	InterpolateAlgorithm string // "linear-1.0" or "linear-1.1"
}

// Actor associates a user and role with an annotation.
type Actor struct {
	Role   string `json:"role"`
	UserID int64  `json:"user_id"`
}
