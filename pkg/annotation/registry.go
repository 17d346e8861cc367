package annotation

import (
	"errors"
	"fmt"

	"github.com/annolab/workview/pkg/geom"
	"github.com/chewxy/math32"
)

// ErrUnknownType is returned when resolving a type that has no registered
// capability. The type set is extensible, so lookups fail explicitly instead
// of assuming exhaustiveness.
var ErrUnknownType = errors.New("unknown annotation type")

// keypointHitRadius pads a keypoint's bounding box so a single vertex is
// clickable.
const keypointHitRadius = 5

// Capability bundles the per-type behaviors the engine needs: wire
// serialization, geometry queries for hit testing and the spatial index, and
// keyframe interpolation.
type Capability struct {
	Type Type

	Serialize   func(Data) *DataPayload
	Deserialize func(*DataPayload) (Data, error)
	Clone       func(Data) Data

	// BBox returns false when the type has no spatial extent (tags, text).
	BBox          func(Data) (geom.BBox, bool)
	ContainsPoint func(Data, geom.ImagePoint) bool
	Centroid      func(Data) (geom.ImagePoint, bool)
	Vertices      func(Data) []*geom.EditablePoint[geom.ImageSpace]
	Translate     func(Data, geom.ImagePoint)

	SupportsInterpolation bool
	Interpolate           func(reg *Registry, prev, next Data, params InterpolationParams) (Data, error)
}

// Registry resolves annotation types to their capabilities. A fresh Registry
// knows all built-in types; tools may register additional ones.
type Registry struct {
	capabilities map[Type]*Capability
}

func NewRegistry() *Registry {
	r := &Registry{capabilities: map[Type]*Capability{}}
	r.registerBuiltins()
	return r
}

// Register adds or replaces the capability for a type.
func (r *Registry) Register(c *Capability) {
	r.capabilities[c.Type] = c
}

// Get resolves the capability for a type.
func (r *Registry) Get(t Type) (*Capability, error) {
	c, ok := r.capabilities[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return c, nil
}

// Interpolate blends two keyframes of the same type. The caller guarantees
// prev and next have the same concrete type.
func (r *Registry) Interpolate(t Type, prev, next Data, params InterpolationParams) (Data, error) {
	c, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	if !c.SupportsInterpolation || c.Interpolate == nil {
		return nil, fmt.Errorf("type %q does not support interpolation", t)
	}
	if params.Algorithm != "" && params.Algorithm != AlgorithmLinear10 && params.Algorithm != AlgorithmLinear11 {
		return nil, fmt.Errorf("type %q does not support %q interpolation", t, params.Algorithm)
	}
	return c.Interpolate(r, prev, next, params)
}

func (r *Registry) registerBuiltins() {
	r.Register(boundingBoxCapability())
	r.Register(polygonCapability())
	r.Register(ellipseCapability())
	r.Register(polylineCapability())
	r.Register(keypointCapability())
	r.Register(maskCapability())
	r.Register(rasterLayerCapability())
	r.Register(tagCapability())
	r.Register(textCapability())
	r.Register(attributesCapability())
	r.Register(autoAnnotateCapability())
}

func boundingBoxCapability() *Capability {
	return &Capability{
		Type: TypeBoundingBox,
		Serialize: func(d Data) *DataPayload {
			b := d.(*BoundingBox)
			rect := b.Rect()
			return &DataPayload{BoundingBox: &BoundingBoxPayload{
				X: rect.X1, Y: rect.Y1, W: rect.Width(), H: rect.Height(),
			}}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.BoundingBox == nil {
				return nil, fmt.Errorf("payload has no bounding_box field")
			}
			bb := p.BoundingBox
			return NewBoundingBox(geom.ImageRect{
				X1: bb.X, Y1: bb.Y, X2: bb.X + bb.W, Y2: bb.Y + bb.H,
			}), nil
		},
		Clone: func(d Data) Data {
			b := *d.(*BoundingBox)
			return &b
		},
		BBox: func(d Data) (geom.BBox, bool) {
			return geom.BBoxOfRect(d.(*BoundingBox).Rect()), true
		},
		ContainsPoint: func(d Data, p geom.ImagePoint) bool {
			return d.(*BoundingBox).Rect().Contains(p)
		},
		Centroid: func(d Data) (geom.ImagePoint, bool) {
			return d.(*BoundingBox).Rect().Center(), true
		},
		Vertices: func(d Data) []*geom.EditablePoint[geom.ImageSpace] {
			b := d.(*BoundingBox)
			return []*geom.EditablePoint[geom.ImageSpace]{&b.TopLeft, &b.TopRight, &b.BottomRight, &b.BottomLeft}
		},
		Translate: func(d Data, offset geom.ImagePoint) {
			b := d.(*BoundingBox)
			b.TopLeft.Shift(offset)
			b.TopRight.Shift(offset)
			b.BottomRight.Shift(offset)
			b.BottomLeft.Shift(offset)
		},
		SupportsInterpolation: true,
		Interpolate: func(_ *Registry, prev, next Data, params InterpolationParams) (Data, error) {
			a, b := prev.(*BoundingBox), next.(*BoundingBox)
			return &BoundingBox{
				TopLeft:     lerpEditable(a.TopLeft, b.TopLeft, params.Factor),
				TopRight:    lerpEditable(a.TopRight, b.TopRight, params.Factor),
				BottomRight: lerpEditable(a.BottomRight, b.BottomRight, params.Factor),
				BottomLeft:  lerpEditable(a.BottomLeft, b.BottomLeft, params.Factor),
			}, nil
		},
	}
}

func polygonCapability() *Capability {
	return &Capability{
		Type: TypePolygon,
		Serialize: func(d Data) *DataPayload {
			poly := d.(*Polygon)
			payload := &PolygonPayload{Path: poly.Path.Points()}
			for _, p := range poly.AdditionalPaths {
				payload.AdditionalPaths = append(payload.AdditionalPaths, p.Points())
			}
			return &DataPayload{Polygon: payload}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.Polygon == nil {
				return nil, fmt.Errorf("payload has no polygon field")
			}
			poly := &Polygon{Path: geom.MakePath(p.Polygon.Path)}
			for _, path := range p.Polygon.AdditionalPaths {
				poly.AdditionalPaths = append(poly.AdditionalPaths, geom.MakePath(path))
			}
			return poly, nil
		},
		Clone: func(d Data) Data {
			return clonePolygon(d.(*Polygon))
		},
		BBox: func(d Data) (geom.BBox, bool) {
			poly := d.(*Polygon)
			box := geom.BBoxOfPath(poly.Path)
			for _, p := range poly.AdditionalPaths {
				box = unionBBox(box, geom.BBoxOfPath(p))
			}
			return box, len(poly.Path) > 0
		},
		ContainsPoint: func(d Data, p geom.ImagePoint) bool {
			poly := d.(*Polygon)
			if geom.PathContainsPoint(poly.Path, p) {
				return true
			}
			for _, path := range poly.AdditionalPaths {
				if geom.PathContainsPoint(path, p) {
					return true
				}
			}
			return false
		},
		Centroid: func(d Data) (geom.ImagePoint, bool) {
			poly := d.(*Polygon)
			if len(poly.Path) == 0 {
				return geom.ImagePoint{}, false
			}
			return geom.Centroid(poly.Path), true
		},
		Vertices: func(d Data) []*geom.EditablePoint[geom.ImageSpace] {
			poly := d.(*Polygon)
			var out []*geom.EditablePoint[geom.ImageSpace]
			for i := range poly.Path {
				out = append(out, &poly.Path[i])
			}
			for _, path := range poly.AdditionalPaths {
				for i := range path {
					out = append(out, &path[i])
				}
			}
			return out
		},
		Translate: func(d Data, offset geom.ImagePoint) {
			poly := d.(*Polygon)
			for i := range poly.Path {
				poly.Path[i].Shift(offset)
			}
			for _, path := range poly.AdditionalPaths {
				for i := range path {
					path[i].Shift(offset)
				}
			}
		},
		SupportsInterpolation: true,
		Interpolate: func(_ *Registry, prev, next Data, params InterpolationParams) (Data, error) {
			return interpolatePolygon(prev.(*Polygon), next.(*Polygon), params), nil
		},
	}
}

func ellipseCapability() *Capability {
	return &Capability{
		Type: TypeEllipse,
		Serialize: func(d Data) *DataPayload {
			e := d.(*Ellipse)
			right := e.Right.Point.Sub(e.Center.Point)
			return &DataPayload{Ellipse: &EllipsePayload{
				Angle:  math32.Atan2(right.Y, right.X),
				Center: e.Center.Point,
				Radius: geom.ImagePoint{X: e.RadiusX(), Y: e.RadiusY()},
			}}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.Ellipse == nil {
				return nil, fmt.Errorf("payload has no ellipse field")
			}
			return ellipseFromPayload(p.Ellipse), nil
		},
		Clone: func(d Data) Data {
			e := *d.(*Ellipse)
			return &e
		},
		BBox: func(d Data) (geom.BBox, bool) {
			e := d.(*Ellipse)
			right := e.Right.Point.Sub(e.Center.Point)
			angle := math32.Atan2(right.Y, right.X)
			rx, ry := e.RadiusX(), e.RadiusY()
			// Exact extents of a rotated ellipse.
			w := 2 * math32.Sqrt(sq(rx*math32.Cos(angle))+sq(ry*math32.Sin(angle)))
			h := 2 * math32.Sqrt(sq(rx*math32.Sin(angle))+sq(ry*math32.Cos(angle)))
			return geom.BBox{X: e.Center.X, Y: e.Center.Y, Width: w, Height: h}, true
		},
		ContainsPoint: func(d Data, p geom.ImagePoint) bool {
			e := d.(*Ellipse)
			rx, ry := e.RadiusX(), e.RadiusY()
			if rx == 0 || ry == 0 {
				return false
			}
			right := e.Right.Point.Sub(e.Center.Point)
			angle := math32.Atan2(right.Y, right.X)
			rel := p.Sub(e.Center.Point)
			localX := rel.X*math32.Cos(-angle) - rel.Y*math32.Sin(-angle)
			localY := rel.X*math32.Sin(-angle) + rel.Y*math32.Cos(-angle)
			return sq(localX/rx)+sq(localY/ry) <= 1
		},
		Centroid: func(d Data) (geom.ImagePoint, bool) {
			return d.(*Ellipse).Center.Point, true
		},
		Vertices: func(d Data) []*geom.EditablePoint[geom.ImageSpace] {
			e := d.(*Ellipse)
			return []*geom.EditablePoint[geom.ImageSpace]{&e.Center, &e.Top, &e.Right, &e.Bottom, &e.Left}
		},
		Translate: func(d Data, offset geom.ImagePoint) {
			e := d.(*Ellipse)
			e.Center.Shift(offset)
			e.Top.Shift(offset)
			e.Right.Shift(offset)
			e.Bottom.Shift(offset)
			e.Left.Shift(offset)
		},
		SupportsInterpolation: true,
		Interpolate: func(_ *Registry, prev, next Data, params InterpolationParams) (Data, error) {
			a, b := prev.(*Ellipse), next.(*Ellipse)
			return &Ellipse{
				Center: lerpEditable(a.Center, b.Center, params.Factor),
				Top:    lerpEditable(a.Top, b.Top, params.Factor),
				Right:  lerpEditable(a.Right, b.Right, params.Factor),
				Bottom: lerpEditable(a.Bottom, b.Bottom, params.Factor),
				Left:   lerpEditable(a.Left, b.Left, params.Factor),
			}, nil
		},
	}
}

// ellipseFromPayload reconstructs axis-end vertices from the wire form.
func ellipseFromPayload(p *EllipsePayload) *Ellipse {
	ux := geom.ImagePoint{X: math32.Cos(p.Angle), Y: math32.Sin(p.Angle)}
	uy := geom.ImagePoint{X: -math32.Sin(p.Angle), Y: math32.Cos(p.Angle)}
	return &Ellipse{
		Center: geom.Editable(p.Center),
		Right:  geom.Editable(p.Center.Add(ux.Mul(p.Radius.X))),
		Left:   geom.Editable(p.Center.Sub(ux.Mul(p.Radius.X))),
		Bottom: geom.Editable(p.Center.Add(uy.Mul(p.Radius.Y))),
		Top:    geom.Editable(p.Center.Sub(uy.Mul(p.Radius.Y))),
	}
}

func polylineCapability() *Capability {
	return &Capability{
		Type: TypePolyline,
		Serialize: func(d Data) *DataPayload {
			return &DataPayload{Line: &PathPayload{Path: d.(*Polyline).Path.Points()}}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.Line == nil {
				return nil, fmt.Errorf("payload has no line field")
			}
			return &Polyline{Path: geom.MakePath(p.Line.Path)}, nil
		},
		Clone: func(d Data) Data {
			return &Polyline{Path: d.(*Polyline).Path.Clone()}
		},
		BBox: func(d Data) (geom.BBox, bool) {
			line := d.(*Polyline)
			return geom.BBoxOfPath(line.Path), len(line.Path) > 0
		},
		Centroid: func(d Data) (geom.ImagePoint, bool) {
			line := d.(*Polyline)
			if len(line.Path) == 0 {
				return geom.ImagePoint{}, false
			}
			return geom.Centroid(line.Path), true
		},
		Vertices: func(d Data) []*geom.EditablePoint[geom.ImageSpace] {
			line := d.(*Polyline)
			var out []*geom.EditablePoint[geom.ImageSpace]
			for i := range line.Path {
				out = append(out, &line.Path[i])
			}
			return out
		},
		Translate: func(d Data, offset geom.ImagePoint) {
			line := d.(*Polyline)
			for i := range line.Path {
				line.Path[i].Shift(offset)
			}
		},
	}
}

func keypointCapability() *Capability {
	return &Capability{
		Type: TypeKeypoint,
		Serialize: func(d Data) *DataPayload {
			p := d.(*Keypoint).Point.Point
			return &DataPayload{Keypoint: &p}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.Keypoint == nil {
				return nil, fmt.Errorf("payload has no keypoint field")
			}
			return &Keypoint{Point: geom.Editable(*p.Keypoint)}, nil
		},
		Clone: func(d Data) Data {
			k := *d.(*Keypoint)
			return &k
		},
		BBox: func(d Data) (geom.BBox, bool) {
			k := d.(*Keypoint)
			return geom.BBox{
				X: k.Point.X, Y: k.Point.Y,
				Width: keypointHitRadius * 2, Height: keypointHitRadius * 2,
			}, true
		},
		ContainsPoint: func(d Data, p geom.ImagePoint) bool {
			return d.(*Keypoint).Point.Point.Distance(p) <= keypointHitRadius
		},
		Centroid: func(d Data) (geom.ImagePoint, bool) {
			return d.(*Keypoint).Point.Point, true
		},
		Vertices: func(d Data) []*geom.EditablePoint[geom.ImageSpace] {
			return []*geom.EditablePoint[geom.ImageSpace]{&d.(*Keypoint).Point}
		},
		Translate: func(d Data, offset geom.ImagePoint) {
			d.(*Keypoint).Point.Shift(offset)
		},
		SupportsInterpolation: true,
		Interpolate: func(_ *Registry, prev, next Data, params InterpolationParams) (Data, error) {
			a, b := prev.(*Keypoint), next.(*Keypoint)
			return &Keypoint{Point: lerpEditable(a.Point, b.Point, params.Factor)}, nil
		},
	}
}

func maskCapability() *Capability {
	return &Capability{
		Type: TypeMask,
		Serialize: func(d Data) *DataPayload {
			m := d.(*Mask)
			payload := &MaskPayload{SparseRLE: m.SparseRLE}
			if m.BoundingBox != nil {
				payload.BoundingBox = &BoundingBoxPayload{
					X: m.BoundingBox.MinX(), Y: m.BoundingBox.MinY(),
					W: m.BoundingBox.Width, H: m.BoundingBox.Height,
				}
			}
			return &DataPayload{Mask: payload}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.Mask == nil {
				return nil, fmt.Errorf("payload has no mask field")
			}
			m := &Mask{SparseRLE: p.Mask.SparseRLE}
			if bb := p.Mask.BoundingBox; bb != nil {
				m.BoundingBox = &geom.BBox{
					X: bb.X + bb.W/2, Y: bb.Y + bb.H/2, Width: bb.W, Height: bb.H,
				}
			}
			return m, nil
		},
		Clone: func(d Data) Data {
			m := *d.(*Mask)
			if m.BoundingBox != nil {
				box := *m.BoundingBox
				m.BoundingBox = &box
			}
			return &m
		},
		BBox: func(d Data) (geom.BBox, bool) {
			m := d.(*Mask)
			if m.BoundingBox == nil {
				return geom.BBox{}, false
			}
			return *m.BoundingBox, true
		},
		Centroid: func(d Data) (geom.ImagePoint, bool) {
			m := d.(*Mask)
			if m.BoundingBox == nil {
				return geom.ImagePoint{}, false
			}
			return geom.ImagePoint{X: m.BoundingBox.X, Y: m.BoundingBox.Y}, true
		},
	}
}

func rasterLayerCapability() *Capability {
	return &Capability{
		Type: TypeRasterLayer,
		Serialize: func(d Data) *DataPayload {
			r := d.(*RasterLayer)
			return &DataPayload{RasterLayer: &RasterLayerPayload{
				MaskAnnotationIDMapping: r.MaskAnnotationIDMapping,
				TotalPixels:             r.TotalPixels,
				DenseRLE:                r.DenseRLE,
			}}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.RasterLayer == nil {
				return nil, fmt.Errorf("payload has no raster_layer field")
			}
			return &RasterLayer{
				MaskAnnotationIDMapping: p.RasterLayer.MaskAnnotationIDMapping,
				TotalPixels:             p.RasterLayer.TotalPixels,
				DenseRLE:                p.RasterLayer.DenseRLE,
			}, nil
		},
		Clone: func(d Data) Data {
			r := d.(*RasterLayer)
			out := &RasterLayer{
				RasterID:                r.RasterID,
				MaskAnnotationIDMapping: make(map[string]int, len(r.MaskAnnotationIDMapping)),
				DenseRLE:                append([]int(nil), r.DenseRLE...),
				TotalPixels:             r.TotalPixels,
			}
			for k, v := range r.MaskAnnotationIDMapping {
				out.MaskAnnotationIDMapping[k] = v
			}
			return out
		},
	}
}

func tagCapability() *Capability {
	return &Capability{
		Type: TypeTag,
		Serialize: func(Data) *DataPayload {
			return &DataPayload{Tag: &TagPayload{}}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.Tag == nil {
				return nil, fmt.Errorf("payload has no tag field")
			}
			return &Tag{}, nil
		},
		Clone: func(Data) Data { return &Tag{} },
	}
}

func textCapability() *Capability {
	return &Capability{
		Type: TypeText,
		Serialize: func(d Data) *DataPayload {
			return &DataPayload{Text: &TextPayload{Text: d.(*Text).Text}}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.Text == nil {
				return nil, fmt.Errorf("payload has no text field")
			}
			return &Text{Text: p.Text.Text}, nil
		},
		Clone: func(d Data) Data {
			t := *d.(*Text)
			return &t
		},
	}
}

func attributesCapability() *Capability {
	return &Capability{
		Type: TypeAttributes,
		Serialize: func(d Data) *DataPayload {
			return &DataPayload{Attributes: &AttributesPayload{
				Attributes: d.(*Attributes).AttributeIDs,
			}}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.Attributes == nil {
				return nil, fmt.Errorf("payload has no attributes field")
			}
			return &Attributes{AttributeIDs: p.Attributes.Attributes}, nil
		},
		Clone: func(d Data) Data {
			return &Attributes{AttributeIDs: append([]string(nil), d.(*Attributes).AttributeIDs...)}
		},
	}
}

func autoAnnotateCapability() *Capability {
	return &Capability{
		Type: TypeAutoAnnotate,
		Serialize: func(d Data) *DataPayload {
			a := d.(*AutoAnnotate)
			return &DataPayload{AutoAnnotate: &AutoAnnotatePayload{
				Clicks: a.Clicks, BBox: a.BBox, Model: a.Model,
			}}
		},
		Deserialize: func(p *DataPayload) (Data, error) {
			if p.AutoAnnotate == nil {
				return nil, fmt.Errorf("payload has no auto_annotate field")
			}
			return &AutoAnnotate{
				Clicks: p.AutoAnnotate.Clicks,
				BBox:   p.AutoAnnotate.BBox,
				Model:  p.AutoAnnotate.Model,
			}, nil
		},
		Clone: func(d Data) Data {
			a := *d.(*AutoAnnotate)
			a.Clicks = append([]Click(nil), a.Clicks...)
			return &a
		},
	}
}

func clonePolygon(poly *Polygon) *Polygon {
	out := &Polygon{Path: poly.Path.Clone()}
	for _, p := range poly.AdditionalPaths {
		out.AdditionalPaths = append(out.AdditionalPaths, p.Clone())
	}
	return out
}

func sq(v float32) float32 { return v * v }

func unionBBox(a, b geom.BBox) geom.BBox {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	minX := min(a.MinX(), b.MinX())
	minY := min(a.MinY(), b.MinY())
	maxX := max(a.MaxX(), b.MaxX())
	maxY := max(a.MaxY(), b.MaxY())
	return geom.BBox{
		X: (minX + maxX) / 2, Y: (minY + maxY) / 2,
		Width: maxX - minX, Height: maxY - minY,
	}
}

// ClearVertexSelection drops the per-vertex selection flags of a shape, used
// when its annotation is deselected.
func (r *Registry) ClearVertexSelection(t Type, d Data) {
	c, err := r.Get(t)
	if err != nil || c.Vertices == nil {
		return
	}
	for _, v := range c.Vertices(d) {
		v.IsSelected = false
		v.IsHighlighted = false
	}
}
