// Package inference is the client to the model-serving collaborator used by
// the clicker (auto-annotate) tool.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
)

// ImageRef points the model at the content to segment, either by URL or
// inline base64.
type ImageRef struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// Request asks a model for shapes within a crop, optionally refined by
// positive/negative correction clicks.
type Request struct {
	Image     ImageRef           `json:"image"`
	BBox      geom.ImageRect     `json:"bbox"`
	Clicks    []annotation.Click `json:"clicks,omitempty"`
	Threshold float32            `json:"threshold,omitempty"`
}

// Result is one shape proposed by the model. Exactly one geometry field is
// expected to be set.
type Result struct {
	Label          string              `json:"label,omitempty"`
	Confidence     float32             `json:"confidence,omitempty"`
	Path           []geom.ImagePoint   `json:"path,omitempty"`
	ComplexPolygon [][]geom.ImagePoint `json:"complex_polygon,omitempty"`
	BoundingBox    *struct {
		X float32 `json:"x"`
		Y float32 `json:"y"`
		W float32 `json:"w"`
		H float32 `json:"h"`
	} `json:"bounding_box,omitempty"`
}

// Data converts the model output into annotation geometry.
func (r *Result) Data() (annotation.Data, annotation.Type, error) {
	switch {
	case len(r.ComplexPolygon) > 0:
		poly := &annotation.Polygon{Path: geom.MakePath(r.ComplexPolygon[0])}
		for _, path := range r.ComplexPolygon[1:] {
			poly.AdditionalPaths = append(poly.AdditionalPaths, geom.MakePath(path))
		}
		return poly, annotation.TypePolygon, nil
	case len(r.Path) > 0:
		return &annotation.Polygon{Path: geom.MakePath(r.Path)}, annotation.TypePolygon, nil
	case r.BoundingBox != nil:
		bb := r.BoundingBox
		return annotation.NewBoundingBox(geom.ImageRect{
			X1: bb.X, Y1: bb.Y, X2: bb.X + bb.W, Y2: bb.Y + bb.H,
		}), annotation.TypeBoundingBox, nil
	}
	return nil, "", fmt.Errorf("inference result %q has no geometry", r.Label)
}

// Client calls one model-serving endpoint.
type Client struct {
	Log   logs.Log
	URL   string
	Model string
	HTTP  *http.Client
}

func NewClient(log logs.Log, url, model string) *Client {
	return &Client{Log: log, URL: url, Model: model, HTTP: http.DefaultClient}
}

// Run performs one inference round trip. There is no transport-level
// cancellation beyond ctx; callers discard stale results via their own
// instance guards.
func (c *Client) Run(ctx context.Context, req *Request) ([]Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inference request: %v. %v", resp.Status, string(msg))
	}
	var out struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return out.Results, nil
}
