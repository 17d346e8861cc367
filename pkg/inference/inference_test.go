package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestRunDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, float32(10), req.BBox.X1)
		require.Len(t, req.Clicks, 1)
		w.Write([]byte(`{"results":[
			{"label":"cat","confidence":0.9,"path":[{"x":1,"y":2},{"x":3,"y":2},{"x":2,"y":5}]},
			{"label":"box","bounding_box":{"x":5,"y":5,"w":10,"h":20}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(logs.NewTestingLog(t), srv.URL, "auto_annotate_v1")
	results, err := c.Run(context.Background(), &Request{
		Image:  ImageRef{URL: "http://media/cat.png"},
		BBox:   geom.ImageRect{X1: 10, Y1: 10, X2: 50, Y2: 50},
		Clicks: []annotation.Click{{X: 20, Y: 20, Kind: "add"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	d, typ, err := results[0].Data()
	require.NoError(t, err)
	require.Equal(t, annotation.TypePolygon, typ)
	require.Len(t, d.(*annotation.Polygon).Path, 3)

	d, typ, err = results[1].Data()
	require.NoError(t, err)
	require.Equal(t, annotation.TypeBoundingBox, typ)
	require.Equal(t, float32(15), d.(*annotation.BoundingBox).BottomRight.X)
}

func TestResultWithoutGeometryErrors(t *testing.T) {
	r := &Result{Label: "empty"}
	_, _, err := r.Data()
	require.Error(t, err)
}
