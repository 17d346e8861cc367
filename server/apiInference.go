package server

import (
	"net/http"

	"github.com/annolab/workview/pkg/inference"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const maxInferenceBodyBytes = 16 * 1024 * 1024

// httpInference proxies an auto-annotate request to the configured
// model-serving endpoint, so browser clients never talk to the model server
// directly.
func (s *Server) httpInference(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.infer == nil {
		www.Panic(http.StatusServiceUnavailable, "No inference endpoint is configured")
	}
	req := inference.Request{}
	www.ReadJSON(w, r, &req, maxInferenceBodyBytes)
	if req.Image.URL == "" && req.Image.Base64 == "" {
		www.PanicBadRequestf("Inference request has no image")
	}
	results, err := s.infer.Run(r.Context(), &req)
	www.Check(err)
	www.SendJSON(w, struct {
		Results []inference.Result `json:"results"`
	}{Results: results})
}
