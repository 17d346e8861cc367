package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const maxVariableBodyBytes = 64 * 1024

func (s *Server) httpGetVariable(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	key := params.ByName("key")
	value, exists, err := s.DB.GetVariable(key)
	www.Check(err)
	if !exists {
		www.PanicNotFound()
	}
	www.SendJSON(w, struct {
		Value string `json:"value"`
	}{Value: value})
}

func (s *Server) httpSetVariable(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	key := params.ByName("key")
	body := struct {
		Value string `json:"value"`
	}{}
	www.ReadJSON(w, r, &body, maxVariableBodyBytes)
	www.Check(s.DB.SetVariable(key, body.Value))
	www.SendJSON(w, struct{}{})
}
