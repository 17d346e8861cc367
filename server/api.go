package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/server/workviewdb"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"gorm.io/gorm"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handler := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// Inference calls are expensive on the model server, so we throttle them
	// per client IP.
	inferLimiter := httprate.Limit(4, time.Second, httprate.WithKeyFuncs(httprate.KeyByIP))
	ratelimited := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			inferLimiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handler("GET", "/api/ping", s.httpPing)

	handler("POST", "/api/datasets", s.httpCreateDataset)
	handler("GET", "/api/datasets/:datasetID/items", s.httpListItems)
	handler("POST", "/api/datasets/:datasetID/items", s.httpCreateItem)
	handler("DELETE", "/api/datasets/:datasetID/items", s.httpDeleteItems)
	handler("PUT", "/api/items/:itemID/status", s.httpSetItemStatus)

	handler("GET", "/api/items/:itemID/annotations", s.httpListAnnotations)
	handler("POST", "/api/items/:itemID/annotations", s.httpCreateAnnotation)
	handler("PUT", "/api/annotations/:annotationID", s.httpUpdateAnnotation)
	handler("DELETE", "/api/annotations/:annotationID", s.httpDeleteAnnotation)

	handler("GET", "/api/variables/:key", s.httpGetVariable)
	handler("PUT", "/api/variables/:key", s.httpSetVariable)

	ratelimited("POST", "/api/inference", s.httpInference)

	handler("GET", "/api/ws", s.httpWebSocket)

	router.ServeFiles("/api/media/*filepath", http.Dir(s.mediaRoot))

	s.httpRouter = router
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"time": time.Now().Unix(),
	})
}

// sendAPIError writes the structured error envelope that clients classify on.
// Plain www panics are fine for errors without a machine-readable code.
func sendAPIError(w http.ResponseWriter, status int, code, message string) {
	body := struct {
		Errors struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}{}
	body.Errors.Code = code
	body.Errors.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&body)
}

// checkDB is like www.Check, but turns a missing record into a 404.
func checkDB(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)
}

// guardItemWritable writes the workflow error envelope and returns false when
// the item's status blocks annotation edits.
func (s *Server) guardItemWritable(w http.ResponseWriter, item *backend.Item) bool {
	if item.Status == workviewdb.ItemStatusProcessing {
		sendAPIError(w, http.StatusConflict, backend.CodeAlreadyInWorkflow,
			"Item '"+item.ID+"' is being processed by a workflow and cannot be edited")
		return false
	}
	return true
}
