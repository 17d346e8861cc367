package server

import (
	"fmt"
	"net/http"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/backend"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// RLE masks of large video frames can get big.
const maxAnnotationBodyBytes = 32 * 1024 * 1024

func (s *Server) httpListAnnotations(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	itemID := params.ByName("itemID")
	_, err := s.DB.GetItem(itemID)
	checkDB(err)
	payloads, err := s.DB.ItemAnnotations(itemID)
	www.Check(err)
	www.SendJSON(w, payloads)
}

func (s *Server) httpCreateAnnotation(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	itemID := params.ByName("itemID")
	item, err := s.DB.GetItem(itemID)
	checkDB(err)
	if !s.guardItemWritable(w, item) {
		return
	}

	payload := annotation.Payload{}
	www.ReadJSON(w, r, &payload, maxAnnotationBodyBytes)
	if payload.ID == "" {
		www.PanicBadRequestf("Annotation payload has no id")
	}
	if _, err := payload.Data.ShapeType(); err != nil {
		www.PanicBadRequestf("Annotation payload has no geometry: %v", err)
	}

	if s.maxAnnotations > 0 {
		count, err := s.DB.CountAnnotations(item.DatasetID)
		www.Check(err)
		if count >= s.maxAnnotations {
			sendAPIError(w, http.StatusPaymentRequired, backend.CodeOutOfSubscribedStorage,
				fmt.Sprintf("Dataset %v has reached its limit of %v annotations", item.DatasetID, s.maxAnnotations))
			return
		}
	}

	stored, err := s.DB.CreateAnnotation(itemID, &payload)
	www.Check(err)
	www.SendJSON(w, stored)
}

func (s *Server) httpUpdateAnnotation(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	annotationID := params.ByName("annotationID")
	itemID, err := s.DB.GetAnnotationItemID(annotationID)
	checkDB(err)
	item, err := s.DB.GetItem(itemID)
	checkDB(err)
	if !s.guardItemWritable(w, item) {
		return
	}

	payload := annotation.Payload{}
	www.ReadJSON(w, r, &payload, maxAnnotationBodyBytes)
	if payload.ID != annotationID {
		www.PanicBadRequestf("Payload id '%v' does not match the route", payload.ID)
	}
	stored, err := s.DB.UpdateAnnotation(&payload)
	checkDB(err)
	www.SendJSON(w, stored)
}

func (s *Server) httpDeleteAnnotation(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	annotationID := params.ByName("annotationID")
	itemID, err := s.DB.GetAnnotationItemID(annotationID)
	checkDB(err)
	item, err := s.DB.GetItem(itemID)
	checkDB(err)
	if !s.guardItemWritable(w, item) {
		return
	}
	checkDB(s.DB.DeleteAnnotation(annotationID))
	www.SendJSON(w, struct{}{})
}
