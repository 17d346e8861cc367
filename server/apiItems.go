package server

import (
	"net/http"

	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/server/workviewdb"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const maxItemBodyBytes = 1024 * 1024

func (s *Server) httpCreateDataset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	body := struct {
		Name string `json:"name"`
	}{}
	www.ReadJSON(w, r, &body, maxItemBodyBytes)
	if body.Name == "" {
		www.PanicBadRequestf("Dataset name may not be empty")
	}
	dataset, err := s.DB.CreateDataset(body.Name)
	www.Check(err)
	www.SendID(w, dataset.ID)
}

func (s *Server) httpListItems(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	datasetID := www.ParseID(params.ByName("datasetID"))
	items, err := s.DB.ListItems(datasetID)
	www.Check(err)
	www.SendJSON(w, items)
}

func (s *Server) httpCreateItem(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	datasetID := www.ParseID(params.ByName("datasetID"))
	_, err := s.DB.GetDataset(datasetID)
	checkDB(err)

	body := struct {
		Name  string         `json:"name"`
		Slots []backend.Slot `json:"slots"`
	}{}
	www.ReadJSON(w, r, &body, maxItemBodyBytes)
	if len(body.Slots) == 0 {
		www.PanicBadRequestf("An item needs at least one slot")
	}
	for _, slot := range body.Slots {
		if slot.Width < 1 || slot.Height < 1 {
			www.PanicBadRequestf("Slot '%v' has no dimensions", slot.SlotName)
		}
	}
	item, err := s.DB.CreateItem(datasetID, body.Name, body.Slots)
	www.Check(err)
	s.hub.broadcastItemsUpdated(datasetID, []*backend.Item{item})
	www.SendJSON(w, item)
}

func (s *Server) httpSetItemStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	itemID := params.ByName("itemID")
	body := struct {
		Status string `json:"status"`
	}{}
	www.ReadJSON(w, r, &body, maxItemBodyBytes)
	switch body.Status {
	case workviewdb.ItemStatusNew, workviewdb.ItemStatusAnnotate, workviewdb.ItemStatusComplete, workviewdb.ItemStatusProcessing:
	default:
		www.PanicBadRequestf("Unknown item status '%v'", body.Status)
	}
	item, err := s.DB.SetItemStatus(itemID, body.Status)
	checkDB(err)
	s.hub.broadcastItemsUpdated(item.DatasetID, []*backend.Item{item})
	www.SendJSON(w, item)
}

func (s *Server) httpDeleteItems(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	datasetID := www.ParseID(params.ByName("datasetID"))
	body := struct {
		ItemIDs []string `json:"item_ids"`
	}{}
	www.ReadJSON(w, r, &body, maxItemBodyBytes)
	deleted, err := s.DB.DeleteItems(body.ItemIDs)
	www.Check(err)
	if len(deleted) > 0 {
		s.hub.broadcastItemsDeleted(datasetID, deleted)
	}
	www.SendJSON(w, struct{}{})
}
