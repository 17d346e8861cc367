package workviewdb

import (
	"github.com/annolab/workview/pkg/backend"
	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type Dataset struct {
	BaseModel
	Name      string      `json:"name"`
	CreatedAt dbh.IntTime `json:"createdAt"`
}

// Item is one annotatable unit of content. Ids are client-visible strings, so
// an editor can refer to an item before the service has seen it.
type Item struct {
	ID        string      `gorm:"primaryKey" json:"id"`
	DatasetID int64       `json:"datasetId"`
	Name      string      `json:"name"`
	Status    string      `json:"status"`
	CreatedAt dbh.IntTime `json:"createdAt"`
}

type Slot struct {
	BaseModel
	ItemID      string  `json:"itemId"`
	SlotName    string  `json:"slotName"`
	FilePath    string  `json:"filePath"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	TotalFrames int     `json:"totalFrames"`
	FPS         float32 `json:"fps" gorm:"default:null"`
}

// Annotation rows carry the full wire payload as JSON in Data. The indexed
// columns are duplicated out of the payload for querying.
type Annotation struct {
	ID        string      `gorm:"primaryKey" json:"id"`
	ItemID    string      `json:"itemId"`
	ClassID   int64       `json:"classId"`
	Type      string      `json:"type"`
	ZIndex    *int        `json:"zIndex" gorm:"default:null"`
	Data      string      `json:"data"`
	CreatedAt dbh.IntTime `json:"createdAt"`
	UpdatedAt dbh.IntTime `json:"updatedAt"`
}

type Variable struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}

// toWire assembles the API form of an item from its row and slots.
func (item *Item) toWire(slots []Slot) *backend.Item {
	wire := &backend.Item{
		ID:        item.ID,
		DatasetID: item.DatasetID,
		Name:      item.Name,
		Status:    item.Status,
	}
	for _, s := range slots {
		wire.Slots = append(wire.Slots, backend.Slot{
			SlotName:    s.SlotName,
			FilePath:    s.FilePath,
			Width:       s.Width,
			Height:      s.Height,
			TotalFrames: s.TotalFrames,
			NativeFPS:   s.FPS,
		})
	}
	return wire
}
