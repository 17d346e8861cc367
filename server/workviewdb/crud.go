package workviewdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/annolab/workview/pkg/backend"
	"github.com/cyclopcam/dbh"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Item statuses. Processing items are locked by a workflow and reject
// annotation writes.
const (
	ItemStatusNew        = "new"
	ItemStatusAnnotate   = "annotate"
	ItemStatusComplete   = "complete"
	ItemStatusProcessing = "processing"
)

func (w *WorkviewDB) CreateDataset(name string) (*Dataset, error) {
	dataset := Dataset{
		Name:      name,
		CreatedAt: dbh.MakeIntTime(time.Now()),
	}
	if err := w.DB.Create(&dataset).Error; err != nil {
		return nil, err
	}
	return &dataset, nil
}

func (w *WorkviewDB) GetDataset(id int64) (*Dataset, error) {
	dataset := Dataset{}
	if err := w.DB.First(&dataset, id).Error; err != nil {
		return nil, err
	}
	return &dataset, nil
}

// ListItems returns the dataset's items with their slots, in creation order.
func (w *WorkviewDB) ListItems(datasetID int64) ([]*backend.Item, error) {
	items := []Item{}
	if err := w.DB.Where("dataset_id = ?", datasetID).Order("created_at, id").Find(&items).Error; err != nil {
		return nil, err
	}
	list := make([]*backend.Item, 0, len(items))
	for i := range items {
		slots, err := w.itemSlots(items[i].ID)
		if err != nil {
			return nil, err
		}
		list = append(list, items[i].toWire(slots))
	}
	return list, nil
}

func (w *WorkviewDB) GetItem(id string) (*backend.Item, error) {
	item := Item{}
	if err := w.DB.First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	slots, err := w.itemSlots(id)
	if err != nil {
		return nil, err
	}
	return item.toWire(slots), nil
}

func (w *WorkviewDB) itemSlots(itemID string) ([]Slot, error) {
	slots := []Slot{}
	if err := w.DB.Where("item_id = ?", itemID).Order("slot_name").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

func (w *WorkviewDB) CreateItem(datasetID int64, name string, slots []backend.Slot) (*backend.Item, error) {
	item := Item{
		ID:        uuid.NewString(),
		DatasetID: datasetID,
		Name:      name,
		Status:    ItemStatusNew,
		CreatedAt: dbh.MakeIntTime(time.Now()),
	}
	err := w.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		for _, s := range slots {
			row := Slot{
				ItemID:      item.ID,
				SlotName:    s.SlotName,
				FilePath:    s.FilePath,
				Width:       s.Width,
				Height:      s.Height,
				TotalFrames: s.TotalFrames,
				FPS:         s.NativeFPS,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w.GetItem(item.ID)
}

func (w *WorkviewDB) SetItemStatus(id, status string) (*backend.Item, error) {
	result := w.DB.Model(&Item{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return w.GetItem(id)
}

// DeleteItems removes items with their slots and annotations. Unknown ids are
// ignored; the returned list holds the ids that existed.
func (w *WorkviewDB) DeleteItems(ids []string) ([]string, error) {
	deleted := []string{}
	err := w.DB.Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			result := tx.Delete(&Item{}, "id = ?", id)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}
			if err := tx.Delete(&Slot{}, "item_id = ?", id).Error; err != nil {
				return err
			}
			if err := tx.Delete(&Annotation{}, "item_id = ?", id).Error; err != nil {
				return err
			}
			deleted = append(deleted, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ItemAnnotations returns the item's annotation payloads, z order descending
// with the untyped (tag) rows last.
func (w *WorkviewDB) ItemAnnotations(itemID string) ([]*annotation.Payload, error) {
	rows := []Annotation{}
	if err := w.DB.Where("item_id = ?", itemID).Order("z_index DESC, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	payloads := make([]*annotation.Payload, 0, len(rows))
	for i := range rows {
		p, err := rows[i].payload()
		if err != nil {
			w.Log.Warnf("Dropping corrupt annotation row '%v': %v", rows[i].ID, err)
			continue
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

func (a *Annotation) payload() (*annotation.Payload, error) {
	p := annotation.Payload{}
	if err := json.Unmarshal([]byte(a.Data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func annotationRow(itemID string, p *annotation.Payload) (*Annotation, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("annotation payload has no id")
	}
	shape, err := p.Data.ShapeType()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	now := dbh.MakeIntTime(time.Now())
	return &Annotation{
		ID:        p.ID,
		ItemID:    itemID,
		ClassID:   p.ClassID,
		Type:      string(shape),
		ZIndex:    p.ZIndex,
		Data:      string(data),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CreateAnnotation stores a new payload under the client-generated id.
// Creating an id that already exists is an error.
func (w *WorkviewDB) CreateAnnotation(itemID string, p *annotation.Payload) (*annotation.Payload, error) {
	row, err := annotationRow(itemID, p)
	if err != nil {
		return nil, err
	}
	if err := w.DB.Create(row).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (w *WorkviewDB) UpdateAnnotation(p *annotation.Payload) (*annotation.Payload, error) {
	existing := Annotation{}
	if err := w.DB.First(&existing, "id = ?", p.ID).Error; err != nil {
		return nil, err
	}
	row, err := annotationRow(existing.ItemID, p)
	if err != nil {
		return nil, err
	}
	row.CreatedAt = existing.CreatedAt
	if err := w.DB.Save(row).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (w *WorkviewDB) DeleteAnnotation(id string) error {
	result := w.DB.Delete(&Annotation{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetAnnotationItemID resolves the item an annotation belongs to.
func (w *WorkviewDB) GetAnnotationItemID(id string) (string, error) {
	row := Annotation{}
	if err := w.DB.Select("item_id").First(&row, "id = ?", id).Error; err != nil {
		return "", err
	}
	return row.ItemID, nil
}

// CountAnnotations counts the annotations stored across a dataset, for the
// storage quota check.
func (w *WorkviewDB) CountAnnotations(datasetID int64) (int64, error) {
	count := int64(0)
	err := w.DB.Model(&Annotation{}).
		Where("item_id IN (?)", w.DB.Model(&Item{}).Select("id").Where("dataset_id = ?", datasetID)).
		Count(&count).Error
	return count, err
}

// GetVariable returns ("", false, nil) when the key has never been set.
func (w *WorkviewDB) GetVariable(key string) (string, bool, error) {
	v := Variable{}
	result := w.DB.Where("key = ?", key).Limit(1).Find(&v)
	if result.Error != nil {
		return "", false, result.Error
	}
	if result.RowsAffected == 0 {
		return "", false, nil
	}
	return v.Value, true, nil
}

func (w *WorkviewDB) SetVariable(key, value string) error {
	return w.DB.Save(&Variable{Key: key, Value: value}).Error
}
