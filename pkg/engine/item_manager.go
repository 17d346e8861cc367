package engine

import (
	"sync"

	"github.com/annolab/workview/pkg/backend"
	"github.com/annolab/workview/pkg/events"
	"github.com/cyclopcam/logs"
)

// ItemManager holds the dataset's item list and reconciles it against
// realtime updates, so the open dataset tracks server-side changes without a
// full reload.
type ItemManager struct {
	Log logs.Log

	// OnItemsChanged fires with the full, ordered item list after any change.
	OnItemsChanged events.Signal[[]*backend.Item]

	lock sync.Locker

	items map[string]*backend.Item
	order []string

	realtime      *backend.Realtime
	updatedHandle events.Handle
	deletedHandle events.Handle
}

func NewItemManager(log logs.Log, lock sync.Locker) *ItemManager {
	return &ItemManager{
		Log:   log,
		lock:  lock,
		items: map[string]*backend.Item{},
	}
}

// SetItems replaces the item list, e.g. after loading a dataset.
// Must be called under the editor lock.
func (m *ItemManager) SetItems(items []*backend.Item) {
	m.items = map[string]*backend.Item{}
	m.order = nil
	for _, item := range items {
		if _, exists := m.items[item.ID]; !exists {
			m.order = append(m.order, item.ID)
		}
		m.items[item.ID] = item
	}
	m.OnItemsChanged.Emit(m.Items())
}

// Items returns the items in their listing order.
func (m *ItemManager) Items() []*backend.Item {
	list := make([]*backend.Item, 0, len(m.order))
	for _, id := range m.order {
		list = append(list, m.items[id])
	}
	return list
}

func (m *ItemManager) Item(id string) (*backend.Item, bool) {
	item, ok := m.items[id]
	return item, ok
}

// ApplyUpdates upserts changed items: known items are replaced in place,
// unknown ones appended.
func (m *ItemManager) ApplyUpdates(items []*backend.Item) {
	for _, item := range items {
		if _, exists := m.items[item.ID]; !exists {
			m.order = append(m.order, item.ID)
		}
		m.items[item.ID] = item
	}
	m.OnItemsChanged.Emit(m.Items())
}

// ApplyDeletes drops the given items. Unknown ids are ignored.
func (m *ItemManager) ApplyDeletes(ids []string) {
	changed := false
	for _, id := range ids {
		if _, exists := m.items[id]; !exists {
			continue
		}
		delete(m.items, id)
		for i, existing := range m.order {
			if existing == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
		changed = true
	}
	if changed {
		m.OnItemsChanged.Emit(m.Items())
	}
}

// Bind subscribes to the realtime channel's item events. The handlers run on
// the channel's read goroutine and take the editor lock before touching
// state.
func (m *ItemManager) Bind(rt *backend.Realtime) {
	m.Unbind()
	m.realtime = rt
	m.updatedHandle = rt.OnItemsUpdated.Listen(func(items []*backend.Item) {
		m.lock.Lock()
		defer m.lock.Unlock()
		m.ApplyUpdates(items)
	})
	m.deletedHandle = rt.OnItemsDeleted.Listen(func(ids []string) {
		m.lock.Lock()
		defer m.lock.Unlock()
		m.ApplyDeletes(ids)
	})
}

func (m *ItemManager) Unbind() {
	if m.realtime == nil {
		return
	}
	m.realtime.OnItemsUpdated.Remove(m.updatedHandle)
	m.realtime.OnItemsDeleted.Remove(m.deletedHandle)
	m.realtime = nil
}
