package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/annolab/workview/pkg/events"
	"github.com/annolab/workview/pkg/geom"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
)

// Comment is one message inside a thread.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentThread is a discussion anchored to a rectangular region of the
// content. On video, a thread belongs to the frame it was opened on.
type CommentThread struct {
	ID         string    `json:"id"`
	AuthorID   int64     `json:"author_id"`
	BBox       geom.BBox `json:"bounding_box"`
	FrameIndex int       `json:"frame_index"`
	Resolved   bool      `json:"resolved"`
	Comments   []Comment `json:"comments"`
}

// CommentManager owns the view's comment threads.
type CommentManager struct {
	Log logs.Log

	OnThreadsChanged events.Signal[struct{}]

	view    *View
	threads map[string]*CommentThread
}

func NewCommentManager(log logs.Log, view *View) *CommentManager {
	return &CommentManager{
		Log:     log,
		view:    view,
		threads: map[string]*CommentThread{},
	}
}

// CreateThread opens a thread at the given region with an initial comment.
// Video views anchor it to the current frame.
func (m *CommentManager) CreateThread(bbox geom.BBox, authorID int64, body string) *CommentThread {
	thread := &CommentThread{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		BBox:       bbox,
		FrameIndex: m.view.CurrentFrameIndex,
		Comments: []Comment{{
			ID:        uuid.NewString(),
			AuthorID:  authorID,
			Body:      body,
			CreatedAt: time.Now(),
		}},
	}
	m.threads[thread.ID] = thread
	m.OnThreadsChanged.Emit(struct{}{})
	return thread
}

func (m *CommentManager) AddComment(threadID string, authorID int64, body string) (*Comment, error) {
	thread, exists := m.threads[threadID]
	if !exists {
		return nil, fmt.Errorf("can't get comment thread '%v'", threadID)
	}
	comment := Comment{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now(),
	}
	thread.Comments = append(thread.Comments, comment)
	m.OnThreadsChanged.Emit(struct{}{})
	return &thread.Comments[len(thread.Comments)-1], nil
}

func (m *CommentManager) ResolveThread(threadID string) error {
	thread, exists := m.threads[threadID]
	if !exists {
		return fmt.Errorf("can't get comment thread '%v'", threadID)
	}
	thread.Resolved = true
	m.OnThreadsChanged.Emit(struct{}{})
	return nil
}

// MoveThread re-anchors a thread, e.g. after dragging its pin.
func (m *CommentManager) MoveThread(threadID string, bbox geom.BBox) error {
	thread, exists := m.threads[threadID]
	if !exists {
		return fmt.Errorf("can't get comment thread '%v'", threadID)
	}
	thread.BBox = bbox
	m.OnThreadsChanged.Emit(struct{}{})
	return nil
}

func (m *CommentManager) DeleteThread(threadID string) {
	if _, exists := m.threads[threadID]; !exists {
		return
	}
	delete(m.threads, threadID)
	m.OnThreadsChanged.Emit(struct{}{})
}

func (m *CommentManager) Thread(threadID string) (*CommentThread, bool) {
	t, ok := m.threads[threadID]
	return t, ok
}

// ThreadsForFrame returns unresolved threads anchored to the given frame, in
// creation order of their ids. Image views keep all threads on frame 0.
func (m *CommentManager) ThreadsForFrame(frameIndex int) []*CommentThread {
	var list []*CommentThread
	for _, t := range m.threads {
		if t.Resolved || t.FrameIndex != frameIndex {
			continue
		}
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// FindTopThreadAt returns the unresolved thread on the current frame whose
// anchor region contains the point, or nil.
func (m *CommentManager) FindTopThreadAt(p geom.ImagePoint) *CommentThread {
	for _, t := range m.ThreadsForFrame(m.view.CurrentFrameIndex) {
		if p.X >= t.BBox.MinX() && p.X <= t.BBox.MaxX() && p.Y >= t.BBox.MinY() && p.Y <= t.BBox.MaxY() {
			return t
		}
	}
	return nil
}

func (m *CommentManager) Cleanup() {
	m.threads = map[string]*CommentThread{}
	m.OnThreadsChanged.Clear()
}
