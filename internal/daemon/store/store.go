// Package store implements the active/completed Shared Task Stores: two
// key→record maps guarded by a single lock, so no list response can ever
// observe a partial migration between them.
package store

import (
	"sync"
	"time"
)

// Status is one of the task lifecycle states.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Record is a task record as stored in either map.
type Record struct {
	TaskID     string
	TaskAdded  string // DD-MM-YYYY HH:MM:SS
	TaskStatus Status
	TaskData   map[string]string
}

// Summary is the abbreviated shape returned by list commands.
type Summary struct {
	TaskID     string `json:"task_id"`
	TaskAdded  string `json:"task_added"`
	TaskStatus Status `json:"task_status"`
}

// Stores holds the active and completed maps behind one mutex, so insert,
// migrate and list operations are all mutually exclusive — a task id
// never appears in both maps, nor in neither, at any externally
// observable instant.
type Stores struct {
	mu        sync.Mutex
	active    map[string]Record
	completed map[string]Record
}

func New() *Stores {
	return &Stores{
		active:    make(map[string]Record),
		completed: make(map[string]Record),
	}
}

// Add inserts a new queued record into the active store.
func (s *Stores) Add(taskID string, data map[string]string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := Record{
		TaskID:     taskID,
		TaskAdded:  time.Now().Format("02-01-2006 15:04:05"),
		TaskStatus: StatusQueued,
		TaskData:   data,
	}
	s.active[taskID] = rec
	return rec
}

// Exists reports whether taskID is already present in the active or the
// completed store (used to retry task-id generation on collision).
func (s *Stores) Exists(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, inActive := s.active[taskID]
	_, inCompleted := s.completed[taskID]
	return inActive || inCompleted
}

// SetActive transitions a queued record to active, returning false if the
// record is missing or not currently queued.
func (s *Stores) SetActive(taskID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.active[taskID]
	if !ok || rec.TaskStatus != StatusQueued {
		return Record{}, false
	}
	rec.TaskStatus = StatusActive
	s.active[taskID] = rec
	return rec, true
}

// Migrate atomically removes taskID from active and inserts an
// abbreviated completed record with the given terminal status, preserving
// TaskAdded. No caller can observe the id absent from both stores nor
// present in both.
func (s *Stores) Migrate(taskID string, final Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.active[taskID]
	if !ok {
		return
	}
	delete(s.active, taskID)
	s.completed[taskID] = Record{
		TaskID:     taskID,
		TaskAdded:  rec.TaskAdded,
		TaskStatus: final,
	}
}

// Cancel removes a queued task from the active store; no cancelled record
// is kept in either store. Returns false if the task is missing or not queued (an
// active/completed task cannot be cancelled from the client, per
// spec.md's Open Question decision: this is treated as an error).
func (s *Stores) Cancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.active[taskID]
	if !ok || rec.TaskStatus != StatusQueued {
		return false
	}
	delete(s.active, taskID)
	return true
}

// ListActive returns a snapshot of the active store.
func (s *Stores) ListActive() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.active)
}

// ListCompleted returns a snapshot of the completed store.
func (s *Stores) ListCompleted() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.completed)
}

func snapshot(m map[string]Record) []Summary {
	out := make([]Summary, 0, len(m))
	for _, rec := range m {
		out = append(out, Summary{TaskID: rec.TaskID, TaskAdded: rec.TaskAdded, TaskStatus: rec.TaskStatus})
	}
	return out
}
