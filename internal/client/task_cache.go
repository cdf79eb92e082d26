package client

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskstream/taskstream-api/internal/models"
)

var (
	ErrUnknownTask     = errors.New("task not in cache")
	ErrUnknownMutation = errors.New("mutation handle not pending")
)

// EntryState tags a cached entry with its provenance.
type EntryState int

const (
	// StateConfirmed means the entry reflects server-authoritative state.
	StateConfirmed EntryState = iota
	// StatePending means a local optimistic mutation is awaiting
	// confirmation and its effect is visible in the entry.
	StatePending
)

// MutationHandle identifies one in-flight optimistic mutation.
type MutationHandle = uuid.UUID

// TaskPatch is a partial local update. Fields mirror the server's partial
// update contract: absence means unchanged.
type TaskPatch struct {
	Title        *string              `json:"title,omitempty"`
	Description  *string              `json:"description,omitempty"`
	DueDate      *time.Time           `json:"due_date,omitempty"`
	Priority     *models.TaskPriority `json:"priority,omitempty"`
	Status       *models.TaskStatus   `json:"status,omitempty"`
	AssignedToID *uint64              `json:"assigned_to_id,omitempty"`
}

type taskEntry struct {
	view          models.Task
	lastConfirmed models.Task
	pending       *MutationHandle
}

// TaskCache is the client-side projection of tasks. Query results set the
// confirmed baseline, push events merge in idempotently, and optimistic
// mutations are visible until confirmed or rolled back. Merges are monotonic
// on UpdatedAt: a stale event arriving after newer state is cached is
// rejected, and entities are always replaced whole, never field-merged.
type TaskCache struct {
	mu      sync.Mutex
	entries map[uint64]*taskEntry
	pending map[MutationHandle]uint64
}

// NewTaskCache creates an empty TaskCache.
func NewTaskCache() *TaskCache {
	return &TaskCache{
		entries: make(map[uint64]*taskEntry),
		pending: make(map[MutationHandle]uint64),
	}
}

// ApplyQueryResult replaces the confirmed baseline with a query response.
// Optimistic entries whose mutation is still pending stay visible; confirmed
// entries absent from the response are dropped.
func (c *TaskCache) ApplyQueryResult(tasks []models.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[uint64]*taskEntry, len(tasks))
	for _, task := range tasks {
		if prev, ok := c.entries[task.ID]; ok && prev.pending != nil {
			prev.lastConfirmed = task
			next[task.ID] = prev
			continue
		}
		next[task.ID] = &taskEntry{view: task, lastConfirmed: task}
	}

	// Carry over pending entries the baseline does not know about yet
	// (e.g. an optimistic mutation racing the query).
	for id, entry := range c.entries {
		if entry.pending != nil {
			if _, ok := next[id]; !ok {
				next[id] = entry
			}
		}
	}

	c.entries = next
}

// ApplyUpsert merges one confirmed entity from a push event or response.
// Re-applying the same event is a no-op; an event older than the cached
// confirmed state is rejected. A confirmed arrival supersedes any optimistic
// view of the same task wholesale. Returns whether the entity was applied.
func (c *TaskCache) ApplyUpsert(task models.Task) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyConfirmed(task)
}

func (c *TaskCache) applyConfirmed(task models.Task) bool {
	entry, ok := c.entries[task.ID]
	if !ok {
		c.entries[task.ID] = &taskEntry{view: task, lastConfirmed: task}
		return true
	}

	if task.UpdatedAt.Before(entry.lastConfirmed.UpdatedAt) {
		return false
	}

	entry.lastConfirmed = task
	entry.view = task
	if entry.pending != nil {
		delete(c.pending, *entry.pending)
		entry.pending = nil
	}
	return true
}

// ApplyDelete removes a task by id. Idempotent.
func (c *TaskCache) ApplyDelete(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[id]; ok {
		if entry.pending != nil {
			delete(c.pending, *entry.pending)
		}
		delete(c.entries, id)
	}
}

// BeginUpdate applies a patch locally ahead of server confirmation and
// returns a handle for resolving it. A second optimistic mutation on the same
// task supersedes the first.
func (c *TaskCache) BeginUpdate(id uint64, patch TaskPatch) (MutationHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return MutationHandle{}, ErrUnknownTask
	}

	if entry.pending != nil {
		delete(c.pending, *entry.pending)
	}

	handle := uuid.New()
	entry.pending = &handle
	c.pending[handle] = id

	view := entry.view
	if patch.Title != nil {
		view.Title = *patch.Title
	}
	if patch.Description != nil {
		view.Description = *patch.Description
	}
	if patch.DueDate != nil {
		view.DueDate = *patch.DueDate
	}
	if patch.Priority != nil {
		view.Priority = *patch.Priority
	}
	if patch.Status != nil {
		view.Status = *patch.Status
	}
	if patch.AssignedToID != nil {
		view.AssignedToID = *patch.AssignedToID
	}
	entry.view = view

	return handle, nil
}

// Resolve replaces the optimistic entry with the authoritative server result.
// Resolving a handle already superseded by a push event is a harmless merge
// of the same confirmed state.
func (c *TaskCache) Resolve(handle MutationHandle, task models.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[handle]; !ok {
		// The confirmed event for this mutation may have raced ahead of
		// the response; converge on the same state either way.
		c.applyConfirmed(task)
		return nil
	}

	delete(c.pending, handle)
	c.applyConfirmed(task)
	return nil
}

// Fail rolls the optimistic entry back to its last confirmed state.
func (c *TaskCache) Fail(handle MutationHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.pending[handle]
	if !ok {
		return ErrUnknownMutation
	}
	delete(c.pending, handle)

	entry, ok := c.entries[id]
	if !ok {
		return nil
	}
	entry.view = entry.lastConfirmed
	entry.pending = nil
	return nil
}

// Get returns the cached view of a task.
func (c *TaskCache) Get(id uint64) (models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return models.Task{}, false
	}
	return entry.view, true
}

// State returns the provenance tag for a cached task.
func (c *TaskCache) State(id uint64) (EntryState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return StateConfirmed, false
	}
	if entry.pending != nil {
		return StatePending, true
	}
	return StateConfirmed, true
}

// Snapshot returns the cached tasks ordered by ascending due date, matching
// the server's list ordering.
func (c *TaskCache) Snapshot() []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks := make([]models.Task, 0, len(c.entries))
	for _, entry := range c.entries {
		tasks = append(tasks, entry.view)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].DueDate.Equal(tasks[j].DueDate) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].DueDate.Before(tasks[j].DueDate)
	})
	return tasks
}

// Len returns the number of cached tasks.
func (c *TaskCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops every cached entry and pending mutation.
func (c *TaskCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*taskEntry)
	c.pending = make(map[MutationHandle]uint64)
}
