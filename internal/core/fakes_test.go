package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory TaskStore and TimeEntryStore.
type memStore struct {
	mu      sync.Mutex
	tasks   map[int64]Task
	entries map[int64]TimeEntry
	nextID  int64

	failListTasks  error
	failGetLatest  map[int64]error
	failUpdateTask map[int64]error

	// afterUpdateTask runs once a task update has been stored.
	afterUpdateTask func(task Task)
}

func newMemStore() *memStore {
	return &memStore{
		tasks:   make(map[int64]Task),
		entries: make(map[int64]TimeEntry),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) InsertTask(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = m.id()
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	m.tasks[task.ID] = *task
	return nil
}

func (m *memStore) UpdateTask(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpdateTask[task.ID]; err != nil {
		return err
	}
	if _, ok := m.tasks[task.ID]; !ok {
		return fmt.Errorf("task %w", ErrNotFound)
	}
	task.UpdatedAt = time.Now().UTC()
	m.tasks[task.ID] = *task
	if m.afterUpdateTask != nil {
		m.afterUpdateTask(*task)
	}
	return nil
}

func (m *memStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %w", ErrNotFound)
	}
	return &task, nil
}

func (m *memStore) ListTasks(ctx context.Context, status *TaskStatus) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failListTasks != nil {
		return nil, m.failListTasks
	}
	var out []*Task
	for _, t := range m.tasks {
		if status != nil && t.Status != *status {
			continue
		}
		task := t
		out = append(out, &task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) InsertTimeEntry(ctx context.Context, entry *TimeEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.id()
	m.entries[entry.ID] = *entry
	return nil
}

func (m *memStore) UpdateTimeEntry(ctx context.Context, entry *TimeEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.entries[entry.ID]
	if !ok {
		return fmt.Errorf("time entry %w", ErrNotFound)
	}
	if stored.EndTime != nil {
		return fmt.Errorf("time entry already closed: %w", ErrInvalidState)
	}
	m.entries[entry.ID] = *entry
	return nil
}

func (m *memStore) GetOpenTimeEntry(ctx context.Context, taskID int64) (*TimeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.latest(taskID, true)
}

func (m *memStore) GetLatestTimeEntry(ctx context.Context, taskID int64) (*TimeEntry, error) {
	m.mu.Lock()
	err := m.failGetLatest[taskID]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.latest(taskID, false)
}

func (m *memStore) ListTimeEntries(ctx context.Context, taskID int64) ([]*TimeEntry, error) {
	return m.list(taskID, false), nil
}

func (m *memStore) latest(taskID int64, openOnly bool) (*TimeEntry, error) {
	entries := m.list(taskID, openOnly)
	if len(entries) == 0 {
		return nil, fmt.Errorf("time entry %w", ErrNotFound)
	}
	return entries[0], nil
}

// list returns entries newest first.
func (m *memStore) list(taskID int64, openOnly bool) []*TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TimeEntry
	for _, e := range m.entries {
		if e.TaskID != taskID || (openOnly && e.EndTime != nil) {
			continue
		}
		entry := e
		out = append(out, &entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// putTask stores a task with an explicit status, bypassing the manager.
func (m *memStore) putTask(name string, status TaskStatus) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := Task{ID: m.id(), Name: name, Status: status}
	m.tasks[task.ID] = task
	return &task
}

// putEntry stores a time entry directly.
func (m *memStore) putEntry(taskID int64, start time.Time, end *time.Time) *TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := TimeEntry{ID: m.id(), TaskID: taskID, StartTime: start, EndTime: end}
	m.entries[entry.ID] = entry
	return &entry
}

func (m *memStore) openEntries(taskID int64) int {
	return len(m.list(taskID, true))
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
