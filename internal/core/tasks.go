package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// TaskStore is the persistence collaborator for tasks.
type TaskStore interface {
	InsertTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id int64) (*Task, error)
	ListTasks(ctx context.Context, status *TaskStatus) ([]*Task, error)
}

// TaskUpdate carries the full set of writable task fields.
type TaskUpdate struct {
	Name        string
	Description *string
	Status      TaskStatus
}

// TaskManager owns task creation, update and retrieval.
type TaskManager struct {
	store  TaskStore
	logger *slog.Logger
}

// NewTaskManager constructs a TaskManager backed by store.
func NewTaskManager(store TaskStore, logger *slog.Logger) *TaskManager {
	return &TaskManager{
		store:  store,
		logger: logger,
	}
}

// Create persists a new task in the CREATE status.
func (m *TaskManager) Create(ctx context.Context, name string, description *string) (*Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("task name is required: %w", ErrValidation)
	}
	task := &Task{
		Name:        name,
		Description: normalizeDescription(description),
		Status:      TaskStatusCreate,
	}
	if err := m.store.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	m.logger.Info("task created", "task_id", task.ID, "name", task.Name)
	return task, nil
}

// Update overwrites the stored task's writable fields, status included.
func (m *TaskManager) Update(ctx context.Context, id int64, data TaskUpdate) (*Task, error) {
	name := strings.TrimSpace(data.Name)
	if name == "" {
		return nil, fmt.Errorf("task name is required: %w", ErrValidation)
	}
	if !data.Status.Valid() {
		return nil, fmt.Errorf("unknown task status %q: %w", data.Status, ErrValidation)
	}
	task, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Name = name
	task.Description = normalizeDescription(data.Description)
	task.Status = data.Status
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	m.logger.Info("task updated", "task_id", task.ID, "status", task.Status)
	return task, nil
}

// GetByID loads a single task.
func (m *TaskManager) GetByID(ctx context.Context, id int64) (*Task, error) {
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// GetTasksByStatus returns every task currently at status.
func (m *TaskManager) GetTasksByStatus(ctx context.Context, status TaskStatus) ([]*Task, error) {
	tasks, err := m.store.ListTasks(ctx, &status)
	if err != nil {
		return nil, fmt.Errorf("list tasks with status %s: %w", status, err)
	}
	return tasks, nil
}

// GetAll returns every task.
func (m *TaskManager) GetAll(ctx context.Context) ([]*Task, error) {
	tasks, err := m.store.ListTasks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func normalizeDescription(description *string) *string {
	if description == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*description)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
