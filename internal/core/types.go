package core

import (
	"time"
)

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusCreate     TaskStatus = "CREATE"
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
)

// TaskStatuses lists every known status in lifecycle order.
var TaskStatuses = []TaskStatus{
	TaskStatusCreate,
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusCompleted,
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusCreate, TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// Task represents a unit of trackable work.
type Task struct {
	ID          int64
	Name        string
	Description *string
	Status      TaskStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TimeEntry captures one continuous work interval on a task.
// A nil EndTime means the timer is still running.
type TimeEntry struct {
	ID        int64
	TaskID    int64
	StartTime time.Time
	EndTime   *time.Time
}

// Open reports whether the entry's timer is still running.
func (e *TimeEntry) Open() bool {
	return e.EndTime == nil
}

// Duration returns the elapsed time of a closed entry, or the time elapsed
// until now for an open one.
func (e *TimeEntry) Duration(now time.Time) time.Duration {
	if e.EndTime != nil {
		return e.EndTime.Sub(e.StartTime)
	}
	return now.Sub(e.StartTime)
}
