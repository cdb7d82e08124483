package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TimeEntryStore is the persistence collaborator for time entries.
type TimeEntryStore interface {
	InsertTimeEntry(ctx context.Context, entry *TimeEntry) error
	UpdateTimeEntry(ctx context.Context, entry *TimeEntry) error
	// GetOpenTimeEntry returns the entry for taskID whose end time is unset.
	GetOpenTimeEntry(ctx context.Context, taskID int64) (*TimeEntry, error)
	// GetLatestTimeEntry returns the most recently started entry for taskID,
	// open or closed.
	GetLatestTimeEntry(ctx context.Context, taskID int64) (*TimeEntry, error)
	ListTimeEntries(ctx context.Context, taskID int64) ([]*TimeEntry, error)
}

// SweepFailure records a task the sweep could not process.
type SweepFailure struct {
	TaskID int64
	Err    error
}

// SweepResult summarizes one run of CloseTasksAutomatically.
type SweepResult struct {
	SweepID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Checked    int
	Closed     []int64
	Skipped    []int64
	Failed     []SweepFailure
}

// TimeEntryCoordinator starts and stops timers and runs the end-of-day sweep.
//
// Start and Stop are read-check-write sequences without an enclosing
// transaction. Two concurrent calls for the same task can both pass the
// status check; callers get last-write-wins semantics on the task row.
type TimeEntryCoordinator struct {
	tasks    *TaskManager
	entries  TimeEntryStore
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

// NewTimeEntryCoordinator wires a coordinator. location decides which
// calendar day the sweep considers "today".
func NewTimeEntryCoordinator(tasks *TaskManager, entries TimeEntryStore, logger *slog.Logger, location *time.Location) *TimeEntryCoordinator {
	if location == nil {
		location = time.Local
	}
	return &TimeEntryCoordinator{
		tasks:    tasks,
		entries:  entries,
		logger:   logger,
		location: location,
		now:      time.Now,
	}
}

// Start moves a CREATE or PENDING task to IN_PROGRESS and opens a time entry.
func (c *TimeEntryCoordinator) Start(ctx context.Context, taskID int64) error {
	task, err := c.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	next, err := Transition(task.Status, ActionStart)
	if err != nil {
		return fmt.Errorf("start task %d: %w", taskID, err)
	}
	// The status write and the entry write must both land once started.
	ctx = context.WithoutCancel(ctx)
	if err := c.setStatus(ctx, task, next); err != nil {
		return err
	}
	entry := &TimeEntry{
		TaskID:    task.ID,
		StartTime: c.now().UTC(),
	}
	if err := c.entries.InsertTimeEntry(ctx, entry); err != nil {
		return fmt.Errorf("insert time entry for task %d: %w", taskID, err)
	}
	c.logger.Info("time entry started", "task_id", taskID, "entry_id", entry.ID)
	return nil
}

// Stop moves an IN_PROGRESS task to COMPLETED and closes its open time entry.
func (c *TimeEntryCoordinator) Stop(ctx context.Context, taskID int64) error {
	task, err := c.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	next, err := Transition(task.Status, ActionStop)
	if err != nil {
		return fmt.Errorf("stop task %d: %w", taskID, err)
	}
	// Once the task is COMPLETED a retry is rejected, so the entry must close
	// even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	if err := c.setStatus(ctx, task, next); err != nil {
		return err
	}
	entry, err := c.entries.GetOpenTimeEntry(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.Error("in-progress task has no open time entry", "kind", "consistency", "task_id", taskID)
			return fmt.Errorf("active time entry not found for task %d: %w: %w", taskID, ErrConsistency, ErrNotFound)
		}
		return fmt.Errorf("load open time entry for task %d: %w", taskID, err)
	}
	end := c.now().UTC()
	if end.Before(entry.StartTime) {
		end = entry.StartTime
	}
	entry.EndTime = &end
	if err := c.entries.UpdateTimeEntry(ctx, entry); err != nil {
		return fmt.Errorf("close time entry %d: %w", entry.ID, err)
	}
	c.logger.Info("time entry stopped", "task_id", taskID, "entry_id", entry.ID, "duration", end.Sub(entry.StartTime))
	return nil
}

// ListEntries returns the time entries recorded for a task, newest first.
func (c *TimeEntryCoordinator) ListEntries(ctx context.Context, taskID int64) ([]*TimeEntry, error) {
	if _, err := c.tasks.GetByID(ctx, taskID); err != nil {
		return nil, err
	}
	entries, err := c.entries.ListTimeEntries(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list time entries for task %d: %w", taskID, err)
	}
	return entries, nil
}

// CloseTasksAutomatically stops every in-progress task whose latest time
// entry started on the current calendar day. Tasks started on an earlier day
// are left running. A failure on one task is logged and recorded in the
// result; the remaining tasks are still processed.
func (c *TimeEntryCoordinator) CloseTasksAutomatically(ctx context.Context) (*SweepResult, error) {
	now := c.now().In(c.location)
	result := &SweepResult{
		SweepID:   uuid.NewString(),
		StartedAt: now,
	}
	log := c.logger.With("sweep_id", result.SweepID)
	log.Info("automatic task closure started", "date", now.Format(time.DateOnly))

	tasks, err := c.tasks.GetTasksByStatus(ctx, TaskStatusInProgress)
	if err != nil {
		return result, err
	}
	for _, task := range tasks {
		result.Checked++
		closed, err := c.sweepTask(ctx, task, now)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, SweepFailure{TaskID: task.ID, Err: err})
			// consistency violations are logged where they are detected
			if !errors.Is(err, ErrConsistency) {
				log.Warn("sweep task", "task_id", task.ID, "err", err)
			}
		case closed:
			result.Closed = append(result.Closed, task.ID)
			log.Info("task automatically closed", "task_id", task.ID)
		default:
			result.Skipped = append(result.Skipped, task.ID)
		}
	}
	result.FinishedAt = c.now().In(c.location)
	log.Info("automatic task closure completed",
		"checked", result.Checked,
		"closed", len(result.Closed),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))
	return result, nil
}

func (c *TimeEntryCoordinator) sweepTask(ctx context.Context, task *Task, now time.Time) (bool, error) {
	entry, err := c.entries.GetLatestTimeEntry(ctx, task.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.Error("in-progress task has no time entry", "kind", "consistency", "task_id", task.ID)
			return false, fmt.Errorf("time entry not found for task %d: %w: %w", task.ID, ErrConsistency, ErrNotFound)
		}
		return false, fmt.Errorf("load time entry for task %d: %w", task.ID, err)
	}
	if !sameDay(entry.StartTime.In(c.location), now) {
		return false, nil
	}
	if err := c.Stop(ctx, task.ID); err != nil {
		return false, err
	}
	return true, nil
}

func (c *TimeEntryCoordinator) setStatus(ctx context.Context, task *Task, status TaskStatus) error {
	updated, err := c.tasks.Update(ctx, task.ID, TaskUpdate{
		Name:        task.Name,
		Description: task.Description,
		Status:      status,
	})
	if err != nil {
		return err
	}
	*task = *updated
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
