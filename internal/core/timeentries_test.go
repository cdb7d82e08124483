package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetrack/internal/logging"
)

var testLocation = time.FixedZone("UTC+2", 2*60*60)

type coordinatorFixture struct {
	store *memStore
	tasks *TaskManager
	coord *TimeEntryCoordinator
	clock *fakeClock
}

func newCoordinatorFixture(t *testing.T, now time.Time) *coordinatorFixture {
	t.Helper()
	store := newMemStore()
	tasks := NewTaskManager(store, logging.Discard())
	coord := NewTimeEntryCoordinator(tasks, store, logging.Discard(), testLocation)
	clock := &fakeClock{now: now}
	coord.now = clock.Now
	return &coordinatorFixture{store: store, tasks: tasks, coord: coord, clock: clock}
}

func (f *coordinatorFixture) status(t *testing.T, id int64) TaskStatus {
	t.Helper()
	task, err := f.tasks.GetByID(context.Background(), id)
	require.NoError(t, err)
	return task.Status
}

func TestStartAndStopScenario(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, testLocation)
	f := newCoordinatorFixture(t, now)

	task, err := f.tasks.Create(ctx, "Write report", strPtr(""))
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCreate, task.Status)

	require.NoError(t, f.coord.Start(ctx, task.ID))
	assert.Equal(t, TaskStatusInProgress, f.status(t, task.ID))
	assert.Equal(t, 1, f.store.openEntries(task.ID))

	f.clock.Set(now.Add(90 * time.Minute))
	require.NoError(t, f.coord.Stop(ctx, task.ID))
	assert.Equal(t, TaskStatusCompleted, f.status(t, task.ID))
	assert.Zero(t, f.store.openEntries(task.ID))

	entries, err := f.coord.ListEntries(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	require.NotNil(t, entry.EndTime)
	assert.False(t, entry.EndTime.Before(entry.StartTime))
	assert.Equal(t, 90*time.Minute, entry.Duration(time.Time{}))
}

func TestStartFromPending(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, time.Now())
	task := f.store.putTask("paused", TaskStatusPending)

	require.NoError(t, f.coord.Start(ctx, task.ID))
	assert.Equal(t, TaskStatusInProgress, f.status(t, task.ID))
	assert.Equal(t, 1, f.store.openEntries(task.ID))
}

func TestStartRejectsIneligibleStatus(t *testing.T) {
	for _, status := range []TaskStatus{TaskStatusInProgress, TaskStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			f := newCoordinatorFixture(t, time.Now())
			task := f.store.putTask("busy", status)

			err := f.coord.Start(ctx, task.ID)
			require.ErrorIs(t, err, ErrInvalidState)
			assert.Equal(t, status, f.status(t, task.ID))

			entries, err := f.coord.ListEntries(ctx, task.ID)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestStartUnknownTask(t *testing.T) {
	f := newCoordinatorFixture(t, time.Now())

	err := f.coord.Start(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrConsistency))
	assert.Empty(t, f.store.entries)
}

func TestStopRejectsOtherStatuses(t *testing.T) {
	for _, status := range []TaskStatus{TaskStatusCreate, TaskStatusPending, TaskStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			f := newCoordinatorFixture(t, time.Now())
			task := f.store.putTask("idle", status)
			start := time.Now().Add(-time.Hour).UTC()
			f.store.putEntry(task.ID, start, nil)

			err := f.coord.Stop(ctx, task.ID)
			require.ErrorIs(t, err, ErrInvalidState)
			assert.Equal(t, status, f.status(t, task.ID))
			assert.Equal(t, 1, f.store.openEntries(task.ID))
		})
	}
}

func TestStopTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, time.Now())
	task, err := f.tasks.Create(ctx, "once", nil)
	require.NoError(t, err)
	require.NoError(t, f.coord.Start(ctx, task.ID))
	require.NoError(t, f.coord.Stop(ctx, task.ID))

	entries, err := f.coord.ListEntries(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	firstEnd := *entries[0].EndTime

	f.clock.Set(f.clock.Now().Add(time.Hour))
	err = f.coord.Stop(ctx, task.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	entries, err = f.coord.ListEntries(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, firstEnd.Equal(*entries[0].EndTime))
}

func TestStopWithoutOpenEntryIsConsistencyError(t *testing.T) {
	ctx := context.Background()
	f := newCoordinatorFixture(t, time.Now())
	task := f.store.putTask("orphan", TaskStatusInProgress)

	err := f.coord.Stop(ctx, task.ID)
	require.ErrorIs(t, err, ErrConsistency)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "active time entry not found")
}

func TestStopClampsEndTime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	f := newCoordinatorFixture(t, now)
	task := f.store.putTask("skewed", TaskStatusInProgress)
	start := now.Add(time.Minute)
	f.store.putEntry(task.ID, start, nil)

	require.NoError(t, f.coord.Stop(ctx, task.ID))

	entries, err := f.coord.ListEntries(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, entries[0].EndTime)
	assert.True(t, entries[0].EndTime.Equal(start))
}

func TestRestartAfterPending(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, testLocation)
	f := newCoordinatorFixture(t, now)
	task, err := f.tasks.Create(ctx, "two sessions", nil)
	require.NoError(t, err)

	require.NoError(t, f.coord.Start(ctx, task.ID))
	f.clock.Set(now.Add(time.Hour))
	require.NoError(t, f.coord.Stop(ctx, task.ID))

	_, err = f.tasks.Update(ctx, task.ID, TaskUpdate{Name: task.Name, Status: TaskStatusPending})
	require.NoError(t, err)

	f.clock.Set(now.Add(2 * time.Hour))
	require.NoError(t, f.coord.Start(ctx, task.ID))

	entries, err := f.coord.ListEntries(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Open())
	assert.False(t, entries[1].Open())
	assert.Equal(t, 1, f.store.openEntries(task.ID))
}

func TestListEntriesUnknownTask(t *testing.T) {
	f := newCoordinatorFixture(t, time.Now())

	_, err := f.coord.ListEntries(context.Background(), 7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCloseTasksAutomatically(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 14, 23, 59, 59, 0, testLocation)
	f := newCoordinatorFixture(t, now)

	today := f.store.putTask("today", TaskStatusInProgress)
	f.store.putEntry(today.ID, time.Date(2024, 3, 14, 8, 0, 0, 0, testLocation).UTC(), nil)

	yesterday := f.store.putTask("yesterday", TaskStatusInProgress)
	f.store.putEntry(yesterday.ID, time.Date(2024, 3, 13, 17, 0, 0, 0, testLocation).UTC(), nil)

	idle := f.store.putTask("idle", TaskStatusCreate)

	result, err := f.coord.CloseTasksAutomatically(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, result.SweepID)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, []int64{today.ID}, result.Closed)
	assert.Equal(t, []int64{yesterday.ID}, result.Skipped)
	assert.Empty(t, result.Failed)

	assert.Equal(t, TaskStatusCompleted, f.status(t, today.ID))
	assert.Equal(t, TaskStatusInProgress, f.status(t, yesterday.ID))
	assert.Equal(t, TaskStatusCreate, f.status(t, idle.ID))
	assert.Zero(t, f.store.openEntries(today.ID))
	assert.Equal(t, 1, f.store.openEntries(yesterday.ID))
}

func TestCloseTasksAutomaticallyUsesConfiguredDay(t *testing.T) {
	ctx := context.Background()
	// 22:30 UTC on the 13th is already the 14th in UTC+2.
	now := time.Date(2024, 3, 14, 1, 0, 0, 0, testLocation)
	f := newCoordinatorFixture(t, now)

	task := f.store.putTask("late", TaskStatusInProgress)
	f.store.putEntry(task.ID, time.Date(2024, 3, 13, 22, 30, 0, 0, time.UTC), nil)

	result, err := f.coord.CloseTasksAutomatically(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{task.ID}, result.Closed)
}

func TestCloseTasksAutomaticallyContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 14, 23, 59, 59, 0, testLocation)
	f := newCoordinatorFixture(t, now)
	startedToday := time.Date(2024, 3, 14, 10, 0, 0, 0, testLocation)

	orphan := f.store.putTask("orphan", TaskStatusInProgress)

	broken := f.store.putTask("broken", TaskStatusInProgress)
	f.store.putEntry(broken.ID, startedToday, nil)
	f.store.failGetLatest = map[int64]error{broken.ID: errors.New("disk on fire")}

	healthy := f.store.putTask("healthy", TaskStatusInProgress)
	f.store.putEntry(healthy.ID, startedToday, nil)

	result, err := f.coord.CloseTasksAutomatically(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, []int64{healthy.ID}, result.Closed)
	require.Len(t, result.Failed, 2)

	assert.Equal(t, orphan.ID, result.Failed[0].TaskID)
	assert.ErrorIs(t, result.Failed[0].Err, ErrConsistency)
	assert.Equal(t, broken.ID, result.Failed[1].TaskID)
	assert.NotErrorIs(t, result.Failed[1].Err, ErrConsistency)

	assert.Equal(t, TaskStatusCompleted, f.status(t, healthy.ID))
	assert.Equal(t, TaskStatusInProgress, f.status(t, orphan.ID))
}

func TestCloseTasksAutomaticallyListFailure(t *testing.T) {
	f := newCoordinatorFixture(t, time.Now())
	f.store.failListTasks = errors.New("db closed")

	result, err := f.coord.CloseTasksAutomatically(context.Background())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Zero(t, result.Checked)
}

func TestCloseTasksAutomaticallyEmpty(t *testing.T) {
	f := newCoordinatorFixture(t, time.Now())

	result, err := f.coord.CloseTasksAutomatically(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Checked)
	assert.Empty(t, result.Closed)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestSameDay(t *testing.T) {
	base := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.True(t, sameDay(base, base.Add(23*time.Hour+59*time.Minute)))
	assert.False(t, sameDay(base, base.Add(-time.Second)))
	assert.False(t, sameDay(base, base.AddDate(0, 1, 0)))
	assert.False(t, sameDay(base, base.AddDate(1, 0, 0)))
}

func TestTimeEntryDuration(t *testing.T) {
	start := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	open := &TimeEntry{StartTime: start}
	assert.True(t, open.Open())
	assert.Equal(t, 30*time.Minute, open.Duration(start.Add(30*time.Minute)))

	end := start.Add(time.Hour)
	closed := &TimeEntry{StartTime: start, EndTime: &end}
	assert.False(t, closed.Open())
	assert.Equal(t, time.Hour, closed.Duration(start.Add(5*time.Hour)))
}

func TestStopFinishesAfterCallerCancels(t *testing.T) {
	f := newCoordinatorFixture(t, time.Now())
	task := f.store.putTask("running", TaskStatusInProgress)
	f.store.putEntry(task.ID, time.Now().Add(-time.Hour).UTC(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.afterUpdateTask = func(Task) { cancel() }

	require.NoError(t, f.coord.Stop(ctx, task.ID))
	assert.Equal(t, TaskStatusCompleted, f.status(t, task.ID))
	assert.Zero(t, f.store.openEntries(task.ID))
}

func TestStartFinishesAfterCallerCancels(t *testing.T) {
	f := newCoordinatorFixture(t, time.Now())
	task := f.store.putTask("fresh", TaskStatusCreate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.afterUpdateTask = func(Task) { cancel() }

	require.NoError(t, f.coord.Start(ctx, task.ID))
	assert.Equal(t, TaskStatusInProgress, f.status(t, task.ID))
	assert.Equal(t, 1, f.store.openEntries(task.ID))
}

func TestSweepClosesEntryAfterCallerCancels(t *testing.T) {
	now := time.Date(2024, 3, 14, 23, 59, 59, 0, testLocation)
	f := newCoordinatorFixture(t, now)
	task := f.store.putTask("today", TaskStatusInProgress)
	f.store.putEntry(task.ID, time.Date(2024, 3, 14, 9, 0, 0, 0, testLocation).UTC(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.afterUpdateTask = func(Task) { cancel() }

	result, err := f.coord.CloseTasksAutomatically(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{task.ID}, result.Closed)
	assert.Empty(t, result.Failed)
	assert.Equal(t, TaskStatusCompleted, f.status(t, task.ID))
	assert.Zero(t, f.store.openEntries(task.ID))
}

func TestConsistencyViolationLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 3, 14, 23, 59, 59, 0, testLocation)
	f := newCoordinatorFixture(t, now)
	f.coord.logger = logging.NewWithWriter(&buf, "debug", "text")

	orphan := f.store.putTask("orphan", TaskStatusInProgress)

	result, err := f.coord.CloseTasksAutomatically(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, orphan.ID, result.Failed[0].TaskID)
	assert.Equal(t, 1, strings.Count(buf.String(), "kind=consistency"))

	buf.Reset()
	err = f.coord.Stop(context.Background(), orphan.ID)
	require.ErrorIs(t, err, ErrConsistency)
	assert.Equal(t, 1, strings.Count(buf.String(), "kind=consistency"))
}
