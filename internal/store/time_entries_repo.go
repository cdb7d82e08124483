package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timetrack/internal/core"
)

// ErrTimeEntryNotFound wraps core.ErrNotFound.
var ErrTimeEntryNotFound = fmt.Errorf("time entry %w", core.ErrNotFound)

// ErrTimeEntryClosed is returned when an already closed entry would be closed again.
var ErrTimeEntryClosed = fmt.Errorf("time entry already closed: %w", core.ErrInvalidState)

const timeEntryColumns = `id, task_id, start_time, end_time`

func (s *Store) InsertTimeEntry(ctx context.Context, entry *core.TimeEntry) error {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO time_entries (task_id, start_time, end_time)
		VALUES (?, ?, ?)
	`, entry.TaskID, entry.StartTime.UTC().Format(timeLayout), nullableTime(entry.EndTime))
	if err != nil {
		return fmt.Errorf("insert time entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert time entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// UpdateTimeEntry sets the end time of an open entry. The end time is
// write-once: closed entries are left unchanged and ErrTimeEntryClosed is returned.
func (s *Store) UpdateTimeEntry(ctx context.Context, entry *core.TimeEntry) error {
	if entry.EndTime == nil {
		return fmt.Errorf("update time entry %d: end time is required", entry.ID)
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE time_entries
		SET end_time = ?
		WHERE id = ? AND end_time IS NULL
	`, nullableTime(entry.EndTime), entry.ID)
	if err != nil {
		return fmt.Errorf("update time entry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetTimeEntry(ctx, entry.ID); err != nil {
			return err
		}
		return ErrTimeEntryClosed
	}
	return nil
}

func (s *Store) GetTimeEntry(ctx context.Context, id int64) (*core.TimeEntry, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ?`, id)
	return scanTimeEntryRow(row)
}

// GetOpenTimeEntry returns the running entry for taskID. If, against the
// invariant, several are open, the most recent one is returned.
func (s *Store) GetOpenTimeEntry(ctx context.Context, taskID int64) (*core.TimeEntry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+timeEntryColumns+`
		FROM time_entries
		WHERE task_id = ? AND end_time IS NULL
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`, taskID)
	return scanTimeEntryRow(row)
}

func (s *Store) GetLatestTimeEntry(ctx context.Context, taskID int64) (*core.TimeEntry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+timeEntryColumns+`
		FROM time_entries
		WHERE task_id = ?
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`, taskID)
	return scanTimeEntryRow(row)
}

// ListTimeEntries returns all entries for taskID, newest first.
func (s *Store) ListTimeEntries(ctx context.Context, taskID int64) ([]*core.TimeEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+timeEntryColumns+`
		FROM time_entries
		WHERE task_id = ?
		ORDER BY start_time DESC, id DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	defer rows.Close()
	var entries []*core.TimeEntry
	for rows.Next() {
		entry, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanTimeEntryRow(row *sql.Row) (*core.TimeEntry, error) {
	entry, err := scanTimeEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTimeEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

func scanTimeEntry(scanner interface {
	Scan(dest ...any) error
}) (*core.TimeEntry, error) {
	var (
		id        int64
		taskID    int64
		startTime string
		endTime   sql.NullString
	)
	if err := scanner.Scan(&id, &taskID, &startTime, &endTime); err != nil {
		return nil, fmt.Errorf("scan time entry: %w", err)
	}
	start, err := parseTime(startTime)
	if err != nil {
		return nil, err
	}
	entry := &core.TimeEntry{
		ID:        id,
		TaskID:    taskID,
		StartTime: start,
	}
	if endTime.Valid {
		end, err := parseTime(endTime.String)
		if err != nil {
			return nil, err
		}
		entry.EndTime = &end
	}
	return entry, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", value, err)
	}
	return t, nil
}
