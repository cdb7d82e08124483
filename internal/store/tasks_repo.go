package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timetrack/internal/core"
)

// ErrTaskNotFound wraps core.ErrNotFound.
var ErrTaskNotFound = fmt.Errorf("task %w", core.ErrNotFound)

const taskColumns = `id, name, description, status, created_at, updated_at`

func (s *Store) InsertTask(ctx context.Context, task *core.Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO tasks (name, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, task.Name, nullableString(task.Description), task.Status,
		task.CreatedAt.Format(timeLayout), task.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert task id: %w", err)
	}
	task.ID = id
	return nil
}

// UpdateTask writes name, description and status. created_at is never touched.
func (s *Store) UpdateTask(ctx context.Context, task *core.Task) error {
	task.UpdatedAt = time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET name = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, task.Name, nullableString(task.Description), task.Status, task.UpdatedAt.Format(timeLayout), task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows: %w", err)
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*core.Task, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListTasks returns tasks ordered by id, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, status *core.TaskStatus) ([]*core.Task, error) {
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE status = ?
			ORDER BY id
		`, *status)
	} else {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			ORDER BY id
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*core.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.Task, error) {
	var (
		id          int64
		name        string
		description sql.NullString
		status      string
		createdAt   string
		updatedAt   string
	)
	if err := scanner.Scan(&id, &name, &description, &status, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task := &core.Task{
		ID:     id,
		Name:   name,
		Status: core.TaskStatus(status),
	}
	if description.Valid {
		task.Description = &description.String
	}
	var err error
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return task, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(timeLayout)
}
