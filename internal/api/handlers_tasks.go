package api

import (
	"net/http"
	"strings"
	"time"

	"timetrack/internal/core"
)

type createTaskRequest struct {
	Name        string  `json:"name"        validate:"required"`
	Description *string `json:"description"`
}

type updateTaskRequest struct {
	Name        string  `json:"name"        validate:"required"`
	Description *string `json:"description"`
	Status      string  `json:"status"      validate:"required,oneof=CREATE PENDING IN_PROGRESS COMPLETED"`
}

type taskResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	task, err := s.tasks.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		s.writeServiceError(w, err, "create task")
		return
	}
	writeJSON(w, http.StatusCreated, taskToResponse(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []*core.Task
		err   error
	)
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		st := core.TaskStatus(strings.ToUpper(status))
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_input", "status must be one of CREATE, PENDING, IN_PROGRESS, COMPLETED")
			return
		}
		tasks, err = s.tasks.GetTasksByStatus(r.Context(), st)
	} else {
		tasks, err = s.tasks.GetAll(r.Context())
	}
	if err != nil {
		s.writeServiceError(w, err, "list tasks")
		return
	}
	res := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	task, err := s.tasks.GetByID(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err, "load task", "task_id", taskID)
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	task, err := s.tasks.Update(r.Context(), taskID, core.TaskUpdate{
		Name:        req.Name,
		Description: req.Description,
		Status:      core.TaskStatus(req.Status),
	})
	if err != nil {
		s.writeServiceError(w, err, "update task", "task_id", taskID)
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func taskToResponse(task *core.Task) taskResponse {
	return taskResponse{
		ID:          task.ID,
		Name:        task.Name,
		Description: task.Description,
		Status:      string(task.Status),
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   task.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
