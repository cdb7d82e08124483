package api

import (
	"net/http"
	"time"

	"timetrack/internal/core"
)

type startTimeEntryRequest struct {
	TaskID int64 `json:"task_id" validate:"required,gt=0"`
}

type timeEntryResponse struct {
	ID              int64   `json:"id"`
	TaskID          int64   `json:"task_id"`
	StartTime       string  `json:"start_time"`
	EndTime         *string `json:"end_time,omitempty"`
	Running         bool    `json:"running"`
	DurationSeconds int64   `json:"duration_seconds"`
}

func (s *Server) handleStartTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req startTimeEntryRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.timer.Start(r.Context(), req.TaskID); err != nil {
		s.writeServiceError(w, err, "start time entry", "task_id", req.TaskID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopTimeEntry(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	if err := s.timer.Stop(r.Context(), taskID); err != nil {
		s.writeServiceError(w, err, "stop time entry", "task_id", taskID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTimeEntries(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	entries, err := s.timer.ListEntries(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err, "list time entries", "task_id", taskID)
		return
	}
	now := time.Now()
	resp := make([]timeEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, timeEntryToResponse(entry, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func timeEntryToResponse(entry *core.TimeEntry, now time.Time) timeEntryResponse {
	var ended *string
	if entry.EndTime != nil {
		formatted := entry.EndTime.UTC().Format(time.RFC3339)
		ended = &formatted
	}
	return timeEntryResponse{
		ID:              entry.ID,
		TaskID:          entry.TaskID,
		StartTime:       entry.StartTime.UTC().Format(time.RFC3339),
		EndTime:         ended,
		Running:         entry.Open(),
		DurationSeconds: int64(entry.Duration(now) / time.Second),
	}
}
