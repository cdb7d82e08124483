package api

import (
	"errors"
	"net/http"
	"time"

	"timetrack/internal/core"
)

type sweepFailureResponse struct {
	TaskID int64  `json:"task_id"`
	Error  string `json:"error"`
}

type sweepResponse struct {
	SweepID    string                 `json:"sweep_id"`
	StartedAt  string                 `json:"started_at"`
	FinishedAt string                 `json:"finished_at"`
	Checked    int                    `json:"checked"`
	Closed     []int64                `json:"closed"`
	Skipped    []int64                `json:"skipped"`
	Failed     []sweepFailureResponse `json:"failed"`
}

type sweepScheduleResponse struct {
	Cron     string   `json:"cron"`
	Enabled  bool     `json:"enabled"`
	Location string   `json:"location"`
	NextRun  *string  `json:"next_run,omitempty"`
	Upcoming []string `json:"upcoming"`
}

func (s *Server) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.RunNow(r.Context())
	if err != nil {
		if errors.Is(err, core.ErrSweepRunning) {
			writeError(w, http.StatusConflict, "conflict", "sweep is already running")
			return
		}
		s.writeServiceError(w, err, "run sweep")
		return
	}
	writeJSON(w, http.StatusOK, sweepToResponse(result))
}

func (s *Server) handleSweepSchedule(w http.ResponseWriter, r *http.Request) {
	resp := sweepScheduleResponse{
		Cron:     s.scheduler.Expr(),
		Enabled:  s.scheduler.Enabled(),
		Location: s.location.String(),
	}
	if next := s.scheduler.Next(); !next.IsZero() {
		formatted := next.UTC().Format(time.RFC3339)
		resp.NextRun = &formatted
	}
	upcoming := s.scheduler.Preview(time.Now(), 5)
	resp.Upcoming = make([]string, 0, len(upcoming))
	for _, t := range upcoming {
		resp.Upcoming = append(resp.Upcoming, t.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, resp)
}

func sweepToResponse(result *core.SweepResult) sweepResponse {
	resp := sweepResponse{
		SweepID:    result.SweepID,
		StartedAt:  result.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: result.FinishedAt.UTC().Format(time.RFC3339),
		Checked:    result.Checked,
		Closed:     append([]int64{}, result.Closed...),
		Skipped:    append([]int64{}, result.Skipped...),
		Failed:     make([]sweepFailureResponse, 0, len(result.Failed)),
	}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, sweepFailureResponse{TaskID: f.TaskID, Error: f.Err.Error()})
	}
	return resp
}
