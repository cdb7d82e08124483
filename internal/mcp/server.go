package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"timetrack/internal/core"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes task and timer operations as MCP tools.
type MCPServer struct {
	tasks     *core.TaskManager
	timer     *core.TimeEntryCoordinator
	scheduler *core.Scheduler
	logger    *slog.Logger
	location  *time.Location

	server *server.MCPServer
}

// NewMCPServer creates a new MCP server instance with all tools registered.
func NewMCPServer(tasks *core.TaskManager, timer *core.TimeEntryCoordinator, scheduler *core.Scheduler, logger *slog.Logger, location *time.Location) *MCPServer {
	if location == nil {
		location = time.Local
	}
	s := &MCPServer{
		tasks:     tasks,
		timer:     timer,
		scheduler: scheduler,
		logger:    logger,
		location:  location,
	}
	s.server = server.NewMCPServer(
		"timetrack",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(s.server)
	return s
}

// Run serves MCP over stdio until stdin closes.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.server)
}

// HTTPHandler serves MCP over streamable HTTP.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	statuses := make([]string, 0, len(core.TaskStatuses))
	for _, st := range core.TaskStatuses {
		statuses = append(statuses, string(st))
	}

	mcpServer.AddTool(mcp.NewTool("task_create",
		mcp.WithDescription("Create a task. New tasks start in the CREATE status."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Task name"),
		),
		mcp.WithString("description",
			mcp.Description("Optional task description"),
		),
	), s.handleCreateTask)

	mcpServer.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List tasks, optionally filtered by status"),
		mcp.WithString("status",
			mcp.Description("Only return tasks in this status"),
			mcp.Enum(statuses...),
		),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("task_get",
		mcp.WithDescription("Show a single task"),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
			mcp.Min(1),
		),
	), s.handleGetTask)

	mcpServer.AddTool(mcp.NewTool("task_update",
		mcp.WithDescription("Update a task. Omitted fields keep their current value."),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
			mcp.Min(1),
		),
		mcp.WithString("name",
			mcp.Description("New name"),
		),
		mcp.WithString("description",
			mcp.Description("New description; an empty string clears it"),
		),
		mcp.WithString("status",
			mcp.Description("New status"),
			mcp.Enum(statuses...),
		),
	), s.handleUpdateTask)

	mcpServer.AddTool(mcp.NewTool("timer_start",
		mcp.WithDescription("Start the timer for a task in CREATE or PENDING status"),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
			mcp.Min(1),
		),
	), s.handleStartTimer)

	mcpServer.AddTool(mcp.NewTool("timer_stop",
		mcp.WithDescription("Stop the running timer of an IN_PROGRESS task and complete it"),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
			mcp.Min(1),
		),
	), s.handleStopTimer)

	mcpServer.AddTool(mcp.NewTool("timer_entries",
		mcp.WithDescription("List the time entries recorded for a task"),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
			mcp.Min(1),
		),
	), s.handleListEntries)

	mcpServer.AddTool(mcp.NewTool("sweep_run",
		mcp.WithDescription("Run the automatic closure now: completes in-progress tasks whose timer started today"),
	), s.handleRunSweep)

	s.logger.Debug("MCP tools registered", "count", 8)
}

func (s *MCPServer) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "name", "")
	var description *string
	if d := mcp.ParseString(request, "description", ""); d != "" {
		description = &d
	}
	task, err := s.tasks.Create(ctx, name, description)
	if err != nil {
		return toolError("create task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task created\n%s", s.formatTask(task))), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		tasks []*core.Task
		err   error
	)
	if status := mcp.ParseString(request, "status", ""); status != "" {
		st := core.TaskStatus(strings.ToUpper(status))
		if !st.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown status: %s", status)), nil
		}
		tasks, err = s.tasks.GetTasksByStatus(ctx, st)
	} else {
		tasks, err = s.tasks.GetAll(ctx)
	}
	if err != nil {
		return toolError("list tasks", err), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "#%d %s [%s]\n", t.ID, truncateString(t.Name, 60), t.Status)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := taskIDArg(request)
	if err != nil {
		return toolError("get task", err), nil
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return toolError("get task", err), nil
	}
	return mcp.NewToolResultText(s.formatTask(task)), nil
}

func (s *MCPServer) handleUpdateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := taskIDArg(request)
	if err != nil {
		return toolError("update task", err), nil
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return toolError("get task", err), nil
	}

	args := request.GetArguments()
	update := core.TaskUpdate{
		Name:        task.Name,
		Description: task.Description,
		Status:      task.Status,
	}
	if name := mcp.ParseString(request, "name", ""); name != "" {
		update.Name = name
	}
	if _, ok := args["description"]; ok {
		d := mcp.ParseString(request, "description", "")
		update.Description = &d
	}
	if status := mcp.ParseString(request, "status", ""); status != "" {
		update.Status = core.TaskStatus(strings.ToUpper(status))
	}

	updated, err := s.tasks.Update(ctx, taskID, update)
	if err != nil {
		return toolError("update task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task updated\n%s", s.formatTask(updated))), nil
}

func (s *MCPServer) handleStartTimer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := taskIDArg(request)
	if err != nil {
		return toolError("start timer", err), nil
	}
	if err := s.timer.Start(ctx, taskID); err != nil {
		return toolError("start timer", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Timer started for task #%d", taskID)), nil
}

func (s *MCPServer) handleStopTimer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := taskIDArg(request)
	if err != nil {
		return toolError("stop timer", err), nil
	}
	if err := s.timer.Stop(ctx, taskID); err != nil {
		return toolError("stop timer", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Timer stopped, task #%d completed", taskID)), nil
}

func (s *MCPServer) handleListEntries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := taskIDArg(request)
	if err != nil {
		return toolError("list time entries", err), nil
	}
	entries, err := s.timer.ListEntries(ctx, taskID)
	if err != nil {
		return toolError("list time entries", err), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Task #%d has no time entries", taskID)), nil
	}

	now := time.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d time entries:\n\n", len(entries))
	for _, e := range entries {
		end := "running"
		if e.EndTime != nil {
			end = s.formatTime(e.EndTime)
		}
		fmt.Fprintf(&b, "#%d %s -> %s (%s)\n", e.ID, s.formatTime(&e.StartTime), end, e.Duration(now).Round(time.Second))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleRunSweep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.scheduler.RunNow(ctx)
	if err != nil {
		return toolError("run sweep", err), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Sweep %s checked %d in-progress tasks\n", result.SweepID, result.Checked)
	fmt.Fprintf(&b, "Closed: %v\n", result.Closed)
	fmt.Fprintf(&b, "Left running: %v\n", result.Skipped)
	for _, f := range result.Failed {
		fmt.Fprintf(&b, "Failed #%d: %v\n", f.TaskID, f.Err)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// taskIDArg reads task_id, which must be a whole number of at least 1.
func taskIDArg(request mcp.CallToolRequest) (int64, error) {
	raw := mcp.ParseFloat64(request, "task_id", 0)
	if raw < 1 || raw != math.Trunc(raw) || raw >= math.MaxInt64 {
		return 0, fmt.Errorf("task_id must be a positive integer: %w", core.ErrValidation)
	}
	return int64(raw), nil
}

func toolError(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrValidation):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err))
	}
}
