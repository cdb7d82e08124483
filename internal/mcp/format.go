package mcp

import (
	"fmt"
	"strings"
	"time"

	"timetrack/internal/core"
)

func (s *MCPServer) formatTask(task *core.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %d\n", task.ID)
	fmt.Fprintf(&b, "Name: %s\n", task.Name)
	if task.Description != nil {
		fmt.Fprintf(&b, "Description: %s\n", *task.Description)
	}
	fmt.Fprintf(&b, "Status: %s %s\n", statusToIcon(task.Status), task.Status)
	fmt.Fprintf(&b, "Created: %s\n", s.formatTime(&task.CreatedAt))
	fmt.Fprintf(&b, "Updated: %s\n", s.formatTime(&task.UpdatedAt))
	return b.String()
}

func (s *MCPServer) formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.In(s.location).Format("2006-01-02 15:04:05")
}

// truncateString shortens s to at most maxLen runes.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func statusToIcon(status core.TaskStatus) string {
	switch status {
	case core.TaskStatusCreate:
		return "🆕"
	case core.TaskStatusPending:
		return "⏸️"
	case core.TaskStatusInProgress:
		return "▶️"
	case core.TaskStatusCompleted:
		return "✅"
	default:
		return "❓"
	}
}
