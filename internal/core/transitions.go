package core

import "fmt"

// Action is a timer operation that moves a task between statuses.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// transitions holds every legal status change. Anything absent is rejected.
var transitions = map[Action]map[TaskStatus]TaskStatus{
	ActionStart: {
		TaskStatusCreate:  TaskStatusInProgress,
		TaskStatusPending: TaskStatusInProgress,
	},
	ActionStop: {
		TaskStatusInProgress: TaskStatusCompleted,
	},
}

var rejectReasons = map[Action]string{
	ActionStart: "task not eligible to start",
	ActionStop:  "task not in progress",
}

// Transition returns the status a task in from moves to when action is applied.
// Illegal transitions return an error wrapping ErrInvalidState.
func Transition(from TaskStatus, action Action) (TaskStatus, error) {
	table, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("unknown action %q: %w", action, ErrInvalidState)
	}
	to, ok := table[from]
	if !ok {
		return "", fmt.Errorf("%s (status %s): %w", rejectReasons[action], from, ErrInvalidState)
	}
	return to, nil
}

// CanTransition reports whether action is legal from the given status.
func CanTransition(from TaskStatus, action Action) bool {
	_, err := Transition(from, action)
	return err == nil
}
