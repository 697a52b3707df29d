package task

import "errors"

var (
	// ErrInvalidInput marks requests rejected before they reach the queue.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTaskNotFound marks pause/resume/cancel calls that reference an id
	// with no known active process.
	ErrTaskNotFound = errors.New("task not found")

	// ErrChannel marks internal message delivery failures.
	ErrChannel = errors.New("channel closed")
)
