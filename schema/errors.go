package schema

import "errors"

var (
	// ErrSpawnFailure indicates the worker executable could not be launched.
	ErrSpawnFailure = errors.New("worker spawn failed")
	// ErrProcessExited indicates the worker terminated.
	ErrProcessExited = errors.New("worker exited")
	// ErrNotRunning indicates a command was submitted while the worker was not running.
	ErrNotRunning = errors.New("worker not running")
	// ErrAlreadyRunning indicates a second start on a live supervisor.
	ErrAlreadyRunning = errors.New("worker already running")
	// ErrUnknownCommand indicates an outbound command the codec cannot encode.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUnrecognizedMessage indicates valid JSON that matches no inbound shape.
	ErrUnrecognizedMessage = errors.New("unrecognized message")
	// ErrWidgetNotFound indicates a widget id is not active.
	ErrWidgetNotFound = errors.New("widget not found")
	// ErrInvalidPayload indicates a presentation payload without any content.
	ErrInvalidPayload = errors.New("invalid presentation payload")
	// ErrInvalidPolicy indicates an unknown widget policy name.
	ErrInvalidPolicy = errors.New("invalid widget policy")
	// ErrInvalidAction indicates an unknown widget action.
	ErrInvalidAction = errors.New("invalid widget action")
	// ErrStaleHistory indicates a delete against a history list that changed since it was fetched.
	ErrStaleHistory = errors.New("history list is stale; refresh before deleting")
	// ErrHistoryIndex indicates a delete index outside the fetched list.
	ErrHistoryIndex = errors.New("history index out of range")
	// ErrInvalidRequest indicates a host request with missing or malformed arguments.
	ErrInvalidRequest = errors.New("invalid request")
)
