package task

import "errors"

var (
	// ErrNoSolution is returned by a job whose search space was pruned entirely.
	ErrNoSolution = errors.New("no feasible solution")

	// ErrNoResult is returned when a result is absent.
	ErrNoResult = errors.New("no result")

	// ErrTaskFailed wraps the error message carried by a failed result.
	ErrTaskFailed = errors.New("task failed")

	// ErrUnknownType is returned when decoding a body of an unregistered type.
	ErrUnknownType = errors.New("unknown task type")

	// ErrNotSplittable is returned when splitting a successor.
	ErrNotSplittable = errors.New("task not splittable")

	// ErrNotRunnable is returned when executing a successor whose inputs are incomplete.
	ErrNotRunnable = errors.New("task not runnable")

	// ErrInvalidJoin is returned when a split's successor does not match its children.
	ErrInvalidJoin = errors.New("invalid join")

	// ErrBusy is returned when a job starts while another job's tasks are
	// queued or executing.
	ErrBusy = errors.New("space busy with another job")

	// ErrClosed is returned by a space or computer that has been stopped.
	ErrClosed = errors.New("closed")
)
