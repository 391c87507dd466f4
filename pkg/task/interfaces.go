package task

import (
	"context"

	"yqhp/task-space/pkg/shared"
)

// NoOrigin is the origin of shared values that do not come from a computer.
// Computer IDs start at 1.
const NoOrigin = 0

// Space is the coordinator that holds the task graph of running jobs.
type Space interface {
	// Register admits a computer as a dispatch target and returns its ID.
	Register(ctx context.Context, c Computer) (int, error)

	// Put admits a root task into the runnable set.
	Put(ctx context.Context, t *Task) error

	// StoreTasks records a split: children become runnable, the successor waits
	// for JoinCounter results. The parent is retired.
	StoreTasks(ctx context.Context, parent *Task, children []*Task, successor *Task) error

	// StoreResult records the result of an executed task.
	StoreResult(ctx context.Context, t *Task) error

	// Take blocks until a job's terminal result is published and returns it.
	Take(ctx context.Context) (*Result, error)

	// SetShared adopts s if newer and forwards it to every computer except origin.
	SetShared(ctx context.Context, s shared.Shared, origin int) error

	// ResetShared starts a job: it replaces the shared value with s and
	// pushes it to every computer. It fails with ErrBusy while tasks of
	// another job are queued or executing.
	ResetShared(ctx context.Context, s shared.Shared) error
}

// Computer executes tasks on behalf of a space.
type Computer interface {
	// Execute runs or splits t and reports the outcome to the space.
	Execute(ctx context.Context, t *Task) error

	// Exit terminates the computer.
	Exit(ctx context.Context) error

	// SetShared adopts s if newer; adopted values go to the space when canPropagate is set.
	SetShared(ctx context.Context, s shared.Shared, canPropagate bool) error

	// ResetShared replaces the cached value with s, even if s is older.
	ResetShared(ctx context.Context, s shared.Shared) error

	// GetShared returns the computer's cached shared value.
	GetShared(ctx context.Context) (shared.Shared, error)

	SetComputerID(ctx context.Context, id int) error
	GetComputerID(ctx context.Context) (int, error)
}

// Job decomposes a problem into a root task and composes the final answer.
type Job[R any] interface {
	// GenerateTasks resets the space's shared value and puts the root task.
	GenerateTasks(ctx context.Context, space Space) error

	// CollectResults waits for the terminal result and converts it to the answer.
	CollectResults(ctx context.Context, space Space) (R, error)
}
