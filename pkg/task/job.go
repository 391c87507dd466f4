package task

import "context"

// Run submits job to space and waits for its answer.
func Run[R any](ctx context.Context, job Job[R], space Space) (R, error) {
	if err := job.GenerateTasks(ctx, space); err != nil {
		var zero R
		return zero, err
	}
	return job.CollectResults(ctx, space)
}
