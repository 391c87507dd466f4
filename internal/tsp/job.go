package tsp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/task-space/pkg/logger"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
)

// EuclideanJob finds the shortest closed tour through a set of cities,
// starting and ending at city 0.
type EuclideanJob struct {
	ID        string
	cities    []City
	baseLevel int
	start     time.Time
}

var _ task.Job[[]int] = (*EuclideanJob)(nil)

// NewEuclideanJob creates a job over cities. A baseLevel below 1 selects BaseLevel.
func NewEuclideanJob(cities []City, baseLevel int) *EuclideanJob {
	return &EuclideanJob{
		ID:        uuid.New().String(),
		cities:    cities,
		baseLevel: baseLevel,
	}
}

// GenerateTasks resets the space to the neutral bound and puts the root
// task: the prefix {0} with every other city remaining. It fails with
// task.ErrBusy while the space runs another job.
func (j *EuclideanJob) GenerateTasks(ctx context.Context, space task.Space) error {
	if len(j.cities) == 0 {
		return fmt.Errorf("job %s has no cities", j.ID)
	}

	remaining := make([]int, 0, len(j.cities)-1)
	for i := 1; i < len(j.cities); i++ {
		remaining = append(remaining, i)
	}
	root := task.New(task.JobRoot(j.ID), NewBranchAndBound(
		NewEuclideanSolution(j.cities, []int{0}, remaining), j.baseLevel))

	if err := space.ResetShared(ctx, shared.WorstMinDouble()); err != nil {
		return fmt.Errorf("reset bound: %w", err)
	}

	j.start = time.Now()
	if err := space.Put(ctx, root); err != nil {
		return fmt.Errorf("put root task: %w", err)
	}

	logger.Info("tsp job submitted", zap.String("job_id", j.ID), zap.Int("cities", len(j.cities)))
	return nil
}

// CollectResults waits for the job's answer and returns the tour as a city
// sequence starting at 0. It returns task.ErrNoSolution when every branch
// was pruned.
func (j *EuclideanJob) CollectResults(ctx context.Context, space task.Space) ([]int, error) {
	r, err := space.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("take result: %w", err)
	}
	elapsed := time.Since(j.start)

	tour, err := task.Value[Tour](r)
	if err != nil {
		return nil, err
	}
	if !tour.Feasible {
		logger.Warn("tsp job found no tour", zap.String("job_id", j.ID), zap.Duration("elapsed", elapsed))
		return nil, task.ErrNoSolution
	}

	logger.Info("tsp job done",
		zap.String("job_id", j.ID),
		zap.Duration("elapsed", elapsed),
		zap.Ints("tour", tour.Path),
		zap.Float64("cost", tour.Cost))
	return tour.Path, nil
}
