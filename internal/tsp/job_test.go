package tsp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/task-space/internal/local"
	"yqhp/task-space/internal/space"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
)

func startCluster(t *testing.T, computers int) *local.Cluster {
	t.Helper()

	cfg := space.DefaultConfig()
	cfg.HealthCheckInterval = 0
	c, err := local.Start(context.Background(), cfg, computers, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	return c
}

func TestEuclideanJob_UnitSquare(t *testing.T) {
	c := startCluster(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tour, err := task.Run[[]int](ctx, NewEuclideanJob(unitSquare, 0), c.Space)
	require.NoError(t, err)

	require.Len(t, tour, 4)
	assert.Equal(t, 0, tour[0])
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, tour)
	assert.InDelta(t, 4.0, TourCost(unitSquare, tour), 1e-9)
	assert.InDelta(t, 4.0, shared.Float(c.Space.Shared()), 1e-9)
}

func TestEuclideanJob_MatchesBruteForce(t *testing.T) {
	c := startCluster(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cities := DemoCities[:8]
	tour, err := task.Run[[]int](ctx, NewEuclideanJob(cities, BaseLevel), c.Space)
	require.NoError(t, err)
	assert.InDelta(t, bruteForce(cities), TourCost(cities, tour), 1e-9)
}

// tightSpace starts every job from a bound below any tour.
type tightSpace struct {
	task.Space
	bound float64
}

func (s tightSpace) ResetShared(ctx context.Context, _ shared.Shared) error {
	return s.Space.ResetShared(ctx, shared.NewMinDouble(s.bound))
}

func TestEuclideanJob_AllPruned(t *testing.T) {
	c := startCluster(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := task.Run[[]int](ctx, NewEuclideanJob(unitSquare, 0), tightSpace{Space: c.Space, bound: 0.5})
	assert.True(t, errors.Is(err, task.ErrNoSolution), "got %v", err)
}

func TestEuclideanJob_SequentialJobsOnOneSpace(t *testing.T) {
	c := startCluster(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tour, err := task.Run[[]int](ctx, NewEuclideanJob(unitSquare, 0), c.Space)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, TourCost(unitSquare, tour), 1e-9)

	// The second instance is longer than the first optimum; it must not be
	// pruned against the bound left by the first job.
	big := []City{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
	tour, err = task.Run[[]int](ctx, NewEuclideanJob(big, 0), c.Space)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, TourCost(big, tour), 1e-9)
	assert.InDelta(t, 40.0, shared.Float(c.Space.Shared()), 1e-9)

	for _, comp := range c.Computers {
		got, _ := comp.GetShared(ctx)
		assert.GreaterOrEqual(t, shared.Float(got), 40.0-1e-9)
	}
}

func TestEuclideanJob_RejectedWhileAnotherRuns(t *testing.T) {
	c := startCluster(t, 1)
	ctx := context.Background()

	// With no computer left, the first job's root stays queued.
	require.NoError(t, c.Space.Unregister(ctx, c.Computers[0].GetID()))
	first := NewEuclideanJob(DemoCities[:9], BaseLevel)
	require.NoError(t, first.GenerateTasks(ctx, c.Space))

	err := NewEuclideanJob(unitSquare, 0).GenerateTasks(ctx, c.Space)
	assert.True(t, errors.Is(err, task.ErrBusy), "got %v", err)
}

func TestEuclideanJob_SingleCity(t *testing.T) {
	c := startCluster(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tour, err := task.Run[[]int](ctx, NewEuclideanJob([]City{{3, 4}}, 0), c.Space)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, tour)
}

func TestEuclideanJob_NoCities(t *testing.T) {
	c := startCluster(t, 1)
	err := NewEuclideanJob(nil, 0).GenerateTasks(context.Background(), c.Space)
	assert.Error(t, err)
}

func TestEuclideanJob_CollectHonoursContext(t *testing.T) {
	c := startCluster(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewEuclideanJob(unitSquare, 0).CollectResults(ctx, c.Space)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
