package rest

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/task-space/api/rest/client"
	"yqhp/task-space/internal/computer"
	"yqhp/task-space/internal/tsp"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func serve(t *testing.T, app interface {
	Serve(net.Listener) error
	Shutdown() error
}, ln net.Listener) {
	t.Helper()
	go func() { _ = app.Serve(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
}

// startRemoteCluster runs a space and n computers, each behind its own HTTP
// server, and returns a client of the space.
func startRemoteCluster(t *testing.T, n int) *client.SpaceClient {
	t.Helper()
	ctx := context.Background()

	s := newTestSpace(t)
	spaceLn := listen(t)
	serve(t, NewSpaceServer(s, nil, nil), spaceLn)

	for i := 0; i < n; i++ {
		ln := listen(t)

		cfg := computer.DefaultConfig()
		cfg.Address = ln.Addr().String()
		cfg.Workers = 2
		cfg.Labels = map[string]string{"index": strconv.Itoa(i)}
		c := computer.NewTaskComputer(cfg)
		c.SetExitHook(func() {})
		serve(t, NewComputerServer(c, nil), ln)

		sc, err := client.NewSpaceClient(spaceLn.Addr().String(), nil)
		require.NoError(t, err)
		require.NoError(t, c.Connect(ctx, sc))
	}

	sc, err := client.NewSpaceClient(spaceLn.Addr().String(), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sc.Health(ctx) == nil }, 2*time.Second, 10*time.Millisecond)
	return sc
}

func TestRemote_EuclideanJob(t *testing.T) {
	sc := startRemoteCluster(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	square := []tsp.City{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	tour, err := task.Run[[]int](ctx, tsp.NewEuclideanJob(square, 0), sc)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, tsp.TourCost(square, tour), 1e-9)

	best, err := sc.Shared(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, shared.Float(best), 1e-9)

	status, err := sc.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Computers, 2)
	assert.Zero(t, status.ReadyTasks)
	assert.Zero(t, status.WaitingJoin)
}

func TestRemote_DemoCities(t *testing.T) {
	sc := startRemoteCluster(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cities := tsp.DemoCities[:7]
	tour, err := task.Run[[]int](ctx, tsp.NewEuclideanJob(cities, tsp.BaseLevel), sc)
	require.NoError(t, err)
	require.Len(t, tour, len(cities))
	assert.Equal(t, 0, tour[0])

	best, err := sc.Shared(ctx)
	require.NoError(t, err)
	assert.InDelta(t, tsp.TourCost(cities, tour), shared.Float(best), 1e-9)
}

func TestRemote_TakeHonorsDeadline(t *testing.T) {
	sc := startRemoteCluster(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sc.Take(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRemote_SequentialJobs(t *testing.T) {
	sc := startRemoteCluster(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	small := []tsp.City{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	_, err := task.Run[[]int](ctx, tsp.NewEuclideanJob(small, 0), sc)
	require.NoError(t, err)

	big := []tsp.City{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
	tour, err := task.Run[[]int](ctx, tsp.NewEuclideanJob(big, 0), sc)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, tsp.TourCost(big, tour), 1e-9)

	best, err := sc.Shared(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, shared.Float(best), 1e-9)
}

func TestRemote_ResetSharedBusy(t *testing.T) {
	sc := startRemoteCluster(t, 0)
	ctx := context.Background()

	require.NoError(t, sc.Put(ctx, task.New(task.RootID, &constBody{V: 1})))
	err := sc.ResetShared(ctx, shared.WorstMinDouble())
	assert.True(t, errors.Is(err, task.ErrBusy), "got %v", err)

	_, err = task.Run[[]int](ctx, tsp.NewEuclideanJob(tsp.DemoCities[:4], 0), sc)
	assert.True(t, errors.Is(err, task.ErrBusy), "got %v", err)
}

func TestRemote_ComputersByLabel(t *testing.T) {
	sc := startRemoteCluster(t, 3)
	ctx := context.Background()

	got, err := sc.Computers(ctx, map[string]string{"index": "1"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	online, err := sc.Computers(ctx, nil, types.ComputerStateOnline)
	require.NoError(t, err)
	assert.Len(t, online, 3)
}
