package rest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/task-space/internal/computer"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

// resultSpace keeps what a computer stores.
type resultSpace struct {
	mu      sync.Mutex
	results []*task.Task
	shared  []shared.Shared
}

func (s *resultSpace) Register(ctx context.Context, c task.Computer) (int, error) { return 1, nil }
func (s *resultSpace) Put(ctx context.Context, t *task.Task) error                { return nil }
func (s *resultSpace) Take(ctx context.Context) (*task.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *resultSpace) StoreTasks(ctx context.Context, parent *task.Task, children []*task.Task, successor *task.Task) error {
	return nil
}

func (s *resultSpace) StoreResult(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, t)
	return nil
}

func (s *resultSpace) SetShared(ctx context.Context, sh shared.Shared, origin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shared = append(s.shared, sh)
	return nil
}

func (s *resultSpace) ResetShared(ctx context.Context, sh shared.Shared) error { return nil }

func (s *resultSpace) stored() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*task.Task(nil), s.results...)
}

func newComputerServer(t *testing.T) (*ComputerServer, *computer.TaskComputer, *resultSpace, chan struct{}) {
	t.Helper()

	cfg := computer.DefaultConfig()
	cfg.Name = "rest-test"
	c := computer.NewTaskComputer(cfg)
	exited := make(chan struct{})
	c.SetExitHook(func() { close(exited) })

	sp := &resultSpace{}
	require.NoError(t, c.Connect(context.Background(), sp))
	return NewComputerServer(c, nil), c, sp, exited
}

func TestComputerServer_Execute(t *testing.T) {
	srv, _, sp, _ := newComputerServer(t)

	resp, body := doJSON(t, srv.App(), http.MethodPost, "/api/v1/execute", task.New(task.RootID, &constBody{V: 9}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	// the result is stored before the response
	stored := sp.stored()
	require.Len(t, stored, 1)
	v, err := task.Value[int](stored[0].Result)
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	resp, body = doJSON(t, srv.App(), http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var stats types.ComputerStatsResponse
	require.NoError(t, sonic.Unmarshal(body, &stats))
	assert.Equal(t, int64(1), stats.Executed)
	assert.Equal(t, 1, stats.ComputerID)

	resp, _ = doJSON(t, srv.App(), http.MethodPost, "/api/v1/execute",
		map[string]any{"id": "r", "kind": "child", "body": map[string]any{"type": "nope"}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestComputerServer_ID(t *testing.T) {
	srv, c, _, _ := newComputerServer(t)

	resp, _ := doJSON(t, srv.App(), http.MethodPut, "/api/v1/id", types.ComputerIDRequest{ID: 7})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 7, c.GetID())

	resp, body := doJSON(t, srv.App(), http.MethodGet, "/api/v1/id", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got types.ComputerIDRequest
	require.NoError(t, sonic.Unmarshal(body, &got))
	assert.Equal(t, 7, got.ID)

	resp, _ = doJSON(t, srv.App(), http.MethodPut, "/api/v1/id", types.ComputerIDRequest{ID: 0})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestComputerServer_Shared(t *testing.T) {
	srv, _, sp, _ := newComputerServer(t)

	resp, body := doJSON(t, srv.App(), http.MethodPut, "/api/v1/shared", types.SharedRequest{Shared: wrap(t, 10)})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var sr types.SharedResponse
	require.NoError(t, sonic.Unmarshal(body, &sr))
	assert.True(t, sr.Adopted)

	resp, body = doJSON(t, srv.App(), http.MethodPut, "/api/v1/shared", types.SharedRequest{Shared: wrap(t, 12)})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	sr = types.SharedResponse{}
	require.NoError(t, sonic.Unmarshal(body, &sr))
	assert.False(t, sr.Adopted)

	resp, body = doJSON(t, srv.App(), http.MethodGet, "/api/v1/shared", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	sr = types.SharedResponse{}
	require.NoError(t, sonic.Unmarshal(body, &sr))
	got, err := shared.Unwrap(sr.Shared)
	require.NoError(t, err)
	assert.Equal(t, 10.0, shared.Float(got))

	// A reset replaces the value even with a larger bound.
	resp, body = doJSON(t, srv.App(), http.MethodPut, "/api/v1/shared", types.SharedRequest{Shared: wrap(t, 30), Replace: true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	sr = types.SharedResponse{}
	require.NoError(t, sonic.Unmarshal(body, &sr))
	assert.True(t, sr.Adopted)
	got, err = shared.Unwrap(sr.Shared)
	require.NoError(t, err)
	assert.Equal(t, 30.0, shared.Float(got))

	// values pushed by the space are not sent back
	time.Sleep(20 * time.Millisecond)
	sp.mu.Lock()
	assert.Empty(t, sp.shared)
	sp.mu.Unlock()
}

func TestComputerServer_StatusAndExit(t *testing.T) {
	srv, _, _, exited := newComputerServer(t)

	resp, body := doJSON(t, srv.App(), http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var report types.ComputerReport
	require.NoError(t, sonic.Unmarshal(body, &report))
	assert.Equal(t, string(types.ComputerStateOnline), report.State)

	resp, _ = doJSON(t, srv.App(), http.MethodPost, "/api/v1/exit", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("exit hook not called")
	}

	resp, _ = doJSON(t, srv.App(), http.MethodPost, "/api/v1/execute", task.New(task.RootID, &constBody{V: 1}))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
