package rest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"yqhp/task-space/internal/space"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
)

// constBody is atomic and yields V.
type constBody struct {
	V int `json:"v"`
}

func (b *constBody) Type() string                        { return "rest-test.const" }
func (b *constBody) IsAtomic(int) bool                   { return true }
func (b *constBody) CreateSuccessor() task.Body          { return &constBody{} }
func (b *constBody) Split(task.Env) ([]task.Body, error) { return nil, nil }
func (b *constBody) Execute(task.Env, []*task.Result) (any, error) {
	return b.V, nil
}

func init() {
	task.RegisterBody("rest-test.const", func() task.Body { return &constBody{} })
}

func newTestSpace(t *testing.T) *space.TaskSpace {
	t.Helper()

	cfg := space.DefaultConfig()
	cfg.HealthCheckInterval = 0
	s := space.NewTaskSpace(cfg, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

// doJSON sends body as JSON through app.Test and returns the response and its body.
func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func wrap(t *testing.T, v float64) *shared.Envelope {
	t.Helper()
	env, err := shared.Wrap(shared.NewMinDouble(v))
	require.NoError(t, err)
	return env
}

// stubComputer is the handle a space gets for a registered computer in handler tests.
type stubComputer struct {
	mu     sync.Mutex
	id     int
	shared shared.Shared
	resets int
	exited bool
}

func (c *stubComputer) Execute(ctx context.Context, t *task.Task) error { return nil }

func (c *stubComputer) Exit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exited = true
	return nil
}

func (c *stubComputer) SetShared(ctx context.Context, s shared.Shared, canPropagate bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared = s
	return nil
}

func (c *stubComputer) ResetShared(ctx context.Context, s shared.Shared) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared = s
	c.resets++
	return nil
}

func (c *stubComputer) GetShared(ctx context.Context) (shared.Shared, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shared, nil
}

func (c *stubComputer) SetComputerID(ctx context.Context, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	return nil
}

func (c *stubComputer) GetComputerID(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, nil
}
