package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

// describer is implemented by computers that can announce how the space reaches them.
type describer interface {
	Info() *types.ComputerInfo
}

// SpaceClient implements task.Space against a remote space server.
type SpaceClient struct {
	t *transport
}

var _ task.Space = (*SpaceClient)(nil)

// NewSpaceClient creates a client for the space listening at address.
func NewSpaceClient(address string, config *Config) (*SpaceClient, error) {
	t, err := newTransport(address, config)
	if err != nil {
		return nil, err
	}
	return &SpaceClient{t: t}, nil
}

// URL returns the space's base URL.
func (s *SpaceClient) URL() string {
	return s.t.baseURL
}

// Health checks that the space answers.
func (s *SpaceClient) Health(ctx context.Context) error {
	return s.t.health(ctx)
}

// Register announces c to the space, which calls it back at the address c
// reports through Info. The space's shared value is adopted without propagation.
func (s *SpaceClient) Register(ctx context.Context, c task.Computer) (int, error) {
	d, ok := c.(describer)
	if !ok {
		return 0, errors.New("computer cannot describe its callback address")
	}
	info := d.Info()
	if info.Address == "" {
		return 0, errors.New("computer has no callback address")
	}

	req := &types.RegisterRequest{
		Name:    info.Name,
		Address: info.Address,
		Workers: info.Workers,
		Labels:  info.Labels,
	}
	var resp types.RegisterResponse
	if _, err := s.t.do(ctx, fiber.MethodPost, "/api/v1/computers", req, &resp, s.t.config.RequestTimeout); err != nil {
		return 0, fmt.Errorf("failed to register: %w", err)
	}
	if !resp.Accepted {
		return 0, fmt.Errorf("registration rejected: %s", resp.Error)
	}

	if sh, err := shared.Unwrap(resp.Shared); err == nil && sh != nil {
		_ = c.SetShared(ctx, sh, false)
	}
	return resp.ComputerID, nil
}

// Unregister removes a computer from the space.
func (s *SpaceClient) Unregister(ctx context.Context, computerID int) error {
	_, err := s.t.do(ctx, fiber.MethodDelete, "/api/v1/computers/"+strconv.Itoa(computerID), nil, nil, s.t.config.RequestTimeout)
	return err
}

// Put submits a root task.
func (s *SpaceClient) Put(ctx context.Context, t *task.Task) error {
	_, err := s.t.do(ctx, fiber.MethodPost, "/api/v1/tasks", t, nil, s.t.config.RequestTimeout)
	return err
}

// StoreTasks reports a split of parent.
func (s *SpaceClient) StoreTasks(ctx context.Context, parent *task.Task, children []*task.Task, successor *task.Task) error {
	req := &types.StoreTasksRequest{
		Children:  children,
		Successor: successor,
	}
	if parent != nil {
		req.Parent = parent.ID
		req.ParentElapsed = parent.Elapsed
	}
	_, err := s.t.do(ctx, fiber.MethodPost, "/api/v1/tasks/split", req, nil, s.t.config.RequestTimeout)
	return err
}

// StoreResult reports the result of an executed task.
func (s *SpaceClient) StoreResult(ctx context.Context, t *task.Task) error {
	_, err := s.t.do(ctx, fiber.MethodPost, "/api/v1/results", &types.StoreResultRequest{Task: t}, nil, s.t.config.RequestTimeout)
	return err
}

// Take long-polls the space until a terminal result arrives or ctx is done.
// Each poll asks for no more than the time left on ctx, so the space answers
// 204 rather than handing a result to a request that already gave up.
func (s *SpaceClient) Take(ctx context.Context) (*task.Result, error) {
	for {
		wait := s.t.config.TakeWait
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < wait {
				wait = left
			}
		}
		wait = wait.Truncate(time.Millisecond)
		if wait <= 0 {
			return nil, context.DeadlineExceeded
		}

		var r task.Result
		path := "/api/v1/results/take?wait=" + wait.String()
		code, err := s.t.do(context.WithoutCancel(ctx), fiber.MethodGet, path, nil, &r, wait+s.t.config.RequestTimeout)
		if ctxErr := ctx.Err(); ctxErr != nil && (err != nil || code == fiber.StatusNoContent) {
			return nil, ctxErr
		}
		if err != nil {
			return nil, err
		}
		if code == fiber.StatusNoContent {
			continue
		}
		return &r, nil
	}
}

// SetShared proposes sh to the space on behalf of origin.
func (s *SpaceClient) SetShared(ctx context.Context, sh shared.Shared, origin int) error {
	env, err := shared.Wrap(sh)
	if err != nil {
		return err
	}
	if env == nil {
		return errors.New("shared value cannot be nil")
	}
	_, err = s.t.do(ctx, fiber.MethodPost, "/api/v1/shared", &types.SharedRequest{Shared: env, Origin: origin}, nil, s.t.config.RequestTimeout)
	return err
}

// ResetShared starts a job on the space with sh as its shared value.
// It fails with task.ErrBusy while another job is running.
func (s *SpaceClient) ResetShared(ctx context.Context, sh shared.Shared) error {
	env, err := shared.Wrap(sh)
	if err != nil {
		return err
	}
	if env == nil {
		return errors.New("shared value cannot be nil")
	}
	_, err = s.t.do(ctx, fiber.MethodPost, "/api/v1/shared", &types.SharedRequest{Shared: env, Replace: true}, nil, s.t.config.RequestTimeout)
	return err
}

// Shared returns the space's current shared value.
func (s *SpaceClient) Shared(ctx context.Context) (shared.Shared, error) {
	var resp types.SharedResponse
	if _, err := s.t.do(ctx, fiber.MethodGet, "/api/v1/shared", nil, &resp, s.t.config.RequestTimeout); err != nil {
		return nil, err
	}
	return shared.Unwrap(resp.Shared)
}

// Computers lists the space's computers carrying every label in labels and,
// when states is not empty, in one of states.
func (s *SpaceClient) Computers(ctx context.Context, labels map[string]string, states ...types.ComputerState) ([]*types.ComputerReport, error) {
	q := url.Values{}
	for k, v := range labels {
		q.Add("label", k+"="+v)
	}
	for _, st := range states {
		q.Add("state", string(st))
	}
	path := "/api/v1/computers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var reports []*types.ComputerReport
	if _, err := s.t.do(ctx, fiber.MethodGet, path, nil, &reports, s.t.config.RequestTimeout); err != nil {
		return nil, err
	}
	return reports, nil
}

// Status returns the space's queues and computers.
func (s *SpaceClient) Status(ctx context.Context) (*types.SpaceStatus, error) {
	var status types.SpaceStatus
	if _, err := s.t.do(ctx, fiber.MethodGet, "/api/v1/status", nil, &status, s.t.config.RequestTimeout); err != nil {
		return nil, err
	}
	return &status, nil
}
