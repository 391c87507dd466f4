package client

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

// ComputerClient implements task.Computer against a remote computer server.
// A space holds one per registered computer.
type ComputerClient struct {
	t *transport
}

var _ task.Computer = (*ComputerClient)(nil)

// NewComputerClient creates a client for the computer listening at address.
func NewComputerClient(address string, config *Config) (*ComputerClient, error) {
	t, err := newTransport(address, config)
	if err != nil {
		return nil, err
	}
	return &ComputerClient{t: t}, nil
}

// URL returns the computer's base URL.
func (c *ComputerClient) URL() string {
	return c.t.baseURL
}

// Health checks that the computer answers.
func (c *ComputerClient) Health(ctx context.Context) error {
	return c.t.health(ctx)
}

// Execute sends t to the computer and returns once the computer has handed
// the outcome to its space.
func (c *ComputerClient) Execute(ctx context.Context, t *task.Task) error {
	_, err := c.t.do(ctx, fiber.MethodPost, "/api/v1/execute", t, nil, c.t.config.ExecuteTimeout)
	return err
}

// Exit tells the computer to terminate.
func (c *ComputerClient) Exit(ctx context.Context) error {
	_, err := c.t.do(ctx, fiber.MethodPost, "/api/v1/exit", nil, nil, c.t.config.RequestTimeout)
	return err
}

// SetShared proposes s to the computer.
func (c *ComputerClient) SetShared(ctx context.Context, s shared.Shared, canPropagate bool) error {
	env, err := shared.Wrap(s)
	if err != nil {
		return err
	}
	if env == nil {
		return errors.New("shared value cannot be nil")
	}
	req := &types.SharedRequest{Shared: env, CanPropagate: canPropagate}
	_, err = c.t.do(ctx, fiber.MethodPut, "/api/v1/shared", req, nil, c.t.config.RequestTimeout)
	return err
}

// ResetShared replaces the computer's shared value.
func (c *ComputerClient) ResetShared(ctx context.Context, s shared.Shared) error {
	env, err := shared.Wrap(s)
	if err != nil {
		return err
	}
	if env == nil {
		return errors.New("shared value cannot be nil")
	}
	_, err = c.t.do(ctx, fiber.MethodPut, "/api/v1/shared", &types.SharedRequest{Shared: env, Replace: true}, nil, c.t.config.RequestTimeout)
	return err
}

// GetShared returns the computer's cached shared value.
func (c *ComputerClient) GetShared(ctx context.Context) (shared.Shared, error) {
	var resp types.SharedResponse
	if _, err := c.t.do(ctx, fiber.MethodGet, "/api/v1/shared", nil, &resp, c.t.config.RequestTimeout); err != nil {
		return nil, err
	}
	return shared.Unwrap(resp.Shared)
}

func (c *ComputerClient) SetComputerID(ctx context.Context, id int) error {
	_, err := c.t.do(ctx, fiber.MethodPut, "/api/v1/id", &types.ComputerIDRequest{ID: id}, nil, c.t.config.RequestTimeout)
	return err
}

func (c *ComputerClient) GetComputerID(ctx context.Context) (int, error) {
	var resp types.ComputerIDRequest
	if _, err := c.t.do(ctx, fiber.MethodGet, "/api/v1/id", nil, &resp, c.t.config.RequestTimeout); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// Stats returns the computer's execution statistics.
func (c *ComputerClient) Stats(ctx context.Context) (*types.ComputerStatsResponse, error) {
	var resp types.ComputerStatsResponse
	if _, err := c.t.do(ctx, fiber.MethodGet, "/api/v1/stats", nil, &resp, c.t.config.RequestTimeout); err != nil {
		return nil, err
	}
	return &resp, nil
}
