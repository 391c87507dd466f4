// Package client implements the HTTP clients of the space and computer servers using Fiber.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

// Config holds the configuration for the HTTP clients.
type Config struct {
	// RequestTimeout is the timeout for ordinary requests.
	RequestTimeout time.Duration

	// ExecuteTimeout is the timeout of one remote task execution.
	ExecuteTimeout time.Duration

	// TakeWait is the long-poll window asked for when taking results. A
	// cancelled take returns at the end of the current window.
	TakeWait time.Duration
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: 10 * time.Second,
		ExecuteTimeout: 10 * time.Minute,
		TakeWait:       5 * time.Second,
	}
}

// StatusError is returned when a server answers with a non-2xx status.
type StatusError struct {
	Code    int
	Kind    string
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind
	}
	if msg == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, msg)
}

// Is lets errors.Is match task.ErrBusy against a 409 answer.
func (e *StatusError) Is(target error) bool {
	return target == task.ErrBusy && e.Code == fiber.StatusConflict
}

// IsUnavailable reports whether err is a 503 from a stopped space or computer.
func IsUnavailable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == fiber.StatusServiceUnavailable
}

// transport sends JSON requests to one server.
type transport struct {
	baseURL string
	agent   *fiber.Client
	config  *Config
}

func newTransport(address string, config *Config) (*transport, error) {
	if config == nil {
		config = DefaultConfig()
	}
	base, err := BaseURL(address)
	if err != nil {
		return nil, err
	}
	return &transport{
		baseURL: base,
		agent:   fiber.AcquireClient(),
		config:  config,
	}, nil
}

// BaseURL turns host:port, :port or a full URL into a base URL without trailing slash.
func BaseURL(address string) (string, error) {
	if address == "" {
		return "", errors.New("address is required")
	}
	if !strings.Contains(address, "://") {
		if strings.HasPrefix(address, ":") {
			address = "localhost" + address
		}
		address = "http://" + address
	}

	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid address %q", address)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// do sends in as JSON and decodes the answer into out. The request times out
// after timeout or at the ctx deadline, whichever comes first.
func (t *transport) do(ctx context.Context, method, path string, in, out any, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	target := t.baseURL + path
	var req *fiber.Agent
	switch method {
	case fiber.MethodGet:
		req = t.agent.Get(target)
	case fiber.MethodPost:
		req = t.agent.Post(target)
	case fiber.MethodPut:
		req = t.agent.Put(target)
	case fiber.MethodDelete:
		req = t.agent.Delete(target)
	default:
		return 0, fmt.Errorf("unsupported method %s", method)
	}
	if timeout > 0 {
		req.Timeout(timeout)
	}

	if in != nil {
		body, err := sonic.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal %s %s request: %w", method, path, err)
		}
		req.Body(body)
		req.Set("Content-Type", fiber.MIMEApplicationJSON)
	}

	statusCode, respBody, errs := req.Bytes()
	if len(errs) > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%s %s: %w", method, path, errs[0])
	}

	if statusCode < 200 || statusCode >= 300 {
		se := &StatusError{Code: statusCode}
		var errResp types.ErrorResponse
		if err := sonic.Unmarshal(respBody, &errResp); err == nil {
			se.Kind = errResp.Error
			se.Message = errResp.Message
		}
		return statusCode, fmt.Errorf("%s %s: %w", method, path, se)
	}

	if out != nil && statusCode != fiber.StatusNoContent && len(respBody) > 0 {
		if err := sonic.Unmarshal(respBody, out); err != nil {
			return statusCode, fmt.Errorf("failed to unmarshal %s %s response: %w", method, path, err)
		}
	}
	return statusCode, nil
}

func (t *transport) health(ctx context.Context) error {
	var resp types.HealthResponse
	if _, err := t.do(ctx, fiber.MethodGet, "/api/v1/health", nil, &resp, t.config.RequestTimeout); err != nil {
		return err
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("unhealthy: %s", resp.Status)
	}
	return nil
}
