// Package rest provides the HTTP transport between a space and its computers.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"yqhp/task-space/internal/space"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

// Config holds the configuration for a REST server.
type Config struct {
	// Address is the address to listen on (e.g., ":8600").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// It must cover the longest take wait and task execution.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing.
	EnableCORS bool `yaml:"enable_cors"`

	// AccessLog logs every request.
	AccessLog bool `yaml:"access_log"`

	// TakeWait is the default long-poll window of GET /results/take.
	TakeWait time.Duration `yaml:"take_wait"`

	// MaxTakeWait caps the wait a client may ask for.
	MaxTakeWait time.Duration `yaml:"max_take_wait"`
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      ":8600",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		EnableCORS:   false,
		AccessLog:    false,
		TakeWait:     30 * time.Second,
		MaxTakeWait:  5 * time.Minute,
	}
}

// base is the fiber app shared by the space and computer servers.
type base struct {
	app    *fiber.App
	config *Config
}

func newBase(name string, config *Config) base {
	if config == nil {
		config = DefaultConfig()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          customErrorHandler,
		AppName:               name,
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	b := base{app: app, config: config}
	b.setupMiddleware()
	return b
}

// setupMiddleware configures middleware for the server.
func (b base) setupMiddleware() {
	b.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	if b.config.AccessLog {
		b.app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}

	if b.config.EnableCORS {
		b.app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept",
			MaxAge:       86400,
		}))
	}
}

// Start starts the server.
func (b base) Start() error {
	return b.app.Listen(b.config.Address)
}

// Serve serves on an existing listener.
func (b base) Serve(ln net.Listener) error {
	return b.app.Listener(ln)
}

// StartWithContext starts the server and shuts it down when ctx is done.
func (b base) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- b.app.Listen(b.config.Address)
	}()

	select {
	case <-ctx.Done():
		return b.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (b base) Shutdown() error {
	return b.app.Shutdown()
}

// ShutdownWithTimeout gracefully shuts down the server with a timeout.
func (b base) ShutdownWithTimeout(timeout time.Duration) error {
	return b.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app.
func (b base) App() *fiber.App {
	return b.app
}

func healthHandler(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(types.HealthResponse{
			Status:    "healthy",
			Role:      role,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// customErrorHandler handles errors returned by handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(types.ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}

// errorStatus maps engine errors to HTTP status codes and error kinds.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, space.ErrNotRunning), errors.Is(err, task.ErrClosed):
		return fiber.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, task.ErrBusy):
		return fiber.StatusConflict, "busy"
	case errors.Is(err, task.ErrInvalidJoin), errors.Is(err, task.ErrNoResult), errors.Is(err, task.ErrUnknownType):
		return fiber.StatusBadRequest, "invalid_request"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	code, kind := errorStatus(err)
	return c.Status(code).JSON(types.ErrorResponse{
		Error:   kind,
		Message: err.Error(),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}

func ack(c *fiber.Ctx) error {
	return c.JSON(types.AckResponse{Success: true})
}
