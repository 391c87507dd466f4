package rest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"yqhp/task-space/api/rest/client"
	"yqhp/task-space/internal/space"
	"yqhp/task-space/pkg/logger"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

// SpaceNode is the space served over HTTP.
type SpaceNode interface {
	task.Space
	RegisterComputer(ctx context.Context, c task.Computer, info *types.ComputerInfo) (int, error)
	Unregister(ctx context.Context, computerID int) error
	Shared() shared.Shared
	Snapshot(ctx context.Context) *types.SpaceStatus
	Computers(ctx context.Context, filter *space.ComputerFilter) []*types.ComputerReport
	Metrics() *space.Metrics
	IsRunning() bool
}

// ComputerDialer builds the handle a space uses to call back a registered computer.
type ComputerDialer func(info *types.ComputerInfo) (task.Computer, error)

// DialComputers returns a dialer of HTTP computer clients.
func DialComputers(config *client.Config) ComputerDialer {
	return func(info *types.ComputerInfo) (task.Computer, error) {
		return client.NewComputerClient(info.Address, config)
	}
}

// SpaceServer exposes a space to remote computers and job clients.
type SpaceServer struct {
	base
	space SpaceNode
	dial  ComputerDialer
}

// NewSpaceServer creates the HTTP server of a space. A nil dialer calls
// computers back over HTTP with default client settings.
func NewSpaceServer(node SpaceNode, config *Config, dial ComputerDialer) *SpaceServer {
	if dial == nil {
		dial = DialComputers(client.DefaultConfig())
	}

	s := &SpaceServer{
		base:  newBase("Task Space", config),
		space: node,
		dial:  dial,
	}
	s.setupRoutes()
	return s
}

func (s *SpaceServer) setupRoutes() {
	s.app.Get("/health", healthHandler("space"))

	api := s.app.Group("/api/v1")
	api.Get("/health", healthHandler("space"))
	api.Get("/status", s.getStatus)
	api.Get("/metrics", s.metricsHandler())

	// Computer 注册
	api.Get("/computers", s.listComputers)
	api.Post("/computers", s.registerComputer)
	api.Delete("/computers/:id", s.unregisterComputer)

	// 任务与结果
	api.Post("/tasks", s.putTask)
	api.Post("/tasks/split", s.storeTasks)
	api.Post("/results", s.storeResult)
	api.Get("/results/take", s.takeResult)

	// 共享值
	api.Get("/shared", s.getShared)
	api.Post("/shared", s.setShared)
}

// getStatus handles GET /api/v1/status
func (s *SpaceServer) getStatus(c *fiber.Ctx) error {
	return c.JSON(s.space.Snapshot(c.UserContext()))
}

// metricsHandler serves GET /api/v1/metrics from the space's private registry.
func (s *SpaceServer) metricsHandler() fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(s.space.Metrics().Registry(), promhttp.HandlerOpts{}))
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}

// listComputers handles GET /api/v1/computers
// Query: state=online|offline, label=key=value (repeatable)
func (s *SpaceServer) listComputers(c *fiber.Ctx) error {
	filter, err := computerFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(s.space.Computers(c.UserContext(), filter))
}

func computerFilter(c *fiber.Ctx) (*space.ComputerFilter, error) {
	args := c.Context().QueryArgs()
	states := args.PeekMulti("state")
	labels := args.PeekMulti("label")
	if len(states) == 0 && len(labels) == 0 {
		return nil, nil
	}

	filter := &space.ComputerFilter{}
	for _, st := range states {
		switch state := types.ComputerState(st); state {
		case types.ComputerStateOnline, types.ComputerStateOffline, types.ComputerStateExited:
			filter.States = append(filter.States, state)
		default:
			return nil, fmt.Errorf("unknown computer state: %q", st)
		}
	}
	for _, l := range labels {
		key, value, ok := strings.Cut(string(l), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("label filter must be key=value, got %q", l)
		}
		if filter.Labels == nil {
			filter.Labels = make(map[string]string)
		}
		filter.Labels[key] = value
	}
	return filter, nil
}

// registerComputer handles POST /api/v1/computers
// The space calls the computer back at the announced address.
func (s *SpaceServer) registerComputer(c *fiber.Ctx) error {
	var req types.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Failed to parse request body: "+err.Error())
	}
	if req.Address == "" {
		return badRequest(c, "Computer address is required")
	}

	info := &types.ComputerInfo{
		Name:    req.Name,
		Address: req.Address,
		Workers: req.Workers,
		Labels:  req.Labels,
	}
	computer, err := s.dial(info)
	if err != nil {
		return badRequest(c, "Invalid computer address: "+err.Error())
	}

	id, err := s.space.RegisterComputer(c.UserContext(), computer, info)
	if err != nil {
		logger.Warn("computer registration rejected", zap.String("address", req.Address), zap.Error(err))
		code, _ := errorStatus(err)
		return c.Status(code).JSON(types.RegisterResponse{
			Accepted: false,
			Error:    err.Error(),
		})
	}

	env, err := shared.Wrap(s.space.Shared())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(types.RegisterResponse{
		Accepted:   true,
		ComputerID: id,
		Shared:     env,
	})
}

// unregisterComputer handles DELETE /api/v1/computers/:id
func (s *SpaceServer) unregisterComputer(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid computer ID")
	}

	if err := s.space.Unregister(c.UserContext(), id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}
	return ack(c)
}

// putTask handles POST /api/v1/tasks
func (s *SpaceServer) putTask(c *fiber.Ctx) error {
	var t task.Task
	if err := c.BodyParser(&t); err != nil {
		return badRequest(c, "Failed to parse task: "+err.Error())
	}

	if err := s.space.Put(c.UserContext(), &t); err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(types.AckResponse{Success: true})
}

// storeTasks handles POST /api/v1/tasks/split
func (s *SpaceServer) storeTasks(c *fiber.Ctx) error {
	var req types.StoreTasksRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Failed to parse split: "+err.Error())
	}

	parent := &task.Task{ID: req.Parent, Elapsed: req.ParentElapsed}
	if err := s.space.StoreTasks(c.UserContext(), parent, req.Children, req.Successor); err != nil {
		return errorJSON(c, err)
	}
	return ack(c)
}

// storeResult handles POST /api/v1/results
func (s *SpaceServer) storeResult(c *fiber.Ctx) error {
	var req types.StoreResultRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Failed to parse result: "+err.Error())
	}

	if err := s.space.StoreResult(c.UserContext(), req.Task); err != nil {
		return errorJSON(c, err)
	}
	return ack(c)
}

// takeResult handles GET /api/v1/results/take?wait=30s
// It answers 204 when no result is published within the wait.
func (s *SpaceServer) takeResult(c *fiber.Ctx) error {
	wait := s.config.TakeWait
	if q := c.Query("wait"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d <= 0 {
			return badRequest(c, "Invalid wait duration: "+q)
		}
		wait = d
	}
	if s.config.MaxTakeWait > 0 && wait > s.config.MaxTakeWait {
		wait = s.config.MaxTakeWait
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), wait)
	defer cancel()

	r, err := s.space.Take(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(r)
}

// getShared handles GET /api/v1/shared
func (s *SpaceServer) getShared(c *fiber.Ctx) error {
	env, err := shared.Wrap(s.space.Shared())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(types.SharedResponse{Shared: env})
}

// setShared handles POST /api/v1/shared
func (s *SpaceServer) setShared(c *fiber.Ctx) error {
	var req types.SharedRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Failed to parse shared value: "+err.Error())
	}
	sh, err := shared.Unwrap(req.Shared)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if sh == nil {
		return badRequest(c, "Shared value is required")
	}

	if req.Replace {
		if err := s.space.ResetShared(c.UserContext(), sh); err != nil {
			return errorJSON(c, err)
		}
	} else if err := s.space.SetShared(c.UserContext(), sh, req.Origin); err != nil {
		return errorJSON(c, err)
	}

	cur := s.space.Shared()
	env, err := shared.Wrap(cur)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(types.SharedResponse{Adopted: cur == sh, Shared: env})
}
