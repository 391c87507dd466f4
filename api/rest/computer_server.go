package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"yqhp/task-space/pkg/logger"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

// ComputerNode is the computer served over HTTP.
type ComputerNode interface {
	task.Computer
	GetStatus() *types.ComputerStatus
	Stats() *types.ExecutionStats
}

// ComputerServer exposes a computer to its space.
type ComputerServer struct {
	base
	computer ComputerNode
}

// NewComputerServer creates the HTTP server of a computer.
func NewComputerServer(node ComputerNode, config *Config) *ComputerServer {
	s := &ComputerServer{
		base:     newBase("Task Computer", config),
		computer: node,
	}
	s.setupRoutes()
	return s
}

func (s *ComputerServer) setupRoutes() {
	s.app.Get("/health", healthHandler("computer"))

	api := s.app.Group("/api/v1")
	api.Get("/health", healthHandler("computer"))
	api.Get("/status", s.getStatus)
	api.Get("/stats", s.getStats)

	api.Post("/execute", s.execute)
	api.Post("/exit", s.exit)

	api.Get("/shared", s.getShared)
	api.Put("/shared", s.setShared)

	api.Get("/id", s.getID)
	api.Put("/id", s.setID)
}

// execute handles POST /api/v1/execute
// The response is sent once the outcome has been handed to the space, so a
// space runs no more tasks on a computer than it has dispatch workers for it.
func (s *ComputerServer) execute(c *fiber.Ctx) error {
	var t task.Task
	if err := c.BodyParser(&t); err != nil {
		return badRequest(c, "Failed to parse task: "+err.Error())
	}

	if err := s.computer.Execute(c.UserContext(), &t); err != nil {
		logger.Warn("execute failed", zap.String("task_id", string(t.ID)), zap.Error(err))
		return errorJSON(c, err)
	}
	return ack(c)
}

// exit handles POST /api/v1/exit
func (s *ComputerServer) exit(c *fiber.Ctx) error {
	if err := s.computer.Exit(c.UserContext()); err != nil {
		return errorJSON(c, err)
	}
	return ack(c)
}

// getShared handles GET /api/v1/shared
func (s *ComputerServer) getShared(c *fiber.Ctx) error {
	cur, err := s.computer.GetShared(c.UserContext())
	if err != nil {
		return errorJSON(c, err)
	}
	env, err := shared.Wrap(cur)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(types.SharedResponse{Shared: env})
}

// setShared handles PUT /api/v1/shared
func (s *ComputerServer) setShared(c *fiber.Ctx) error {
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
		if err := s.computer.ResetShared(c.UserContext(), sh); err != nil {
			return errorJSON(c, err)
		}
	} else if err := s.computer.SetShared(c.UserContext(), sh, req.CanPropagate); err != nil {
		return errorJSON(c, err)
	}

	cur, _ := s.computer.GetShared(c.UserContext())
	env, err := shared.Wrap(cur)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(types.SharedResponse{Adopted: cur == sh, Shared: env})
}

// getID handles GET /api/v1/id
func (s *ComputerServer) getID(c *fiber.Ctx) error {
	id, err := s.computer.GetComputerID(c.UserContext())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(types.ComputerIDRequest{ID: id})
}

// setID handles PUT /api/v1/id
func (s *ComputerServer) setID(c *fiber.Ctx) error {
	var req types.ComputerIDRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Failed to parse computer ID: "+err.Error())
	}

	if err := s.computer.SetComputerID(c.UserContext(), req.ID); err != nil {
		return badRequest(c, err.Error())
	}
	return ack(c)
}

// getStatus handles GET /api/v1/status
func (s *ComputerServer) getStatus(c *fiber.Ctx) error {
	st := s.computer.GetStatus()
	id, _ := s.computer.GetComputerID(c.UserContext())
	return c.JSON(types.ComputerReport{
		ID:          id,
		State:       string(st.State),
		ActiveTasks: st.ActiveTasks,
		Dispatched:  st.Dispatched,
		LastSeen:    st.LastSeen.UnixMilli(),
	})
}

// getStats handles GET /api/v1/stats
func (s *ComputerServer) getStats(c *fiber.Ctx) error {
	st := s.computer.Stats()
	id, _ := s.computer.GetComputerID(c.UserContext())
	return c.JSON(types.ComputerStatsResponse{
		ComputerID: id,
		Executed:   st.Executed,
		Split:      st.Split,
		Failed:     st.Failed,
		MinMs:      millis(st.Min),
		MaxMs:      millis(st.Max),
		MeanMs:     millis(st.Mean),
		P50Ms:      millis(st.P50),
		P90Ms:      millis(st.P90),
		P99Ms:      millis(st.P99),
		UptimeSec:  time.Since(st.StartedAt).Seconds(),
	})
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
