package space

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/task-space/pkg/logger"
)

// dispatchLoop hands runnable tasks to one computer slot until the computer
// is removed or the space stops. A failed Execute removes the computer; the
// task is not dispatched again, since the computer may already have stored
// part of its outcome.
func (s *TaskSpace) dispatchLoop(ctx context.Context, e *computerEntry) {
	defer s.wg.Done()

	id := e.info.ID
	for {
		t, err := s.ready.pop(ctx)
		if err != nil {
			return
		}

		e.active.Add(1)
		e.dispatched.Add(1)
		s.metrics.Dispatched.Inc()

		err = e.computer.Execute(ctx, t)
		e.active.Add(-1)
		// Normally retired by the store of its outcome already.
		s.retire(t.ID)
		if err == nil {
			continue
		}

		s.metrics.DispatchErrors.Inc()
		logger.Error("task lost with failed computer",
			zap.Int("computer_id", id),
			zap.String("task_id", string(t.ID)),
			zap.Error(err))
		if ctx.Err() == nil {
			s.removeComputer(id, fmt.Errorf("execute %s: %w", t.ID, err))
		}
		return
	}
}

// healthCheckLoop periodically pings computers.
func (s *TaskSpace) healthCheckLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkComputerHealth(ctx)
		}
	}
}

// checkComputerHealth pings every computer and removes those that failed
// MaxFailures times in a row.
func (s *TaskSpace) checkComputerHealth(ctx context.Context) {
	s.computers.Range(func(id int, e *computerEntry) bool {
		pctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		got, err := e.computer.GetComputerID(pctx)
		cancel()
		if err == nil && got != id {
			err = fmt.Errorf("computer answers as %d", got)
		}

		if err != nil {
			n := int(e.failures.Add(1))
			logger.Warn("computer health check failed",
				zap.Int("computer_id", id),
				zap.Int("failures", n),
				zap.Error(err))
			if n >= s.config.MaxFailures {
				s.removeComputer(id, err)
			}
			return true
		}

		e.failures.Store(0)
		_ = s.registry.Touch(ctx, id)
		return true
	})
}
