// Package local runs a space and its computers in one process.
package local

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"yqhp/task-space/internal/computer"
	"yqhp/task-space/internal/space"
	"yqhp/task-space/pkg/logger"
)

// Cluster is an in-process space with registered computers.
type Cluster struct {
	Space     *space.TaskSpace
	Computers []*computer.TaskComputer
}

// Start starts a space and connects n computers to it. Computers run
// workers tasks at a time.
func Start(ctx context.Context, spaceCfg *space.Config, n, workers int) (*Cluster, error) {
	if n < 1 {
		return nil, fmt.Errorf("need at least one computer, got %d", n)
	}

	s := space.NewTaskSpace(spaceCfg, nil)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	c := &Cluster{Space: s}
	for i := 0; i < n; i++ {
		cfg := computer.DefaultConfig()
		cfg.Name = fmt.Sprintf("local-%d", i+1)
		cfg.Workers = workers

		comp := computer.NewTaskComputer(cfg)
		comp.SetExitHook(func() {})
		if err := comp.Connect(ctx, s); err != nil {
			_ = c.Stop(context.Background())
			return nil, err
		}
		c.Computers = append(c.Computers, comp)
	}

	logger.Info("local cluster started", zap.Int("computers", n), zap.Int("workers", workers))
	return c, nil
}

// Stop stops the computers and the space.
func (c *Cluster) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := c.Space.Stop(ctx)
	for _, comp := range c.Computers {
		err = multierr.Append(err, comp.Stop(ctx))
	}
	return err
}
