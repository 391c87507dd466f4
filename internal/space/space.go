package space

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"yqhp/task-space/pkg/logger"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
	"yqhp/task-space/pkg/utils"
)

// ErrNotRunning is returned by operations on a space that is not started.
var ErrNotRunning = errors.New("space not running")

// Config holds the configuration for a space.
type Config struct {
	// ID is the unique identifier for this space.
	ID string

	// DispatchConcurrency is the number of tasks a computer runs at once,
	// unless it announces its own worker count.
	DispatchConcurrency int

	// HealthCheckInterval is the interval between computer pings.
	HealthCheckInterval time.Duration

	// MaxFailures is the number of failed pings after which a computer is removed.
	MaxFailures int

	// RequestTimeout bounds pings and shared value forwarding.
	RequestTimeout time.Duration

	// ExitComputersOnStop tells every computer to exit when the space stops.
	ExitComputersOnStop bool
}

// DefaultConfig returns a default space configuration.
func DefaultConfig() *Config {
	return &Config{
		ID:                  uuid.New().String(),
		DispatchConcurrency: 1,
		HealthCheckInterval: 10 * time.Second,
		MaxFailures:         3,
		RequestTimeout:      5 * time.Second,
	}
}

// State represents the state of the space.
type State string

const (
	// StateRunning indicates the space accepts computers and tasks.
	StateRunning State = "running"
	// StateStopping indicates the space is shutting down.
	StateStopping State = "stopping"
	// StateStopped indicates the space is stopped.
	StateStopped State = "stopped"
)

// computerEntry is a registered computer and its dispatch bookkeeping.
type computerEntry struct {
	info     *types.ComputerInfo
	computer task.Computer
	cancel   context.CancelFunc

	active     atomic.Int32
	dispatched atomic.Int64
	failures   atomic.Int32
}

// TaskSpace implements task.Space in memory.
type TaskSpace struct {
	config   *Config
	registry ComputerRegistry
	metrics  *Metrics

	ready   *queue[*task.Task]
	results *queue[*task.Result]
	joins   *joinTable
	shared  *shared.Holder

	computers *xsync.MapOf[int, *computerEntry]
	nextID    atomic.Int64

	// live holds the IDs of tasks that are queued or executing. A task
	// leaves when its outcome is stored or its computer fails.
	live *xsync.MapOf[string, struct{}]

	state    atomic.Value // State
	started  atomic.Bool
	stopOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewTaskSpace creates a space. A nil registry selects the in-memory one.
func NewTaskSpace(config *Config, registry ComputerRegistry) *TaskSpace {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DispatchConcurrency < 1 {
		config.DispatchConcurrency = 1
	}
	if config.MaxFailures < 1 {
		config.MaxFailures = 1
	}
	if registry == nil {
		registry = NewInMemoryComputerRegistry()
	}

	s := &TaskSpace{
		config:    config,
		registry:  registry,
		ready:     newQueue[*task.Task](),
		results:   newQueue[*task.Result](),
		joins:     newJoinTable(),
		shared:    shared.NewHolder(nil),
		computers: xsync.NewIntegerMapOf[int, *computerEntry](),
		live:      xsync.NewMapOf[struct{}](),
	}
	s.metrics = newMetrics(
		func() float64 { return float64(s.ready.size()) },
		func() float64 { return float64(s.joins.size()) },
		func() float64 { return float64(s.live.Size()) },
	)
	s.state.Store(StateStopped)

	return s
}

// Start starts the health check loop and opens the space for work.
func (s *TaskSpace) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return fmt.Errorf("space already started")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	events, err := s.registry.WatchComputers(s.ctx)
	if err != nil {
		s.cancel()
		return fmt.Errorf("watch computers: %w", err)
	}
	s.wg.Add(1)
	go s.watchComputers(events)

	if s.config.HealthCheckInterval > 0 {
		s.wg.Add(1)
		go s.healthCheckLoop(s.ctx)
	}

	s.state.Store(StateRunning)
	s.started.Store(true)

	logger.Info("space started",
		zap.String("space_id", s.config.ID),
		zap.Int("dispatch_concurrency", s.config.DispatchConcurrency))
	return nil
}

// Stop shuts the space down. Queued tasks are dropped; Take returns the
// results already published and then task.ErrClosed.
func (s *TaskSpace) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if !s.started.Load() {
			return
		}
		// Under mu so that no registration adds a dispatch loop after this point.
		s.mu.Lock()
		s.state.Store(StateStopping)
		s.mu.Unlock()

		if s.config.ExitComputersOnStop {
			err = s.exitComputers(ctx)
		}

		s.cancel()
		s.ready.close()
		s.results.close()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("wait for dispatch loops: %w", ctx.Err()))
		}

		s.state.Store(StateStopped)
		s.started.Store(false)
		logger.Info("space stopped", zap.String("space_id", s.config.ID))
	})
	return err
}

func (s *TaskSpace) exitComputers(ctx context.Context) error {
	var err error
	s.computers.Range(func(id int, e *computerEntry) bool {
		if exitErr := e.computer.Exit(ctx); exitErr != nil {
			err = multierr.Append(err, fmt.Errorf("exit computer %d: %w", id, exitErr))
		}
		return true
	})
	return err
}

// describer is implemented by computers that announce their name and worker count.
type describer interface {
	Info() *types.ComputerInfo
}

// Register admits c. Computers that describe themselves keep their name,
// worker count and labels; others get a generated name.
func (s *TaskSpace) Register(ctx context.Context, c task.Computer) (int, error) {
	info := &types.ComputerInfo{}
	if d, ok := c.(describer); ok {
		if i := d.Info(); i != nil {
			info = i
		}
	}
	return s.RegisterComputer(ctx, c, info)
}

// RegisterComputer admits c. The computer receives its ID and the current
// shared value before any task is dispatched to it.
func (s *TaskSpace) RegisterComputer(ctx context.Context, c task.Computer, info *types.ComputerInfo) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("computer cannot be nil")
	}
	if info == nil {
		info = &types.ComputerInfo{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsRunning() {
		return 0, ErrNotRunning
	}

	id := int(s.nextID.Add(1))
	if err := c.SetComputerID(ctx, id); err != nil {
		return 0, fmt.Errorf("assign computer id %d: %w", id, err)
	}

	registered := *info
	registered.ID = id
	if registered.Name == "" {
		registered.Name = fmt.Sprintf("computer-%d", id)
	}
	if registered.Workers < 1 {
		registered.Workers = s.config.DispatchConcurrency
	}
	if err := s.registry.Register(ctx, &registered); err != nil {
		return 0, err
	}

	loopCtx, cancel := context.WithCancel(s.ctx)
	entry := &computerEntry{info: &registered, computer: c, cancel: cancel}
	s.computers.Store(id, entry)
	s.metrics.Computers.Inc()

	// Stored first so that no shared update can fall between the push and the fan-out.
	if cur := s.shared.Load(); cur != nil {
		if err := c.SetShared(ctx, cur, false); err != nil {
			logger.Warn("push shared value to new computer failed",
				zap.Int("computer_id", id), zap.Error(err))
		}
	}

	for i := 0; i < registered.Workers; i++ {
		s.wg.Add(1)
		go s.dispatchLoop(loopCtx, entry)
	}

	logger.Info("computer registered",
		zap.Int("computer_id", id),
		zap.String("name", registered.Name),
		zap.String("address", registered.Address),
		zap.Int("workers", registered.Workers))
	return id, nil
}

// Unregister stops dispatching to a computer.
func (s *TaskSpace) Unregister(ctx context.Context, computerID int) error {
	if !s.removeComputer(computerID, nil) {
		return fmt.Errorf("computer not found: %d", computerID)
	}
	return nil
}

func (s *TaskSpace) removeComputer(id int, reason error) bool {
	e, ok := s.computers.LoadAndDelete(id)
	if !ok {
		return false
	}
	e.cancel()
	s.metrics.Computers.Dec()

	ctx := context.Background()
	if reason != nil {
		_ = s.registry.UpdateStatus(ctx, id, &types.ComputerStatus{
			State:    types.ComputerStateOffline,
			Failures: int(e.failures.Load()),
		})
	}
	_ = s.registry.Unregister(ctx, id)

	if reason != nil {
		logger.Warn("computer removed", zap.Int("computer_id", id), zap.Error(reason))
	} else {
		logger.Info("computer unregistered", zap.Int("computer_id", id))
	}
	return true
}

// Put admits a root task.
func (s *TaskSpace) Put(ctx context.Context, t *task.Task) error {
	if t == nil || t.Body == nil {
		return fmt.Errorf("task and its body cannot be nil")
	}
	if !s.IsRunning() {
		return ErrNotRunning
	}

	if err := s.enqueue(t); err != nil {
		return err
	}
	s.metrics.TasksPut.Inc()
	logger.Debug("task put", zap.String("task_id", string(t.ID)))
	return nil
}

// StoreTasks records a split of parent. The successor must wait for exactly
// len(children) inputs; with no children it is runnable at once.
func (s *TaskSpace) StoreTasks(ctx context.Context, parent *task.Task, children []*task.Task, successor *task.Task) error {
	if successor == nil {
		return fmt.Errorf("%w: missing successor", task.ErrInvalidJoin)
	}
	if successor.JoinCounter != len(children) || len(successor.Inputs) != len(children) {
		return fmt.Errorf("%w: successor %s waits for %d of %d inputs, got %d children",
			task.ErrInvalidJoin, successor.ID, successor.JoinCounter, len(successor.Inputs), len(children))
	}
	for _, c := range children {
		if c.SuccessorID != successor.ID {
			return fmt.Errorf("%w: child %s feeds %q, not %s",
				task.ErrInvalidJoin, c.ID, c.SuccessorID, successor.ID)
		}
	}
	if !s.IsRunning() {
		return ErrNotRunning
	}
	// The parent retires after its children are live, so a running job is
	// never seen idle.
	if parent != nil {
		defer s.retire(parent.ID)
	}

	s.metrics.Splits.Inc()
	s.metrics.Children.Add(float64(len(children)))
	if parent != nil {
		logger.Debug("task split",
			zap.String("task_id", string(parent.ID)),
			zap.Int("children", len(children)),
			zap.Duration("elapsed", parent.Elapsed))
	}

	if len(children) == 0 {
		s.metrics.SuccessorsFired.Inc()
		return s.enqueue(successor)
	}

	if err := s.joins.add(successor); err != nil {
		return err
	}
	return s.enqueue(children...)
}

func (s *TaskSpace) enqueue(tasks ...*task.Task) error {
	for _, t := range tasks {
		s.live.Store(string(t.ID), struct{}{})
	}
	if err := s.ready.push(tasks...); err != nil {
		for _, t := range tasks {
			s.live.Delete(string(t.ID))
		}
		return err
	}
	return nil
}

func (s *TaskSpace) retire(id task.ID) {
	s.live.Delete(string(id))
}

// StoreResult records the result of t. A result without successor is the
// answer of its job and is published to Take.
func (s *TaskSpace) StoreResult(ctx context.Context, t *task.Task) error {
	if t == nil || t.Result == nil {
		return task.ErrNoResult
	}
	r := t.Result
	s.metrics.TaskDuration.Observe(t.Elapsed.Seconds())

	if t.IsTerminal() {
		// Retired before publishing: once Take returns, the job is idle.
		s.retire(t.ID)
		s.metrics.Results.WithLabelValues("terminal").Inc()
		logger.Debug("result published", zap.String("task_id", string(t.ID)))
		return s.results.push(r)
	}

	defer s.retire(t.ID)
	outcome, ready := s.joins.fill(t.SuccessorID, t.ArgIndex, r)
	s.metrics.Results.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case joinReady:
		s.metrics.SuccessorsFired.Inc()
		return s.enqueue(ready)
	case joinOrphan:
		logger.Warn("orphan result discarded",
			zap.String("task_id", string(t.ID)),
			zap.String("successor_id", string(t.SuccessorID)))
	case joinDuplicate:
		logger.Warn("duplicate result ignored",
			zap.String("task_id", string(t.ID)),
			zap.String("successor_id", string(t.SuccessorID)),
			zap.Int("arg_index", t.ArgIndex))
	case joinBadSlot:
		return fmt.Errorf("%w: %s has no input slot %d", task.ErrInvalidJoin, t.SuccessorID, t.ArgIndex)
	}
	return nil
}

// Take blocks until a terminal result is published. Each result is
// returned once.
func (s *TaskSpace) Take(ctx context.Context) (*task.Result, error) {
	return s.results.pop(ctx)
}

// SetShared adopts sh if it is newer than the space's value and forwards it
// to every computer except origin.
func (s *TaskSpace) SetShared(ctx context.Context, sh shared.Shared, origin int) error {
	if sh == nil {
		return fmt.Errorf("shared value cannot be nil")
	}
	if !s.shared.Propose(sh) {
		s.metrics.SharedUpdates.WithLabelValues("rejected").Inc()
		return nil
	}
	s.metrics.SharedUpdates.WithLabelValues("adopted").Inc()
	logger.Debug("shared value adopted", zap.Any("shared", sh.Get()), zap.Int("origin", origin))

	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	s.computers.Range(func(id int, e *computerEntry) bool {
		if id == origin {
			return true
		}
		c := e.computer
		utils.SafeGoWithName("forward-shared", func() {
			fctx, cancel := context.WithTimeout(base, s.config.RequestTimeout)
			defer cancel()
			if err := c.SetShared(fctx, sh, false); err != nil {
				logger.Warn("forward shared value failed", zap.Int("computer_id", id), zap.Error(err))
			}
		})
		return true
	})
	return nil
}

// ResetShared starts a job. Joins and results left by earlier jobs are
// discarded, and sh replaces the shared value on the space and on every
// computer. It fails with task.ErrBusy while tasks are queued or executing.
func (s *TaskSpace) ResetShared(ctx context.Context, sh shared.Shared) error {
	if sh == nil {
		return fmt.Errorf("shared value cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsRunning() {
		return ErrNotRunning
	}
	if n := s.live.Size(); n > 0 {
		return fmt.Errorf("%w: %d tasks in flight", task.ErrBusy, n)
	}

	if n := s.joins.clear(); n > 0 {
		logger.Warn("abandoned joins discarded", zap.Int("successors", n))
	}
	if n := s.results.drain(); n > 0 {
		logger.Warn("untaken results discarded", zap.Int("results", n))
	}

	s.shared.Store(sh)
	s.metrics.SharedUpdates.WithLabelValues("reset").Inc()
	logger.Debug("shared value reset", zap.Any("shared", sh.Get()))

	// Synchronous, so that no computer prunes the next job against an old bound.
	s.computers.Range(func(id int, e *computerEntry) bool {
		rctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
		if err := e.computer.ResetShared(rctx, sh); err != nil {
			logger.Warn("reset shared value on computer failed", zap.Int("computer_id", id), zap.Error(err))
		}
		return true
	})
	return nil
}

// Shared returns the space's current shared value.
func (s *TaskSpace) Shared() shared.Shared {
	return s.shared.Load()
}

// Metrics returns the space's collectors.
func (s *TaskSpace) Metrics() *Metrics {
	return s.metrics
}

// Registry returns the computer registry.
func (s *TaskSpace) Registry() ComputerRegistry {
	return s.registry
}

// GetState returns the current space state.
func (s *TaskSpace) GetState() State {
	return s.state.Load().(State)
}

// IsRunning returns whether the space is running.
func (s *TaskSpace) IsRunning() bool {
	return s.started.Load() && s.GetState() == StateRunning
}

// Snapshot reports the space's queues and computers.
func (s *TaskSpace) Snapshot(ctx context.Context) *types.SpaceStatus {
	status := &types.SpaceStatus{
		State:       string(s.GetState()),
		ReadyTasks:  s.ready.size(),
		WaitingJoin: s.joins.size(),
		Results:     s.results.size(),
	}

	if cur := s.shared.Load(); cur != nil {
		if env, err := shared.Wrap(cur); err == nil {
			if data, err := sonic.Marshal(env); err == nil {
				status.Shared = data
			}
		}
	}

	status.Computers = s.Computers(ctx, nil)
	if online, err := s.registry.GetOnlineComputers(ctx); err == nil {
		status.OnlineComputers = len(online)
	}
	return status
}

// Computers reports the registered computers matching filter, or all of
// them when filter is nil.
func (s *TaskSpace) Computers(ctx context.Context, filter *ComputerFilter) []*types.ComputerReport {
	reports := make([]*types.ComputerReport, 0)
	infos, _ := s.registry.ListComputers(ctx, filter)
	for _, info := range infos {
		report := &types.ComputerReport{
			ID:      info.ID,
			Name:    info.Name,
			Address: info.Address,
		}
		if st, err := s.registry.GetComputerStatus(ctx, info.ID); err == nil {
			report.State = string(st.State)
			report.LastSeen = st.LastSeen.UnixMilli()
		}
		if e, ok := s.computers.Load(info.ID); ok {
			report.ActiveTasks = int(e.active.Load())
			report.Dispatched = e.dispatched.Load()
		}
		reports = append(reports, report)
	}
	return reports
}

// watchComputers counts registry events until the space stops.
func (s *TaskSpace) watchComputers(events <-chan *types.ComputerEvent) {
	defer s.wg.Done()

	for ev := range events {
		s.metrics.ComputerEvents.WithLabelValues(string(ev.Type)).Inc()
		logger.Debug("computer event",
			zap.String("type", string(ev.Type)),
			zap.Int("computer_id", ev.ComputerID))
	}
}
