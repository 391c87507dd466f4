package computer

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"yqhp/task-space/pkg/logger"
	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
	"yqhp/task-space/pkg/utils"
)

// Config 保存 Computer 节点的配置信息。
type Config struct {
	// Name 是此 Computer 的名称，默认随机生成。
	Name string

	// Address 是 Space 回调此 Computer 的地址，进程内运行时为空。
	Address string

	// Workers 是此 Computer 可并发执行的任务数。
	Workers int

	// Labels 是此 Computer 的键值标签。
	Labels map[string]string

	// RequestTimeout 是向 Space 传播共享值的超时时间。
	RequestTimeout time.Duration

	// RegisterAttempts 是注册到 Space 的最大尝试次数。
	RegisterAttempts int

	// RegisterMinBackoff 和 RegisterMaxBackoff 限定两次注册尝试之间的等待时间。
	RegisterMinBackoff time.Duration
	RegisterMaxBackoff time.Duration
}

// DefaultConfig 返回默认的 Computer 配置。
func DefaultConfig() *Config {
	return &Config{
		Name:               "computer-" + uuid.New().String()[:8],
		Workers:            1,
		RequestTimeout:     5 * time.Second,
		RegisterAttempts:   10,
		RegisterMinBackoff: 200 * time.Millisecond,
		RegisterMaxBackoff: 10 * time.Second,
	}
}

// TaskComputer 实现了 task.Computer 接口。
type TaskComputer struct {
	config *Config

	space   task.Space
	spaceMu sync.RWMutex

	// 状态管理
	id          atomic.Int64
	shared      *shared.Holder
	state       atomic.Value // types.ComputerState
	activeTasks atomic.Int32
	stats       *Stats

	exitHook func()
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewTaskComputer 创建一个新的 Computer。
func NewTaskComputer(config *Config) *TaskComputer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.RegisterAttempts < 1 {
		config.RegisterAttempts = 1
	}

	c := &TaskComputer{
		config:   config,
		shared:   shared.NewHolder(nil),
		stats:    NewStats(),
		exitHook: func() { os.Exit(0) },
		stopped:  make(chan struct{}),
	}
	c.state.Store(types.ComputerStateOffline)

	return c
}

// SetExitHook 替换 Exit 时调用的函数，默认退出进程。
func (c *TaskComputer) SetExitHook(fn func()) {
	c.exitHook = fn
}

// Connect 注册到 Space，失败时按指数退避重试。
func (c *TaskComputer) Connect(ctx context.Context, space task.Space) error {
	if space == nil {
		return fmt.Errorf("space 不能为空")
	}

	// 注册过程中 Space 可能已经开始分发任务
	c.spaceMu.Lock()
	c.space = space
	c.spaceMu.Unlock()

	b := &backoff.Backoff{
		Min:    c.config.RegisterMinBackoff,
		Max:    c.config.RegisterMaxBackoff,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		id, err := space.Register(ctx, c)
		if err == nil {
			c.id.Store(int64(id))
			c.state.Store(types.ComputerStateOnline)
			logger.Info("已注册到 Space",
				zap.Int("computer_id", id),
				zap.String("name", c.config.Name),
				zap.Int("attempts", attempt))
			return nil
		}

		if attempt >= c.config.RegisterAttempts {
			return fmt.Errorf("注册到 Space 失败 (%d 次尝试): %w", attempt, err)
		}

		wait := b.Duration()
		logger.Warn("注册到 Space 失败，稍后重试",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *TaskComputer) getSpace() task.Space {
	c.spaceMu.RLock()
	defer c.spaceMu.RUnlock()
	return c.space
}

// Execute 执行或拆分任务，并把结果交给 Space。
// 原子任务和后继任务直接执行；其余任务拆分为子任务和一个后继任务。
func (c *TaskComputer) Execute(ctx context.Context, t *task.Task) error {
	if t == nil {
		return fmt.Errorf("任务不能为空")
	}
	if c.isStopped() {
		return task.ErrClosed
	}
	space := c.getSpace()
	if space == nil {
		return fmt.Errorf("尚未连接到 Space")
	}

	c.activeTasks.Add(1)
	defer c.activeTasks.Add(-1)

	t.Bind(taskEnv{c})
	start := time.Now()

	if t.IsSuccessor() || t.IsAtomic() {
		r, err := t.Execute()
		if err != nil {
			logger.Warn("任务执行失败", zap.String("task_id", string(t.ID)), zap.Error(err))
			r = task.Failure(t.ID, err)
		}
		t.Elapsed = time.Since(start)
		t.Result = r.WithElapsed(t.Elapsed)
		c.stats.RecordExecute(t.Elapsed, t.Result.Failed())
		return space.StoreResult(ctx, t)
	}

	children, err := t.Split()
	if err != nil {
		logger.Warn("任务拆分失败", zap.String("task_id", string(t.ID)), zap.Error(err))
		t.Elapsed = time.Since(start)
		t.Result = task.Failure(t.ID, err).WithElapsed(t.Elapsed)
		c.stats.RecordExecute(t.Elapsed, true)
		return space.StoreResult(ctx, t)
	}

	successor := t.CreateSuccessor()
	successor.JoinCounter = len(children)
	successor.Inputs = make([]*task.Result, len(children))

	t.Elapsed = time.Since(start)
	c.stats.RecordSplit(t.Elapsed)
	return space.StoreTasks(ctx, t, children, successor)
}

// SetShared 在 s 更新时采纳它；采纳且 canPropagate 时异步通知 Space。
func (c *TaskComputer) SetShared(ctx context.Context, s shared.Shared, canPropagate bool) error {
	if s == nil {
		return fmt.Errorf("共享值不能为空")
	}
	c.propose(s, canPropagate)
	return nil
}

func (c *TaskComputer) propose(s shared.Shared, canPropagate bool) bool {
	if !c.shared.Propose(s) {
		return false
	}
	if !canPropagate {
		return true
	}

	space := c.getSpace()
	if space == nil {
		return true
	}

	origin := c.GetID()
	timeout := c.config.RequestTimeout
	utils.SafeGoWithName("propagate-shared", func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := space.SetShared(ctx, s, origin); err != nil {
			logger.Warn("传播共享值失败", zap.Int("computer_id", origin), zap.Error(err))
		}
	})
	return true
}

// ResetShared 无条件替换缓存的共享值，新作业开始时由 Space 调用。
func (c *TaskComputer) ResetShared(ctx context.Context, s shared.Shared) error {
	if s == nil {
		return fmt.Errorf("共享值不能为空")
	}
	c.shared.Store(s)
	logger.Debug("共享值已重置", zap.Int("computer_id", c.GetID()), zap.Any("shared", s.Get()))
	return nil
}

// GetShared 返回缓存的共享值。
func (c *TaskComputer) GetShared(ctx context.Context) (shared.Shared, error) {
	return c.shared.Load(), nil
}

// SetComputerID 设置 Space 分配的 ID。
func (c *TaskComputer) SetComputerID(ctx context.Context, id int) error {
	if id <= 0 {
		return fmt.Errorf("无效的 Computer ID: %d", id)
	}
	c.id.Store(int64(id))
	return nil
}

// GetComputerID 返回 Space 分配的 ID，未注册时为 0。
func (c *TaskComputer) GetComputerID(ctx context.Context) (int, error) {
	if c.isStopped() {
		return 0, task.ErrClosed
	}
	return c.GetID(), nil
}

// GetID 返回 Computer ID。
func (c *TaskComputer) GetID() int {
	return int(c.id.Load())
}

// Exit 记录统计信息后终止 Computer。退出钩子异步调用，Exit 本身先返回。
func (c *TaskComputer) Exit(ctx context.Context) error {
	snap := c.stats.Snapshot()
	logger.Info("Computer 退出",
		zap.Int("computer_id", c.GetID()),
		zap.Int64("executed", snap.Executed),
		zap.Int64("split", snap.Split),
		zap.Int64("failed", snap.Failed),
		zap.Duration("p99", snap.P99))

	if err := c.Stop(ctx); err != nil {
		return err
	}
	c.state.Store(types.ComputerStateExited)

	if hook := c.exitHook; hook != nil {
		utils.SafeGoWithName("computer-exit", hook)
	}
	return nil
}

// Stop 停止接收任务。
func (c *TaskComputer) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.state.Store(types.ComputerStateOffline)
		close(c.stopped)
	})
	return nil
}

func (c *TaskComputer) isStopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// Info 返回注册信息。
func (c *TaskComputer) Info() *types.ComputerInfo {
	return &types.ComputerInfo{
		ID:      c.GetID(),
		Name:    c.config.Name,
		Address: c.config.Address,
		Workers: c.config.Workers,
		Labels:  c.config.Labels,
	}
}

// GetStatus 返回当前状态。
func (c *TaskComputer) GetStatus() *types.ComputerStatus {
	state, _ := c.state.Load().(types.ComputerState)
	snap := c.stats.Snapshot()
	return &types.ComputerStatus{
		State:       state,
		ActiveTasks: int(c.activeTasks.Load()),
		Dispatched:  snap.Executed + snap.Split,
		LastSeen:    time.Now(),
	}
}

// Stats 返回执行统计。
func (c *TaskComputer) Stats() *types.ExecutionStats {
	return c.stats.Snapshot()
}

// taskEnv 把 Computer 暴露给正在运行的任务。任务提出的共享值总是传播。
type taskEnv struct {
	c *TaskComputer
}

func (e taskEnv) GetShared() shared.Shared {
	return e.c.shared.Load()
}

func (e taskEnv) SetShared(s shared.Shared) {
	if s != nil {
		e.c.propose(s, true)
	}
}
