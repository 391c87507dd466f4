package space

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
	"yqhp/task-space/pkg/types"
)

// sumBody adds the integers in [Lo, Hi).
type sumBody struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

func (b *sumBody) Type() string               { return "space-test.sum" }
func (b *sumBody) IsAtomic(level int) bool    { return b.Hi-b.Lo <= 3 }
func (b *sumBody) CreateSuccessor() task.Body { return &addBody{} }

func (b *sumBody) Split(task.Env) ([]task.Body, error) {
	mid := (b.Lo + b.Hi) / 2
	return []task.Body{&sumBody{Lo: b.Lo, Hi: mid}, &sumBody{Lo: mid, Hi: b.Hi}}, nil
}

func (b *sumBody) Execute(task.Env, []*task.Result) (any, error) {
	sum := 0
	for i := b.Lo; i < b.Hi; i++ {
		sum += i
	}
	return sum, nil
}

type addBody struct{}

func (b *addBody) Type() string                        { return "space-test.add" }
func (b *addBody) IsAtomic(int) bool                   { return true }
func (b *addBody) CreateSuccessor() task.Body          { return &addBody{} }
func (b *addBody) Split(task.Env) ([]task.Body, error) { return nil, nil }

func (b *addBody) Execute(_ task.Env, inputs []*task.Result) (any, error) {
	sum := 0
	for _, r := range inputs {
		v, err := task.Value[int](r)
		if err != nil {
			return nil, err
		}
		sum += v
	}
	return sum, nil
}

// prunedBody splits into nothing; its successor counts its inputs.
type prunedBody struct{}

func (b *prunedBody) Type() string                        { return "space-test.pruned" }
func (b *prunedBody) IsAtomic(int) bool                   { return false }
func (b *prunedBody) CreateSuccessor() task.Body          { return &addBody{} }
func (b *prunedBody) Split(task.Env) ([]task.Body, error) { return nil, nil }
func (b *prunedBody) Execute(task.Env, []*task.Result) (any, error) {
	return nil, errors.New("pruned body is never executed")
}

func init() {
	task.RegisterBody("space-test.sum", func() task.Body { return &sumBody{} })
	task.RegisterBody("space-test.add", func() task.Body { return &addBody{} })
	task.RegisterBody("space-test.pruned", func() task.Body { return &prunedBody{} })
}

type sharedCall struct {
	value        float64
	canPropagate bool
	reset        bool
}

// fakeComputer runs tasks in the calling goroutine against a space.
type fakeComputer struct {
	space task.Space

	id     atomic.Int64
	holder *shared.Holder

	mu          sync.Mutex
	sharedCalls []sharedCall

	// gate, when set, holds every Execute until it is closed.
	gate chan struct{}

	executeErr error
	pingErr    error
	exitCalls  atomic.Int32
	executed   atomic.Int32
}

func newFakeComputer(s task.Space) *fakeComputer {
	return &fakeComputer{space: s, holder: shared.NewHolder(nil)}
}

type fakeEnv struct{ f *fakeComputer }

func (e fakeEnv) GetShared() shared.Shared  { return e.f.holder.Load() }
func (e fakeEnv) SetShared(s shared.Shared) { e.f.holder.Propose(s) }

func (f *fakeComputer) Execute(ctx context.Context, t *task.Task) error {
	if f.gate != nil {
		<-f.gate
	}
	if f.executeErr != nil {
		return f.executeErr
	}
	f.executed.Add(1)
	t.Bind(fakeEnv{f})

	if t.IsSuccessor() || t.IsAtomic() {
		if _, err := t.Execute(); err != nil {
			t.Result = task.Failure(t.ID, err)
		}
		return f.space.StoreResult(ctx, t)
	}

	children, err := t.Split()
	if err != nil {
		return err
	}
	succ := t.CreateSuccessor()
	succ.JoinCounter = len(children)
	succ.Inputs = make([]*task.Result, len(children))
	return f.space.StoreTasks(ctx, t, children, succ)
}

func (f *fakeComputer) Exit(ctx context.Context) error {
	f.exitCalls.Add(1)
	return nil
}

func (f *fakeComputer) SetShared(ctx context.Context, s shared.Shared, canPropagate bool) error {
	f.mu.Lock()
	f.sharedCalls = append(f.sharedCalls, sharedCall{value: shared.Float(s), canPropagate: canPropagate})
	f.mu.Unlock()
	f.holder.Propose(s)
	return nil
}

func (f *fakeComputer) ResetShared(ctx context.Context, s shared.Shared) error {
	f.mu.Lock()
	f.sharedCalls = append(f.sharedCalls, sharedCall{value: shared.Float(s), reset: true})
	f.mu.Unlock()
	f.holder.Store(s)
	return nil
}

func (f *fakeComputer) GetShared(ctx context.Context) (shared.Shared, error) {
	return f.holder.Load(), nil
}

func (f *fakeComputer) SetComputerID(ctx context.Context, id int) error {
	f.id.Store(int64(id))
	return nil
}

func (f *fakeComputer) GetComputerID(ctx context.Context) (int, error) {
	if f.pingErr != nil {
		return 0, f.pingErr
	}
	return int(f.id.Load()), nil
}

func (f *fakeComputer) calls() []sharedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sharedCall(nil), f.sharedCalls...)
}

// describedComputer announces its own name, worker count and labels.
type describedComputer struct {
	*fakeComputer
	info types.ComputerInfo
}

func (d *describedComputer) Info() *types.ComputerInfo {
	info := d.info
	return &info
}

func newStartedSpace(t *testing.T, mutate ...func(*Config)) *TaskSpace {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HealthCheckInterval = 0
	for _, m := range mutate {
		m(cfg)
	}

	s := NewTaskSpace(cfg, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func takeWithin(t *testing.T, s *TaskSpace, d time.Duration) *task.Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	r, err := s.Take(ctx)
	require.NoError(t, err)
	return r
}
