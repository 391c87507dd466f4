package tsp

import (
	"errors"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
)

func rootBody() *BranchAndBound {
	return NewBranchAndBound(NewEuclideanSolution(unitSquare, []int{0}, []int{1, 2, 3}), 0)
}

func TestBranchAndBound_IsAtomic(t *testing.T) {
	b := rootBody()
	assert.Equal(t, BaseLevel, b.BaseLevel)
	assert.False(t, b.IsAtomic(0))
	assert.False(t, b.IsAtomic(1))
	assert.True(t, b.IsAtomic(2))

	last := NewBranchAndBound(NewEuclideanSolution(unitSquare, []int{0, 1, 2}, []int{3}), 5)
	assert.True(t, last.IsAtomic(0), "one remaining city")
}

func TestBranchAndBound_Split(t *testing.T) {
	env := holderEnv{h: shared.NewHolder(shared.NewMinDouble(2))}

	bodies, err := rootBody().Split(env)
	require.NoError(t, err)
	require.Len(t, bodies, 2)
	for _, b := range bodies {
		assert.IsType(t, &BranchAndBound{}, b)
		assert.Equal(t, BaseLevel, b.(*BranchAndBound).BaseLevel)
	}

	bodies, err = rootBody().Split(nil)
	require.NoError(t, err)
	assert.Len(t, bodies, 3)

	assert.IsType(t, &MinTour{}, rootBody().CreateSuccessor())
}

func TestBranchAndBound_ExecuteUnitSquare(t *testing.T) {
	env := holderEnv{h: shared.NewHolder(shared.WorstMinDouble())}

	v, err := rootBody().Execute(env, nil)
	require.NoError(t, err)
	tour := v.(Tour)
	require.True(t, tour.Feasible)
	assert.InDelta(t, 4.0, tour.Cost, 1e-9)
	assert.Equal(t, []int{0, 1, 2, 3}, tour.Path)
	assert.InDelta(t, 4.0, shared.Float(env.h.Load()), 1e-9)
}

func TestBranchAndBound_ExecuteBeatenBound(t *testing.T) {
	env := holderEnv{h: shared.NewHolder(shared.NewMinDouble(3))}

	v, err := rootBody().Execute(env, nil)
	require.NoError(t, err)
	assert.False(t, v.(Tour).Feasible)
}

func TestMinTour_Execute(t *testing.T) {
	a, _ := task.NewResult("r.0", Tour{Path: []int{0, 3, 2, 1}, Cost: 4, Feasible: true})
	b, _ := task.NewResult("r.1", NoTour())
	c, _ := task.NewResult("r.2", Tour{Path: []int{0, 1, 2, 3}, Cost: 4, Feasible: true})
	d, _ := task.NewResult("r.3", Tour{Path: []int{0, 2, 1, 3}, Cost: 4.8, Feasible: true})

	v, err := (&MinTour{}).Execute(nil, []*task.Result{a, b, c, d})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, v.(Tour).Path)

	v, err = (&MinTour{}).Execute(nil, nil)
	require.NoError(t, err)
	assert.False(t, v.(Tour).Feasible)

	v, err = (&MinTour{}).Execute(nil, []*task.Result{b, b})
	require.NoError(t, err)
	assert.False(t, v.(Tour).Feasible)

	_, err = (&MinTour{}).Execute(nil, []*task.Result{task.Failure("r.9", errors.New("x"))})
	assert.Error(t, err)

	_, err = (&MinTour{}).Split(nil)
	assert.True(t, errors.Is(err, task.ErrNotSplittable))
}

func TestBranchAndBound_WireRoundTrip(t *testing.T) {
	orig := task.New(task.RootID, rootBody())
	data, err := sonic.Marshal(orig)
	require.NoError(t, err)

	var got task.Task
	require.NoError(t, sonic.Unmarshal(data, &got))
	body, ok := got.Body.(*BranchAndBound)
	require.True(t, ok)
	assert.Equal(t, unitSquare, body.Solution.Cities)
	assert.Equal(t, []int{1, 2, 3}, body.Solution.Remaining)
	assert.Equal(t, BaseLevel, body.BaseLevel)
}
