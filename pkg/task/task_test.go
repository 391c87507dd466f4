package task

import (
	"errors"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/task-space/pkg/shared"
)

// rangeSum adds the integers in [Lo, Hi).
type rangeSum struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

func (b *rangeSum) Type() string { return "test.range-sum" }

func (b *rangeSum) IsAtomic(level int) bool { return b.Hi-b.Lo <= 2 }

func (b *rangeSum) Split(env Env) ([]Body, error) {
	mid := (b.Lo + b.Hi) / 2
	return []Body{&rangeSum{Lo: b.Lo, Hi: mid}, &rangeSum{Lo: mid, Hi: b.Hi}}, nil
}

func (b *rangeSum) CreateSuccessor() Body { return &addInputs{} }

func (b *rangeSum) Execute(env Env, inputs []*Result) (any, error) {
	sum := 0
	for i := b.Lo; i < b.Hi; i++ {
		sum += i
	}
	return sum, nil
}

type addInputs struct{}

func (b *addInputs) Type() string              { return "test.add-inputs" }
func (b *addInputs) IsAtomic(int) bool         { return true }
func (b *addInputs) Split(Env) ([]Body, error) { return nil, nil }
func (b *addInputs) CreateSuccessor() Body     { return &addInputs{} }
func (b *addInputs) Execute(_ Env, in []*Result) (any, error) {
	sum := 0
	for _, r := range in {
		v, err := Value[int](r)
		if err != nil {
			return nil, err
		}
		sum += v
	}
	return sum, nil
}

func init() {
	RegisterBody("test.range-sum", func() Body { return &rangeSum{} })
	RegisterBody("test.add-inputs", func() Body { return &addInputs{} })
}

type recordingEnv struct {
	holder *shared.Holder
	sets   int
}

func (e *recordingEnv) GetShared() shared.Shared { return e.holder.Load() }
func (e *recordingEnv) SetShared(s shared.Shared) {
	e.sets++
	e.holder.Propose(s)
}

func TestIDs(t *testing.T) {
	assert.Equal(t, ID("r.0"), RootID.Child(0))
	assert.Equal(t, ID("r.3.12"), RootID.Child(3).Child(12))
	assert.Equal(t, ID("r^"), RootID.Successor())
	assert.Equal(t, ID("r.1^"), RootID.Child(1).Successor())

	assert.Equal(t, RootID, JobRoot(""))
	assert.Equal(t, ID("r-job1.0^"), JobRoot("job1").Child(0).Successor())
	assert.NotEqual(t, JobRoot("a").Successor(), JobRoot("b").Successor())
}

func TestTask_Split(t *testing.T) {
	root := New(RootID, &rangeSum{Lo: 0, Hi: 8})
	root.ArgIndex = 4
	root.SuccessorID = "x^"

	children, err := root.Split()
	require.NoError(t, err)
	require.Len(t, children, 2)

	for i, c := range children {
		assert.Equal(t, RootID.Child(i), c.ID)
		assert.Equal(t, KindChild, c.Kind)
		assert.Equal(t, 1, c.Level)
		assert.Equal(t, i, c.ArgIndex)
		assert.Equal(t, ID("r^"), c.SuccessorID)
	}

	succ := root.CreateSuccessor()
	assert.Equal(t, ID("r^"), succ.ID)
	assert.Equal(t, KindSuccessor, succ.Kind)
	assert.Equal(t, 4, succ.ArgIndex, "successor takes the parent's slot")
	assert.Equal(t, ID("x^"), succ.SuccessorID)
	assert.True(t, succ.IsSuccessor())
	assert.False(t, succ.IsTerminal())
}

func TestTask_SplitSuccessor(t *testing.T) {
	succ := New(RootID, &rangeSum{Lo: 0, Hi: 8}).CreateSuccessor()
	_, err := succ.Split()
	assert.True(t, errors.Is(err, ErrNotSplittable))
}

func TestTask_ExecuteAtomic(t *testing.T) {
	leaf := New(RootID, &rangeSum{Lo: 3, Hi: 5})
	require.True(t, leaf.IsAtomic())

	r, err := leaf.Execute()
	require.NoError(t, err)
	assert.Equal(t, RootID, r.TaskID)
	assert.Same(t, r, leaf.Result)

	v, err := Value[int](r)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestTask_ExecuteSuccessor(t *testing.T) {
	succ := New(RootID, &rangeSum{Lo: 0, Hi: 4}).CreateSuccessor()
	succ.JoinCounter = 0
	a, _ := NewResult("r.0", 1)
	b, _ := NewResult("r.1", 5)
	succ.Inputs = []*Result{a, b}

	r, err := succ.Execute()
	require.NoError(t, err)
	v, err := Value[int](r)
	require.NoError(t, err)
	assert.Equal(t, 6, v)
}

func TestTask_ExecuteSuccessorMissingInput(t *testing.T) {
	succ := New(RootID, &rangeSum{Lo: 0, Hi: 4}).CreateSuccessor()
	a, _ := NewResult("r.0", 1)
	succ.Inputs = []*Result{a, nil}

	_, err := succ.Execute()
	assert.True(t, errors.Is(err, ErrNotRunnable))
}

func TestTask_ExecuteSuccessorFailedInput(t *testing.T) {
	succ := New(RootID, &rangeSum{Lo: 0, Hi: 4}).CreateSuccessor()
	a, _ := NewResult("r.0", 1)
	succ.Inputs = []*Result{a, Failure("r.1", errors.New("boom"))}

	r, err := succ.Execute()
	require.NoError(t, err)
	assert.True(t, r.Failed())
	assert.Contains(t, r.Error, "boom")

	_, err = Value[int](r)
	assert.True(t, errors.Is(err, ErrTaskFailed))
}

func TestTask_SharedWithoutEnv(t *testing.T) {
	task := New(RootID, &rangeSum{})
	assert.Nil(t, task.GetShared())
	task.SetShared(shared.NewMinDouble(1))
}

func TestTask_SharedThroughEnv(t *testing.T) {
	env := &recordingEnv{holder: shared.NewHolder(shared.WorstMinDouble())}
	task := New(RootID, &rangeSum{})
	task.Bind(env)

	task.SetShared(shared.NewMinDouble(3))
	assert.Equal(t, 1, env.sets)
	assert.Equal(t, 3.0, shared.Float(task.GetShared()))
}

func TestTask_JSONRoundTrip(t *testing.T) {
	parent := New(RootID, &rangeSum{Lo: 0, Hi: 8})
	succ := parent.CreateSuccessor()
	succ.JoinCounter = 2
	in, _ := NewResult("r.0", 6)
	succ.Inputs = []*Result{in, nil}

	data, err := sonic.Marshal(succ)
	require.NoError(t, err)

	var got Task
	require.NoError(t, sonic.Unmarshal(data, &got))
	assert.Equal(t, succ.ID, got.ID)
	assert.Equal(t, KindSuccessor, got.Kind)
	assert.Equal(t, 2, got.JoinCounter)
	require.Len(t, got.Inputs, 2)
	assert.Nil(t, got.Inputs[1])
	assert.IsType(t, &addInputs{}, got.Body)

	children, err := parent.Split()
	require.NoError(t, err)
	data, err = sonic.Marshal(children)
	require.NoError(t, err)

	var decoded []*Task
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, &rangeSum{Lo: 4, Hi: 8}, decoded[1].Body)
}

func TestDecodeBody_Unknown(t *testing.T) {
	_, err := DecodeBody(&BodyEnvelope{Type: "nope"})
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestRegisterBody_Duplicate(t *testing.T) {
	assert.Panics(t, func() {
		RegisterBody("test.range-sum", func() Body { return &rangeSum{} })
	})
	assert.Contains(t, BodyTypes(), "test.add-inputs")
}
