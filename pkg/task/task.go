package task

import (
	"fmt"
	"strconv"
	"time"

	"yqhp/task-space/pkg/shared"
)

// Kind distinguishes child tasks from successor tasks.
type Kind string

const (
	// KindChild is a task produced by a split, or the root of a job.
	KindChild Kind = "child"
	// KindSuccessor combines the results of the children of one split.
	// It is never split further.
	KindSuccessor Kind = "successor"
)

// ID identifies a task. IDs are structural: children of "r" are "r.0", "r.1",
// and the successor created when "r" splits is "r^".
type ID string

// RootID is the ID conventionally given to the root task of a job.
const RootID ID = "r"

// JobRoot returns a root ID scoped to jobID, so that the tasks of two jobs
// never share an ID. An empty jobID yields RootID.
func JobRoot(jobID string) ID {
	if jobID == "" {
		return RootID
	}
	return ID(string(RootID) + "-" + jobID)
}

// Child returns the ID of the i-th child of id.
func (id ID) Child(i int) ID {
	return ID(string(id) + "." + strconv.Itoa(i))
}

// Successor returns the ID of the successor created when id splits.
func (id ID) Successor() ID {
	return id + "^"
}

// Env is the execution context a computer provides to a running task.
type Env interface {
	// GetShared returns the computer's cached shared value, which may be nil.
	GetShared() shared.Shared

	// SetShared proposes a value to the computer, which propagates it if adopted.
	SetShared(s shared.Shared)
}

// Body is the problem specific part of a task.
type Body interface {
	// Type is the registered wire name of the implementation.
	Type() string

	// IsAtomic reports whether a task at level executes directly instead of splitting.
	IsAtomic(level int) bool

	// Split returns the bodies of the child tasks. An empty result is valid and
	// means every candidate child was pruned.
	Split(env Env) ([]Body, error)

	// CreateSuccessor returns the body that combines the children's results.
	CreateSuccessor() Body

	// Execute performs the work. Successor bodies receive the children's results
	// ordered by argument index; other bodies receive nil.
	Execute(env Env, inputs []*Result) (any, error)
}

// Task is the unit of work moved between the space and its computers.
type Task struct {
	ID   ID
	Kind Kind

	// Level is the depth in the decomposition tree.
	Level int

	// ArgIndex is the slot this task's result fills in its successor's inputs.
	ArgIndex int

	// SuccessorID is the task waiting for this task's result. Empty for the
	// last task of a job, whose result is the job's answer.
	SuccessorID ID

	// JoinCounter is the number of inputs a successor still waits for.
	JoinCounter int

	// Inputs holds the children's results, indexed by ArgIndex.
	Inputs []*Result

	Body Body

	Result  *Result
	Elapsed time.Duration

	env Env
}

// New returns a root task for body.
func New(id ID, body Body) *Task {
	return &Task{
		ID:   id,
		Kind: KindChild,
		Body: body,
	}
}

// Bind attaches the computer that is about to run the task.
func (t *Task) Bind(env Env) {
	t.env = env
}

// GetShared returns the hosting computer's shared value.
func (t *Task) GetShared() shared.Shared {
	if t.env == nil {
		return nil
	}
	return t.env.GetShared()
}

// SetShared proposes s to the hosting computer. Adopted values always propagate.
func (t *Task) SetShared(s shared.Shared) {
	if t.env != nil {
		t.env.SetShared(s)
	}
}

// IsAtomic reports whether the task should be executed without splitting.
func (t *Task) IsAtomic() bool {
	return t.Body.IsAtomic(t.Level)
}

// IsSuccessor reports whether t is a successor task.
func (t *Task) IsSuccessor() bool {
	return t.Kind == KindSuccessor
}

// IsTerminal reports whether t's result is the answer of its job.
func (t *Task) IsTerminal() bool {
	return t.SuccessorID == ""
}

// Split decomposes t into child tasks that feed t's successor.
func (t *Task) Split() ([]*Task, error) {
	if t.IsSuccessor() {
		return nil, fmt.Errorf("%w: successor %s cannot split", ErrNotSplittable, t.ID)
	}

	bodies, err := t.Body.Split(t.env)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", t.ID, err)
	}

	successorID := t.ID.Successor()
	children := make([]*Task, 0, len(bodies))
	for i, b := range bodies {
		children = append(children, &Task{
			ID:          t.ID.Child(i),
			Kind:        KindChild,
			Level:       t.Level + 1,
			ArgIndex:    i,
			SuccessorID: successorID,
			Body:        b,
		})
	}
	return children, nil
}

// CreateSuccessor returns the successor that replaces t in the task graph:
// it feeds t's successor in t's slot.
func (t *Task) CreateSuccessor() *Task {
	return &Task{
		ID:          t.ID.Successor(),
		Kind:        KindSuccessor,
		Level:       t.Level,
		ArgIndex:    t.ArgIndex,
		SuccessorID: t.SuccessorID,
		Body:        t.Body.CreateSuccessor(),
	}
}

// Execute runs the body and records the result on t. A successor with a
// failed input fails without running its body.
func (t *Task) Execute() (*Result, error) {
	if t.IsSuccessor() {
		for _, in := range t.Inputs {
			if in == nil {
				return nil, fmt.Errorf("%w: %s has an empty input slot", ErrNotRunnable, t.ID)
			}
			if in.Failed() {
				r := Failure(t.ID, fmt.Errorf("input %s: %s", in.TaskID, in.Error))
				t.Result = r
				return r, nil
			}
		}
	}

	v, err := t.Body.Execute(t.env, t.Inputs)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", t.ID, err)
	}

	r, err := NewResult(t.ID, v)
	if err != nil {
		return nil, err
	}
	t.Result = r
	return r, nil
}

func (t *Task) String() string {
	return string(t.ID)
}
