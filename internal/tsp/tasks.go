package tsp

import (
	"fmt"
	"sort"

	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
)

// BaseLevel is the depth from which branch-and-bound tasks search
// sequentially instead of splitting.
const BaseLevel = 2

const (
	branchAndBoundType = "tsp.branch-and-bound"
	minTourType        = "tsp.min-tour"
)

func init() {
	task.RegisterBody(branchAndBoundType, func() task.Body { return &BranchAndBound{} })
	task.RegisterBody(minTourType, func() task.Body { return &MinTour{} })
}

// BranchAndBound searches the subtree below Solution for the shortest tour.
type BranchAndBound struct {
	Solution  *EuclideanSolution `json:"solution"`
	BaseLevel int                `json:"base_level,omitempty"`
}

// NewBranchAndBound returns a task body rooted at s.
func NewBranchAndBound(s *EuclideanSolution, baseLevel int) *BranchAndBound {
	if baseLevel < 1 {
		baseLevel = BaseLevel
	}
	return &BranchAndBound{Solution: s, BaseLevel: baseLevel}
}

func (b *BranchAndBound) Type() string { return branchAndBoundType }

func (b *BranchAndBound) IsAtomic(level int) bool {
	base := b.BaseLevel
	if base < 1 {
		base = BaseLevel
	}
	return level >= base || len(b.Solution.Remaining) <= 1
}

func (b *BranchAndBound) Split(env task.Env) ([]task.Body, error) {
	children := b.Solution.Children(currentBound(env))

	bodies := make([]task.Body, 0, len(children))
	for _, c := range children {
		s, ok := c.(*EuclideanSolution)
		if !ok {
			return nil, fmt.Errorf("unexpected solution type %T", c)
		}
		bodies = append(bodies, &BranchAndBound{Solution: s, BaseLevel: b.BaseLevel})
	}
	return bodies, nil
}

func (b *BranchAndBound) CreateSuccessor() task.Body {
	return &MinTour{}
}

// Execute runs a depth first search below the solution, visiting the
// children with the lowest bound first. Every improved tour is proposed as
// the new bound, and each expansion prunes against the bound current at that
// moment.
func (b *BranchAndBound) Execute(env task.Env, _ []*task.Result) (any, error) {
	best := NoTour()

	var search func(s Solution)
	search = func(s Solution) {
		if s.IsComplete() {
			cost := s.LowerBound()
			if cost > shared.Float(currentBound(env)) {
				return
			}
			candidate := Tour{Path: s.Path(), Cost: cost, Feasible: true}
			if candidate.Better(best) {
				best = candidate
				if env != nil {
					env.SetShared(shared.NewMinDouble(cost))
				}
			}
			return
		}
		children := s.Children(currentBound(env))
		sort.SliceStable(children, func(i, j int) bool { return children[i].Less(children[j]) })
		for _, c := range children {
			search(c)
		}
	}
	search(b.Solution)

	return best, nil
}

// MinTour keeps the best of its inputs.
type MinTour struct{}

func (m *MinTour) Type() string { return minTourType }

func (m *MinTour) IsAtomic(int) bool { return true }

func (m *MinTour) Split(task.Env) ([]task.Body, error) {
	return nil, fmt.Errorf("%w: min-tour", task.ErrNotSplittable)
}

func (m *MinTour) CreateSuccessor() task.Body { return &MinTour{} }

func (m *MinTour) Execute(_ task.Env, inputs []*task.Result) (any, error) {
	best := NoTour()
	for _, in := range inputs {
		tour, err := task.Value[Tour](in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.TaskID, err)
		}
		if tour.Better(best) {
			best = tour
		}
	}
	return best, nil
}

func currentBound(env task.Env) shared.Shared {
	if env == nil {
		return nil
	}
	return env.GetShared()
}
