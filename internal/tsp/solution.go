package tsp

import (
	"math"

	"yqhp/task-space/pkg/shared"
)

// Solution is a node of a branch-and-bound search tree.
type Solution interface {
	// IsComplete reports whether the node is a leaf, a full candidate answer.
	IsComplete() bool

	// Children expands the node, keeping only children whose lower bound does
	// not exceed bound. A nil bound keeps every child.
	Children(bound shared.Shared) []Solution

	// LowerBound is a bound on every answer reachable from the node. For a
	// complete node it is the exact cost.
	LowerBound() float64

	// Path is the sequence of choices from the root to the node.
	Path() []int

	// Less reports whether the node's lower bound is strictly below other's.
	Less(other Solution) bool
}

// City is a point in the plane.
type City [2]float64

// Distance returns the Euclidean distance between a and b.
func Distance(a, b City) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}

// TourCost returns the length of the closed tour visiting path in order and
// returning to its first city.
func TourCost(cities []City, path []int) float64 {
	if len(path) == 0 {
		return 0
	}
	cost := 0.0
	for i := 0; i+1 < len(path); i++ {
		cost += Distance(cities[path[i]], cities[path[i+1]])
	}
	return cost + Distance(cities[path[len(path)-1]], cities[path[0]])
}

// EuclideanSolution is a partial tour starting at city 0.
type EuclideanSolution struct {
	Cities    []City  `json:"cities"`
	Prefix    []int   `json:"prefix"`
	Remaining []int   `json:"remaining"`
	Bound     float64 `json:"lower_bound"`
}

// NewEuclideanSolution returns the node for prefix with remaining cities
// still to visit.
func NewEuclideanSolution(cities []City, prefix, remaining []int) *EuclideanSolution {
	s := &EuclideanSolution{
		Cities:    cities,
		Prefix:    prefix,
		Remaining: remaining,
	}
	s.Bound = s.computeLowerBound()
	return s
}

// computeLowerBound adds the legs of the prefix and the closing leg from its
// last city back to city 0. By the triangle inequality no completion is shorter.
func (s *EuclideanSolution) computeLowerBound() float64 {
	if len(s.Prefix) == 0 {
		return 0
	}
	bound := 0.0
	for i := 0; i+1 < len(s.Prefix); i++ {
		bound += Distance(s.Cities[s.Prefix[i]], s.Cities[s.Prefix[i+1]])
	}
	return bound + Distance(s.Cities[s.Prefix[len(s.Prefix)-1]], s.Cities[0])
}

func (s *EuclideanSolution) IsComplete() bool {
	return len(s.Prefix) == len(s.Cities)
}

func (s *EuclideanSolution) Children(bound shared.Shared) []Solution {
	upper := shared.Float(bound)

	children := make([]Solution, 0, len(s.Remaining))
	for i, city := range s.Remaining {
		prefix := make([]int, len(s.Prefix), len(s.Prefix)+1)
		copy(prefix, s.Prefix)
		prefix = append(prefix, city)

		remaining := make([]int, 0, len(s.Remaining)-1)
		remaining = append(remaining, s.Remaining[:i]...)
		remaining = append(remaining, s.Remaining[i+1:]...)

		child := NewEuclideanSolution(s.Cities, prefix, remaining)
		if child.Bound <= upper {
			children = append(children, child)
		}
	}
	return children
}

func (s *EuclideanSolution) LowerBound() float64 {
	return s.Bound
}

func (s *EuclideanSolution) Path() []int {
	return s.Prefix
}

func (s *EuclideanSolution) Less(other Solution) bool {
	return s.Bound < other.LowerBound()
}
