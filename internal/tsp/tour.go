package tsp

import "slices"

// Tour is the best tour found by a task. A tour that is not Feasible stands
// for "every branch was pruned" and carries no path.
type Tour struct {
	Path     []int   `json:"path,omitempty"`
	Cost     float64 `json:"cost"`
	Feasible bool    `json:"feasible"`
}

// NoTour is the result of a search whose branches were all pruned.
func NoTour() Tour {
	return Tour{}
}

// Better reports whether t should replace o: feasible beats infeasible, then
// lower cost wins, then the lexicographically smaller path.
func (t Tour) Better(o Tour) bool {
	switch {
	case !t.Feasible:
		return false
	case !o.Feasible:
		return true
	case t.Cost != o.Cost:
		return t.Cost < o.Cost
	default:
		return slices.Compare(t.Path, o.Path) < 0
	}
}
