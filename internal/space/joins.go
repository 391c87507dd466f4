package space

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v2"

	"yqhp/task-space/pkg/task"
)

type joinOutcome int

const (
	// joinPending means the slot was filled and inputs are still missing.
	joinPending joinOutcome = iota
	// joinReady means the slot was the last missing one.
	joinReady
	// joinDuplicate means the slot was already filled.
	joinDuplicate
	// joinOrphan means no successor waits under that ID.
	joinOrphan
	// joinBadSlot means the argument index is outside the successor's inputs.
	joinBadSlot
)

func (o joinOutcome) String() string {
	switch o {
	case joinPending:
		return "pending"
	case joinReady:
		return "ready"
	case joinDuplicate:
		return "duplicate"
	case joinOrphan:
		return "orphan"
	case joinBadSlot:
		return "bad-slot"
	}
	return "unknown"
}

// joinTable holds successors whose join counter has not reached zero. Each
// successor is updated under its own map bucket lock.
type joinTable struct {
	m *xsync.MapOf[string, *task.Task]
}

func newJoinTable() *joinTable {
	return &joinTable{m: xsync.NewMapOf[*task.Task]()}
}

func (j *joinTable) add(successor *task.Task) error {
	if _, loaded := j.m.LoadOrStore(string(successor.ID), successor); loaded {
		return fmt.Errorf("%w: successor %s already waiting", task.ErrInvalidJoin, successor.ID)
	}
	return nil
}

// fill stores r in slot of successor id. When the slot was the last missing
// one the successor leaves the table and is returned; exactly one caller
// observes joinReady per successor.
func (j *joinTable) fill(id task.ID, slot int, r *task.Result) (joinOutcome, *task.Task) {
	outcome := joinOrphan
	var ready *task.Task

	j.m.Compute(string(id), func(succ *task.Task, loaded bool) (*task.Task, bool) {
		if !loaded {
			return nil, true
		}
		if slot < 0 || slot >= len(succ.Inputs) {
			outcome = joinBadSlot
			return succ, false
		}
		if succ.Inputs[slot] != nil {
			outcome = joinDuplicate
			return succ, false
		}

		succ.Inputs[slot] = r
		succ.JoinCounter--
		if succ.JoinCounter > 0 {
			outcome = joinPending
			return succ, false
		}

		outcome = joinReady
		ready = succ
		return nil, true
	})

	return outcome, ready
}

// clear drops every waiting successor and returns how many there were.
func (j *joinTable) clear() int {
	n := 0
	j.m.Range(func(id string, _ *task.Task) bool {
		if _, ok := j.m.LoadAndDelete(id); ok {
			n++
		}
		return true
	})
	return n
}

func (j *joinTable) size() int {
	return j.m.Size()
}
