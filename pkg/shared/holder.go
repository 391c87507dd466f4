package shared

import "sync/atomic"

type box struct {
	value Shared
}

// Holder caches one Shared value and replaces it only with newer values.
// It is safe for concurrent use.
type Holder struct {
	current atomic.Pointer[box]
}

// NewHolder returns a holder seeded with initial, which may be nil.
func NewHolder(initial Shared) *Holder {
	h := &Holder{}
	if initial != nil {
		h.current.Store(&box{value: initial})
	}
	return h
}

// Load returns the cached value, or nil if none has been adopted.
func (h *Holder) Load() Shared {
	b := h.current.Load()
	if b == nil {
		return nil
	}
	return b.value
}

// Propose adopts s if it is newer than the cached value and reports whether it did.
// Stale proposals are dropped.
func (h *Holder) Propose(s Shared) bool {
	if s == nil {
		return false
	}
	next := &box{value: s}
	for {
		cur := h.current.Load()
		if cur != nil && !s.IsNewerThan(cur.value) {
			return false
		}
		if h.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Store replaces the cached value with s regardless of age. A job uses it to
// start from its neutral value.
func (h *Holder) Store(s Shared) {
	if s == nil {
		h.current.Store(nil)
		return
	}
	h.current.Store(&box{value: s})
}
