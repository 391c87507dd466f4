package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Result is the output of executing one task. It is immutable once produced.
type Result struct {
	TaskID  ID              `json:"task_id"`
	Value   json.RawMessage `json:"value,omitempty"`
	Elapsed time.Duration   `json:"elapsed"`
	Error   string          `json:"error,omitempty"`
}

// NewResult encodes v as the result of task id.
func NewResult(id ID, v any) (*Result, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result of %s: %w", id, err)
	}
	return &Result{TaskID: id, Value: data}, nil
}

// Failure returns a failed result for task id.
func Failure(id ID, err error) *Result {
	return &Result{TaskID: id, Error: err.Error()}
}

// Failed reports whether the task that produced r failed.
func (r *Result) Failed() bool {
	return r.Error != ""
}

// Decode unmarshals the result value into v.
func (r *Result) Decode(v any) error {
	if r.Failed() {
		return fmt.Errorf("%w: %s", ErrTaskFailed, r.Error)
	}
	if len(r.Value) == 0 {
		return fmt.Errorf("result of %s has no value", r.TaskID)
	}
	return sonic.Unmarshal(r.Value, v)
}

// WithElapsed returns a copy of r stamped with d.
func (r *Result) WithElapsed(d time.Duration) *Result {
	c := *r
	c.Elapsed = d
	return &c
}

// Value decodes the value of r as a T.
func Value[T any](r *Result) (T, error) {
	var v T
	if r == nil {
		return v, ErrNoResult
	}
	err := r.Decode(&v)
	return v, err
}
