package task

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

var (
	bodiesMu sync.RWMutex
	bodies   = make(map[string]func() Body)
)

// RegisterBody makes a body implementation decodable. factory returns a zero
// value whose Type matches name. Registering a name twice panics.
func RegisterBody(name string, factory func() Body) {
	bodiesMu.Lock()
	defer bodiesMu.Unlock()

	if _, ok := bodies[name]; ok {
		panic(fmt.Sprintf("task: body type %q registered twice", name))
	}
	bodies[name] = factory
}

// BodyTypes returns the registered body type names.
func BodyTypes() []string {
	bodiesMu.RLock()
	defer bodiesMu.RUnlock()

	names := make([]string, 0, len(bodies))
	for name := range bodies {
		names = append(names, name)
	}
	return names
}

// BodyEnvelope is the wire form of a Body.
type BodyEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// EncodeBody wraps b with its type name.
func EncodeBody(b Body) (*BodyEnvelope, error) {
	if b == nil {
		return nil, nil
	}
	data, err := sonic.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode body %s: %w", b.Type(), err)
	}
	return &BodyEnvelope{Type: b.Type(), Value: data}, nil
}

// DecodeBody restores the body held by env.
func DecodeBody(env *BodyEnvelope) (Body, error) {
	if env == nil {
		return nil, nil
	}

	bodiesMu.RLock()
	factory, ok := bodies[env.Type]
	bodiesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	b := factory()
	if len(env.Value) > 0 {
		if err := sonic.Unmarshal(env.Value, b); err != nil {
			return nil, fmt.Errorf("decode body %s: %w", env.Type, err)
		}
	}
	return b, nil
}

type taskWire struct {
	ID          ID            `json:"id"`
	Kind        Kind          `json:"kind"`
	Level       int           `json:"level"`
	ArgIndex    int           `json:"arg_index"`
	SuccessorID ID            `json:"successor_id,omitempty"`
	JoinCounter int           `json:"join_counter,omitempty"`
	Inputs      []*Result     `json:"inputs,omitempty"`
	Body        *BodyEnvelope `json:"body"`
	Result      *Result       `json:"result,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
}

// MarshalJSON encodes the task header together with its typed body.
func (t *Task) MarshalJSON() ([]byte, error) {
	body, err := EncodeBody(t.Body)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(&taskWire{
		ID:          t.ID,
		Kind:        t.Kind,
		Level:       t.Level,
		ArgIndex:    t.ArgIndex,
		SuccessorID: t.SuccessorID,
		JoinCounter: t.JoinCounter,
		Inputs:      t.Inputs,
		Body:        body,
		Result:      t.Result,
		Elapsed:     t.Elapsed,
	})
}

// UnmarshalJSON decodes a task written by MarshalJSON. The body type must be
// registered.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskWire
	if err := sonic.Unmarshal(data, &w); err != nil {
		return err
	}
	body, err := DecodeBody(w.Body)
	if err != nil {
		return err
	}

	*t = Task{
		ID:          w.ID,
		Kind:        w.Kind,
		Level:       w.Level,
		ArgIndex:    w.ArgIndex,
		SuccessorID: w.SuccessorID,
		JoinCounter: w.JoinCounter,
		Inputs:      w.Inputs,
		Body:        body,
		Result:      w.Result,
		Elapsed:     w.Elapsed,
	}
	return nil
}
