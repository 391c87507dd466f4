// Package shared defines the value that tasks share across computers while a
// job runs, such as the best known upper bound of a branch-and-bound search.
//
// A Shared value is immutable once published. Every holder (each computer and
// the space) keeps one cached copy and only replaces it with a value that
// reports itself newer, so the cached value converges and never regresses.
package shared

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/bytedance/sonic"
)

// Shared is a value shared by all tasks of a job.
type Shared interface {
	// Type is the registered wire name of the implementation.
	Type() string

	// Get returns the underlying value.
	Get() any

	// IsNewerThan reports whether this value should replace other.
	// Every value is newer than nil.
	IsNewerThan(other Shared) bool
}

// MinDoubleType is the wire name of MinDouble.
const MinDoubleType = "min-double"

// MinDouble is a float64 bound for minimisation problems. A smaller value is newer.
type MinDouble struct {
	Value float64 `json:"value"`
}

// NewMinDouble returns a MinDouble holding v.
func NewMinDouble(v float64) *MinDouble {
	return &MinDouble{Value: v}
}

// WorstMinDouble returns the neutral starting bound.
func WorstMinDouble() *MinDouble {
	return &MinDouble{Value: math.MaxFloat64}
}

// Type implements Shared.
func (d *MinDouble) Type() string { return MinDoubleType }

// Get implements Shared.
func (d *MinDouble) Get() any { return d.Value }

// IsNewerThan implements Shared.
func (d *MinDouble) IsNewerThan(other Shared) bool {
	if other == nil {
		return true
	}
	o, ok := other.(*MinDouble)
	if !ok || o == nil {
		return true
	}
	return d.Value < o.Value
}

func (d *MinDouble) String() string {
	return fmt.Sprintf("%g", d.Value)
}

// Float returns the float64 held by s, or +Inf when s is nil or not numeric.
func Float(s Shared) float64 {
	if s == nil {
		return math.Inf(1)
	}
	switch v := s.Get().(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return math.Inf(1)
	}
}

var (
	factories   = map[string]func() Shared{}
	factoriesMu sync.RWMutex
)

func init() {
	Register(MinDoubleType, func() Shared { return &MinDouble{} })
}

// Register makes a Shared implementation decodable by its wire name.
// It panics if name is registered twice.
func Register(name string, factory func() Shared) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("shared: type %q registered twice", name))
	}
	factories[name] = factory
}

// Envelope is the wire form of a Shared value.
type Envelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Wrap converts s into its wire envelope. A nil value yields a nil envelope.
func Wrap(s Shared) (*Envelope, error) {
	if s == nil {
		return nil, nil
	}
	data, err := sonic.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal shared %s: %w", s.Type(), err)
	}
	return &Envelope{Type: s.Type(), Value: data}, nil
}

// Unwrap decodes an envelope produced by Wrap.
func Unwrap(env *Envelope) (Shared, error) {
	if env == nil {
		return nil, nil
	}

	factoriesMu.RLock()
	factory, ok := factories[env.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown shared type %q", env.Type)
	}

	s := factory()
	if err := sonic.Unmarshal(env.Value, s); err != nil {
		return nil, fmt.Errorf("unmarshal shared %s: %w", env.Type, err)
	}
	return s, nil
}
