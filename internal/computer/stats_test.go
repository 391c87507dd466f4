package computer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_Empty(t *testing.T) {
	snap := NewStats().Snapshot()
	assert.Zero(t, snap.Executed)
	assert.Zero(t, snap.P99)
	assert.False(t, snap.StartedAt.IsZero())
}

func TestStats_Percentiles(t *testing.T) {
	s := NewStats()
	for i := 1; i <= 100; i++ {
		s.RecordExecute(time.Duration(i)*time.Millisecond, i%10 == 0)
	}
	s.RecordSplit(time.Microsecond)

	snap := s.Snapshot()
	assert.Equal(t, int64(100), snap.Executed)
	assert.Equal(t, int64(1), snap.Split)
	assert.Equal(t, int64(10), snap.Failed)

	assert.Equal(t, time.Microsecond, snap.Min)
	assert.InDelta(t, float64(100*time.Millisecond), float64(snap.Max), float64(time.Millisecond))
	assert.InDelta(t, float64(50*time.Millisecond), float64(snap.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(99*time.Millisecond), float64(snap.P99), float64(time.Millisecond))
	assert.True(t, snap.P50 <= snap.P90 && snap.P90 <= snap.P99)
}

func TestStats_ClampsOutOfRange(t *testing.T) {
	s := NewStats()
	s.RecordExecute(0, false)
	s.RecordExecute(2*time.Hour, false)

	snap := s.Snapshot()
	assert.Equal(t, time.Microsecond, snap.Min)
	assert.InDelta(t, float64(time.Hour), float64(snap.Max), float64(time.Hour)/100)
}
