package computer

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"yqhp/task-space/pkg/types"
)

// 延迟直方图的记录范围：1µs 到 1h，3 位有效数字
const (
	minTrackable = 1
	maxTrackable = int64(time.Hour / time.Microsecond)
	sigFigs      = 3
)

// Stats 收集 Computer 的任务执行延迟统计。
type Stats struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	executed  int64
	split     int64
	failed    int64
	startedAt time.Time
}

// NewStats 创建新的统计收集器。
func NewStats() *Stats {
	return &Stats{
		hist:      hdrhistogram.New(minTrackable, maxTrackable, sigFigs),
		startedAt: time.Now(),
	}
}

// RecordExecute 记录一次直接执行。
func (s *Stats) RecordExecute(d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executed++
	if failed {
		s.failed++
	}
	s.record(d)
}

// RecordSplit 记录一次拆分。
func (s *Stats) RecordSplit(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.split++
	s.record(d)
}

func (s *Stats) record(d time.Duration) {
	us := d.Microseconds()
	if us < minTrackable {
		us = minTrackable
	}
	if us > maxTrackable {
		us = maxTrackable
	}
	// 超出范围的值已被截断，不会出错
	_ = s.hist.RecordValue(us)
}

// Snapshot 返回当前统计快照。
func (s *Stats) Snapshot() *types.ExecutionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }

	snap := &types.ExecutionStats{
		Executed:  s.executed,
		Split:     s.split,
		Failed:    s.failed,
		StartedAt: s.startedAt,
	}
	if s.hist.TotalCount() == 0 {
		return snap
	}

	snap.Min = us(s.hist.Min())
	snap.Max = us(s.hist.Max())
	snap.Mean = time.Duration(s.hist.Mean() * float64(time.Microsecond))
	snap.P50 = us(s.hist.ValueAtQuantile(50))
	snap.P90 = us(s.hist.ValueAtQuantile(90))
	snap.P99 = us(s.hist.ValueAtQuantile(99))
	return snap
}
