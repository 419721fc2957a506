package internal

import "sync/atomic"

// Stats transport counters, safe for concurrent use
type Stats struct {
	received  int64
	invalid   int64
	published int64
	failed    int64
	dropped   int64
}

// StatsSnapshot a point in time copy of Stats
type StatsSnapshot struct {
	Received  int64 `json:"received"`
	Invalid   int64 `json:"invalid"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Pending   int64 `json:"pending"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncrReceived() {
	atomic.AddInt64(&s.received, 1)
}

func (s *Stats) IncrInvalid() {
	atomic.AddInt64(&s.invalid, 1)
}

func (s *Stats) IncrPublished() {
	atomic.AddInt64(&s.published, 1)
}

func (s *Stats) IncrFailed() {
	atomic.AddInt64(&s.failed, 1)
}

func (s *Stats) AddDropped(n int64) {
	atomic.AddInt64(&s.dropped, n)
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:  atomic.LoadInt64(&s.received),
		Invalid:   atomic.LoadInt64(&s.invalid),
		Published: atomic.LoadInt64(&s.published),
		Failed:    atomic.LoadInt64(&s.failed),
		Dropped:   atomic.LoadInt64(&s.dropped),
	}
}
