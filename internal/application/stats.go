package application

import (
	"sync"
	"time"
)

// recentWindow is how many of the latest calls feed the service error rate.
const recentWindow = 100

type opCounter struct {
	calls    int64
	failures int64
	total    time.Duration
	max      time.Duration
}

type opStats struct {
	mu      sync.Mutex
	byOp    [opCount]opCounter
	recent  [recentWindow]bool
	next    int
	samples int
}

func newOpStats() *opStats {
	return &opStats{}
}

func (s *opStats) record(op Op, latency time.Duration, err error) {
	if op < 0 || op >= opCount {
		op = OpUnknown
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.byOp[op]
	c.calls++
	c.total += latency
	c.max = max(c.max, latency)
	if err != nil {
		c.failures++
	}

	s.recent[s.next] = err != nil
	s.next = (s.next + 1) % recentWindow
	s.samples = min(s.samples+1, recentWindow)
}

func (s *opStats) recentErrorRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.samples == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < s.samples; i++ {
		if s.recent[i] {
			failures++
		}
	}
	return float64(failures) / float64(s.samples)
}

// snapshot lists every operation that has been called at least once, in
// operation order.
func (s *opStats) snapshot() ServiceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metrics ServiceMetrics
	for op := OpUnknown; op < opCount; op++ {
		c := s.byOp[op]
		if c.calls == 0 {
			continue
		}
		metrics.Calls += c.calls
		metrics.Failures += c.failures
		metrics.Ops = append(metrics.Ops, OpMetric{
			Op:             op.String(),
			Calls:          c.calls,
			Failures:       c.failures,
			TotalLatency:   c.total,
			AverageLatency: c.total / time.Duration(c.calls),
			MaxLatency:     c.max,
		})
	}
	if metrics.Calls > 0 {
		metrics.ErrorRate = float64(metrics.Failures) / float64(metrics.Calls)
	}
	return metrics
}
