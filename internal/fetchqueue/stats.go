package fetchqueue

import "sync"

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	RetriedRequests    int64   `json:"retried_requests"`
	BlockedRequests    int64   `json:"blocked_requests"`
	CurrentQueueSize   int     `json:"current_queue_size"`
	ActiveRequests     int     `json:"active_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AvgWaitMs          float64 `json:"avg_wait_ms"`
	AvgRequestMs       float64 `json:"avg_request_ms"`
}

// emaAlpha weights new samples in the moving averages.
const emaAlpha = 0.2

// counters accumulates queue statistics. Moving averages use an exponential
// moving average rather than an unbounded sample window.
type counters struct {
	mu           sync.Mutex
	total        int64
	successful   int64
	failed       int64
	retried      int64
	blocked      int64
	avgWaitMs    float64
	avgRequestMs float64
}

func (c *counters) recordEnqueue() { c.mu.Lock(); c.total++; c.mu.Unlock() }
func (c *counters) recordBlocked() { c.mu.Lock(); c.blocked++; c.mu.Unlock() }
func (c *counters) recordRetry()   { c.mu.Lock(); c.retried++; c.mu.Unlock() }
func (c *counters) recordFailure() { c.mu.Lock(); c.failed++; c.mu.Unlock() }

func (c *counters) recordSuccess(waitMs, requestMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successful++
	c.avgWaitMs = ema(c.avgWaitMs, waitMs)
	c.avgRequestMs = ema(c.avgRequestMs, requestMs)
}

func (c *counters) snapshot(queueSize, active int) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		TotalRequests:      c.total,
		SuccessfulRequests: c.successful,
		FailedRequests:     c.failed,
		RetriedRequests:    c.retried,
		BlockedRequests:    c.blocked,
		CurrentQueueSize:   queueSize,
		ActiveRequests:     active,
		AvgWaitMs:          c.avgWaitMs,
		AvgRequestMs:       c.avgRequestMs,
	}
	if done := c.successful + c.failed; done > 0 {
		s.SuccessRate = float64(c.successful) / float64(done)
	}
	return s
}

func ema(current, sample float64) float64 {
	if current == 0 {
		return sample
	}
	return current*(1-emaAlpha) + sample*emaAlpha
}
