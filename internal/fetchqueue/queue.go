// Package fetchqueue serializes outbound fetches behind global and per-domain
// rate limits. Tasks carry a priority and a retry budget; the queue dispatches
// highest-priority first (FIFO within a priority), races each fetch against a
// timeout, retries failures with exponential backoff, and degrades gracefully
// via per-domain circuit breakers.
package fetchqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/civicweave/civicdata/pkg/config"
	apperrors "github.com/civicweave/civicdata/pkg/errors"
	"github.com/civicweave/civicdata/pkg/logger"
	"github.com/civicweave/civicdata/pkg/metrics"
	"github.com/civicweave/civicdata/pkg/resilience"
)

// FetchFunc performs the actual outbound request for a task.
type FetchFunc func(ctx context.Context, url string) (any, error)

// Options tunes a single enqueued task.
type Options struct {
	// Priority ranges 1 (lowest) to 10; zero means the default of 5.
	Priority int
	// MaxRetries overrides the queue default when positive; negative
	// disables retries entirely.
	MaxRetries int
}

// Result is what a completed task delivers to its waiter.
type Result struct {
	Value any
	Err   error
}

// Task is a queued fetch. Waiters receive exactly one Result, after the task
// completes or exhausts its retries.
type Task struct {
	id         uint64
	url        string
	domain     string
	priority   int
	retries    int
	maxRetries int
	enqueuedAt time.Time
	fn         FetchFunc
	done       chan Result
}

// Wait blocks until the task completes or ctx is cancelled.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case res := <-t.done:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Queue is the rate-limited fetch queue.
type Queue struct {
	cfg      config.QueueConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	limiter  *intervalLimiter
	counters counters

	mu     sync.Mutex
	tasks  []*Task
	active int

	breakerMu sync.Mutex
	breakers  map[string]*resilience.CircuitBreaker

	nextID atomic.Uint64
	wake   chan struct{}
}

// New creates a Queue. Call Start to begin dispatching.
func New(cfg config.QueueConfig, m *metrics.Metrics) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Queue{
		cfg:      cfg,
		metrics:  m,
		logger:   logger.WithComponent("fetch-queue"),
		limiter:  newIntervalLimiter(cfg),
		breakers: make(map[string]*resilience.CircuitBreaker),
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the dispatch loop. It runs until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go q.dispatchLoop(ctx)
	q.logger.Info("fetch queue started",
		"max_concurrent", q.cfg.MaxConcurrent,
		"max_queue_size", q.cfg.MaxQueueSize,
		"global_interval", q.cfg.GlobalInterval,
	)
}

// Enqueue adds a fetch task and returns it immediately. It fails with
// ErrQueueFull when the queue is at capacity, without affecting tasks already
// queued.
func (q *Queue) Enqueue(url string, fn FetchFunc, opts Options) (*Task, error) {
	if url == "" || fn == nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "url and fetch function are required")
	}
	priority := opts.Priority
	if priority <= 0 {
		priority = 5
	}
	if priority > 10 {
		priority = 10
	}
	maxRetries := q.cfg.MaxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	} else if opts.MaxRetries < 0 {
		maxRetries = 0
	}

	t := &Task{
		id:         q.nextID.Add(1),
		url:        url,
		domain:     extractDomain(url),
		priority:   priority,
		maxRetries: maxRetries,
		enqueuedAt: time.Now(),
		fn:         fn,
		done:       make(chan Result, 1),
	}

	q.mu.Lock()
	if len(q.tasks) >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		q.counters.recordBlocked()
		if q.metrics != nil {
			q.metrics.FetchBlockedTotal.Inc()
		}
		return nil, apperrors.Newf(apperrors.ErrQueueFull, 429,
			"queue at capacity (%d)", q.cfg.MaxQueueSize)
	}
	q.insertSorted(t)
	depth := len(q.tasks)
	q.mu.Unlock()

	q.counters.recordEnqueue()
	if q.metrics != nil {
		q.metrics.FetchRequestsTotal.Inc()
		q.metrics.FetchQueueDepth.Set(float64(depth))
	}
	q.logger.Debug("task enqueued",
		"task_id", t.id,
		"url", t.url,
		"domain", t.domain,
		"priority", t.priority,
	)
	q.signal()
	return t, nil
}

// Do enqueues a fetch and blocks until it completes, fails, or ctx is
// cancelled. It is the promise-style convenience over Enqueue + Wait.
func (q *Queue) Do(ctx context.Context, url string, fn FetchFunc, opts Options) (any, error) {
	t, err := q.Enqueue(url, fn, opts)
	if err != nil {
		return nil, err
	}
	return t.Wait(ctx)
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	size, active := len(q.tasks), q.active
	q.mu.Unlock()
	return q.counters.snapshot(size, active)
}

// Clear drops every queued (not in-flight) task, completing their waiters
// with an error. It returns the number of tasks dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	dropped := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, t := range dropped {
		t.done <- Result{Err: apperrors.New(apperrors.ErrInternal, 503, "queue cleared")}
	}
	if q.metrics != nil {
		q.metrics.FetchQueueDepth.Set(0)
	}
	return len(dropped)
}

// dispatchLoop pops tasks while capacity allows and parks when the queue is
// empty or concurrency is saturated.
func (q *Queue) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("dispatch loop stopping", "reason", ctx.Err())
			return
		case <-q.wake:
		}
		for {
			q.mu.Lock()
			if len(q.tasks) == 0 || q.active >= q.cfg.MaxConcurrent {
				q.mu.Unlock()
				break
			}
			t := q.tasks[0]
			q.tasks = q.tasks[1:]
			q.active++
			depth := len(q.tasks)
			q.mu.Unlock()
			if q.metrics != nil {
				q.metrics.FetchQueueDepth.Set(float64(depth))
			}
			go q.process(ctx, t)
		}
	}
}

// process runs one attempt of a task: rate-limit wait, timed fetch through
// the domain's circuit breaker, then completion, retry scheduling, or final
// failure.
func (q *Queue) process(ctx context.Context, t *Task) {
	defer func() {
		q.mu.Lock()
		q.active--
		q.mu.Unlock()
		q.signal()
	}()

	dispatchAt := q.limiter.Reserve(t.domain)
	if err := sleepUntil(ctx, dispatchAt); err != nil {
		t.done <- Result{Err: err}
		return
	}
	waited := time.Since(t.enqueuedAt)

	var value any
	start := time.Now()
	err := q.breaker(t.domain).Execute(func() error {
		return resilience.WithTimeout(ctx, q.cfg.FetchTimeout, t.url, func(fetchCtx context.Context) error {
			v, fetchErr := t.fn(fetchCtx, t.url)
			if fetchErr != nil {
				return fetchErr
			}
			value = v
			return nil
		})
	})
	elapsed := time.Since(start)

	if err == nil {
		q.counters.recordSuccess(
			float64(waited.Milliseconds()),
			float64(elapsed.Milliseconds()),
		)
		if q.metrics != nil {
			q.metrics.FetchSuccessTotal.Inc()
			q.metrics.FetchWaitSeconds.Observe(waited.Seconds())
			q.metrics.FetchDurationSeconds.Observe(elapsed.Seconds())
		}
		q.logger.Debug("task completed",
			"task_id", t.id,
			"url", t.url,
			"waited", waited,
			"took", elapsed,
		)
		t.done <- Result{Value: value}
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s", apperrors.ErrFetchTimeout, t.url)
	}
	if ctx.Err() != nil {
		t.done <- Result{Err: ctx.Err()}
		return
	}

	if t.retries < t.maxRetries {
		delay := q.cfg.RetryDelay << t.retries
		t.retries++
		q.counters.recordRetry()
		if q.metrics != nil {
			q.metrics.FetchRetriesTotal.Inc()
		}
		q.logger.Warn("task failed, scheduling retry",
			"task_id", t.id,
			"url", t.url,
			"attempt", t.retries,
			"max_retries", t.maxRetries,
			"delay", delay,
			"error", err,
		)
		time.AfterFunc(delay, func() {
			if ctx.Err() != nil {
				t.done <- Result{Err: ctx.Err()}
				return
			}
			q.requeueFront(t)
		})
		return
	}

	q.counters.recordFailure()
	if q.metrics != nil {
		q.metrics.FetchFailuresTotal.Inc()
	}
	q.logger.Error("task failed permanently",
		"task_id", t.id,
		"url", t.url,
		"retries", t.retries,
		"error", err,
	)
	t.done <- Result{Err: fmt.Errorf("%w after %d retries: %w", apperrors.ErrRetryExhausted, t.retries, err)}
}

// requeueFront puts a retried task at the head of the queue so it runs before
// fresh work. Rate limiting still applies before the retried attempt fires.
func (q *Queue) requeueFront(t *Task) {
	q.mu.Lock()
	q.tasks = append([]*Task{t}, q.tasks...)
	depth := len(q.tasks)
	q.mu.Unlock()
	if q.metrics != nil {
		q.metrics.FetchQueueDepth.Set(float64(depth))
	}
	q.signal()
}

// insertSorted places t after every task with priority >= t.priority,
// preserving FIFO order within a priority level. Caller holds q.mu.
func (q *Queue) insertSorted(t *Task) {
	idx := len(q.tasks)
	for i, existing := range q.tasks {
		if existing.priority < t.priority {
			idx = i
			break
		}
	}
	q.tasks = append(q.tasks, nil)
	copy(q.tasks[idx+1:], q.tasks[idx:])
	q.tasks[idx] = t
}

// breaker returns the circuit breaker for a domain, creating it on first use.
func (q *Queue) breaker(domain string) *resilience.CircuitBreaker {
	q.breakerMu.Lock()
	defer q.breakerMu.Unlock()
	cb, ok := q.breakers[domain]
	if !ok {
		cb = resilience.NewCircuitBreaker(domain, resilience.CircuitBreakerConfig{
			FailureThreshold: q.cfg.BreakerThreshold,
			ResetTimeout:     q.cfg.BreakerResetTimeout,
			OnStateChange: func(name string, state resilience.State) {
				if q.metrics != nil {
					q.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
				}
			},
		})
		q.breakers[domain] = cb
	}
	return cb
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
