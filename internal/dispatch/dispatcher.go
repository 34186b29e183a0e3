package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Dispatcher defaults.
const (
	DefaultQueueSize    = 16
	DefaultTimeout      = 2 * time.Second
	DefaultRetryBackoff = 500 * time.Millisecond
)

// ErrClosed is returned when sending through a closed dispatcher.
var ErrClosed = errors.New("dispatcher is closed")

// Job is one command bound for every configured sink.
type Job struct {
	ID      string    `json:"id"`
	Slot    string    `json:"slot"`
	Label   string    `json:"label"`
	Command string    `json:"command"`
	Created time.Time `json:"created"`
}

// NewJob creates a job with a fresh ID.
func NewJob(slot, label, command string) Job {
	return Job{
		ID:      uuid.NewString(),
		Slot:    slot,
		Label:   label,
		Command: command,
		Created: time.Now(),
	}
}

// Sink delivers a command to an external actuator.
type Sink interface {
	Name() string
	Send(ctx context.Context, job Job) error
}

// Error reports a failed delivery to one sink.
type Error struct {
	Sink    string
	Command string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch %q to %s: %v", e.Command, e.Sink, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is the outcome of delivering a job to one sink.
type Result struct {
	Job      Job
	Sink     string
	Attempts int
	Duration time.Duration
	Err      error
}

// Options configures a Dispatcher.
type Options struct {
	QueueSize    int
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	Logger       *slog.Logger
	// OnResult is called from the worker goroutine after each sink attempt
	// sequence completes.
	OnResult func(Result)
}

// DefaultOptions returns a queue of 16, a 2s timeout and one retry.
func DefaultOptions() Options {
	return Options{
		QueueSize:    DefaultQueueSize,
		Timeout:      DefaultTimeout,
		Retries:      1,
		RetryBackoff: DefaultRetryBackoff,
	}
}

// Stats counts dispatcher activity.
type Stats struct {
	Queued    uint64 `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
}

// Dispatcher delivers jobs to sinks from a single worker goroutine so the
// frame loop never waits on network I/O.
type Dispatcher struct {
	sinks  []Sink
	opts   Options
	logger *slog.Logger
	queue  chan Job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	queued    atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher creates a Dispatcher and starts its worker.
func NewDispatcher(opts Options, sinks ...Sink) *Dispatcher {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sinks:  sinks,
		opts:   opts,
		logger: logger,
		queue:  make(chan Job, opts.QueueSize),
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Enqueue queues a job without blocking. It returns false when the queue is
// full or the dispatcher is closed; the job is dropped.
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("dispatcher closed, dropping job", "command", job.Command, "slot", job.Slot)
		return false
	}

	select {
	case d.queue <- job:
		d.queued.Add(1)
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("dispatch queue full, dropping job", "command", job.Command, "slot", job.Slot)
		return false
	}
}

// Deliver sends a job to every sink synchronously and returns one result per
// sink. The returned error joins the failures.
func (d *Dispatcher) Deliver(ctx context.Context, job Job) ([]Result, error) {
	results := make([]Result, 0, len(d.sinks))
	var errs []error
	for _, sink := range d.sinks {
		r := d.deliverOne(ctx, sink, job)
		results = append(results, r)
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func (d *Dispatcher) deliverOne(ctx context.Context, sink Sink, job Job) Result {
	start := time.Now()
	res := Result{Job: job, Sink: sink.Name()}

	for attempt := 0; attempt <= d.opts.Retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(d.opts.RetryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				res.Err = &Error{Sink: sink.Name(), Command: job.Command, Err: ctx.Err()}
				res.Duration = time.Since(start)
				d.failed.Add(1)
				return res
			case <-timer.C:
			}
		}

		res.Attempts++
		sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		err := sink.Send(sendCtx, job)
		cancel()

		if err == nil {
			res.Err = nil
			res.Duration = time.Since(start)
			d.delivered.Add(1)
			d.logger.Info("command dispatched",
				"sink", sink.Name(),
				"command", job.Command,
				"label", job.Label,
				"slot", job.Slot,
				"attempts", res.Attempts)
			return res
		}

		res.Err = &Error{Sink: sink.Name(), Command: job.Command, Err: err}
		d.logger.Warn("dispatch attempt failed",
			"sink", sink.Name(),
			"command", job.Command,
			"attempt", res.Attempts,
			"error", err)
	}

	res.Duration = time.Since(start)
	d.failed.Add(1)
	return res
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for job := range d.queue {
		results, _ := d.Deliver(context.Background(), job)
		if d.opts.OnResult != nil {
			for _, r := range results {
				d.opts.OnResult(r)
			}
		}
	}
}

// Close stops accepting jobs, delivers what is queued and waits for the
// worker to exit. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    d.queued.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Pending:   len(d.queue),
	}
}
