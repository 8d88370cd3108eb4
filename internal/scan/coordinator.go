// Package scan drives a network scan over a fixed list of (address, port)
// candidates and aggregates probe results.
//
// The Coordinator dispatches probes in list order with a bounded number in
// flight, counts each candidate once no matter how many results arrive for
// it, keeps discovered services as an ordered set, and emits exactly one
// terminal event per job. Only one job runs at a time; starting a new scan
// cancels the running one.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sabry-awad97/smart-scanner/internal/bus"
	"github.com/sabry-awad97/smart-scanner/internal/logging"
)

var (
	// ErrInvalidInput is returned for a malformed candidate.
	ErrInvalidInput = errors.New("scan: invalid input")
	// ErrCollaboratorUnavailable wraps probe layer failures.
	ErrCollaboratorUnavailable = errors.New("scan: collaborator unavailable")
)

// DefaultConcurrency is the probe window when none is configured.
const DefaultConcurrency = 100

// Prober is the probe collaborator. Results for a job are published as
// ProbeResult on bus.ScanTopic(jobID).
type Prober interface {
	RequestScanStart(ctx context.Context, jobID string, space []Candidate) error
	// Probe must not block.
	Probe(jobID string, c Candidate)
	RequestScanCancel(ctx context.Context, jobID string) error
}

// Enumerator produces the address space of a network scan.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Candidate, error)
}

// Options configures a Coordinator.
type Options struct {
	// Concurrency bounds probes in flight.
	Concurrency int
	// Notify receives Started, Progress, ServiceDiscovered and the terminal
	// events in mutation order. It is called with the coordinator lock held and must
	// not call back.
	Notify func(msg any)
}

// job is the mutable state of one scan.
type job struct {
	Job
	space    []Candidate
	index    map[Candidate]int
	next     int // dispatch cursor into space
	inflight int
	resolved map[Candidate]bool
	seen     map[Candidate]bool
	sub      *bus.Subscription
	cancel   context.CancelFunc
}

// Coordinator runs scan jobs. Goroutine-safe.
type Coordinator struct {
	bus    *bus.Bus
	prober Prober
	window int
	notify func(msg any)

	mu  sync.Mutex
	job *job
	wg  sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(b *bus.Bus, p Prober, opts Options) *Coordinator {
	window := opts.Concurrency
	if window <= 0 {
		window = DefaultConcurrency
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(any) {}
	}
	return &Coordinator{bus: b, prober: p, window: window, notify: notify}
}

// StartScan begins a scan of space in order. Duplicate candidates are probed
// once. An empty space completes immediately.
func (c *Coordinator) StartScan(ctx context.Context, space []Candidate) (Job, error) {
	space, err := normalize(space)
	if err != nil {
		return Job{}, err
	}

	c.mu.Lock()
	prev := c.supersedeLocked()
	j := c.newJobLocked(space)

	if j.Total == 0 {
		j.State = StateCompleted
		c.notify(Completed{JobID: j.ID})
		snap := j.snapshot()
		c.mu.Unlock()
		c.cancelPrevious(ctx, prev)
		logging.Info("scan completed", "job", j.ID, "total", 0)
		return snap, nil
	}

	sub, err := c.bus.Subscribe(bus.ScanTopic(j.ID))
	if err != nil {
		j.State = StateFailed
		c.notify(Failed{JobID: j.ID, Err: err})
		snap := j.snapshot()
		c.mu.Unlock()
		c.cancelPrevious(ctx, prev)
		return snap, fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	j.sub = sub
	j.cancel = cancel
	j.State = StateRunning
	c.notify(Started{JobID: j.ID, Total: j.Total, StartedAt: j.StartedAt})
	c.wg.Add(1)
	go c.run(loopCtx, j, sub)
	c.mu.Unlock()

	c.cancelPrevious(ctx, prev)
	logging.Info("scan starting", "job", j.ID, "total", j.Total, "window", c.window)

	if err := c.prober.RequestScanStart(ctx, j.ID, j.space); err != nil {
		c.mu.Lock()
		if c.job == j && j.State == StateRunning {
			c.teardownLocked(j)
			j.State = StateFailed
			c.notify(Failed{JobID: j.ID, Err: err})
		}
		snap := j.snapshot()
		c.mu.Unlock()
		logging.Warn("scan start rejected", "job", j.ID, "error", err)
		return snap, fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}

	c.mu.Lock()
	live := c.job == j && j.State == StateRunning
	if live {
		c.dispatchLocked(j)
	}
	snap := j.snapshot()
	c.mu.Unlock()

	// Cancelled or superseded while the prober was registering the job: its
	// cancel request may have arrived first, so repeat it.
	if !live {
		c.cancelPrevious(ctx, j.ID)
	}
	return snap, nil
}

// ScanNetwork enumerates the address space with e and scans it. An
// enumeration failure is reported as a single Failed event.
func (c *Coordinator) ScanNetwork(ctx context.Context, e Enumerator) (Job, error) {
	space, err := e.Enumerate(ctx)
	if err != nil {
		c.mu.Lock()
		prev := c.supersedeLocked()
		j := c.newJobLocked(nil)
		j.State = StateFailed
		c.notify(Failed{JobID: j.ID, Err: err})
		snap := j.snapshot()
		c.mu.Unlock()
		c.cancelPrevious(ctx, prev)
		logging.Warn("scan enumeration failed", "job", j.ID, "error", err)
		return snap, fmt.Errorf("scan: enumerate address space: %w", err)
	}
	return c.StartScan(ctx, space)
}

// Cancel stops a running job. Results still in flight are discarded.
// Cancelling a job that is not running is a no-op.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) error {
	c.mu.Lock()
	j := c.job
	if j == nil || j.ID != jobID || j.State != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.cancelLocked(j)
	c.mu.Unlock()

	if err := c.prober.RequestScanCancel(ctx, jobID); err != nil {
		logging.Warn("scan cancel request failed", "job", jobID, "error", err)
	}
	return nil
}

// Current returns a snapshot of the latest job.
func (c *Coordinator) Current() (Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return Job{}, false
	}
	return c.job.snapshot(), true
}

// Wait blocks until all job loops have exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context, j *job, sub *bus.Subscription) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			r, ok := env.Payload.(ProbeResult)
			if !ok {
				logging.Debug("unknown scan payload", "type", fmt.Sprintf("%T", env.Payload))
				continue
			}
			c.handle(j, r)
		}
	}
}

func (c *Coordinator) handle(j *job, r ProbeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job != j || j.State != StateRunning || r.JobID != j.ID {
		logging.Debug("stale probe result", "job", r.JobID, "address", r.Address, "port", r.Port)
		return
	}

	cand := Candidate{Address: r.Address, Port: r.Port}
	if i, ok := j.index[cand]; !ok || i >= j.next {
		logging.Debug("result for undispatched candidate", "job", j.ID, "candidate", cand)
		return
	}

	first := !j.resolved[cand]
	if first {
		j.resolved[cand] = true
		j.Scanned++
		j.inflight--
	}

	if r.Found && !j.seen[cand] {
		j.seen[cand] = true
		svc := Service{Address: r.Address, Port: r.Port, Hint: r.Hint}
		j.Discovered = append(j.Discovered, svc)
		c.notify(ServiceDiscovered{JobID: j.ID, Service: svc})
	}

	if !first {
		return
	}
	c.notify(Progress{JobID: j.ID, Scanned: j.Scanned, Total: j.Total, Current: cand})

	if j.Scanned == j.Total {
		c.teardownLocked(j)
		j.State = StateCompleted
		c.notify(Completed{JobID: j.ID, Discovered: cloneServices(j.Discovered)})
		logging.Info("scan completed", "job", j.ID, "total", j.Total, "found", len(j.Discovered))
		return
	}
	c.dispatchLocked(j)
}

// dispatchLocked fills the probe window from the cursor.
func (c *Coordinator) dispatchLocked(j *job) {
	for j.inflight < c.window && j.next < len(j.space) {
		cand := j.space[j.next]
		j.next++
		j.inflight++
		c.prober.Probe(j.ID, cand)
	}
}

// supersedeLocked cancels the running job, if any, and returns its id so
// the collaborator can be told after the lock is released.
func (c *Coordinator) supersedeLocked() string {
	j := c.job
	if j == nil || j.State != StateRunning {
		return ""
	}
	c.cancelLocked(j)
	return j.ID
}

func (c *Coordinator) cancelLocked(j *job) {
	c.teardownLocked(j)
	j.State = StateCancelled
	c.notify(Cancelled{JobID: j.ID})
	logging.Info("scan cancelled", "job", j.ID, "scanned", j.Scanned, "total", j.Total)
}

func (c *Coordinator) cancelPrevious(ctx context.Context, jobID string) {
	if jobID == "" {
		return
	}
	if err := c.prober.RequestScanCancel(ctx, jobID); err != nil {
		logging.Warn("scan cancel request failed", "job", jobID, "error", err)
	}
}

func (c *Coordinator) teardownLocked(j *job) {
	if j.sub != nil {
		j.sub.Close()
		j.sub = nil
	}
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
}

func (c *Coordinator) newJobLocked(space []Candidate) *job {
	index := make(map[Candidate]int, len(space))
	for i, cand := range space {
		index[cand] = i
	}
	j := &job{
		Job:      Job{ID: uuid.NewString(), Total: len(space), State: StateIdle, StartedAt: time.Now()},
		space:    space,
		index:    index,
		resolved: make(map[Candidate]bool, len(space)),
		seen:     make(map[Candidate]bool),
	}
	c.job = j
	return j
}

func (j *job) snapshot() Job {
	out := j.Job
	out.Discovered = cloneServices(j.Discovered)
	return out
}

// normalize validates candidates and drops repeats, keeping first order.
func normalize(space []Candidate) ([]Candidate, error) {
	out := make([]Candidate, 0, len(space))
	seen := make(map[Candidate]bool, len(space))
	for _, cand := range space {
		if err := cand.validate(); err != nil {
			return nil, err
		}
		if seen[cand] {
			continue
		}
		seen[cand] = true
		out = append(out, cand)
	}
	return out, nil
}

func cloneServices(s []Service) []Service {
	if len(s) == 0 {
		return nil
	}
	out := make([]Service, len(s))
	copy(out, s)
	return out
}
