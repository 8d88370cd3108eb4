// Package probe is the TCP probe collaborator for network scans.
//
// A Prober connects to each candidate with a short timeout and publishes a
// scan.ProbeResult per candidate on the job's bus topic. Probes for a job
// run in an errgroup bound to a per-job context, so cancelling the job stops
// waiting probes while letting in-flight dials finish.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sabry-awad97/smart-scanner/internal/bus"
	"github.com/sabry-awad97/smart-scanner/internal/logging"
	"github.com/sabry-awad97/smart-scanner/internal/scan"
)

// Options configures a Prober.
type Options struct {
	// Timeout bounds each connection attempt.
	Timeout time.Duration
	// PerSecond limits connection attempts; zero means unlimited.
	PerSecond float64
	// Fingerprint fetches the page title of open HTTP ports to refine hints.
	Fingerprint bool
}

// dialer abstracts net.Dialer for testing.
type dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type probeJob struct {
	ctx       context.Context
	cancel    context.CancelFunc
	g         *errgroup.Group
	remaining int
}

// Prober implements scan.Prober over TCP connect.
type Prober struct {
	bus         *bus.Bus
	dialer      dialer
	timeout     time.Duration
	limiter     *rate.Limiter
	fingerprint bool
	client      *http.Client

	mu   sync.Mutex
	jobs map[string]*probeJob
}

// New creates a Prober publishing results on b.
func New(b *bus.Bus, opts Options) *Prober {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Millisecond
	}
	limit := rate.Inf
	if opts.PerSecond > 0 {
		limit = rate.Limit(opts.PerSecond)
	}
	return &Prober{
		bus:         b,
		dialer:      &net.Dialer{Timeout: timeout},
		timeout:     timeout,
		limiter:     rate.NewLimiter(limit, 1),
		fingerprint: opts.Fingerprint,
		client:      &http.Client{Timeout: 2 * time.Second},
		jobs:        make(map[string]*probeJob),
	}
}

// RequestScanStart prepares a job. It fails only if the job already exists.
func (p *Prober) RequestScanStart(ctx context.Context, jobID string, space []scan.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.jobs[jobID]; ok {
		return fmt.Errorf("probe: job %s already started", jobID)
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	p.jobs[jobID] = &probeJob{
		ctx:       jobCtx,
		cancel:    cancel,
		g:         &errgroup.Group{},
		remaining: len(space),
	}
	return nil
}

// Probe starts a connection attempt and returns immediately. Probes for an
// unknown or cancelled job are ignored.
func (p *Prober) Probe(jobID string, c scan.Candidate) {
	p.mu.Lock()
	j := p.jobs[jobID]
	p.mu.Unlock()
	if j == nil {
		logging.Debug("probe for unknown job", "job", jobID, "candidate", c)
		return
	}

	j.g.Go(func() error {
		if err := p.limiter.Wait(j.ctx); err != nil {
			return nil
		}
		found, hint := p.check(j.ctx, c)
		p.bus.Publish(bus.ScanTopic(jobID), scan.ProbeResult{
			JobID:   jobID,
			Address: c.Address,
			Port:    c.Port,
			Found:   found,
			Hint:    hint,
		})
		p.finish(jobID, j)
		return nil
	})
}

// RequestScanCancel stops waiting probes of a job. Dials already under way
// finish and may still publish.
func (p *Prober) RequestScanCancel(ctx context.Context, jobID string) error {
	p.mu.Lock()
	j, ok := p.jobs[jobID]
	delete(p.jobs, jobID)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	j.cancel()
	return nil
}

// Close cancels every job and waits for their probes to return.
func (p *Prober) Close() {
	p.mu.Lock()
	jobs := p.jobs
	p.jobs = make(map[string]*probeJob)
	p.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
		_ = j.g.Wait()
	}
}

// finish retires the job after its last candidate resolves.
func (p *Prober) finish(jobID string, j *probeJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j.remaining--
	if j.remaining <= 0 && p.jobs[jobID] == j {
		delete(p.jobs, jobID)
		j.cancel()
	}
}

// check dials c and, for open HTTP ports, optionally reads the page title.
func (p *Prober) check(ctx context.Context, c scan.Candidate) (bool, string) {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
	conn, err := p.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return false, ""
	}
	conn.Close()

	hint := ServiceHint(c.Port)
	if p.fingerprint && httpPorts[c.Port] {
		if title := p.pageTitle(ctx, addr); title != "" {
			hint = hint + ": " + title
		}
	}
	logging.Debug("port open", "address", addr, "hint", hint)
	return true, hint
}

// pageTitle fetches http://addr/ and returns its <title>, or "".
func (p *Prober) pageTitle(ctx context.Context, addr string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/", nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "smartscanner/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if r := []rune(title); len(r) > 60 {
		title = string(r[:60])
	}
	return title
}
