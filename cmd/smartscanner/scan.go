package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sabry-awad97/smart-scanner/internal/journal"
	"github.com/sabry-awad97/smart-scanner/internal/scan"
)

// printer prints scan notifications and signals the terminal one.
type printer struct {
	quiet bool

	mu    sync.Mutex
	jobID string
	done  chan error
	once  sync.Once
	last  int
}

func (p *printer) Send(msg tea.Msg) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch m := msg.(type) {
	case scan.ServiceDiscovered:
		if p.jobID != "" && m.JobID != p.jobID {
			return
		}
		fmt.Printf("%-21s %s\n", fmt.Sprintf("%s:%d", m.Service.Address, m.Service.Port), m.Service.Hint)
	case scan.Progress:
		if p.quiet || m.Total == 0 {
			return
		}
		pct := m.Scanned * 100 / m.Total
		if pct/10 != p.last/10 {
			fmt.Fprintf(os.Stderr, "  %d%% (%d/%d)\n", pct, m.Scanned, m.Total)
			p.last = pct
		}
	case scan.Completed:
		p.finish(m.JobID, nil)
	case scan.Cancelled:
		p.finish(m.JobID, context.Canceled)
	case scan.Failed:
		p.finish(m.JobID, m.Err)
	}
}

func (p *printer) finish(jobID string, err error) {
	if p.jobID != "" && jobID != p.jobID {
		return
	}
	p.once.Do(func() { p.done <- err })
}

func (p *printer) watch(jobID string) {
	p.mu.Lock()
	p.jobID = jobID
	p.mu.Unlock()
}

func runScan() {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	subnet := fs.String("subnet", "", "Subnet to scan (default: local /24)")
	quiet := fs.Bool("q", false, "Do not print progress")
	fs.Parse(os.Args[1:])

	s := openSession()
	defer s.Close()
	if *subnet != "" {
		s.cfg.Scan.Subnet = *subnet
		if err := s.cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := &printer{quiet: *quiet, done: make(chan error, 1)}
	s.app.SetSender(p)

	job, err := s.app.StartScan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	p.watch(job.ID)
	fmt.Fprintf(os.Stderr, "scanning %d candidates (job %s)\n", job.Total, truncate(job.ID, 11))

	select {
	case err = <-p.done:
	case <-ctx.Done():
		if cerr := s.app.CancelScan(context.Background()); cerr != nil {
			fmt.Fprintf(os.Stderr, "cancel: %v\n", cerr)
		}
		err = <-p.done
	}

	job, _ = s.app.Scan()
	switch {
	case err == nil:
		fmt.Fprintf(os.Stderr, "done: %d services, %d cameras\n", len(job.Discovered), len(scan.CameraURLs(job.Discovered)))
	case err == context.Canceled:
		fmt.Fprintf(os.Stderr, "cancelled after %d/%d\n", job.Scanned, job.Total)
	default:
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
	}
	for _, url := range scan.CameraURLs(job.Discovered) {
		fmt.Println("camera:", url)
	}
	printCounts(s.ring.Counts())
}

// printCounts prints the journal kinds seen this run, sorted by kind.
func printCounts(counts map[journal.Kind]int) {
	if len(counts) == 0 {
		return
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Fprint(os.Stderr, "events:")
	for _, k := range kinds {
		fmt.Fprintf(os.Stderr, " %s=%d", k, counts[journal.Kind(k)])
	}
	fmt.Fprintln(os.Stderr)
}
