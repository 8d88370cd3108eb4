// Package app wires the stream session, the scan coordinator and their
// collaborators into one value the front ends drive.
//
// Stream and scan notifications are published on a bus topic rather than
// handled inline, because both state machines call Notify with their lock
// held. A single pump goroutine drains the topic, records each notification
// in the journal and the store, and forwards it to the attached Sender.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sabry-awad97/smart-scanner/internal/bus"
	"github.com/sabry-awad97/smart-scanner/internal/capture"
	"github.com/sabry-awad97/smart-scanner/internal/config"
	"github.com/sabry-awad97/smart-scanner/internal/frame"
	"github.com/sabry-awad97/smart-scanner/internal/journal"
	"github.com/sabry-awad97/smart-scanner/internal/logging"
	"github.com/sabry-awad97/smart-scanner/internal/probe"
	"github.com/sabry-awad97/smart-scanner/internal/scan"
	"github.com/sabry-awad97/smart-scanner/internal/store"
	"github.com/sabry-awad97/smart-scanner/internal/stream"
)

// notifyTopic carries stream and scan notifications to the pump.
const notifyTopic bus.Topic = "notify"

// ErrNoScan is returned by CancelScan when nothing is running.
var ErrNoScan = errors.New("app: no scan running")

// Sender receives notifications. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Deps are the optional collaborators of an App. Nil fields are replaced
// with working defaults built from the config.
type Deps struct {
	Store      *store.Store     // nil disables history
	Journal    *journal.Journal // nil discards events
	Source     stream.Source    // defaults to an HTTP capture client
	Prober     scan.Prober      // defaults to a TCP prober
	Enumerator scan.Enumerator  // defaults to the configured subnet
}

// App is the running scanner. Goroutine-safe.
type App struct {
	cfg     *config.Config
	bus     *bus.Bus
	session *stream.Session
	scans   *scan.Coordinator
	camera  *capture.Client
	prober  *probe.Prober
	enum    scan.Enumerator
	store   *store.Store
	journal *journal.Journal
	pump    *bus.Subscription

	ownJournal bool

	mu       sync.Mutex
	sender   Sender
	progress map[string]scan.Progress // last progress per job, pump only
	done     chan struct{}
	closing  sync.Once
}

// New builds an App from cfg. The pump starts immediately; notifications
// produced before SetSender are journaled but not forwarded.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	b := bus.New()
	pump, err := b.Subscribe(notifyTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}

	a := &App{
		cfg:      cfg,
		bus:      b,
		store:    deps.Store,
		journal:  deps.Journal,
		pump:     pump,
		progress: make(map[string]scan.Progress),
		done:     make(chan struct{}),
	}
	if a.journal == nil {
		a.journal = journal.Discard()
		a.ownJournal = true
	}
	notify := func(msg any) { b.Publish(notifyTopic, msg) }

	a.camera = capture.NewClient(b, capture.Options{
		MinInterval: cfg.FrameInterval(),
		MaxWidth:    cfg.Stream.MaxWidth,
		Quality:     cfg.Stream.JPEGQuality,
		MaxErrors:   cfg.Stream.MaxErrors,
		Timeout:     cfg.RequestTimeout(),
	})
	src := deps.Source
	if src == nil {
		src = a.camera
	}
	a.session = stream.NewSession(b, src, stream.Options{
		Validator: frame.DecodeValidator{},
		MaxProbes: cfg.Stream.MaxProbes,
		Notify:    notify,
	})

	p := deps.Prober
	if p == nil {
		a.prober = probe.New(b, probe.Options{
			Timeout:     cfg.ProbeTimeout(),
			PerSecond:   float64(cfg.Scan.PerSecond),
			Fingerprint: cfg.Scan.Fingerprint,
		})
		p = a.prober
	}
	a.scans = scan.NewCoordinator(b, p, scan.Options{
		Concurrency: cfg.Scan.Concurrency,
		Notify:      notify,
	})

	a.enum = deps.Enumerator
	if a.enum == nil {
		a.enum = probe.Subnet{CIDR: cfg.Scan.Subnet, Ports: cfg.Scan.Ports}
	}

	go a.run()
	a.journal.Record(journal.Event{Kind: journal.KindStartup, Msg: "scanner ready"})
	return a, nil
}

// SetSender attaches the consumer of notifications.
func (a *App) SetSender(s Sender) {
	a.mu.Lock()
	a.sender = s
	a.mu.Unlock()
}

// StartStream starts the live stream from url.
func (a *App) StartStream(ctx context.Context, url string) error {
	return a.session.Start(ctx, url)
}

// StopStream stops the live stream.
func (a *App) StopStream(ctx context.Context) error {
	return a.session.Stop(ctx)
}

// Stream returns the stream session snapshot.
func (a *App) Stream() stream.Snapshot {
	return a.session.Snapshot()
}

// StreamStats returns frame commit and discard counters.
func (a *App) StreamStats() stream.Stats {
	return a.session.Stats()
}

// StartScan scans the configured network.
func (a *App) StartScan(ctx context.Context) (scan.Job, error) {
	return a.scans.ScanNetwork(ctx, a.enum)
}

// ScanCandidates scans an explicit candidate list.
func (a *App) ScanCandidates(ctx context.Context, space []scan.Candidate) (scan.Job, error) {
	return a.scans.StartScan(ctx, space)
}

// CancelScan cancels the running scan.
func (a *App) CancelScan(ctx context.Context) error {
	job, ok := a.scans.Current()
	if !ok || job.State != scan.StateRunning {
		return ErrNoScan
	}
	return a.scans.Cancel(ctx, job.ID)
}

// Scan returns the latest job snapshot.
func (a *App) Scan() (scan.Job, bool) {
	return a.scans.Current()
}

// CameraURLs lists stream URLs for camera-like services of the latest scan.
func (a *App) CameraURLs() []string {
	job, ok := a.scans.Current()
	if !ok {
		return nil
	}
	return scan.CameraURLs(job.Discovered)
}

// Capture grabs a still from url.
func (a *App) Capture(ctx context.Context, url string) (string, error) {
	msg, err := a.camera.Capture(ctx, url)
	if err != nil {
		a.journal.Record(journal.Event{Level: journal.LevelWarn, Kind: journal.KindCaptureError, URL: url, Err: err.Error()})
		return "", err
	}
	a.journal.Record(journal.Event{Kind: journal.KindCapture, URL: url, Msg: msg})
	return msg, nil
}

// Save writes the last still to the capture directory.
func (a *App) Save() (string, error) {
	path, err := a.camera.SaveTo(a.cfg.CaptureDir())
	if err != nil {
		return "", err
	}
	still, _ := a.camera.Last()
	a.journal.Record(journal.Event{Kind: journal.KindCaptureSave, URL: still.URL, Msg: path})

	if a.store != nil {
		b := still.Image.Bounds()
		err := a.store.SaveCapture(store.Capture{
			Path:    path,
			URL:     still.URL,
			Width:   b.Dx(),
			Height:  b.Dy(),
			Format:  still.Format,
			SavedAt: time.Now(),
		})
		if err != nil {
			a.storeFailed(err)
		}
	}
	return capture.SavedMessage(path), nil
}

// Close stops the stream and any scan, then shuts down the collaborators.
func (a *App) Close() {
	a.closing.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := a.session.Stop(ctx); err != nil {
			logging.Warn("stream stop on close", "error", err)
		}
		if job, ok := a.scans.Current(); ok && job.State == scan.StateRunning {
			a.scans.Cancel(ctx, job.ID)
		}
		a.camera.Close()
		if a.prober != nil {
			a.prober.Close()
		}
		a.session.Wait()
		a.scans.Wait()

		a.flush(time.Second)
		a.journal.Record(journal.Event{Kind: journal.KindShutdown})
		a.pump.Close()
		<-a.done
		a.bus.Close()
		if a.ownJournal {
			a.journal.Close()
		}
	})
}

// drained is a pump marker closed once every earlier notification has been
// handled.
type drained chan struct{}

// flush waits up to d for the pump to catch up.
func (a *App) flush(d time.Duration) bool {
	mark := make(drained)
	if _, ok := a.bus.Publish(notifyTopic, mark); !ok {
		return false
	}
	select {
	case <-mark:
		return true
	case <-time.After(d):
		return false
	}
}

func (a *App) run() {
	defer close(a.done)
	for env := range a.pump.C() {
		if mark, ok := env.Payload.(drained); ok {
			close(mark)
			continue
		}
		a.handle(env.Payload)
	}
}

func (a *App) handle(msg any) {
	if ev, ok := journal.FromNotification(msg); ok {
		a.journal.Record(ev)
	}
	a.persist(msg)

	a.mu.Lock()
	s := a.sender
	a.mu.Unlock()
	if s != nil {
		s.Send(msg)
	}
}

func (a *App) persist(msg any) {
	switch m := msg.(type) {
	case scan.Started:
		if a.store == nil {
			return
		}
		err := a.store.SaveScan(store.Scan{ID: m.JobID, State: scan.StateRunning.String(), Total: m.Total, StartedAt: m.StartedAt})
		if err != nil {
			a.storeFailed(err)
		}
	case scan.Progress:
		a.progress[m.JobID] = m
	case scan.ServiceDiscovered:
		if a.store == nil {
			return
		}
		_, err := a.store.SaveService(store.Service{
			ScanID:  m.JobID,
			Address: m.Service.Address,
			Port:    m.Service.Port,
			Hint:    m.Service.Hint,
			FoundAt: time.Now(),
		})
		if err != nil {
			a.storeFailed(err)
		}
	case scan.Completed:
		a.finish(m.JobID, scan.StateCompleted, nil)
	case scan.Cancelled:
		a.finish(m.JobID, scan.StateCancelled, nil)
	case scan.Failed:
		a.finish(m.JobID, scan.StateFailed, m.Err)
	}
}

// finish stores the terminal row of a job. Counts come from the coordinator
// when the job is still current, otherwise from the last progress seen. A job
// that ran already has its row from Started, which keeps its started_at.
func (a *App) finish(jobID string, st scan.State, cause error) {
	p := a.progress[jobID]
	delete(a.progress, jobID)
	if a.store == nil {
		return
	}

	now := time.Now()
	row := store.Scan{
		ID:         jobID,
		State:      st.String(),
		Total:      p.Total,
		Scanned:    p.Scanned,
		StartedAt:  now,
		FinishedAt: now,
	}
	if job, ok := a.scans.Current(); ok && job.ID == jobID {
		row.Total = job.Total
		row.Scanned = job.Scanned
		row.Found = len(job.Discovered)
		row.StartedAt = job.StartedAt
	} else if services, err := a.store.ServicesForScan(jobID); err == nil {
		row.Found = len(services)
	}
	if cause != nil {
		row.Error = cause.Error()
	}
	if err := a.store.SaveScan(row); err != nil {
		a.storeFailed(err)
	}
}

func (a *App) storeFailed(err error) {
	logging.Error("store write failed", "error", err)
	a.journal.Error(journal.KindStoreError, err)
}
