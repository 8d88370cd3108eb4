// Package stream owns the lifecycle of the single live camera stream.
//
// A Session subscribes to the collaborator's per-session topic on Start,
// feeds arriving frames through a frame.Sequencer, and unsubscribes on Stop
// or failure. All state changes happen under Session.mu in the event handler,
// which is also where events from an older session id are rejected.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/sabry-awad97/smart-scanner/internal/bus"
	"github.com/sabry-awad97/smart-scanner/internal/frame"
	"github.com/sabry-awad97/smart-scanner/internal/logging"
)

var (
	// ErrInvalidInput is returned for a URL that is not absolute http(s).
	ErrInvalidInput = errors.New("stream: invalid url")
	// ErrAlreadyActive is returned when another stream is running.
	ErrAlreadyActive = errors.New("stream: a stream is already active")
	// ErrCollaboratorUnavailable wraps failures of the capture layer.
	ErrCollaboratorUnavailable = errors.New("stream: collaborator unavailable")
)

// defaultMaxProbes bounds concurrent readiness probes per session.
const defaultMaxProbes = 2

// Source is the capture collaborator. After RequestStreamStart it publishes
// frame.Event, Ready and Error payloads on bus.StreamTopic(sessionID).
type Source interface {
	RequestStreamStart(ctx context.Context, sessionID, url string) error
	RequestStreamStop(ctx context.Context, sessionID string) error
}

// Options configures a Session.
type Options struct {
	// Validator is the readiness probe run before a frame is swapped in.
	// Nil commits frames directly.
	Validator frame.Validator
	// MaxProbes bounds readiness probes in flight; further arrivals wait in
	// a single pending slot where the newest wins.
	MaxProbes int
	// Notify receives FrameCommitted and StateChanged in mutation order.
	// It is called with the session lock held and must not call back.
	Notify func(msg any)
}

// Session is the stream state machine. Goroutine-safe.
type Session struct {
	bus       *bus.Bus
	source    Source
	validator frame.Validator
	maxProbes int
	notify    func(msg any)

	mu      sync.Mutex
	id      string
	url     string
	state   State
	seq     *frame.Sequencer
	sub     *bus.Subscription
	cancel  context.CancelFunc
	probing int
	pending *frame.Event
	stats   Stats
	wg      sync.WaitGroup
}

// NewSession creates an idle Session.
func NewSession(b *bus.Bus, src Source, opts Options) *Session {
	probes := opts.MaxProbes
	if probes <= 0 {
		probes = defaultMaxProbes
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(any) {}
	}
	return &Session{
		bus:       b,
		source:    src,
		validator: opts.Validator,
		maxProbes: probes,
		notify:    notify,
		seq:       frame.NewSequencer(),
		stats:     Stats{Discarded: make(map[frame.Reason]int)},
	}
}

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidInput)
	}
	return nil
}

// Start begins streaming rawURL. Starting the URL that is already streaming
// is a no-op; any other start while a stream is active fails with
// ErrAlreadyActive.
func (s *Session) Start(ctx context.Context, rawURL string) error {
	if err := ValidateURL(rawURL); err != nil {
		return err
	}

	s.mu.Lock()
	switch s.state {
	case Starting, Live:
		same := s.url == rawURL
		s.mu.Unlock()
		if same {
			return nil
		}
		return ErrAlreadyActive
	case Stopping:
		s.mu.Unlock()
		return ErrAlreadyActive
	}

	id := uuid.NewString()
	sub, err := s.bus.Subscribe(bus.StreamTopic(id))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.id = id
	s.url = rawURL
	s.sub = sub
	s.cancel = cancel
	s.seq.Reset()
	s.pending = nil
	s.setStateLocked(Starting, nil)

	s.wg.Add(1)
	go s.run(loopCtx, id, sub)
	s.mu.Unlock()

	logging.Info("stream starting", "session", id, "url", rawURL)

	if err := s.source.RequestStreamStart(ctx, id, rawURL); err != nil {
		s.mu.Lock()
		if s.id == id && s.state == Starting {
			s.teardownLocked()
			s.setStateLocked(Failed, err)
		}
		s.mu.Unlock()
		logging.Warn("stream start rejected", "session", id, "error", err)
		return fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}
	return nil
}

// Stop tears the stream down. It is a no-op unless a stream is Starting or
// Live, except that a Failed session is returned to Idle. The subscription
// is released even if the collaborator rejects the teardown request.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Failed:
		s.setStateLocked(Idle, nil)
		s.mu.Unlock()
		return nil
	case Starting, Live:
	default:
		s.mu.Unlock()
		return nil
	}

	id := s.id
	s.setStateLocked(Stopping, nil)
	s.teardownLocked()
	s.mu.Unlock()

	err := s.source.RequestStreamStop(ctx, id)

	s.mu.Lock()
	if s.id == id && s.state == Stopping {
		s.setStateLocked(Idle, nil)
	}
	s.mu.Unlock()

	if err != nil {
		logging.Warn("stream teardown failed", "session", id, "error", err)
		return fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}
	logging.Info("stream stopped", "session", id)
	return nil
}

// OnCollaboratorError fails the active session. Errors for any other
// session id are ignored.
func (s *Session) OnCollaboratorError(sessionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(sessionID, err)
}

// Wait blocks until the event loops of stopped sessions have exited.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Snapshot returns the externally visible session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{ID: s.id, URL: s.url, State: s.state}
	if d, ok := s.seq.Displayed(); ok {
		snap.Displayed = &d
	}
	return snap
}

// Stats returns commit and discard counters across all sessions.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.Discarded = make(map[frame.Reason]int, len(s.stats.Discarded))
	for k, v := range s.stats.Discarded {
		out.Discarded[k] = v
	}
	return out
}

func (s *Session) run(ctx context.Context, id string, sub *bus.Subscription) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			s.handle(ctx, id, env)
		}
	}
}

func (s *Session) handle(ctx context.Context, id string, env bus.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != id || !s.state.active() {
		logging.Debug("stale stream event", "session", id, "seq", env.Seq)
		return
	}

	switch p := env.Payload.(type) {
	case frame.Event:
		if p.SessionID != id {
			logging.Debug("frame for other session", "session", p.SessionID)
			return
		}
		p.ArrivalOrder = env.Seq
		s.arriveLocked(ctx, p)
	case Ready:
		if p.SessionID == id && s.state == Starting {
			s.setStateLocked(Live, nil)
		}
	case Error:
		if p.SessionID == id {
			s.failLocked(id, errors.New(p.Message))
		}
	default:
		logging.Debug("unknown stream payload", "type", fmt.Sprintf("%T", p))
	}
}

func (s *Session) arriveLocked(ctx context.Context, ev frame.Event) {
	if s.validator == nil {
		s.applyLocked(s.seq.OnArrival(ev))
		return
	}

	if r, ok := s.seq.Admit(ev); !ok {
		s.discardLocked(r)
		return
	}
	if s.probing < s.maxProbes {
		s.probeLocked(ctx, s.id, ev)
		return
	}
	if s.pending != nil {
		s.discardLocked(frame.ReasonCoalesced)
	}
	s.pending = &ev
}

func (s *Session) probeLocked(ctx context.Context, id string, ev frame.Event) {
	s.probing++
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.validator.Validate(ev.Payload)
		s.resolve(ctx, id, ev, err)
	}()
}

func (s *Session) resolve(ctx context.Context, id string, ev frame.Event, probeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != id || !s.state.active() || ctx.Err() != nil {
		return
	}
	s.probing--
	s.applyLocked(s.seq.Resolve(ev, probeErr))

	if s.pending != nil && s.probing < s.maxProbes {
		next := *s.pending
		s.pending = nil
		if r, ok := s.seq.Admit(next); ok {
			s.probeLocked(ctx, id, next)
		} else {
			s.discardLocked(r)
		}
	}
}

func (s *Session) applyLocked(d frame.Decision) {
	if !d.Commit {
		s.discardLocked(d.Reason)
		return
	}
	s.stats.Committed++
	s.stats.LastLatencyMs = d.Frame.LatencyMs
	if s.state == Starting {
		s.setStateLocked(Live, nil)
	}
	s.notify(FrameCommitted{SessionID: s.id, Frame: d.Frame})
}

func (s *Session) discardLocked(r frame.Reason) {
	s.stats.Discarded[r]++
	logging.Debug("frame discarded", "session", s.id, "reason", r)
}

func (s *Session) failLocked(id string, err error) {
	if s.id != id || (s.state != Starting && s.state != Live) {
		return
	}
	s.teardownLocked()
	s.setStateLocked(Failed, err)
	logging.Warn("stream failed", "session", id, "error", err)
}

// teardownLocked releases the subscription and clears displayed state.
func (s *Session) teardownLocked() {
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq.Reset()
	s.pending = nil
	s.probing = 0
	s.stats.LastLatencyMs = 0
}

func (s *Session) setStateLocked(st State, err error) {
	if s.state == st {
		return
	}
	s.state = st
	s.notify(StateChanged{SessionID: s.id, URL: s.url, State: st, Err: err})
}
