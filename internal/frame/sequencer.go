// Package frame decides which arriving still-image frames reach the display.
//
// A Sequencer holds the displayed frame and the arrival order of the last
// commit. A frame is committed only if its identity differs from the
// displayed one and it arrived after the last committed frame, so the
// displayed content never regresses to older data under reordered delivery.
package frame

// Event is one frame arrival.
type Event struct {
	SessionID        string
	Identity         string // content fingerprint
	Payload          []byte
	CaptureLatencyMs int64
	ArrivalOrder     uint64 // stamped by the bus
}

// Displayed is the frame currently shown for a session.
type Displayed struct {
	Identity     string
	Payload      []byte
	LatencyMs    int64
	ArrivalOrder uint64
}

// Reason explains why an arrival was not committed.
type Reason string

const (
	ReasonDuplicate   Reason = "duplicate"   // same identity as the displayed frame
	ReasonStale       Reason = "stale"       // arrived at or before the last commit
	ReasonSuperseded  Reason = "superseded"  // a newer frame committed while this one was probed
	ReasonUndecodable Reason = "undecodable" // readiness probe failed
	ReasonCoalesced   Reason = "coalesced"   // replaced in the pending slot by a newer arrival
)

// Decision is the outcome for one arrival. Exactly one of Commit or a
// non-empty Reason is set.
type Decision struct {
	Commit bool
	Frame  Displayed
	Reason Reason
}

// Sequencer is not goroutine-safe; the owning session serializes calls.
type Sequencer struct {
	displayed *Displayed
	lastOrder uint64
}

// NewSequencer creates an empty Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// OnArrival commits ev immediately if it passes the duplicate and stale
// checks. Use it when no readiness probe is required.
func (s *Sequencer) OnArrival(ev Event) Decision {
	if r, ok := s.Admit(ev); !ok {
		return Decision{Reason: r}
	}
	return s.commit(ev)
}

// Admit reports whether ev may proceed to a readiness probe. It does not
// change state.
func (s *Sequencer) Admit(ev Event) (Reason, bool) {
	if s.displayed != nil && ev.Identity == s.displayed.Identity {
		return ReasonDuplicate, false
	}
	if ev.ArrivalOrder <= s.lastOrder {
		return ReasonStale, false
	}
	return "", true
}

// Resolve finishes the preload-then-swap of an admitted frame once its
// readiness probe returns. Both checks are applied again here because a
// newer frame may have committed while ev was being probed.
func (s *Sequencer) Resolve(ev Event, probeErr error) Decision {
	if r, ok := s.Admit(ev); !ok {
		if r == ReasonStale {
			r = ReasonSuperseded
		}
		return Decision{Reason: r}
	}
	if probeErr != nil {
		return Decision{Reason: ReasonUndecodable}
	}
	return s.commit(ev)
}

func (s *Sequencer) commit(ev Event) Decision {
	d := Displayed{
		Identity:     ev.Identity,
		Payload:      ev.Payload,
		LatencyMs:    ev.CaptureLatencyMs,
		ArrivalOrder: ev.ArrivalOrder,
	}
	s.displayed = &d
	s.lastOrder = ev.ArrivalOrder
	return Decision{Commit: true, Frame: d}
}

// Displayed returns the current frame, if any.
func (s *Sequencer) Displayed() (Displayed, bool) {
	if s.displayed == nil {
		return Displayed{}, false
	}
	return *s.displayed, true
}

// Reset clears the displayed frame and the commit watermark.
func (s *Sequencer) Reset() {
	s.displayed = nil
	s.lastOrder = 0
}
