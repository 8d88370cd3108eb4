package stream

import "github.com/sabry-awad97/smart-scanner/internal/frame"

// State is the lifecycle state of a stream session.
type State int

const (
	Idle State = iota
	Starting
	Live
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Live:
		return "live"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// active reports whether events for the session are still applied.
func (s State) active() bool {
	return s == Starting || s == Live
}

// Ready is published by the collaborator once the endpoint is connected.
type Ready struct {
	SessionID string
}

// Error is published by the collaborator when the stream cannot continue.
type Error struct {
	SessionID string
	Message   string
}

// FrameCommitted is sent to the consumer for every committed frame.
type FrameCommitted struct {
	SessionID string
	Frame     frame.Displayed
}

// StateChanged is sent to the consumer on every state transition.
type StateChanged struct {
	SessionID string
	URL       string
	State     State
	Err       error
}

// Snapshot is a copy of the session's visible state.
type Snapshot struct {
	ID        string
	URL       string
	State     State
	Displayed *frame.Displayed
}

// Stats counts frame decisions.
type Stats struct {
	Committed     int
	Discarded     map[frame.Reason]int
	LastLatencyMs int64
}
