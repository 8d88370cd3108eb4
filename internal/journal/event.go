// Package journal records smartscanner activity as JSONL events.
//
// A Journal writes asynchronously from a buffered channel so that stream and
// scan handlers never wait on disk. An optional Ring keeps recent events in
// memory for the TUI status line and the events command.
package journal

import "time"

// Level is event severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Rank orders levels for filtering. Unknown levels rank lowest.
func (l Level) Rank() int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// Kind is "<subsystem>.<action>".
type Kind string

const (
	KindStreamStart Kind = "stream.start"
	KindStreamState Kind = "stream.state"
	KindStreamFrame Kind = "stream.frame"
	KindStreamError Kind = "stream.error"

	KindScanStart    Kind = "scan.start"
	KindScanProgress Kind = "scan.progress"
	KindScanFound    Kind = "scan.found"
	KindScanComplete Kind = "scan.complete"
	KindScanCancel   Kind = "scan.cancel"
	KindScanFail     Kind = "scan.fail"

	KindCapture      Kind = "capture.ok"
	KindCaptureSave  Kind = "capture.save"
	KindCaptureError Kind = "capture.error"

	KindStoreError Kind = "store.error"

	KindStartup  Kind = "sys.startup"
	KindShutdown Kind = "sys.shutdown"
)

// Event is one journal line. Only Time and Kind are always set.
type Event struct {
	Time      time.Time `json:"t"`
	Level     Level     `json:"level,omitempty"`
	Kind      Kind      `json:"kind"`
	Run       string    `json:"run,omitempty"`    // one per process
	Stream    string    `json:"stream,omitempty"` // stream session id
	Job       string    `json:"job,omitempty"`    // scan job id
	URL       string    `json:"url,omitempty"`
	Address   string    `json:"addr,omitempty"`
	Port      int       `json:"port,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	State     string    `json:"state,omitempty"`
	Count     int       `json:"count,omitempty"`
	Total     int       `json:"total,omitempty"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
	Err       string    `json:"err,omitempty"`
	Msg       string    `json:"msg,omitempty"`
}
