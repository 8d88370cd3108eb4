package journal

import (
	"github.com/sabry-awad97/smart-scanner/internal/scan"
	"github.com/sabry-awad97/smart-scanner/internal/stream"
)

// FromNotification maps a stream or scan notification to an event. Frame
// commits map only while FrameTrace is on. Scan progress maps every
// progressEvery candidates and on the last one.
func FromNotification(msg any) (Event, bool) {
	switch m := msg.(type) {
	case stream.StateChanged:
		ev := Event{Kind: KindStreamState, Stream: m.SessionID, URL: m.URL, State: m.State.String()}
		switch {
		case m.State == stream.Failed:
			ev.Kind = KindStreamError
			ev.Level = LevelError
		case m.State == stream.Starting:
			ev.Kind = KindStreamStart
		}
		if m.Err != nil {
			ev.Err = m.Err.Error()
		}
		return ev, true

	case stream.FrameCommitted:
		if !FrameTrace() {
			return Event{}, false
		}
		return Event{
			Level:     LevelDebug,
			Kind:      KindStreamFrame,
			Stream:    m.SessionID,
			Count:     int(m.Frame.ArrivalOrder),
			LatencyMs: m.Frame.LatencyMs,
		}, true

	case scan.Started:
		return Event{Kind: KindScanStart, Job: m.JobID, Total: m.Total}, true

	case scan.Progress:
		if m.Scanned != m.Total && m.Scanned%progressEvery != 0 {
			return Event{}, false
		}
		return Event{Level: LevelDebug, Kind: KindScanProgress, Job: m.JobID, Count: m.Scanned, Total: m.Total}, true

	case scan.ServiceDiscovered:
		return Event{
			Kind:    KindScanFound,
			Job:     m.JobID,
			Address: m.Service.Address,
			Port:    m.Service.Port,
			Hint:    m.Service.Hint,
		}, true

	case scan.Completed:
		return Event{Kind: KindScanComplete, Job: m.JobID, Count: len(m.Discovered)}, true

	case scan.Cancelled:
		return Event{Kind: KindScanCancel, Job: m.JobID}, true

	case scan.Failed:
		ev := Event{Level: LevelError, Kind: KindScanFail, Job: m.JobID}
		if m.Err != nil {
			ev.Err = m.Err.Error()
		}
		return ev, true
	}
	return Event{}, false
}

const progressEvery = 250
