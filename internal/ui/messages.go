// Package ui provides the Bubble Tea TUI for smartscanner.
//
// Stream and scan notifications (stream.StateChanged, stream.FrameCommitted,
// scan.Started, scan.Progress, scan.ServiceDiscovered and the scan terminals)
// are delivered to the model unchanged through tea.Program.Send. The messages
// below are the results of commands the model issued itself.
package ui

import "github.com/sabry-awad97/smart-scanner/internal/scan"

// ScanRequested is sent when a scan start request returns.
type ScanRequested struct {
	Job scan.Job
	Err error
}

// ScanCancelRequested is sent when a cancel request returns.
type ScanCancelRequested struct {
	Err error
}

// StreamRequested is sent when a stream start request returns.
type StreamRequested struct {
	URL string
	Err error
}

// StreamStopRequested is sent when a stream stop request returns.
type StreamStopRequested struct {
	Err error
}

// CaptureDone is sent when a still capture finishes.
type CaptureDone struct {
	Msg string
	Err error
}

// SaveDone is sent when a still has been written to disk.
type SaveDone struct {
	Msg string
	Err error
}
