package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sabry-awad97/smart-scanner/internal/frame"
	"github.com/sabry-awad97/smart-scanner/internal/scan"
	"github.com/sabry-awad97/smart-scanner/internal/stream"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	app, ok := m.(App)
	if !ok {
		t.Fatalf("Update returned %T", m)
	}
	return app, cmd
}

// calls records which command functions the model invoked.
type calls struct {
	scans   int
	cancels int
	streams []string
	stops   int
	capture []string
	saves   int
}

func (c *calls) config() Config {
	return Config{
		StartScan:   func() tea.Cmd { c.scans++; return func() tea.Msg { return nil } },
		CancelScan:  func() tea.Cmd { c.cancels++; return func() tea.Msg { return nil } },
		StartStream: func(url string) tea.Cmd { c.streams = append(c.streams, url); return func() tea.Msg { return nil } },
		StopStream:  func() tea.Cmd { c.stops++; return func() tea.Msg { return nil } },
		Capture:     func(url string) tea.Cmd { c.capture = append(c.capture, url); return func() tea.Msg { return nil } },
		Save:        func() tea.Cmd { c.saves++; return func() tea.Msg { return nil } },
	}
}

func TestScanLifecycle(t *testing.T) {
	c := &calls{}
	a := NewApp(c.config())

	a, cmd := update(t, a, key("s"))
	if c.scans != 1 || cmd == nil {
		t.Fatalf("expected a scan command, got %d calls", c.scans)
	}

	a, cmd = update(t, a, ScanRequested{Job: scan.Job{ID: "j1", Total: 4, State: scan.StateRunning}})
	if cmd == nil {
		t.Error("expected spinner tick while running")
	}
	a, _ = update(t, a, scan.Progress{JobID: "j1", Scanned: 1, Total: 4})
	a, _ = update(t, a, scan.ServiceDiscovered{JobID: "j1", Service: scan.Service{Address: "10.0.0.5", Port: 22, Hint: "SSH"}})
	a, _ = update(t, a, scan.ServiceDiscovered{JobID: "j1", Service: scan.Service{Address: "10.0.0.9", Port: 4747, Hint: "IP Camera"}})
	a, _ = update(t, a, scan.Progress{JobID: "j1", Scanned: 4, Total: 4})

	if st, scanned, total := a.ScanState(); st != scan.StateRunning || scanned != 4 || total != 4 {
		t.Errorf("unexpected scan state %v %d/%d", st, scanned, total)
	}

	a, _ = update(t, a, scan.Completed{JobID: "j1"})
	if st, _, _ := a.ScanState(); st != scan.StateCompleted {
		t.Errorf("expected completed, got %v", st)
	}
	if len(a.Services()) != 2 {
		t.Fatalf("expected 2 services, got %d", len(a.Services()))
	}
	if a.Cursor() != 1 {
		t.Errorf("expected cursor on the camera, got %d", a.Cursor())
	}
	if !strings.Contains(a.Notice(), "2 services, 1 cameras") {
		t.Errorf("unexpected notice %q", a.Notice())
	}

	// Spinner stops once the job is terminal.
	if _, cmd := update(t, a, a.spin.Tick()); cmd != nil {
		t.Error("spinner should stop after completion")
	}
}

func TestProgressBeforeScanRequestedIsAdopted(t *testing.T) {
	a := NewApp(Config{})
	a, _ = update(t, a, scan.Progress{JobID: "j1", Scanned: 2, Total: 10})
	a, _ = update(t, a, ScanRequested{Job: scan.Job{ID: "j1", Total: 10, State: scan.StateRunning}})
	if _, scanned, total := a.ScanState(); scanned != 2 || total != 10 {
		t.Errorf("progress lost: %d/%d", scanned, total)
	}
}

func TestStartedAdoptsJobAndSpins(t *testing.T) {
	a := NewApp(Config{})
	a, cmd := update(t, a, scan.Started{JobID: "j1", Total: 254})
	if cmd == nil {
		t.Error("expected spinner tick once a job starts")
	}
	if st, scanned, total := a.ScanState(); st != scan.StateRunning || scanned != 0 || total != 254 {
		t.Errorf("unexpected scan state %v %d/%d", st, scanned, total)
	}

	a, _ = update(t, a, scan.Cancelled{JobID: "j1"})
	if _, cmd := update(t, a, scan.Started{JobID: "j1", Total: 254}); cmd != nil {
		t.Error("a finished job must not restart the spinner")
	}
}

func TestSupersededJobEventsIgnored(t *testing.T) {
	a := NewApp(Config{})
	a, _ = update(t, a, scan.ServiceDiscovered{JobID: "old", Service: scan.Service{Address: "10.0.0.1", Port: 80}})
	a, _ = update(t, a, scan.Progress{JobID: "new", Scanned: 1, Total: 5})
	a, _ = update(t, a, scan.Cancelled{JobID: "old"})

	if st, _, _ := a.ScanState(); st != scan.StateRunning {
		t.Errorf("cancel of old job changed state to %v", st)
	}
	if len(a.Services()) != 0 {
		t.Errorf("services of the old job leaked: %+v", a.Services())
	}

	// A late result for the finished job does not take over the display.
	a, _ = update(t, a, scan.ServiceDiscovered{JobID: "old", Service: scan.Service{Address: "10.0.0.2", Port: 80}})
	if len(a.Services()) != 0 {
		t.Error("late result for a finished job was shown")
	}
}

func TestScanFailureShowsError(t *testing.T) {
	a := NewApp(Config{})
	a, _ = update(t, a, scan.Failed{JobID: "j", Err: errors.New("no interface")})
	if a.Err() == nil || a.Err().Error() != "no interface" {
		t.Errorf("expected error, got %v", a.Err())
	}
	a, _ = update(t, a, key("j"))
	if a.Err() != nil {
		t.Error("key press should clear the error")
	}
}

func TestCancelOnlyWhileRunning(t *testing.T) {
	c := &calls{}
	a := NewApp(c.config())
	a, _ = update(t, a, key("x"))
	if c.cancels != 0 {
		t.Error("cancel issued with no scan")
	}
	a, _ = update(t, a, ScanRequested{Job: scan.Job{ID: "j", Total: 3, State: scan.StateRunning}})
	update(t, a, key("x"))
	if c.cancels != 1 {
		t.Error("expected cancel while running")
	}
}

func TestEnterStreamsSelectedCamera(t *testing.T) {
	c := &calls{}
	a := NewApp(c.config())
	a, _ = update(t, a, scan.ServiceDiscovered{JobID: "j", Service: scan.Service{Address: "10.0.0.5", Port: 22}})
	a, _ = update(t, a, scan.ServiceDiscovered{JobID: "j", Service: scan.Service{Address: "10.0.0.9", Port: 8080}})

	a, _ = update(t, a, key("enter"))
	if len(c.streams) != 0 {
		t.Errorf("enter on a non-camera service streamed %v", c.streams)
	}

	a, _ = update(t, a, key("down"))
	update(t, a, key("enter"))
	if len(c.streams) != 1 || c.streams[0] != "http://10.0.0.9:8080" {
		t.Errorf("unexpected stream requests %v", c.streams)
	}
}

func TestEnterFallsBackToConfiguredCamera(t *testing.T) {
	c := &calls{}
	cfg := c.config()
	cfg.CameraURL = "http://cam.local:4747/video"
	a := NewApp(cfg)
	update(t, a, key("enter"))
	if len(c.streams) != 1 || c.streams[0] != cfg.CameraURL {
		t.Errorf("unexpected stream requests %v", c.streams)
	}
}

func TestStreamNotifications(t *testing.T) {
	a := NewApp(Config{})
	a, _ = update(t, a, stream.StateChanged{SessionID: "s1", URL: "http://cam/", State: stream.Starting})
	a, _ = update(t, a, stream.FrameCommitted{SessionID: "s1", Frame: frame.Displayed{Identity: "abc", ArrivalOrder: 1}})
	a, _ = update(t, a, stream.StateChanged{SessionID: "s1", URL: "http://cam/", State: stream.Live})
	a, _ = update(t, a, stream.FrameCommitted{SessionID: "other", Frame: frame.Displayed{Identity: "zzz"}})

	st, frames := a.StreamState()
	if st != stream.Live || frames != 1 {
		t.Errorf("expected live with 1 frame, got %v %d", st, frames)
	}

	a, _ = update(t, a, stream.StateChanged{SessionID: "s1", URL: "http://cam/", State: stream.Failed, Err: errors.New("camera gone")})
	if a.frame != nil {
		t.Error("frame kept after failure")
	}
	if a.Err() == nil {
		t.Error("expected stream error")
	}
}

func TestCaptureUsesLiveStream(t *testing.T) {
	c := &calls{}
	a := NewApp(c.config())
	a, _ = update(t, a, stream.StateChanged{SessionID: "s", URL: "http://cam:4747/", State: stream.Live})
	a, _ = update(t, a, key("c"))
	if len(c.capture) != 1 || c.capture[0] != "http://cam:4747/" {
		t.Errorf("unexpected captures %v", c.capture)
	}

	a, _ = update(t, a, CaptureDone{Msg: "Captured 640x480 jpeg image"})
	if a.Notice() != "Captured 640x480 jpeg image" {
		t.Errorf("unexpected notice %q", a.Notice())
	}

	a, _ = update(t, a, key("w"))
	if c.saves != 1 {
		t.Error("expected save")
	}
	a, _ = update(t, a, SaveDone{Err: errors.New("no image captured")})
	if a.Err() == nil {
		t.Error("expected save error")
	}

	update(t, a, key("p"))
	if c.stops != 1 {
		t.Error("expected stop")
	}
}

func TestQuit(t *testing.T) {
	a := NewApp(Config{})
	_, cmd := update(t, a, key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestViewRendersPanels(t *testing.T) {
	a := NewApp(Config{})
	if a.View() != "Loading..." {
		t.Error("expected loading before first resize")
	}
	a, _ = update(t, a, tea.WindowSizeMsg{Width: 100, Height: 30})
	a, _ = update(t, a, scan.ServiceDiscovered{JobID: "j", Service: scan.Service{Address: "10.0.0.9", Port: 4747, Hint: "IP Camera"}})
	a, _ = update(t, a, stream.StateChanged{SessionID: "s", URL: "http://10.0.0.9:4747", State: stream.Live})

	v := a.View()
	for _, want := range []string{"smartscanner", "live", "10.0.0.9:4747", "IP Camera", ":scan"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
