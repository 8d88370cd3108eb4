package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sabry-awad97/smart-scanner/internal/frame"
	"github.com/sabry-awad97/smart-scanner/internal/scan"
	"github.com/sabry-awad97/smart-scanner/internal/stream"
)

// Config holds the command functions the App issues. Nil functions disable
// the matching key.
type Config struct {
	StartScan   func() tea.Cmd
	CancelScan  func() tea.Cmd
	StartStream func(url string) tea.Cmd
	StopStream  func() tea.Cmd
	Capture     func(url string) tea.Cmd
	Save        func() tea.Cmd

	// CameraURL is streamed on enter when no camera has been discovered.
	CameraURL string
}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold the scanner. It learns about it via messages.
type App struct {
	cfg Config

	jobID    string
	jobState scan.State
	scanned  int
	total    int
	finished map[string]bool
	services []scan.Service
	cursor   int

	streamID    string
	streamURL   string
	streamState stream.State
	frame       *frame.Displayed
	frames      int

	notice string
	err    error
	width  int
	height int
	ready  bool

	prog progress.Model
	spin spinner.Model
}

// NewApp creates an App issuing the commands in cfg.
func NewApp(cfg Config) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return App{
		cfg:      cfg,
		finished: make(map[string]bool),
		prog:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		spin:     s,
	}
}

// Init does nothing; the user starts the first scan.
func (a App) Init() tea.Cmd {
	return nil
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.prog.Width = max(10, msg.Width-20)
		return a, nil

	case spinner.TickMsg:
		if a.jobState != scan.StateRunning {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	// Scan notifications
	case scan.Started:
		a.adoptJob(msg.JobID)
		if msg.JobID == a.jobID && a.jobState == scan.StateRunning {
			a.total = msg.Total
			return a, a.spin.Tick
		}
		return a, nil

	case scan.Progress:
		a.adoptJob(msg.JobID)
		if msg.JobID == a.jobID {
			a.scanned = msg.Scanned
			a.total = msg.Total
		}
		return a, nil

	case scan.ServiceDiscovered:
		a.adoptJob(msg.JobID)
		if msg.JobID == a.jobID {
			a.services = append(a.services, msg.Service)
		}
		return a, nil

	case scan.Completed:
		if a.endJob(msg.JobID, scan.StateCompleted) {
			a.scanned = a.total
			a.notice = fmt.Sprintf("Scan complete: %d services, %d cameras", len(a.services), len(scan.CameraURLs(a.services)))
			a.selectFirstCamera()
		}
		return a, nil

	case scan.Cancelled:
		if a.endJob(msg.JobID, scan.StateCancelled) {
			a.notice = "Scan cancelled"
		}
		return a, nil

	case scan.Failed:
		if a.endJob(msg.JobID, scan.StateFailed) {
			a.err = msg.Err
		}
		return a, nil

	// Stream notifications
	case stream.StateChanged:
		a.streamID = msg.SessionID
		a.streamURL = msg.URL
		a.streamState = msg.State
		switch msg.State {
		case stream.Starting:
			a.frames = 0
		case stream.Idle, stream.Failed:
			a.frame = nil
		}
		if msg.State == stream.Failed && msg.Err != nil {
			a.err = msg.Err
		}
		return a, nil

	case stream.FrameCommitted:
		if msg.SessionID != a.streamID {
			return a, nil
		}
		f := msg.Frame
		a.frame = &f
		a.frames++
		return a, nil

	// Command results
	case ScanRequested:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.adoptJob(msg.Job.ID)
		if msg.Job.ID == a.jobID && !a.finished[msg.Job.ID] {
			a.jobState = msg.Job.State
			a.total = msg.Job.Total
			if a.jobState == scan.StateRunning {
				return a, a.spin.Tick
			}
		}
		return a, nil

	case ScanCancelRequested:
		a.err = msg.Err
		return a, nil

	case StreamRequested:
		if msg.Err != nil {
			a.err = msg.Err
		}
		return a, nil

	case StreamStopRequested:
		a.err = msg.Err
		return a, nil

	case CaptureDone:
		a.setResult(msg.Msg, msg.Err)
		return a, nil

	case SaveDone:
		a.setResult(msg.Msg, msg.Err)
		return a, nil
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear any existing error on key press
	a.err = nil

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.cursor < len(a.services)-1 {
			a.cursor++
		}
		return a, nil

	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil

	case "s":
		if a.cfg.StartScan == nil {
			return a, nil
		}
		a.notice = "Scanning..."
		return a, a.cfg.StartScan()

	case "x":
		if a.cfg.CancelScan == nil || a.jobState != scan.StateRunning {
			return a, nil
		}
		return a, a.cfg.CancelScan()

	case "enter":
		url := a.selectedCamera()
		if url == "" {
			url = a.cfg.CameraURL
		}
		if url == "" || a.cfg.StartStream == nil {
			return a, nil
		}
		a.notice = "Connecting to " + url
		return a, a.cfg.StartStream(url)

	case "p":
		if a.cfg.StopStream == nil {
			return a, nil
		}
		a.notice = ""
		return a, a.cfg.StopStream()

	case "c":
		url := a.captureURL()
		if url == "" || a.cfg.Capture == nil {
			return a, nil
		}
		return a, a.cfg.Capture(url)

	case "w":
		if a.cfg.Save == nil {
			return a, nil
		}
		return a, a.cfg.Save()
	}

	return a, nil
}

// adoptJob makes id the displayed job unless it already finished.
func (a *App) adoptJob(id string) {
	if id == a.jobID || a.finished[id] {
		return
	}
	a.jobID = id
	a.jobState = scan.StateRunning
	a.scanned = 0
	a.total = 0
	a.services = nil
	a.cursor = 0
}

// endJob records a terminal event and reports whether it was the displayed job.
// A terminal for some other job never displaces one that is still running.
func (a *App) endJob(id string, st scan.State) bool {
	if a.jobID == "" || a.jobState != scan.StateRunning {
		a.adoptJob(id)
	}
	a.finished[id] = true
	if id != a.jobID {
		return false
	}
	a.jobState = st
	return true
}

func (a *App) selectFirstCamera() {
	if a.streamState != stream.Idle {
		return
	}
	for i, s := range a.services {
		if scan.IsCameraPort(s.Port) {
			a.cursor = i
			return
		}
	}
}

func (a *App) setResult(notice string, err error) {
	if err != nil {
		a.err = err
		return
	}
	a.notice = notice
}

func (a App) selectedCamera() string {
	if a.cursor >= len(a.services) {
		return ""
	}
	urls := scan.CameraURLs(a.services[a.cursor : a.cursor+1])
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// captureURL prefers the live stream, then the selected camera.
func (a App) captureURL() string {
	if a.streamState == stream.Live && a.streamURL != "" {
		return a.streamURL
	}
	if url := a.selectedCamera(); url != "" {
		return url
	}
	return a.cfg.CameraURL
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(Title.Render("smartscanner"))
	b.WriteString("\n")
	b.WriteString(Panel.Width(a.width - 2).Render(a.renderStream()))
	b.WriteString("\n")
	b.WriteString(Panel.Width(a.width - 2).Render(a.renderScan()))
	b.WriteString("\n")

	switch {
	case a.err != nil:
		b.WriteString(ErrorStyle.Width(a.width).Render("Error: " + a.err.Error()))
	case a.notice != "":
		b.WriteString(NoticeStyle.Width(a.width).Render(a.notice))
	}
	b.WriteString("\n")
	b.WriteString(a.renderStatusBar())
	return b.String()
}

func (a App) renderStream() string {
	lines := []string{
		Label.Render("stream ") + StateText(a.streamState.String()),
	}
	if a.streamURL != "" {
		lines = append(lines, Label.Render("url    ")+a.streamURL)
	}
	if a.frame != nil {
		lines = append(lines, fmt.Sprintf("%s#%d  %s  %dms  %d frames",
			Label.Render("frame  "),
			a.frame.ArrivalOrder,
			shortID(a.frame.Identity),
			a.frame.LatencyMs,
			a.frames,
		))
	}
	return strings.Join(lines, "\n")
}

func (a App) renderScan() string {
	if a.jobID == "" {
		return Label.Render("scan   ") + HintText.Render("press s to scan the local network")
	}

	head := Label.Render("scan   ") + StateText(a.jobState.String())
	if a.jobState == scan.StateRunning {
		head += " " + a.spin.View()
	}
	lines := []string{head}

	pct := 0.0
	if a.total > 0 {
		pct = float64(a.scanned) / float64(a.total)
	}
	lines = append(lines, a.prog.ViewAs(pct)+fmt.Sprintf(" %d/%d", a.scanned, a.total))

	if len(a.services) == 0 {
		return strings.Join(lines, "\n")
	}
	lines = append(lines, "")
	for i, s := range a.services {
		badge := "  "
		if scan.IsCameraPort(s.Port) {
			badge = CameraBadge.Render("◉ ")
		}
		row := fmt.Sprintf("%s%-21s %s", badge, fmt.Sprintf("%s:%d", s.Address, s.Port), HintText.Render(s.Hint))
		if i == a.cursor {
			lines = append(lines, SelectedItem.Render(row))
		} else {
			lines = append(lines, NormalItem.Render(row))
		}
	}
	return strings.Join(lines, "\n")
}

// renderStatusBar renders key hints across the bottom line.
func (a App) renderStatusBar() string {
	keys := []string{
		StatusBarKey.Render("s") + StatusBarText.Render(":scan"),
		StatusBarKey.Render("x") + StatusBarText.Render(":cancel"),
		StatusBarKey.Render("j/k") + StatusBarText.Render(":nav"),
		StatusBarKey.Render("Enter") + StatusBarText.Render(":stream"),
		StatusBarKey.Render("p") + StatusBarText.Render(":stop"),
		StatusBarKey.Render("c") + StatusBarText.Render(":capture"),
		StatusBarKey.Render("w") + StatusBarText.Render(":save"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	hints := strings.Join(keys, " ")

	left := fmt.Sprintf(" %d services ", len(a.services))
	padding := a.width - lipgloss.Width(left) - lipgloss.Width(hints)
	if padding < 0 {
		padding = 0
	}
	return StatusBar.Width(a.width).Render(left + strings.Repeat(" ", padding) + hints)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Services returns the discovered services of the displayed job (for testing).
func (a App) Services() []scan.Service {
	return a.services
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// ScanState returns the displayed job's state and progress (for testing).
func (a App) ScanState() (scan.State, int, int) {
	return a.jobState, a.scanned, a.total
}

// StreamState returns the stream state and frame count (for testing).
func (a App) StreamState() (stream.State, int) {
	return a.streamState, a.frames
}

// Notice returns the last success message (for testing).
func (a App) Notice() string {
	return a.notice
}

// Err returns the displayed error (for testing).
func (a App) Err() error {
	return a.err
}
