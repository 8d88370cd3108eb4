package main

import (
	"context"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sabry-awad97/smart-scanner/internal/logging"
	"github.com/sabry-awad97/smart-scanner/internal/ui"
)

func runTUI() {
	s := openSession()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.app
	cfg := ui.Config{
		StartScan: func() tea.Cmd {
			return func() tea.Msg {
				job, err := a.StartScan(ctx)
				return ui.ScanRequested{Job: job, Err: err}
			}
		},
		CancelScan: func() tea.Cmd {
			return func() tea.Msg {
				return ui.ScanCancelRequested{Err: a.CancelScan(ctx)}
			}
		},
		StartStream: func(url string) tea.Cmd {
			return func() tea.Msg {
				return ui.StreamRequested{URL: url, Err: a.StartStream(ctx, url)}
			}
		},
		StopStream: func() tea.Cmd {
			return func() tea.Msg {
				return ui.StreamStopRequested{Err: a.StopStream(ctx)}
			}
		},
		Capture: func(url string) tea.Cmd {
			return func() tea.Msg {
				msg, err := a.Capture(ctx, url)
				return ui.CaptureDone{Msg: msg, Err: err}
			}
		},
		Save: func() tea.Cmd {
			return func() tea.Msg {
				msg, err := a.Save()
				return ui.SaveDone{Msg: msg, Err: err}
			}
		},
		CameraURL: s.cfg.Stream.CameraURL,
	}

	program := tea.NewProgram(ui.NewApp(cfg), tea.WithAltScreen())
	a.SetSender(program)

	// Run UI (blocks until quit)
	if _, err := program.Run(); err != nil {
		log.Printf("Error running program: %v", err)
	}
	logging.Info("tui exited", "events", s.ring.Len())
}
