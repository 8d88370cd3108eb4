package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarn      = lipgloss.Color("214") // Orange
	colorError     = lipgloss.Color("196") // Red
)

// Title style for panel headings.
var Title = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// Panel style wraps the stream and scan panels.
var Panel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorMuted).
	Padding(0, 1)

// SelectedItem style for the highlighted service.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for other services.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// CameraBadge marks services on camera ports.
var CameraBadge = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// HintText style for service hints.
var HintText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// Label style for "key: value" labels.
var Label = lipgloss.NewStyle().
	Foreground(colorMuted)

// stateStyles color the stream and scan state names.
var stateStyles = map[string]lipgloss.Style{
	"live":      lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
	"starting":  lipgloss.NewStyle().Foreground(colorWarn),
	"stopping":  lipgloss.NewStyle().Foreground(colorWarn),
	"failed":    lipgloss.NewStyle().Foreground(colorError).Bold(true),
	"running":   lipgloss.NewStyle().Foreground(colorWarn),
	"completed": lipgloss.NewStyle().Foreground(colorSuccess),
	"cancelled": lipgloss.NewStyle().Foreground(colorSecondary),
}

// StateText renders a state name in its color.
func StateText(s string) string {
	if st, ok := stateStyles[s]; ok {
		return st.Render(s)
	}
	return HintText.Render(s)
}

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// NoticeStyle for success messages.
var NoticeStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Padding(0, 1)
