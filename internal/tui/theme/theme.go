// Package theme holds the colors and styles shared by the dashboard and the
// printed tables.
package theme

import (
	"image/color"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/table"
	"charm.land/lipgloss/v2"
)

// Colors
var (
	Primary   = lipgloss.Color("#33A8FF")
	Secondary = lipgloss.Color("#163047")
	Muted     = lipgloss.Color("#6B7280")
	Success   = lipgloss.Color("#10B981")
	Warning   = lipgloss.Color("#F59E0B")
	Error     = lipgloss.Color("#EF4444")
)

// Shared styles
var (
	HeaderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(Muted).
			Padding(0, 1)

	DashboardStyle = lipgloss.NewStyle().
			Padding(1, 2)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Padding(1, 0, 0, 0)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)
)

// StatusColor maps host and change states to theme colors.
func StatusColor(status string) color.Color {
	switch strings.ToLower(status) {
	case "active", "add", "ok":
		return Success
	case "held":
		return Primary
	case "locked", "remove", "failed", "error":
		return Error
	case "stale", "pending", "dry-run":
		return Warning
	default:
		return Muted
	}
}

// RenderStatus prefixes status with a bullet in its StatusColor.
func RenderStatus(status string) string {
	c := StatusColor(status)
	bullet := lipgloss.NewStyle().Foreground(c).Render("●")
	return bullet + " " + status
}

// DefaultTableStyles is the dashboard host table: bold underlined header,
// selected row on the secondary color.
func DefaultTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Muted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#F9FAFB")).
		Background(Secondary).
		Bold(false)
	return s
}

// NewSpinner is the loading indicator shown while hosts are fetched.
func NewSpinner() spinner.Model {
	return spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(Primary)),
	)
}
