package tui

import (
	"charm.land/lipgloss/v2"

	"github.com/marksidell/dynips/internal/tui/theme"
)

var (
	titleStyle = theme.TitleStyle

	headerStyle = theme.HeaderStyle

	labelStyle = theme.MutedStyle

	valueStyle = lipgloss.NewStyle().
			Foreground(theme.Secondary)

	countStyle = lipgloss.NewStyle().
			Bold(true)

	helpStyle = theme.HelpStyle

	errorStyle = theme.ErrorStyle

	dashboardStyle = theme.DashboardStyle
)
