package report

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/shyim/vitals-dashboard/internal/models"
)

var (
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorOrange  = lipgloss.Color("#FFB86C")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorGray    = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	headerStyle = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	orangeStyle = lipgloss.NewStyle().Foreground(colorOrange)
	dimStyle    = lipgloss.NewStyle().Foreground(colorGray)
)

func statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusPoor:
		return critStyle
	case models.StatusNeedsImprovement:
		return warnStyle
	default:
		return okStyle
	}
}

// Lighthouse bands: 90+ good, 50-89 average.
func scoreStyle(score int) lipgloss.Style {
	switch {
	case score >= 90:
		return okStyle
	case score >= 50:
		return warnStyle
	default:
		return critStyle
	}
}

func levelStyle(l models.Level) lipgloss.Style {
	switch l {
	case models.LevelHigh:
		return critStyle
	case models.LevelMedium:
		return orangeStyle
	default:
		return dimStyle
	}
}
