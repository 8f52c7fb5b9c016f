package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme colors
var (
	Primary   = lipgloss.Color("#7C3AED")
	Secondary = lipgloss.Color("#A78BFA")
	Success   = lipgloss.Color("#10B981")
	Warning   = lipgloss.Color("#F59E0B")
	Danger    = lipgloss.Color("#EF4444")
	Info      = lipgloss.Color("#3B82F6")
	Muted     = lipgloss.Color("#6B7280")
	TextDim   = lipgloss.Color("#9CA3AF")
)

// Report styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	LabelStyle = lipgloss.NewStyle().
			Foreground(TextDim)

	FilePathStyle = lipgloss.NewStyle().
			Foreground(Info)

	FileSizeStyle = lipgloss.NewStyle().
			Foreground(Warning)

	CountStyle = lipgloss.NewStyle().
			Foreground(Success)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Danger).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(Muted)
)

// Label renders a fixed-width dim label followed by a value
func Label(label, value string, width int) string {
	return LabelStyle.Width(width).Render(label) + value
}
