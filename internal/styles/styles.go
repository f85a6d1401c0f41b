// Package styles holds the lipgloss palette used by agentline's reports.
// A Theme is bound to one output writer so color is dropped automatically
// when that writer is not a terminal.
package styles

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on dark backgrounds
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA")
)

// Status names shared by the reports.
const (
	StatusPassed   = "passed"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusTimeout  = "timeout"
	StatusMerged   = "merged"
	StatusConflict = "conflict"
	StatusPending  = "pending"
)

// Theme is a set of styles rendered for one writer.
type Theme struct {
	renderer    *lipgloss.Renderer
	interactive bool

	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Header   lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Muted    lipgloss.Style
	Code     lipgloss.Style
	Box      lipgloss.Style
	Cell     lipgloss.Style
	Border   lipgloss.Style
}

// New builds a Theme for w.
func New(w io.Writer) *Theme {
	r := lipgloss.NewRenderer(w)
	t := &Theme{
		renderer:    r,
		interactive: IsTerminal(w),
	}

	t.Title = r.NewStyle().Bold(true).Foreground(PrimaryColor)
	t.Subtitle = r.NewStyle().Foreground(MutedColor).Italic(true)
	t.Header = r.NewStyle().Bold(true).Foreground(PrimaryColor).Padding(0, 1)
	t.Success = r.NewStyle().Foreground(SecondaryColor).Bold(true)
	t.Error = r.NewStyle().Foreground(ErrorColor).Bold(true)
	t.Warning = r.NewStyle().Foreground(WarningColor).Bold(true)
	t.Muted = r.NewStyle().Foreground(MutedColor)
	t.Code = r.NewStyle().Foreground(BlueColor)
	t.Box = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 1)
	t.Cell = r.NewStyle().Padding(0, 1)
	t.Border = r.NewStyle().Foreground(BorderColor)
	return t
}

// Interactive reports whether the Theme's writer is a terminal.
func (t *Theme) Interactive() bool {
	return t.interactive
}

// Renderer returns the lipgloss renderer bound to the writer.
func (t *Theme) Renderer() *lipgloss.Renderer {
	return t.renderer
}

// Status renders the icon and name of status in its color.
func (t *Theme) Status(status string) string {
	return t.renderer.NewStyle().Foreground(StatusColor(status)).Render(StatusIcon(status) + " " + status)
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or fallback when unknown.
func Width(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}

// StatusColor returns the color for a given status
func StatusColor(status string) lipgloss.Color {
	switch status {
	case StatusPassed, StatusMerged:
		return SecondaryColor
	case StatusFailed, StatusConflict, StatusTimeout:
		return ErrorColor
	case StatusSkipped:
		return WarningColor
	case StatusPending:
		return BlueColor
	default:
		return MutedColor
	}
}

// StatusIcon returns an icon for a given status
func StatusIcon(status string) string {
	switch status {
	case StatusPassed, StatusMerged:
		return "✓"
	case StatusFailed:
		return "✗"
	case StatusConflict:
		return "⚡"
	case StatusTimeout:
		return "⏰"
	case StatusSkipped:
		return "○"
	case StatusPending:
		return "…"
	default:
		return "●"
	}
}
