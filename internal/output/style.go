package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the text styles used for terminal output.
type Styles struct {
	Name    lipgloss.Style
	Index   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles builds styles for w. color is "auto", "always" or "never";
// "auto" colors only when w is a terminal.
func NewStyles(w io.Writer, color string) *Styles {
	r := lipgloss.NewRenderer(w)
	switch color {
	case "never":
		r.SetColorProfile(termenv.Ascii)
	case "always":
		if r.ColorProfile() == termenv.Ascii {
			r.SetColorProfile(termenv.ANSI256)
		}
	}

	return &Styles{
		Name:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Index:   r.NewStyle().Foreground(lipgloss.Color("244")),
		Label:   r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("244")),
		Success: r.NewStyle().Foreground(lipgloss.Color("42")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() *Styles {
	return NewStyles(io.Discard, "never")
}
