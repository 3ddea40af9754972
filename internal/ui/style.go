package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Painter styles labels only when writing to a terminal.
type Painter struct {
	color bool
}

// NewPainter returns a Painter for w.
func NewPainter(w io.Writer) Painter {
	return Painter{color: IsTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

func (p Painter) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Warn renders a warning label.
func (p Painter) Warn(text string) string { return p.render(warnStyle, text) }

// Error renders an error label.
func (p Painter) Error(text string) string { return p.render(errStyle, text) }

// OK renders a success label.
func (p Painter) OK(text string) string { return p.render(okStyle, text) }

// Header renders a table header.
func (p Painter) Header(text string) string { return p.render(headerStyle, text) }
