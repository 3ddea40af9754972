package ui

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Progress tracks completion of parallel package resolutions with a simple
// counter display.
type Progress struct {
	out       io.Writer
	paint     Painter
	total     int
	completed atomic.Int32
	mu        sync.Mutex
}

// NewProgress creates a progress tracker for n packages.
func NewProgress(out io.Writer, total int) *Progress {
	return &Progress{out: out, paint: NewPainter(out), total: total}
}

// Done marks one package as resolved and prints the current progress.
func (p *Progress) Done(label string, components int) {
	n := int(p.completed.Add(1))
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "[%d/%d] %s: %s\n", n, p.total, label, p.paint.OK(fmt.Sprintf("%d components", components)))
}

// Fail marks one package as failed.
func (p *Progress) Fail(label string, err error) {
	n := int(p.completed.Add(1))
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "[%d/%d] %s: %s %v\n", n, p.total, label, p.paint.Error("failed:"), err)
}

// Warn prints a warning within the progress context.
func (p *Progress) Warn(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "%s "+format+"\n", append([]any{p.paint.Warn("warning:")}, args...)...)
}

// Log prints an informational message within the progress context.
func (p *Progress) Log(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}
