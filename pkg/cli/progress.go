package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ProgressReporter reports progress for operations over several items.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// SimpleProgress renders a single-line text progress bar.
type SimpleProgress struct {
	mu      sync.Mutex
	label   string
	total   int64
	current int64
	writer  io.Writer
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr so that it never mixes with
// formatted results on stdout.
func NewProgressReporter(w io.Writer, label string) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	if label == "" {
		label = "Progress"
	}
	return &SimpleProgress{
		writer: w,
		label:  label,
	}
}

// Start initializes the progress reporter with the total number of items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.render()
}

// Update updates the current progress. Values beyond the total are clamped.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current > p.total {
		current = p.total
	}
	p.current = current
	p.render()
}

// Finish marks the progress as complete.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render()
	if p.total > 0 {
		fmt.Fprintln(p.writer)
	}
}

// Error reports an error during progress.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	const barWidth = 30
	filled := int(int64(barWidth) * p.current / p.total)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\r%s: [%s] %d/%d", p.label, bar, p.current, p.total)
}
