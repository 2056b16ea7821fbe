package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints one line per status change (for CI/pipes).
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	lastLine string
}

// NewPlainRenderer builds the line-per-update renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// Update implements Renderer. The status poller repeats observations,
// so a line identical to the previous one is dropped.
func (r *PlainRenderer) Update(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("[%s] %d%%", event.Stage.Icon(), event.Percent)
	if event.Message != "" {
		line += " - " + event.Message
	}
	if line == r.lastLine {
		return
	}
	r.lastLine = line
	_, _ = fmt.Fprintln(r.out, line)
}

// Complete prints the final one-line summary.
func (r *PlainRenderer) Complete(summary LoadSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	took := summary.Duration.Round(10 * time.Millisecond)

	if summary.Err != nil {
		_, _ = fmt.Fprintf(r.out, "Failed: %v\n", summary.Err)
		return
	}

	if summary.Updated > 0 {
		_, _ = fmt.Fprintf(r.out, "Done: %d products updated in %s\n", summary.Updated, took)
		return
	}

	_, _ = fmt.Fprintf(r.out, "Done: %d products, %d categories in %s",
		summary.Products, summary.Categories, took)
	if summary.ShopName != "" {
		_, _ = fmt.Fprintf(r.out, " (%s)", summary.ShopName)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
