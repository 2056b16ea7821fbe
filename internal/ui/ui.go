// Package ui renders feed ingestion progress and status in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/vitrina-search/vitrina/internal/catalog"
)

// Stage is the coarse phase of a feed load as recorded on the
// project's feed-status hash.
type Stage int

const (
	// StageWaiting is the idle state before the first status write.
	StageWaiting Stage = iota
	// StageDownloading covers the feed fetch.
	StageDownloading
	// StageIndexing covers parsing and index replacement.
	StageIndexing
	// StageDone is a finished load.
	StageDone
	// StageFailed is a load that ended in error.
	StageFailed
)

// StageFromStatus maps a feed-status value to its display stage.
func StageFromStatus(status string) Stage {
	switch status {
	case catalog.StatusDownloading:
		return StageDownloading
	case catalog.StatusIndexing:
		return StageIndexing
	case catalog.StatusSuccess:
		return StageDone
	case catalog.StatusError:
		return StageFailed
	default:
		return StageWaiting
	}
}

// String is the stage name shown to users.
func (s Stage) String() string {
	switch s {
	case StageWaiting:
		return "Waiting"
	case StageDownloading:
		return "Downloading"
	case StageIndexing:
		return "Indexing"
	case StageDone:
		return "Done"
	case StageFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageWaiting:
		return "WAIT"
	case StageDownloading:
		return "LOAD"
	case StageIndexing:
		return "INDEX"
	case StageDone:
		return "DONE"
	case StageFailed:
		return "FAIL"
	default:
		return "???"
	}
}

// ProgressEvent is one observation of the feed-status hash.
type ProgressEvent struct {
	Stage    Stage
	Percent  int
	Message  string
	Products int
}

// LoadSummary describes a finished load.
type LoadSummary struct {
	ShopName   string
	Products   int
	Categories int
	Updated    int
	Duration   time.Duration
	Err        error
}

// Renderer displays feed load progress.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// Update reflects the latest feed status.
	Update(event ProgressEvent)

	// Complete finishes rendering with the load outcome.
	Complete(summary LoadSummary)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Project    string
}

// ConfigOption tweaks a Config before the renderer is chosen.
type ConfigOption func(*Config)

// WithForcePlain forces plain line output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor turns off ANSI colors in the watch view.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithProject sets the project shown in the panel header.
func WithProject(projectID string) ConfigOption {
	return func(c *Config) {
		c.Project = projectID
	}
}

// NewConfig creates a Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks the live watch view for interactive terminals and
// plain line output for CI environments, pipes, or when plain mode is
// forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	watch, err := NewWatchRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return watch
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether a CI environment variable is present.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
