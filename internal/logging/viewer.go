package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	// maxLogLine bounds a single scanned line. JSON records with big
	// attribute payloads stay well under this.
	maxLogLine = 1 << 20

	// followInterval is how often Follow polls for appended lines.
	followInterval = 100 * time.Millisecond
)

// LogEntry is one parsed line of the JSON server log.
type LogEntry struct {
	Time    time.Time              `json:"time"`
	Level   string                 `json:"level"`
	Msg     string                 `json:"msg"`
	Attrs   map[string]interface{} `json:"-"`
	Raw     string                 `json:"-"`
	IsValid bool                   `json:"-"`
}

// ViewerConfig holds the filters for `vitrina logs`.
type ViewerConfig struct {
	// Level drops entries below this level. Empty keeps everything.
	Level string
	// Pattern drops entries whose raw line does not match.
	Pattern *regexp.Regexp
	// NoColor turns off the ANSI level colors.
	NoColor bool
}

// Viewer reads, filters and renders server log entries.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
}

// NewViewer creates a viewer writing rendered entries to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{config: cfg, out: out}
}

// Tail returns the matching entries among the last n lines of the log.
// The filters apply after the tail is taken, so a filtered tail can
// come back shorter than n.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Keep only the trailing n raw lines while scanning.
	ring := make([]string, 0, n)
	next := 0
	wrapped := false

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, maxLogLine), maxLogLine)
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[next] = scanner.Text()
		next = (next + 1) % n
		wrapped = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	var entries []LogEntry
	for i := range ring {
		idx := i
		if wrapped {
			idx = (next + i) % n
		}
		entry := v.parseLine(ring[idx])
		if v.matchesFilter(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Follow streams entries appended to the log file onto the channel
// until the context ends. Only lines written after the call are seen.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	var partial strings.Builder

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			chunk, err := reader.ReadString('\n')
			if err != nil {
				// Hold an unterminated tail until the writer finishes
				// the line.
				partial.WriteString(chunk)
				break
			}

			line := partial.String() + strings.TrimSuffix(chunk, "\n")
			partial.Reset()
			if line == "" {
				continue
			}

			entry := v.parseLine(line)
			if !v.matchesFilter(entry) {
				continue
			}
			select {
			case entries <- entry:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// FormatEntry renders one entry as a time/level/message line with the
// remaining attributes appended as key=value pairs. Lines that never
// parsed come back untouched.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.formatLevel(entry.Level))
	b.WriteByte(' ')
	b.WriteString(entry.Msg)
	for k, val := range entry.Attrs {
		fmt.Fprintf(&b, " %s=%v", k, val)
	}
	return b.String()
}

// Print renders entries to the viewer's output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

func (v *Viewer) parseLine(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}
	entry.IsValid = true

	if s, ok := fields["time"].(string); ok {
		entry.Time, _ = time.Parse(time.RFC3339Nano, s)
	}
	entry.Level, _ = fields["level"].(string)
	entry.Msg, _ = fields["msg"].(string)

	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "msg")
	entry.Attrs = fields

	return entry
}

func (v *Viewer) matchesFilter(entry LogEntry) bool {
	if v.config.Level != "" && LevelFromString(entry.Level) < LevelFromString(v.config.Level) {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

var levelColors = map[string]string{
	"debug":   "\033[90m",
	"info":    "\033[32m",
	"warn":    "\033[33m",
	"warning": "\033[33m",
	"error":   "\033[31m",
}

// formatLevel pads or truncates the level to five columns and wraps it
// in its ANSI color unless colors are off.
func (v *Viewer) formatLevel(level string) string {
	name := strings.ToUpper(level)
	if len(name) > 5 {
		name = name[:5]
	}
	name = fmt.Sprintf("%-5s", name)

	if v.config.NoColor {
		return name
	}
	color, ok := levelColors[strings.ToLower(level)]
	if !ok {
		return name
	}
	return color + name + "\033[0m"
}
