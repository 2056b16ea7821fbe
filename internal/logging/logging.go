package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where log output goes and how much of it there is.
type Config struct {
	// Level is the minimum level to record (debug, info, warn, error).
	Level string
	// FilePath names the log file. Empty disables file logging.
	FilePath string
	// MaxSizeMB caps the file size before it is rotated.
	MaxSizeMB int
	// MaxFiles caps how many rotated files are kept.
	MaxFiles int
	// WriteToStderr mirrors every record to stderr.
	WriteToStderr bool
}

// DefaultConfig logs at info level to ~/.vitrina/logs/server.log,
// mirrored to stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig lowered to debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a JSON logger per cfg and returns it with a cleanup
// function. Cleanup flushes and closes the log file; skipping it can
// lose the tail of the log on exit.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: LevelFromString(cfg.Level)}

	if cfg.FilePath == "" {
		var out io.Writer = io.Discard
		if cfg.WriteToStderr {
			out = os.Stderr
		}
		return slog.New(slog.NewJSONHandler(out, opts)), func() {}, nil
	}

	file, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = file
	if cfg.WriteToStderr {
		out = io.MultiWriter(file, os.Stderr)
	}

	cleanup := func() {
		_ = file.Sync()
		_ = file.Close()
	}
	return slog.New(slog.NewJSONHandler(out, opts)), cleanup, nil
}

// LevelFromString maps a level name to its slog.Level. It accepts
// "warning" as an alias for warn since `vitrina logs --level` takes
// free-form input. Unknown names and the empty string mean info.
func LevelFromString(level string) slog.Level {
	name := strings.TrimSpace(level)
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}
