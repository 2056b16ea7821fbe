package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir is where server logs land unless configured otherwise,
// ~/.vitrina/logs. Without a resolvable home it degrades to the temp
// directory so logging never blocks startup.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".vitrina", "logs")
}

// DefaultLogPath is the server.log inside DefaultLogDir.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// FindLogFile resolves the log file the `logs` command should read. An
// explicit path wins; otherwise the default location is tried.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if !exists(explicit) {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	path := DefaultLogPath()
	if !exists(path) {
		return "", fmt.Errorf("no log file found. The server may not have run yet.\nExpected at: %s", path)
	}
	return path, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
