package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogsCmd_MissingFile(t *testing.T) {
	// Given: a logs command pointed at a nonexistent file
	cmd := newLogsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--file", filepath.Join(t.TempDir(), "missing.log")})

	// When: executing
	err := cmd.Execute()

	// Then: the lookup fails with a clear error
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file not found")
}

func TestLogsCmd_TailsEntries(t *testing.T) {
	// Given: a log file with structured entries
	path := filepath.Join(t.TempDir(), "server.log")
	lines := `{"time":"2026-03-10T10:00:00Z","level":"INFO","msg":"feed load started","project_id":"demo"}
{"time":"2026-03-10T10:00:05Z","level":"WARN","msg":"retrying download","attempt":2}
{"time":"2026-03-10T10:00:09Z","level":"INFO","msg":"feed load finished","products":120}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	cmd := newLogsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", path, "--no-color"})

	// When: executing in tail mode
	err := cmd.Execute()

	// Then: the entries come out formatted
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "feed load started")
	assert.Contains(t, output, "WARN")
	assert.Contains(t, output, "products=120")
}

func TestLogsCmd_LevelFilter(t *testing.T) {
	// Given: a log file with mixed levels
	path := filepath.Join(t.TempDir(), "server.log")
	lines := `{"time":"2026-03-10T10:00:00Z","level":"INFO","msg":"routine line"}
{"time":"2026-03-10T10:00:05Z","level":"ERROR","msg":"feed exceeds size limit"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	cmd := newLogsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", path, "--level", "error", "--no-color"})

	// When: executing with a level filter
	err := cmd.Execute()

	// Then: only the error entry is printed
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "feed exceeds size limit")
	assert.NotContains(t, output, "routine line")
}

func TestLogsCmd_AddedToRoot(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// When: looking for the logs subcommand
	logsCmd, _, err := rootCmd.Find([]string{"logs"})

	// Then: it exists with the follow flag
	require.NoError(t, err)
	assert.Equal(t, "logs", logsCmd.Name())
	assert.NotNil(t, logsCmd.Flags().Lookup("follow"))
}
