package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRoot executes the root command with args and returns its output.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { configPath = "" })

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigInit_WritesTemplate(t *testing.T) {
	// Given: a config path in an empty directory
	path := filepath.Join(t.TempDir(), "vitrina.yaml")

	// When: running config init
	output, err := runRoot(t, "config", "init", "--config", path)

	// Then: the template lands on disk
	require.NoError(t, err)
	assert.Contains(t, output, "Created configuration file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vitrina service configuration")
	assert.Contains(t, string(data), "scheduler:")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), "vitrina.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env: production\n"), 0o644))

	// When: running config init without --force
	output, err := runRoot(t, "config", "init", "--config", path)

	// Then: the file is kept as is
	require.NoError(t, err)
	assert.Contains(t, output, "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "env: production\n", string(data))
}

func TestConfigInit_ForceOverwrites(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), "vitrina.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env: production\n"), 0o644))

	// When: running config init --force
	_, err := runRoot(t, "config", "init", "--config", path, "--force")

	// Then: the template replaces the old file
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vitrina service configuration")
}

func TestConfigShow_MergesFile(t *testing.T) {
	// Given: a config file overriding the server port
	path := filepath.Join(t.TempDir(), "vitrina.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644))

	// When: running config show
	output, err := runRoot(t, "config", "show", "--config", path)

	// Then: the merged config carries the override and the defaults
	require.NoError(t, err)
	assert.Contains(t, output, "9999")
	assert.Contains(t, output, "scheduler")
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	// Given: a config file with passwords
	path := filepath.Join(t.TempDir(), "vitrina.yaml")
	cfg := "kv:\n  password: kv-secret-value\ndb:\n  password: db-secret-value\nauth:\n  jwt_secret: jwt-secret-value\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	// When: running config show in both formats
	textOut, err := runRoot(t, "config", "show", "--config", path)
	require.NoError(t, err)
	jsonOut, err := runRoot(t, "config", "show", "--config", path, "--json")
	require.NoError(t, err)

	// Then: no secret appears in either output
	for _, secret := range []string{"kv-secret-value", "db-secret-value", "jwt-secret-value"} {
		assert.NotContains(t, textOut, secret)
		assert.NotContains(t, jsonOut, secret)
	}
}

func TestConfigPath_ReportsMissingFile(t *testing.T) {
	// Given: a config path that does not exist
	path := filepath.Join(t.TempDir(), "vitrina.yaml")

	// When: running config path
	output, err := runRoot(t, "config", "path", "--config", path)

	// Then: the path is shown with a hint that defaults apply
	require.NoError(t, err)
	assert.Contains(t, output, path)
	assert.Contains(t, output, "not present")
}
