package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedCmd_AddedToRoot(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// When: looking for the feed subcommands
	for _, path := range [][]string{
		{"feed", "load"},
		{"feed", "stock"},
		{"feed", "status"},
		{"feed", "refresh"},
	} {
		found, _, err := rootCmd.Find(path)

		// Then: each subcommand resolves
		require.NoError(t, err)
		assert.Equal(t, path[1], found.Name())
	}
}

func TestFeedLoadCmd_RequiresProject(t *testing.T) {
	// Given: a feed load command without --project
	cmd := newFeedLoadCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"https://shop.example/feed.xml"})

	// When: executing
	err := cmd.Execute()

	// Then: cobra rejects the missing flag before any work happens
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project")
}

func TestFeedRefreshCmd_RequiresProjectOrAll(t *testing.T) {
	// Given: a feed refresh command with neither --project nor --all
	cmd := newFeedRefreshCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	// When: executing
	err := cmd.Execute()

	// Then: the flag check fails before anything connects
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--project or --all")
}

func TestFeedStatusCmd_RejectsUnknownFormat(t *testing.T) {
	// Given: a feed status command with a bogus format
	cmd := newFeedStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", "demo", "--format", "xml"})

	// When: executing
	err := cmd.Execute()

	// Then: the format check fails before anything connects
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestFeedLoadCmd_RejectsExtraArgs(t *testing.T) {
	// Given: a feed load command with two URL arguments
	cmd := newFeedLoadCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", "demo", "https://a.example/feed.xml", "https://b.example/feed.xml"})

	// When: executing
	err := cmd.Execute()

	// Then: the arg count check rejects it
	require.Error(t, err)
}
