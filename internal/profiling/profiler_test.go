package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_NothingRequested(t *testing.T) {
	s, err := Start(Options{})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSession_CPUProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu.prof")

	s, err := Start(Options{CPUPath: path})
	require.NoError(t, err)
	require.NotNil(t, s)

	// Burn a little CPU so the profile has samples to record.
	sum := 0
	for i := 0; i < 1000000; i++ {
		sum += i
	}
	_ = sum

	require.NoError(t, s.Stop())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_HeapSnapshotOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.prof")

	s, err := Start(Options{HeapPath: path})
	require.NoError(t, err)
	require.NotNil(t, s)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "heap snapshot is written at Stop, not Start")

	require.NoError(t, s.Stop())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_Trace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.out")

	s, err := Start(Options{TracePath: path})
	require.NoError(t, err)
	require.NotNil(t, s)

	done := make(chan struct{})
	go close(done)
	<-done

	require.NoError(t, s.Stop())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_AllProfilesTogether(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPUPath:   filepath.Join(dir, "cpu.prof"),
		HeapPath:  filepath.Join(dir, "heap.prof"),
		TracePath: filepath.Join(dir, "trace.out"),
	}

	s, err := Start(opts)
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	for _, p := range []string{opts.CPUPath, opts.HeapPath, opts.TracePath} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Greater(t, info.Size(), int64(0), p)
	}
}

func TestStart_BadCPUPathStartsNothing(t *testing.T) {
	s, err := Start(Options{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.prof")})
	require.Error(t, err)
	assert.Nil(t, s)

	// The failed Start must not leave a CPU profiler running, or this
	// second session could not start one.
	path := filepath.Join(t.TempDir(), "cpu.prof")
	s2, err := Start(Options{CPUPath: path})
	require.NoError(t, err)
	require.NoError(t, s2.Stop())
}

func TestStart_BadTracePathStopsCPUProfile(t *testing.T) {
	dir := t.TempDir()
	s, err := Start(Options{
		CPUPath:   filepath.Join(dir, "cpu.prof"),
		TracePath: filepath.Join(dir, "missing", "trace.out"),
	})
	require.Error(t, err)
	assert.Nil(t, s)

	s2, err := Start(Options{CPUPath: filepath.Join(dir, "cpu2.prof")})
	require.NoError(t, err)
	require.NoError(t, s2.Stop())
}
