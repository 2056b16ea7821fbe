// Package profiling captures pprof data for a single CLI invocation.
//
// The root command exposes --profile-cpu, --profile-mem and
// --profile-trace flags; a Session spans the run from PersistentPreRun
// to PersistentPostRun and flushes everything on Stop. Loading a large
// feed under --profile-cpu is the usual way to find parser and n-gram
// hot spots.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options name the profile output paths. Empty fields are skipped, so
// a zero Options produces no session at all.
type Options struct {
	// CPUPath receives a CPU profile covering the whole run.
	CPUPath string

	// HeapPath receives a heap snapshot taken at Stop, after a forced GC.
	HeapPath string

	// TracePath receives an execution trace covering the whole run.
	TracePath string
}

// enabled reports whether any profile was requested.
func (o Options) enabled() bool {
	return o.CPUPath != "" || o.HeapPath != "" || o.TracePath != ""
}

// Session is a set of running profiles. Stop must be called exactly
// once; it flushes open profiles and writes the heap snapshot.
type Session struct {
	heapPath  string
	cpuFile   *os.File
	traceFile *os.File
}

// Start begins the profiles requested in opts. On error any profile
// already started is stopped, so a failed Start never leaves a
// profiler running. A nil Session with nil error means nothing was
// requested.
func Start(opts Options) (*Session, error) {
	if !opts.enabled() {
		return nil, nil
	}

	s := &Session{heapPath: opts.HeapPath}

	if opts.CPUPath != "" {
		f, err := os.Create(opts.CPUPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create cpu profile %s: %w", opts.CPUPath, err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to start cpu profile: %w", err)
		}
		s.cpuFile = f
	}

	if opts.TracePath != "" {
		f, err := os.Create(opts.TracePath)
		if err != nil {
			s.stopRunning()
			return nil, fmt.Errorf("failed to create trace file %s: %w", opts.TracePath, err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopRunning()
			return nil, fmt.Errorf("failed to start trace: %w", err)
		}
		s.traceFile = f
	}

	return s, nil
}

// Stop flushes the CPU profile and trace, then writes the heap
// snapshot if one was requested.
func (s *Session) Stop() error {
	s.stopRunning()

	if s.heapPath == "" {
		return nil
	}
	return writeHeap(s.heapPath)
}

// stopRunning stops whichever continuous profiles are active.
func (s *Session) stopRunning() {
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		_ = s.cpuFile.Close()
		s.cpuFile = nil
	}
	if s.traceFile != nil {
		trace.Stop()
		_ = s.traceFile.Close()
		s.traceFile = nil
	}
}

// writeHeap writes a point-in-time heap snapshot. The forced GC drops
// dead objects first, so the profile shows live memory rather than
// whatever garbage the last feed parse left behind.
func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}
