// Package profiling captures CPU and heap profiles for offline analysis
// with go tool pprof.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// Session holds open profile outputs for a single run. Start it once at
// process startup and Stop it on the way out.
type Session struct {
	cpuFile  *os.File
	heapPath string
}

// Start begins profiling. cpuPath and heapPath may each be empty to skip
// that profile. The CPU profile streams until Stop; the heap profile is a
// snapshot written during Stop.
func Start(cpuPath, heapPath string) (*Session, error) {
	s := &Session{heapPath: heapPath}

	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, fmt.Errorf("create cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
		s.cpuFile = f
	}

	return s, nil
}

// Stop flushes the CPU profile and writes the heap snapshot if one was
// requested. Safe to call on a nil session.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}

	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := s.cpuFile.Close(); err != nil {
			return fmt.Errorf("close cpu profile: %w", err)
		}
		s.cpuFile = nil
	}

	if s.heapPath != "" {
		f, err := os.Create(s.heapPath)
		if err != nil {
			return fmt.Errorf("create heap profile: %w", err)
		}
		defer func() { _ = f.Close() }()

		// Collect first so the snapshot reflects live objects only.
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("write heap profile: %w", err)
		}
	}

	return nil
}
