package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// stdLogger implements relax.Logger as a verbosity-gated fmt.Printf helper,
// mirroring the teacher's VerbosePrintf (cmd/ao/root.go) generalized to three
// levels instead of one boolean, plus an always-on per-seed debug sink
// (spec §7: "mirrored ... always to a per-seed logs/<seed>.log DEBUG sink").
type stdLogger struct {
	verbosity int
	seedLog   *os.File
}

// newStdLogger opens (creating if needed) logs/<seed>.log for append and
// returns a logger writing to it unconditionally, and to stdout when
// verbosity allows.
func newStdLogger(dir, seed string, verbosity int) (*stdLogger, error) {
	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("relaxdrv: create logs dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logsDir, seed+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("relaxdrv: open seed log: %w", err)
	}
	return &stdLogger{verbosity: verbosity, seedLog: f}, nil
}

func (l *stdLogger) Close() error {
	if l.seedLog == nil {
		return nil
	}
	return l.seedLog.Close()
}

func (l *stdLogger) Debugf(format string, args ...any) {
	fmt.Fprintf(l.seedLog, "DEBUG "+format+"\n", args...)
	if l.verbosity >= 3 {
		fmt.Printf("DEBUG "+format+"\n", args...)
	}
}

func (l *stdLogger) Warnf(format string, args ...any) {
	fmt.Fprintf(l.seedLog, "WARN  "+format+"\n", args...)
	if l.verbosity >= 1 {
		fmt.Printf("WARN  "+format+"\n", args...)
	}
}

func (l *stdLogger) Errorf(format string, args ...any) {
	fmt.Fprintf(l.seedLog, "ERROR "+format+"\n", args...)
	if l.verbosity >= 0 {
		fmt.Printf("ERROR "+format+"\n", args...)
	}
}
