// Package workspace implements the shared-folder locking protocol, the
// input/completed/bad_castep move discipline, and the optional per-host
// compute directory (spec §4.5, component C5). Atomic writes use
// google/renameio, the ecosystem equivalent of the teacher's hand-rolled
// write-temp-then-rename idiom (internal/pool/pool.go's writeTempFile).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
)

// Coordinator scopes every filesystem operation to one root directory.
type Coordinator struct {
	Root string
}

// New returns a Coordinator rooted at root.
func New(root string) *Coordinator {
	return &Coordinator{Root: root}
}

func (c *Coordinator) lockPath(seed string) string {
	return filepath.Join(c.Root, seed+".res.lock")
}

// Lock represents a held claim on a seed. Release is idempotent-safe to
// call once per successful Claim.
type Lock struct {
	path string
}

// Claim implements the claim protocol of spec §4.5:
//  1. test for <root>/<seed>.res.lock; if present, the caller should skip.
//  2. create the lock file with an exclusive create; a race loser returns
//     ErrAlreadyClaimed so the caller moves on to the next seed.
//  3. append the seed to a shared, advisory jobs log.
func (c *Coordinator) Claim(seed string) (*Lock, error) {
	path := c.lockPath(seed)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("workspace: create lock %s: %w", path, err)
	}
	_ = f.Close()

	if err := c.appendJobsLog(seed); err != nil {
		// Advisory only (spec §4.5 step 3, §9): the lock file remains
		// authoritative even if this append fails.
		_ = err
	}

	return &Lock{path: path}, nil
}

// Locked reports whether seed is currently claimed, without side effects.
func (c *Coordinator) Locked(seed string) bool {
	_, err := os.Stat(c.lockPath(seed))
	return err == nil
}

// Release removes the lock file, making the seed claimable again. It must
// be called on every exit path: clean success, walltime termination, and
// fatal-structure failure (spec §3 "Lock file" lifetime).
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// appendJobsLog best-effort appends seed to a shared jobs log. Multiple
// workers append without coordination (spec §9: "opened for append in
// multiple workers without locking; treated as advisory only").
func (c *Coordinator) appendJobsLog(seed string) error {
	path := filepath.Join(c.Root, "jobs.log")
	line := fmt.Sprintf("%s\t%s\n", time.Now().UTC().Format(time.RFC3339), seed)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("workspace: open jobs log: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

// WriteAtomic writes data to path such that readers never observe a
// partial write: a crash mid-write leaves the old contents (or nothing),
// never a truncated file. Used for the input/ snapshot and for the
// compute-directory copies (pseudopotentials in, .res/.castep back to root).
func WriteAtomic(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0644)
}

// SnapshotInput copies the pristine input files for seed into <root>/input/
// on the first run only (spec §4.5 "Input snapshot"): subsequent retries
// must never touch input/.
func (c *Coordinator) SnapshotInput(seed string, firstRun bool) error {
	if !firstRun {
		return nil
	}
	inputDir := filepath.Join(c.Root, "input")
	if err := os.MkdirAll(inputDir, 0755); err != nil {
		return fmt.Errorf("workspace: mkdir input: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(c.Root, seed+".*"))
	if err != nil {
		return fmt.Errorf("workspace: glob seed files: %w", err)
	}
	for _, src := range matches {
		if strings.HasSuffix(src, ".lock") {
			continue
		}
		dst := filepath.Join(inputDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("workspace: read %s: %w", src, err)
	}
	return WriteAtomic(dst, data)
}
