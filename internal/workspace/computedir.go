package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ComputeDir manages the optional per-host scratch directory discipline of
// spec §4.5: create it, symlink it into root, copy inputs in and results
// back, and remove it once finished. It never changes the process working
// directory; callers run the simulator with Path as its directory.
type ComputeDir struct {
	coord *Coordinator
	Path  string
	link  string
}

// SetupComputeDir validates that dir is not nested under root, creates it,
// and symlinks it into root (spec §4.5). Returns nil, nil if dir is empty
// (no compute dir configured).
func (c *Coordinator) SetupComputeDir(dir string) (*ComputeDir, error) {
	if dir == "" {
		return nil, nil
	}
	absRoot, err := filepath.Abs(c.Root)
	if err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(absDir, absRoot+string(filepath.Separator)) {
		return nil, ErrComputeDirNested
	}

	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("workspace: mkdir compute dir: %w", err)
	}

	link := filepath.Join(c.Root, filepath.Base(absDir))
	if _, err := os.Lstat(link); os.IsNotExist(err) {
		if err := os.Symlink(absDir, link); err != nil {
			return nil, fmt.Errorf("workspace: symlink compute dir: %w", err)
		}
	}

	return &ComputeDir{coord: c, Path: absDir, link: link}, nil
}

// CopyPseudopotentials copies every *.usp file, and the parameter file when
// custom_params is set, from root into the compute directory (spec §4.5).
func (cd *ComputeDir) CopyPseudopotentials(seed string, customParams bool) error {
	matches, err := filepath.Glob(filepath.Join(cd.coord.Root, "*.usp"))
	if err != nil {
		return fmt.Errorf("workspace: glob pspots: %w", err)
	}
	if customParams {
		paramFile := filepath.Join(cd.coord.Root, seed+".param")
		if _, err := os.Stat(paramFile); err == nil {
			matches = append(matches, paramFile)
		}
	}
	for _, src := range matches {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("workspace: read %s: %w", src, err)
		}
		if err := WriteAtomic(filepath.Join(cd.Path, filepath.Base(src)), data); err != nil {
			return err
		}
	}
	return nil
}

// CopyBack copies the .res and .castep artifacts for seed from the compute
// directory back to root, as required on every exit path (spec §4.5 and §5
// cancellation semantics).
func (cd *ComputeDir) CopyBack(seed string) error {
	for _, ext := range []string{".res", ".castep"} {
		src := filepath.Join(cd.Path, seed+ext)
		data, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("workspace: read %s: %w", src, err)
		}
		if err := WriteAtomic(filepath.Join(cd.coord.Root, seed+ext), data); err != nil {
			return err
		}
	}
	return nil
}

// RemoveIfFinished implements remove_compute_dir_if_finished (spec §4.5):
// if any .res or .castep file remains in the compute directory, leave it
// alone; otherwise delete everything and remove the directory and its
// symlink. Idempotent: calling it twice yields the same filesystem state
// (spec §8 invariant 5).
func (cd *ComputeDir) RemoveIfFinished() error {
	entries, err := os.ReadDir(cd.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("workspace: read compute dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".res") || strings.HasSuffix(name, ".castep") {
			return nil
		}
	}

	for _, e := range entries {
		if err := os.Remove(filepath.Join(cd.Path, e.Name())); err != nil {
			return fmt.Errorf("workspace: remove %s: %w", e.Name(), err)
		}
	}
	if err := os.Remove(cd.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("workspace: rmdir compute dir: %w", err)
	}
	if err := os.Remove(cd.link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("workspace: remove compute dir symlink: %w", err)
	}
	return nil
}
