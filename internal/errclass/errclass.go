// Package errclass inspects a terminated child's exit code and *.err
// sidecar files to decide whether the structure should retry, and how
// (spec §4.3, component C3).
package errclass

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AJMGroup/matador-go/internal/docmodel"
)

// RemedyKind is a closed enumeration of remedies the classifier can return.
// Per spec §9 design notes, the driver interprets the tag itself; no
// function value is smuggled through state.
type RemedyKind string

// StripSymmetry removes symmetry_generate, symmetry_tol, and snap_to_symmetry
// from the calc doc's cell options.
const StripSymmetry RemedyKind = "strip_symmetry"

// Result is the outcome of classifying one terminated child.
type Result struct {
	ErrorsPresent bool
	Message       string
	Remedy        RemedyKind // empty if no remedy applies
}

const workAroundMarker = "Work-around was successful, continuing with calculation."
const cellConstraintMarker = "ERROR in cell constraints: attempt to fix"

// FS abstracts the filesystem operations the classifier needs, so tests
// don't need real *.err files on disk.
type FS interface {
	Glob(pattern string) ([]string, error)
	ReadFile(path string) ([]byte, error)
	Remove(path string) error
}

type osFS struct{}

func (osFS) Glob(pattern string) ([]string, error)  { return filepath.Glob(pattern) }
func (osFS) ReadFile(path string) ([]byte, error)    { return os.ReadFile(path) }
func (osFS) Remove(path string) error                { return os.Remove(path) }

// OSFS is the real filesystem implementation of FS.
var OSFS FS = osFS{}

// Classify implements spec §4.3's rules:
//   - non-zero exit code => errors_present with a message including the code.
//   - for every <seed>*err file except those ending in opt_err:
//   - a work-around-successful line => delete the file, ignore it.
//   - a cell-constraints line => remedy := strip_symmetry.
//   - otherwise concatenate the file's contents into the message and mark errors_present.
func Classify(fs FS, dir, seed string, exitCode int) (Result, error) {
	var res Result
	var messages []string

	if exitCode != 0 {
		res.ErrorsPresent = true
		messages = append(messages, fmt.Sprintf("child exited with code %d", exitCode))
	}

	pattern := filepath.Join(dir, seed+"*err")
	matches, err := fs.Glob(pattern)
	if err != nil {
		return Result{}, fmt.Errorf("errclass: glob %s: %w", pattern, err)
	}

	for _, path := range matches {
		if strings.HasSuffix(path, "opt_err") {
			continue
		}
		contents, err := fs.ReadFile(path)
		if err != nil {
			return Result{}, fmt.Errorf("errclass: read %s: %w", path, err)
		}
		text := string(contents)

		switch {
		case strings.Contains(text, workAroundMarker):
			if err := fs.Remove(path); err != nil {
				return Result{}, fmt.Errorf("errclass: remove %s: %w", path, err)
			}
		case strings.Contains(text, cellConstraintMarker):
			res.Remedy = StripSymmetry
		default:
			res.ErrorsPresent = true
			messages = append(messages, fmt.Sprintf("%s:\n%s", filepath.Base(path), text))
		}
	}

	res.Message = strings.Join(messages, "\n")
	return res, nil
}

// ApplyRemedy mutates calc according to kind, per spec §4.3's strip_symmetry
// remedy: remove symmetry_generate, symmetry_tol, and snap_to_symmetry from
// the cell options.
func ApplyRemedy(kind RemedyKind, calc *docmodel.CalcDoc) {
	switch kind {
	case StripSymmetry:
		if calc.CellOptions != nil {
			delete(calc.CellOptions, "symmetry_generate")
			delete(calc.CellOptions, "symmetry_tol")
			delete(calc.CellOptions, "snap_to_symmetry")
		}
	}
}
