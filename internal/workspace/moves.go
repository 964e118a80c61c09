package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// KeepFilter controls which conditional members of the short whitelist
// (spec §4.5) apply when MoveToCompleted is called with keep=false. Each
// field gates one suffix that is only ever kept under a specific run
// configuration:
//
//   - Kpts1D: the recomputed k-point grid lives in .param, so a kpts_1D run
//     must keep it for the next restart to reuse.
//   - ConvergenceMode: .res is the input this run re-derives its own output
//     from, so a convergence-test sub-call never keeps its own .res.
//   - WriteFormattedDensity: .den_fmt only exists, and is only worth
//     keeping, when the run was configured to write it.
type KeepFilter struct {
	Kpts1D                bool
	ConvergenceMode       bool
	WriteFormattedDensity bool
}

// shortWhitelistSuffixes returns the suffixes preserved when keep=false
// (spec §4.5): .castep and -out.cell always; .param only under Kpts1D; .res
// only outside convergence mode; .den_fmt only under WriteFormattedDensity.
func (f KeepFilter) shortWhitelistSuffixes() []string {
	suffixes := []string{".castep", "-out.cell"}
	if f.Kpts1D {
		suffixes = append(suffixes, ".param")
	}
	if !f.ConvergenceMode {
		suffixes = append(suffixes, ".res")
	}
	if f.WriteFormattedDensity {
		suffixes = append(suffixes, ".den_fmt")
	}
	return suffixes
}

// MoveToBad implements mv_to_bad(seed) (spec §4.5): create bad_castep/ if
// absent, move every <seed>.* file there, and remove any stray leftovers
// matching the seed from root.
func (c *Coordinator) MoveToBad(seed string) error {
	dir := filepath.Join(c.Root, "bad_castep")
	return c.moveSeedFiles(seed, dir, true, nil)
}

// MoveToCompleted implements mv_to_completed(seed, keep) (spec §4.5).
// completedDir, if non-empty, nests the target under completed/<dir>/
// (used by the convergence-test sub-mode for completed_cutoff/completed_kpts).
// keep=true preserves every <seed>.* file (including large intermediates
// like .bands); keep=false moves only the short whitelist, gated by filter.
func (c *Coordinator) MoveToCompleted(seed, completedDir string, keep bool, filter KeepFilter) error {
	base := filepath.Join(c.Root, "completed")
	if completedDir != "" {
		base = filepath.Join(base, completedDir)
	}
	var moveFilter func(name string) bool
	if !keep {
		suffixes := filter.shortWhitelistSuffixes()
		moveFilter = func(name string) bool {
			for _, suf := range suffixes {
				if hasSuffixSeedAware(name, suf) {
					return true
				}
			}
			return false
		}
	}
	return c.moveSeedFiles(seed, base, true, moveFilter)
}

func hasSuffixSeedAware(name, suffix string) bool {
	if len(suffix) > len(name) {
		return false
	}
	return name[len(name)-len(suffix):] == suffix
}

// moveSeedFiles moves every file under root matching <seed>.* (and
// <seed>-out.cell*) into dst, creating dst if absent. If filter is
// non-nil, only files for which filter(basename) is true are moved; the
// rest are removed from root as leftovers when remove is true.
func (c *Coordinator) moveSeedFiles(seed, dst string, remove bool, filter func(name string) bool) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("workspace: mkdir %s: %w", dst, err)
	}

	patterns := []string{
		filepath.Join(c.Root, seed+".*"),
		filepath.Join(c.Root, seed+"-out.cell*"),
	}
	var matches []string
	for _, p := range patterns {
		m, err := filepath.Glob(p)
		if err != nil {
			return fmt.Errorf("workspace: glob %s: %w", p, err)
		}
		matches = append(matches, m...)
	}

	for _, src := range matches {
		base := filepath.Base(src)
		if base == seed+".res.lock" {
			continue // the lock is released separately, never moved.
		}
		if filter != nil && !filter(base) {
			if remove {
				_ = os.Remove(src)
			}
			continue
		}
		if err := os.Rename(src, filepath.Join(dst, base)); err != nil {
			return fmt.Errorf("workspace: move %s: %w", src, err)
		}
	}
	return nil
}
