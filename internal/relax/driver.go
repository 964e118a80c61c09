package relax

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/AJMGroup/matador-go/internal/codec"
	"github.com/AJMGroup/matador-go/internal/docmodel"
	"github.com/AJMGroup/matador-go/internal/errclass"
	"github.com/AJMGroup/matador-go/internal/schedule"
	"github.com/AJMGroup/matador-go/internal/workspace"
)

// Driver owns the per-structure state machine of spec §4.4. One instance
// is constructed per structure; the outer batch layer (internal/batch)
// spawns many in parallel.
type Driver struct {
	Codec     codec.Codec
	Workspace *workspace.Coordinator
	Options   Options

	// Seed is the basename shared by every file belonging to this structure.
	Seed string
	// Dir is the directory the driver operates in (root, or the compute
	// directory when one is configured, per spec §4.5). The driver never
	// changes the process working directory.
	Dir string

	// FirstRun indicates whether this is the very first invocation for this
	// structure (controls input/ snapshotting and the spin/noise kwargs).
	FirstRun bool

	ErrClassFS errclass.FS // nil means errclass.OSFS
}

func (d *Driver) errFS() errclass.FS {
	if d.ErrClassFS != nil {
		return d.ErrClassFS
	}
	return errclass.OSFS
}

// Run implements the public contract of spec §4.4. Only WalltimeHit,
// FatalExecutorError, and InputError propagate as a non-nil error; a
// StructureFailed or MaxMemoryExceeded outcome is caught internally and
// surfaced purely through the returned Result, per spec §7's error table.
func (d *Driver) Run(resPath string) (Result, error) {
	var res Result
	var rerr *Error

	switch d.Options.Mode {
	case ModeGeneric:
		res, rerr = d.runGeneric(resPath)
	default:
		if len(d.Options.ConvCutoffs) > 0 || len(d.Options.ConvKpts) > 0 {
			res, rerr = d.runConvergence(resPath)
		} else {
			res, rerr = d.runCastep(resPath)
		}
	}

	if rerr == nil {
		return res, nil
	}
	if rerr.Kind.Global() {
		d.Options.logger().Errorf("seed %s: %s", d.Seed, rerr.Error())
		return Result{Outcome: kindToOutcome(rerr.Kind)}, rerr
	}

	d.Options.logger().Warnf("seed %s: %s", d.Seed, rerr.Error())
	if rerr.Kind == KindStructureFailed && d.Workspace != nil {
		if merr := d.Workspace.MoveToBad(d.Seed); merr != nil {
			d.Options.logger().Errorf("seed %s: move to bad_castep failed: %v", d.Seed, merr)
		}
	}
	return Result{Outcome: kindToOutcome(rerr.Kind), Reason: rerr.Error()}, nil
}

// preflight implements spec §4.4 "Pre-flight": parse the structure, strip
// cell-option structural keys and merge into a CalcDoc, verify parameters
// and cell, and run the optional memcheck.
func (d *Driver) preflight(resPath string, cellOptions, paramOptions map[string]any) (*docmodel.CalcDoc, *Error) {
	var targetSpacing *float64
	if d.Options.Kpts1D {
		if v, ok := cellOptions["kpoints_mp_spacing"].(float64); ok {
			targetSpacing = &v
		} else {
			return nil, fail(KindFatalExecutorError, ErrKptsSpacingMissing)
		}
	}

	s, err := d.Codec.ParseStructure(resPath)
	if err != nil {
		return nil, fail(KindStructureFailed, fmt.Errorf("parse structure: %w", err))
	}

	calc, err := docmodel.NewCalcDoc(s, cellOptions, paramOptions)
	if err != nil {
		return nil, fail(KindStructureFailed, err)
	}
	calc.Extra = map[string]any{}
	if targetSpacing != nil {
		calc.Extra["__target_spacing"] = *targetSpacing
	}

	if err := d.Codec.VerifyCalculationParameters(calc); err != nil {
		return nil, fail(KindInputError, err)
	}
	if err := d.Codec.VerifySimulationCell(&calc.StructDoc); err != nil {
		return nil, fail(KindInputError, err)
	}

	if d.Options.Memcheck {
		if err := d.memcheck(calc); err != nil {
			return nil, err
		}
	}

	return calc, nil
}

// memcheck implements spec §4.4's optional memory-budget check: write a
// temporary <seed>_memcheck input with task=singlepoint, start it through
// Options.RunChild with numIter 0, scrape the reported estimate, and raise
// MaxMemoryExceeded if it is missing or at least 0.9*maxmem. No --dryrun
// argument is added here: whether the invocation is a dry run depends on
// the RunChild implementation, and cmd/relaxdrv's newRunChild launches the
// executable template unchanged.
func (d *Driver) memcheck(calc *docmodel.CalcDoc) *Error {
	memSeed := d.Seed + "_memcheck"
	dryCalc := *calc
	dryCalc.Task = "SINGLEPOINT"

	if err := d.Codec.WriteCell(&dryCalc, memSeed, false, nil, true); err != nil {
		return fail(KindFatalExecutorError, err)
	}
	if err := d.Codec.WriteParameters(&dryCalc, memSeed, nil, true); err != nil {
		return fail(KindFatalExecutorError, err)
	}
	defer d.cleanupMemcheckFiles(memSeed)

	_, outcome, err := d.Options.RunChild(memSeed, 0)
	if err != nil || outcome != ChildFinished {
		return fail(KindFatalExecutorError, fmt.Errorf("memcheck dryrun failed: %v", err))
	}

	result, ok := d.Codec.ParseSimulatorLog(memSeed+".castep", false)
	if !ok {
		return fail(KindMaxMemoryExceeded, ErrNoMemoryEstimate)
	}
	estimate, ok := result["estimated_mem_MB"].(float64)
	if !ok {
		return fail(KindMaxMemoryExceeded, ErrNoMemoryEstimate)
	}

	total := estimate * float64(coresNodesOrOne(calc))
	if total >= 0.9*float64(d.Options.MaxMemMB) {
		return fail(KindMaxMemoryExceeded, fmt.Errorf("%w: estimate %.0fMB >= 0.9*%dMB", ErrMemoryExceeded, total, d.Options.MaxMemMB))
	}
	return nil
}

func coresNodesOrOne(calc *docmodel.CalcDoc) int {
	cores, _ := calc.Extra["__cores"].(int)
	nodes, _ := calc.Extra["__nodes"].(int)
	if cores <= 0 {
		cores = 1
	}
	if nodes <= 0 {
		nodes = 1
	}
	return cores * nodes
}

func (d *Driver) cleanupMemcheckFiles(memSeed string) {
	// Best-effort: the memcheck scratch files are never needed after the
	// estimate is read.
	matches, err := filepath.Glob(filepath.Join(d.Dir, memSeed+".*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// buildSchedule implements spec §4.4's schedule construction: a structure
// that already carries geom_iter >= geom_max_iter has no iteration budget
// left and is a StructureFailed; an empty schedule is a fatal executor error ("too
// small"), never a structure failure, since it indicates a configuration
// mistake rather than a bad structure.
func (d *Driver) buildSchedule(calc *docmodel.CalcDoc) (schedule.Schedule, *Error) {
	if calc.GeomIter >= calc.GeomMaxIter {
		return nil, fail(KindStructureFailed, fmt.Errorf("geom_iter %d >= geom_max_iter %d", calc.GeomIter, calc.GeomMaxIter))
	}
	residual := calc.GeomMaxIter - calc.GeomIter
	sched, err := schedule.Build(d.Options.schedulePolicy(residual))
	if err != nil {
		return nil, fail(KindFatalExecutorError, fmt.Errorf("geom_max_iter too small: %w", err))
	}
	return sched, nil
}

// recomputeKptsGrid implements spec §4.4 step 1's kpts_1D handling:
// kpoints_mp_grid = [1, 1, ceil(1/(c*target_spacing))] rounded up to even.
func recomputeKptsGrid(latticeC float64, targetSpacing float64) [3]int {
	n := int(math.Ceil(1.0 / (latticeC * targetSpacing)))
	if n%2 != 0 {
		n++
	}
	if n < 2 {
		n = 2
	}
	return [3]int{1, 1, n}
}
