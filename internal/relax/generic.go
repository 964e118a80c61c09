package relax

import (
	"errors"
	"fmt"

	"github.com/AJMGroup/matador-go/internal/docmodel"
)

// runGeneric implements the "generic" mode of spec §4.4: a single one-shot
// invocation; on success move to completed/, on any failure move to
// bad_castep/.
func (d *Driver) runGeneric(resPath string) (Result, *Error) {
	calc, ferr := d.preflight(resPath, d.Options.CellOptions, d.Options.ParamOptions)
	if ferr != nil {
		return Result{}, ferr
	}

	exitCode, outcome, err := d.Options.RunChild(d.Seed, calc.GeomMaxIter)
	if err != nil {
		return Result{}, fail(KindFatalExecutorError, fmt.Errorf("launch: %w", err))
	}
	switch outcome {
	case ChildWalltimeExpired, ChildKillSwitch:
		if d.Options.Metrics != nil {
			d.Options.Metrics.WalltimeKills.Inc()
		}
		return Result{}, fail(KindWalltimeHit, errors.New("walltime deadline reached"))
	case ChildStaleOutput, ChildOutputMissing:
		return Result{}, fail(KindStructureFailed, errors.New("generic executable produced no output"))
	}

	if exitCode != 0 {
		return Result{}, fail(KindStructureFailed, fmt.Errorf("generic executable exited with code %d", exitCode))
	}

	return d.finalizeSuccess(calc)
}

// runConvergence implements the convergence-test sub-mode of spec §4.4: a
// sweep over cutoff energies and k-point spacings, one one-shot `scf` call
// per value into distinct completed_cutoff/ or completed_kpts/ subfolders.
// It returns success if any sub-call succeeded (spec §8 scenario 6).
func (d *Driver) runConvergence(resPath string) (Result, *Error) {
	anySucceeded := false
	var lastDoc *docmodel.CalcDoc

	run := func(completedDir string, setValue func(*docmodel.CalcDoc)) error {
		calc, ferr := d.preflight(resPath, d.Options.CellOptions, d.Options.ParamOptions)
		if ferr != nil {
			if ferr.Kind.Global() {
				return ferr
			}
			return nil // structure-level failure for this value; try the next.
		}
		calc.Task = "SCF"
		setValue(calc)

		exitCode, outcome, err := d.Options.RunChild(d.Seed, calc.GeomMaxIter)
		if err != nil || outcome != ChildFinished || exitCode != 0 {
			if d.Workspace != nil {
				_ = d.Workspace.MoveToBad(d.Seed)
			}
			return nil
		}

		sub := *d
		sub.Options.CompletedDir = completedDir
		res, ferr := sub.finalizeSuccess(calc)
		if ferr != nil {
			return nil
		}
		anySucceeded = true
		lastDoc = res.Doc
		return nil
	}

	for _, cutoff := range d.Options.ConvCutoffs {
		c := cutoff
		if err := run("completed_cutoff", func(cd *docmodel.CalcDoc) {
			cd.CellOptions["cut_off_energy"] = c
		}); err != nil {
			return Result{}, fail(KindFatalExecutorError, err)
		}
	}
	for _, kpt := range d.Options.ConvKpts {
		k := kpt
		if err := run("completed_kpts", func(cd *docmodel.CalcDoc) {
			cd.KpointsMPSpacing = &k
		}); err != nil {
			return Result{}, fail(KindFatalExecutorError, err)
		}
	}

	if !anySucceeded {
		return Result{}, fail(KindStructureFailed, errors.New("no convergence-test value succeeded"))
	}
	return Result{Outcome: Optimised, Doc: lastDoc}, nil
}
