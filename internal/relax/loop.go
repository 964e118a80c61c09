package relax

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"path/filepath"

	"github.com/AJMGroup/matador-go/internal/docmodel"
	"github.com/AJMGroup/matador-go/internal/workspace"
)

// runCastep implements the main loop of spec §4.4 for the
// geometryoptimisation sub-mode: the only sub-mode fully specified there.
// The spectral/phonon/thermodynamics/bulk_modulus sub-modes are not
// implemented in this package, and the convergence-test sweep runs through
// runConvergence rather than this loop.
func (d *Driver) runCastep(resPath string) (Result, *Error) {
	calc, ferr := d.preflight(resPath, d.Options.CellOptions, d.Options.ParamOptions)
	if ferr != nil {
		return Result{}, ferr
	}

	if err := d.Workspace.SnapshotInput(d.Seed, d.FirstRun); err != nil {
		d.Options.logger().Warnf("seed %s: input snapshot failed: %v", d.Seed, err)
	}

	if d.FirstRun && d.Options.InitialSpin != nil {
		calc.Extra["atomic_init_spins"] = *d.Options.InitialSpin
	}
	if d.FirstRun && d.Options.PositionNoise > 0 {
		perturbPositions(calc, d.Seed, d.Options.PositionNoise)
	}

	sched, ferr := d.buildSchedule(calc)
	if ferr != nil {
		return Result{}, ferr
	}

	retries := 0
	rerun := false

	i := 0
	for i < len(sched) {
		numIter := sched[i]
		calc.GeomMaxIter = numIter

		if d.Options.Kpts1D {
			spacing, _ := calc.Extra["__target_spacing"].(float64)
			latticeC := calc.LatticeABC[0][2]
			if latticeC == 0 {
				latticeC = 1
			}
			grid := recomputeKptsGrid(latticeC, spacing)
			calc.KpointsMPGrid = &grid
			calc.KpointsMPSpacing = nil
		}

		if err := d.Codec.WriteCell(calc, d.Seed, false, d.Options.InitialSpin, true); err != nil {
			return Result{}, fail(KindFatalExecutorError, fmt.Errorf("write cell: %w", err))
		}
		if !d.Options.CustomParams {
			if err := d.Codec.WriteParameters(calc, d.Seed, d.Options.InitialSpin, true); err != nil {
				return Result{}, fail(KindFatalExecutorError, fmt.Errorf("write parameters: %w", err))
			}
		}

		exitCode, childOutcome, err := d.Options.RunChild(d.Seed, numIter)
		if err != nil {
			return Result{}, fail(KindFatalExecutorError, fmt.Errorf("launch: %w", err))
		}
		switch childOutcome {
		case ChildWalltimeExpired, ChildKillSwitch:
			if d.Options.Metrics != nil {
				d.Options.Metrics.WalltimeKills.Inc()
			}
			return Result{}, fail(KindWalltimeHit, errors.New("walltime deadline reached"))
		case ChildStaleOutput:
			return Result{}, fail(KindStructureFailed, errors.New("output file stale: child produced no progress"))
		case ChildOutputMissing:
			return Result{}, fail(KindStructureFailed, errors.New("expected output file never appeared"))
		}

		optiDict, scrapeOK := d.Codec.ParseSimulatorLog(filepath.Join(d.Dir, d.Seed+".castep"), true)

		clsResult, cerr := classify(d, exitCode)
		if cerr != nil {
			return Result{}, fail(KindFatalExecutorError, cerr)
		}

		if clsResult.ErrorsPresent {
			if clsResult.Remedy != "" && retries < d.Options.maxRetries() {
				if ferr := d.flushCheckpoint(calc); ferr != nil {
					d.Options.logger().Warnf("seed %s: checkpoint flush failed: %v", d.Seed, ferr)
				}
				applyRemedy(clsResult.Remedy, calc)
				retries++
				if d.Options.Metrics != nil {
					d.Options.Metrics.Retries.Inc()
				}
				d.Options.logger().Warnf("seed %s: applying remedy %s (retry %d/%d)", d.Seed, clsResult.Remedy, retries, d.Options.maxRetries())
				continue // same i: the remedy must make the next attempt different.
			}
			return Result{}, fail(KindStructureFailed, errors.New(clsResult.Message))
		}

		if !scrapeOK {
			if clsResult.Remedy == "" {
				return Result{}, fail(KindStructureFailed, ErrScrapeFailed)
			}
		}

		opti := docmodel.StripRederivedKeys(optiDict)
		optimisedNow, _ := opti["optimised"].(bool)

		wasRerun := rerun
		if d.Options.Reopt {
			switch {
			case rerun && !optimisedNow:
				rerun = false
			case !rerun && optimisedNow:
				rerun = true
				if i+1 < len(sched) {
					sched[i+1] = d.Options.FineIter
				} else {
					sched = append(sched, d.Options.FineIter)
				}
			}
		}

		// A true success requires the reopt gate to have already been armed
		// going into this iteration: the pass that first flips rerun
		// false->true must be followed by a confirmatory pass, not treated
		// as success itself (spec §4.4 step 9).
		trueSuccess := optimisedNow && (!d.Options.Reopt || wasRerun)
		if trueSuccess {
			calc.MergeExtra(opti)
			return d.finalizeSuccess(calc)
		}

		if spins, ok := opti["mulliken_spins"]; ok {
			calc.Extra["atomic_init_spins"] = spins
		}
		if outCell, err := d.Codec.ParseCellOutput(filepath.Join(d.Dir, d.Seed+"-out.cell"), true, true); err == nil {
			if lc, ok := outCell["lattice_cart"].([3][3]float64); ok {
				calc.LatticeCart = lc
			}
		}
		calc.MergeExtra(opti)

		if i == len(sched)-1 {
			return Result{}, fail(KindStructureFailed, fmt.Errorf("%w after %d steps", ErrScheduleExhausted, len(sched)))
		}
		i++
	}

	// Unreachable: the loop always returns via trueSuccess or the
	// last-step check above, but Go requires a terminal statement.
	return Result{}, fail(KindStructureFailed, ErrScheduleExhausted)
}

// perturbPositions implements the supplemented `noise` kwarg (SPEC_FULL §3):
// displace every fractional coordinate by a small random offset before the
// first child launch, to de-correlate otherwise-identical restarts. The RNG
// is seeded from the structure's own seed name rather than the wall clock,
// so the perturbation is reproducible under test.
func perturbPositions(calc *docmodel.CalcDoc, seed string, noise float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	rng := rand.New(rand.NewPCG(h.Sum64(), 0))

	for i := range calc.PositionsFrac {
		for j := 0; j < 3; j++ {
			calc.PositionsFrac[i][j] += (rng.Float64()*2 - 1) * noise
		}
	}
}

// flushCheckpoint writes the current (possibly partial) structure doc to
// disk before a remedy retry, per spec §4.4 step 6.
func (d *Driver) flushCheckpoint(calc *docmodel.CalcDoc) error {
	return d.Codec.WriteStructure(&calc.StructDoc, d.Seed, true)
}

// finalizeSuccess implements the success half of spec §4.4 "Finalise":
// write the definitive .res and move every <seed>.* file to completed/.
func (d *Driver) finalizeSuccess(calc *docmodel.CalcDoc) (Result, *Error) {
	calc.Optimised = true
	if err := d.Codec.WriteStructure(&calc.StructDoc, d.Seed, true); err != nil {
		return Result{}, fail(KindFatalExecutorError, fmt.Errorf("write final structure: %w", err))
	}
	if d.Workspace != nil {
		filter := workspace.KeepFilter{
			Kpts1D:                d.Options.Kpts1D,
			ConvergenceMode:       len(d.Options.ConvCutoffs) > 0 || len(d.Options.ConvKpts) > 0,
			WriteFormattedDensity: d.Options.WriteFormattedDensity,
		}
		if err := d.Workspace.MoveToCompleted(d.Seed, d.Options.CompletedDir, d.Options.KeepIntermediates, filter); err != nil {
			return Result{}, fail(KindFatalExecutorError, fmt.Errorf("move to completed: %w", err))
		}
	}
	return Result{Outcome: Optimised, Doc: calc}, nil
}
