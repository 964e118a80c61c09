package batch

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AJMGroup/matador-go/internal/codec"
	"github.com/AJMGroup/matador-go/internal/config"
	"github.com/AJMGroup/matador-go/internal/docmodel"
	"github.com/AJMGroup/matador-go/internal/metrics"
	"github.com/AJMGroup/matador-go/internal/relax"
	"github.com/AJMGroup/matador-go/internal/workspace"
)

// newStubFactory builds a DriverFactory over a real relax.Driver in
// ModeGeneric (one-shot, no schedule), scripted via the given RunChild so
// this package exercises claim/release/fan-out semantics without retracing
// internal/relax's own state-machine tests.
func newStubFactory(ws *workspace.Coordinator, runChild relax.RunChild) DriverFactory {
	return func(seed string) (*relax.Driver, func()) {
		fake := codec.NewFake()
		fake.Structures[seed+".res"] = &docmodel.StructDoc{
			AtomTypes:     []string{"Na", "Cl"},
			PositionsFrac: [][3]float64{{0, 0, 0}, {0.5, 0.5, 0.5}},
			LatticeCart:   [3][3]float64{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}},
			LatticeABC:    [2][3]float64{{5, 5, 5}, {90, 90, 90}},
			Source:        []string{seed + ".res"},
		}
		driver := &relax.Driver{
			Codec:     fake,
			Workspace: ws,
			Seed:      seed,
			FirstRun:  true,
			Options: relax.Options{
				Mode:         relax.ModeGeneric,
				CellOptions:  map[string]any{"geom_max_iter": 4},
				ParamOptions: map[string]any{},
				Logger:       relax.NopLogger{},
				RunChild:     runChild,
			},
		}
		return driver, nil
	}
}

func succeedingRunChild(string, int) (int, relax.ChildOutcome, error) {
	return 0, relax.ChildFinished, nil
}

func failingRunChild(string, int) (int, relax.ChildOutcome, error) {
	return 1, relax.ChildFinished, nil
}

func walltimeRunChild(string, int) (int, relax.ChildOutcome, error) {
	return 0, relax.ChildWalltimeExpired, nil
}

func TestPool_Run_AllSeedsSucceed(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir)
	mx := metrics.New()

	pool := NewPool(ws, newStubFactory(ws, succeedingRunChild), 2, mx)

	results, err := pool.Run(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		if r.Err != nil || r.Skipped {
			t.Errorf("seed %s: unexpected Err=%v Skipped=%v", r.Seed, r.Err, r.Skipped)
		}
		if r.Result.Outcome != relax.Optimised {
			t.Errorf("seed %s: Outcome = %v, want Optimised", r.Seed, r.Result.Outcome)
		}
		if ws.Locked(r.Seed) {
			t.Errorf("seed %s: lock should be released after a successful run", r.Seed)
		}
	}
	if got := testutil.ToFloat64(mx.StructuresOptimised); got != 3 {
		t.Errorf("StructuresOptimised = %v, want 3", got)
	}
	if got := testutil.ToFloat64(mx.WorkersHoldingLock); got != 0 {
		t.Errorf("WorkersHoldingLock = %v, want 0 after every worker exits", got)
	}
}

func TestPool_Run_StructureFailureDoesNotStopTheBatch(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir)
	mx := metrics.New()

	pool := NewPool(ws, newStubFactory(ws, failingRunChild), 2, mx)

	results, err := pool.Run(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Result.Outcome != relax.StructureFailed {
			t.Errorf("seed %s: Outcome = %v, want StructureFailed", r.Seed, r.Result.Outcome)
		}
		if ws.Locked(r.Seed) {
			t.Errorf("seed %s: lock should be released even after a local failure", r.Seed)
		}
	}
	if got := testutil.ToFloat64(mx.StructuresFailed); got != 2 {
		t.Errorf("StructuresFailed = %v, want 2", got)
	}
}

func TestPool_Run_SkipsAlreadyLockedSeeds(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir)
	if _, err := ws.Claim("locked"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	pool := NewPool(ws, newStubFactory(ws, succeedingRunChild), 1, nil)
	results, err := pool.Run(context.Background(), []string{"locked", "free"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var skipped, ran int
	for _, r := range results {
		if r.Skipped {
			skipped++
		} else {
			ran++
		}
	}
	if skipped != 1 || ran != 1 {
		t.Fatalf("skipped=%d ran=%d, want 1/1", skipped, ran)
	}
}

func TestPool_Run_GlobalFailureStopsNewClaims(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir)

	pool := NewPool(ws, newStubFactory(ws, walltimeRunChild), 1, nil)

	seeds := []string{"a", "b", "c", "d", "e"}
	results, err := pool.Run(context.Background(), seeds)
	if err == nil {
		t.Fatal("expected Run to propagate the global WalltimeHit failure")
	}
	if len(results) >= len(seeds) {
		t.Errorf("expected fewer than %d results once a global failure cancels remaining claims, got %d", len(seeds), len(results))
	}
	for _, r := range results {
		if ws.Locked(r.Seed) {
			t.Errorf("seed %s: lock must be released even on a global-failure exit", r.Seed)
		}
	}
}

func TestPool_Run_EmptySeedListIsANoop(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir)
	pool := NewPool(ws, newStubFactory(ws, succeedingRunChild), 4, nil)
	results, err := pool.Run(context.Background(), nil)
	if err != nil || results != nil {
		t.Fatalf("Run(nil) = %v, %v; want nil, nil", results, err)
	}
}

func TestPlanConcurrency_DerivesWorkerCountFromCoreBudget(t *testing.T) {
	cfg := config.Config{NCores: 4, NProcesses: 1}
	if got := PlanConcurrency(cfg, 16); got != 4 {
		t.Errorf("PlanConcurrency = %d, want 4 (16 physical / 4 per job)", got)
	}
	if got := PlanConcurrency(cfg, 2); got != 1 {
		t.Errorf("PlanConcurrency = %d, want 1 (never below one worker)", got)
	}
}

func TestPlanConcurrency_ZeroPerWorkerCostDefaultsToOne(t *testing.T) {
	if got := PlanConcurrency(config.Config{}, 16); got != 1 {
		t.Errorf("PlanConcurrency = %d, want 1 when NCores*NProcesses <= 0", got)
	}
}
