package relax

import "testing"

func TestRunGeneric_SuccessReachesOptimised(t *testing.T) {
	dir := t.TempDir()
	seed := "NaCl"
	d, _ := newTestDriver(t, dir, seed, 4)
	d.Options.Mode = ModeGeneric

	calls := 0
	d.Options.RunChild = func(seed string, numIter int) (int, ChildOutcome, error) {
		calls++
		return 0, ChildFinished, nil
	}

	res, err := d.Run(seed + ".res")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outcome != Optimised {
		t.Fatalf("Outcome = %v, want Optimised", res.Outcome)
	}
	if calls != 1 {
		t.Errorf("RunChild called %d times, want 1 (generic mode is one-shot)", calls)
	}
}

func TestRunGeneric_NonZeroExitIsStructureFailed(t *testing.T) {
	dir := t.TempDir()
	seed := "NaCl"
	d, _ := newTestDriver(t, dir, seed, 4)
	d.Options.Mode = ModeGeneric
	d.Options.RunChild = func(seed string, numIter int) (int, ChildOutcome, error) {
		return 2, ChildFinished, nil
	}

	res, err := d.Run(seed + ".res")
	if err != nil {
		t.Fatalf("StructureFailed is local; Run should not return an error, got: %v", err)
	}
	if res.Outcome != StructureFailed {
		t.Fatalf("Outcome = %v, want StructureFailed", res.Outcome)
	}
}

func TestRunGeneric_MissingOutputIsStructureFailed(t *testing.T) {
	dir := t.TempDir()
	seed := "NaCl"
	d, _ := newTestDriver(t, dir, seed, 4)
	d.Options.Mode = ModeGeneric
	d.Options.RunChild = func(seed string, numIter int) (int, ChildOutcome, error) {
		return 0, ChildOutputMissing, nil
	}

	res, err := d.Run(seed + ".res")
	if err != nil {
		t.Fatalf("StructureFailed is local; Run should not return an error, got: %v", err)
	}
	if res.Outcome != StructureFailed {
		t.Fatalf("Outcome = %v, want StructureFailed", res.Outcome)
	}
}

func TestRunGeneric_WalltimeExpiredIsGlobal(t *testing.T) {
	dir := t.TempDir()
	seed := "NaCl"
	d, _ := newTestDriver(t, dir, seed, 4)
	d.Options.Mode = ModeGeneric
	d.Options.RunChild = func(seed string, numIter int) (int, ChildOutcome, error) {
		return 0, ChildWalltimeExpired, nil
	}

	res, err := d.Run(seed + ".res")
	if err == nil {
		t.Fatal("expected a propagated error for a global WalltimeHit outcome")
	}
	if res.Outcome != WalltimeHit {
		t.Fatalf("Outcome = %v, want WalltimeHit", res.Outcome)
	}
}
