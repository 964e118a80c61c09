// Package batch runs many relax.Driver instances across a shared workspace
// concurrently, generalizing the teacher's fixed-worker-count fan-out
// (internal/worker/pool.go's Pool[T].Process) from an in-memory file list to
// the claim-protocol semantics of spec §5: each worker repeatedly claims the
// next unclaimed seed, runs it to completion, and releases the lock on every
// exit path. A global outcome (WalltimeHit, FatalExecutorError) stops every
// worker from picking up new work; a local outcome (Optimised,
// StructureFailed, MaxMemoryExceeded) only ends that one seed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AJMGroup/matador-go/internal/config"
	"github.com/AJMGroup/matador-go/internal/metrics"
	"github.com/AJMGroup/matador-go/internal/relax"
	"github.com/AJMGroup/matador-go/internal/workspace"
)

// DriverFactory builds a fresh Driver for one seed. The batch layer owns
// claim/release and sequencing; everything about how a seed is actually run
// is the caller's concern, mirroring the Pool[T].Process fn parameter. The
// returned cleanup func, if non-nil, runs after the driver's Run call on
// every exit path (spec §4.5's compute-directory copy-back/removal, which
// must happen per seed even when Run itself fails).
type DriverFactory func(seed string) (driver *relax.Driver, cleanup func())

// Pool runs a fixed number of workers over a shared seed list, honoring the
// physical-core budget of spec §5 (ncores*nprocesses <= physical_cores,
// checked by the caller via config.ValidatePoolSize before constructing a
// Pool).
type Pool struct {
	Workspace   *workspace.Coordinator
	NewDriver   DriverFactory
	Concurrency int
	Metrics     *metrics.Collectors
}

// NewPool constructs a Pool. If concurrency <= 0 it falls back to 1 (unlike
// the teacher's NumCPU default: a relax driver's concurrency is bounded by
// the physical-core budget, not the scheduler's CPU count).
func NewPool(ws *workspace.Coordinator, newDriver DriverFactory, concurrency int, mx *metrics.Collectors) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{Workspace: ws, NewDriver: newDriver, Concurrency: concurrency, Metrics: mx}
}

// SeedResult pairs one seed with the outcome of running it.
type SeedResult struct {
	Seed    string
	Result  relax.Result
	Err     error // non-nil only for a global outcome (spec §7)
	Skipped bool  // seed was already locked by another worker
}

// Run drains seeds across Concurrency workers and returns one SeedResult per
// seed actually attempted (skipped-because-locked seeds are still reported,
// per spec §5's "already-claimed seeds are skipped, not retried"). The first
// global failure (WalltimeHit or FatalExecutorError) cancels the shared
// context so idle workers stop claiming new seeds; in-flight seeds are left
// to finish their own Run call, since a relax.Driver has no cooperative
// cancellation point mid-CASTEP-invocation (spec §5 "resource model").
func (p *Pool) Run(ctx context.Context, seeds []string) ([]SeedResult, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	work := make(chan string, len(seeds))
	for _, s := range seeds {
		work <- s
	}
	close(work)

	var (
		mu      sync.Mutex
		results []SeedResult
	)

	workers := p.Concurrency
	if workers > len(seeds) {
		workers = len(seeds)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case seed, ok := <-work:
					if !ok {
						return nil
					}
					sr, stop := p.runOne(seed)
					mu.Lock()
					results = append(results, sr)
					mu.Unlock()
					if stop {
						return sr.Err
					}
				}
			}
		})
	}

	err := g.Wait()
	return results, err
}

// runOne claims, runs, and releases a single seed. The second return value
// is true when the outcome is global and every other worker must stop
// picking up new seeds.
func (p *Pool) runOne(seed string) (SeedResult, bool) {
	if p.Workspace.Locked(seed) {
		return SeedResult{Seed: seed, Skipped: true}, false
	}

	lock, err := p.Workspace.Claim(seed)
	if err != nil {
		if errors.Is(err, workspace.ErrAlreadyClaimed) {
			return SeedResult{Seed: seed, Skipped: true}, false
		}
		return SeedResult{Seed: seed, Err: fmt.Errorf("batch: claim %s: %w", seed, err)}, true
	}
	if p.Metrics != nil {
		p.Metrics.StructuresClaimed.Inc()
		p.Metrics.WorkersHoldingLock.Inc()
	}
	defer func() {
		if p.Metrics != nil {
			p.Metrics.WorkersHoldingLock.Dec()
		}
		_ = lock.Release()
	}()

	driver, cleanup := p.NewDriver(seed)
	if cleanup != nil {
		defer cleanup()
	}
	res, rerr := driver.Run(seed + ".res")

	p.record(res, rerr)

	if rerr != nil {
		return SeedResult{Seed: seed, Result: res, Err: rerr}, true
	}
	return SeedResult{Seed: seed, Result: res}, false
}

func (p *Pool) record(res relax.Result, rerr error) {
	if p.Metrics == nil {
		return
	}
	switch {
	case rerr != nil:
		return // global failures are surfaced via SeedResult.Err, not counted here.
	case res.Outcome == relax.Optimised:
		p.Metrics.StructuresOptimised.Inc()
	case res.Outcome == relax.StructureFailed:
		p.Metrics.StructuresFailed.Inc()
	}
}

// PlanConcurrency derives the worker count from the physical-core budget of
// spec §5, after the caller has already validated cfg via
// config.ValidatePoolSize.
func PlanConcurrency(cfg config.Config, physicalCores int) int {
	perWorker := cfg.NCores * cfg.NProcesses
	if perWorker <= 0 {
		return 1
	}
	n := physicalCores / perWorker
	if n < 1 {
		n = 1
	}
	return n
}
