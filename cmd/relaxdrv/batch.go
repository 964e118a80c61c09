package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AJMGroup/matador-go/internal/batch"
	"github.com/AJMGroup/matador-go/internal/config"
	"github.com/AJMGroup/matador-go/internal/launcher"
	"github.com/AJMGroup/matador-go/internal/relax"
	"github.com/AJMGroup/matador-go/internal/workspace"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the worker pool over every unclaimed .res file in the working directory",
	Long: `batch fans relaxdrv's single-structure driver out across every
*.res file in the current directory that is not already locked, honoring
the ncores*nprocesses <= physical-cores budget (spec §5).`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context())
	},
}

func runBatch(ctx context.Context) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	if err := config.ValidatePoolSize(cfg, runtime.NumCPU()); err != nil {
		return err
	}

	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("relaxdrv: getwd: %w", err)
	}
	coord := workspace.New(dir)

	seeds, err := discoverSeeds(dir)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		fmt.Println("relaxdrv batch: no unclaimed .res files found")
		return nil
	}

	mpiLib, err := resolveMPILibrary(func(msg string) { fmt.Fprintln(os.Stderr, "relaxdrv batch:", msg) })
	if err != nil {
		return err
	}
	selfTestSpec, err := launcher.SelfTest(launcher.Spec{
		ExecutableTemplate: flagExecutable,
		Library:            mpiLib,
		Cores:              cfg.NCores,
		Nodes:              1,
		RemoteNode:         cfg.RemoteNode,
		Dir:                dir,
	}, selfTestInvoke)
	if err != nil {
		return fmt.Errorf("relaxdrv batch: %w", err)
	}
	cfg.NCores = selfTestSpec.Cores

	mx := startMetrics(flagMetricsAddr)
	concurrency := batch.PlanConcurrency(cfg, runtime.NumCPU())

	newDriver := func(seed string) (*relax.Driver, func()) {
		logger, err := newStdLogger(dir, seed, cfg.Verbosity)
		if err != nil {
			logger = &stdLogger{verbosity: cfg.Verbosity, seedLog: os.Stderr}
		}

		computeDir, cderr := coord.SetupComputeDir(cfg.ComputeDir)
		if cderr != nil {
			logger.Warnf("seed %s: compute dir setup failed: %v", seed, cderr)
			computeDir = nil
		}
		if computeDir != nil {
			if err := computeDir.CopyPseudopotentials(seed, cfg.CustomParams); err != nil {
				logger.Warnf("seed %s: copy pseudopotentials failed: %v", seed, err)
			}
		}
		seedDir := runDir(dir, computeDir)

		runChild := newRunChild(seedDir, mpiLib, cfg.NCores, cfg.RemoteNode, cfg.Redirect, cfg.PollTime, cfg.MaxWalltime, logger.Warnf)
		driver := &relax.Driver{
			Codec:     newCodec(),
			Workspace: coord,
			Seed:      seed,
			Dir:       seedDir,
			FirstRun:  true,
			Options: relax.Options{
				Mode:                  relax.Mode(cfg.Mode),
				Rough:                 cfg.Rough,
				RoughIter:             cfg.RoughIter,
				FineIter:              cfg.FineIter,
				MaxRetries:            2,
				Reopt:                 cfg.Reopt,
				Kpts1D:                cfg.Kpts1D,
				Memcheck:              cfg.Memcheck,
				MaxMemMB:              cfg.MaxMemMB,
				CustomParams:          cfg.CustomParams,
				WriteFormattedDensity: cfg.WriteFormattedDensity,
				ConvCutoffs:           cfg.ConvCutoffs,
				ConvKpts:              cfg.ConvKpts,
				CellOptions:           map[string]any{},
				ParamOptions:          map[string]any{},
				RunChild:              runChild,
				Logger:                logger,
				Metrics:               mx,
			},
		}

		cleanup := func() {
			if computeDir == nil {
				return
			}
			_ = computeDir.CopyBack(seed)
			_ = computeDir.RemoveIfFinished()
		}
		return driver, cleanup
	}

	pool := batch.NewPool(coord, newDriver, concurrency, mx)
	results, err := pool.Run(ctx, seeds)
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Printf("%s: skipped (already claimed)\n", r.Seed)
		case r.Err != nil:
			fmt.Printf("%s: %s (%v)\n", r.Seed, r.Result.Outcome, r.Err)
		default:
			fmt.Printf("%s: %s\n", r.Seed, r.Result.Outcome)
		}
	}
	return err
}

// discoverSeeds lists every <seed>.res file directly in dir that is not
// currently locked, in deterministic order.
func discoverSeeds(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.res"))
	if err != nil {
		return nil, fmt.Errorf("relaxdrv: glob seeds: %w", err)
	}
	coord := workspace.New(dir)
	var seeds []string
	for _, m := range matches {
		seed := strings.TrimSuffix(filepath.Base(m), ".res")
		if coord.Locked(seed) {
			continue
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}
