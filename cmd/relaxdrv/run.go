package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/AJMGroup/matador-go/internal/codec"
	"github.com/AJMGroup/matador-go/internal/config"
	"github.com/AJMGroup/matador-go/internal/launcher"
	"github.com/AJMGroup/matador-go/internal/relax"
	"github.com/AJMGroup/matador-go/internal/workspace"
)

// newCodec builds the Codec collaborator relaxdrv links against. The real
// CASTEP cell/param/result scrapers are an external collaborator out of
// scope for this core (spec §1 Non-goals); relaxdrv ships the deterministic
// Fake so the binary still runs end to end against scripted fixtures. A
// production deployment replaces this with a real codec.Codec and rebuilds.
var newCodec = func() codec.Codec { return codec.NewFake() }

func runRelax(ctx context.Context) error {
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
	mx := startMetrics(flagMetricsAddr)

	logger, err := newStdLogger(dir, flagSeed, cfg.Verbosity)
	if err != nil {
		return err
	}
	defer logger.Close()

	lock, err := coord.Claim(flagSeed)
	if err != nil {
		return fmt.Errorf("relaxdrv: seed %s already claimed: %w", flagSeed, err)
	}
	defer lock.Release()

	computeDir, err := coord.SetupComputeDir(cfg.ComputeDir)
	if err != nil {
		return err
	}
	if computeDir != nil {
		if err := computeDir.CopyPseudopotentials(flagSeed, cfg.CustomParams); err != nil {
			return err
		}
		defer func() {
			_ = computeDir.CopyBack(flagSeed)
			_ = computeDir.RemoveIfFinished()
		}()
	}

	mpiLib, err := resolveMPILibrary(logger.Warnf)
	if err != nil {
		return err
	}

	selfTestSpec, err := launcher.SelfTest(launcher.Spec{
		ExecutableTemplate: flagExecutable,
		Library:            mpiLib,
		Cores:              cfg.NCores,
		Nodes:              1,
		RemoteNode:         cfg.RemoteNode,
		Dir:                runDir(dir, computeDir),
	}, selfTestInvoke)
	if err != nil {
		return fmt.Errorf("relaxdrv: %w", err)
	}
	cfg.NCores = selfTestSpec.Cores

	runChild := newRunChild(runDir(dir, computeDir), mpiLib, cfg.NCores, cfg.RemoteNode, cfg.Redirect, cfg.PollTime, cfg.MaxWalltime, logger.Warnf)

	driver := &relax.Driver{
		Codec:     newCodec(),
		Workspace: coord,
		Seed:      flagSeed,
		Dir:       runDir(dir, computeDir),
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

	resPath := flagSeed + ".res"
	result, rerr := driver.Run(resPath)
	if rerr != nil {
		return rerr
	}

	fmt.Printf("%s: %s\n", flagSeed, result.Outcome)
	if result.Outcome != relax.Optimised {
		os.Exit(1)
	}
	return nil
}

func runDir(root string, cd *workspace.ComputeDir) string {
	if cd != nil {
		return cd.Path
	}
	return root
}

func resolveConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return cfg, err
	}

	cfg.Executable = flagExecutable
	cfg.Mode = flagMode
	cfg.NCores = flagNCores
	cfg.NProcesses = flagNProcesses
	cfg.CustomParams = flagCustomParams
	cfg.Memcheck = flagMemcheck
	cfg.MaxMemMB = flagMaxMem
	cfg.Reopt = flagReopt
	cfg.Kpts1D = flagKpts1D
	cfg.WriteFormattedDensity = flagDenFmt
	cfg.ConvCutoffs = flagConvCutoff
	cfg.ConvKpts = flagConvKpt
	cfg.Redirect = flagRedirect
	cfg.ComputeDir = flagComputeDir
	cfg.Verbosity = flagVerbosity

	if flagMaxWalltime != "" {
		d, err := time.ParseDuration(flagMaxWalltime)
		if err != nil {
			return cfg, fmt.Errorf("relaxdrv: --max-walltime: %w", err)
		}
		cfg.MaxWalltime = d
	}
	if flagPollTime != "" {
		d, err := time.ParseDuration(flagPollTime)
		if err != nil {
			return cfg, fmt.Errorf("relaxdrv: --polltime: %w", err)
		}
		cfg.PollTime = d
	}
	return cfg, nil
}
