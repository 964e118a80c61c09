package main

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/AJMGroup/matador-go/internal/launcher"
	"github.com/AJMGroup/matador-go/internal/relax"
	"github.com/AJMGroup/matador-go/internal/supervisor"
)

// newRunChild composes the launcher (C1) and supervisor (C2) components into
// the single closure relax.Driver needs to run one child to completion
// (spec §6's external-interface boundary between the core and the OS).
func newRunChild(dir string, lib launcher.MPILibrary, cores int, remoteNode, redirect string, pollTime, maxWalltime time.Duration, logf func(string, ...any)) relax.RunChild {
	return func(seed string, numIter int) (int, relax.ChildOutcome, error) {
		spec := launcher.Spec{
			ExecutableTemplate: flagExecutable,
			Seed:               seed,
			Library:            lib,
			Cores:              cores,
			Nodes:              1,
			RemoteNode:         remoteNode,
			RedirectTemplate:   redirect,
			Dir:                dir,
		}

		handle, err := launcher.Launch(spec)
		if err != nil {
			return 0, relax.ChildFinished, err
		}
		launchTime := time.Now()

		child := supervisor.Child{Poll: handle.Poll, Wait: handle.Wait, Terminate: handle.Terminate}
		cfg := supervisor.Config{
			PollTime:   pollTime,
			OutputPath: filepath.Join(dir, seed+".castep"),
			KillPath:   filepath.Join(dir, seed+".kill"),
			LaunchTime: launchTime,
			Deadline:   supervisor.Deadline{Start: launchTime, Max: maxWalltime},
		}

		res, serr := supervisor.Supervise(child, cfg)
		if serr != nil {
			return 0, relax.ChildFinished, serr
		}

		switch res.Outcome {
		case supervisor.Finished:
			return res.ExitCode, relax.ChildFinished, nil
		case supervisor.WalltimeExpired:
			logf("seed %s: walltime deadline reached, terminating", seed)
			_ = supervisor.Terminate(child)
			return 0, relax.ChildWalltimeExpired, nil
		case supervisor.StaleOutput:
			_ = supervisor.Terminate(child)
			return 0, relax.ChildStaleOutput, nil
		case supervisor.OutputMissing:
			_ = supervisor.Terminate(child)
			return 0, relax.ChildOutputMissing, nil
		case supervisor.KillSwitch:
			logf("seed %s: kill switch observed, terminating", seed)
			_ = supervisor.Terminate(child)
			return 0, relax.ChildKillSwitch, nil
		default:
			return 0, relax.ChildFinished, nil
		}
	}
}

// resolveMPILibrary turns the mutually-describing --archer/--slurm/--intel
// assertion flags into an MPILibrary and reconciles it against runtime
// detection, per spec §4.1.
func resolveMPILibrary(warn func(string)) (launcher.MPILibrary, error) {
	asserted := launcher.MPILibrary("")
	switch {
	case flagArcher:
		asserted = launcher.MPIArcher
	case flagSlurm:
		asserted = launcher.MPISlurm
	case flagIntel:
		asserted = launcher.MPIIntel
	}

	detected, err := launcher.DetectMPILibrary(runProbe)
	if err != nil {
		if asserted != "" {
			return asserted, nil
		}
		return launcher.MPIDefault, nil
	}

	if err := launcher.ReconcileAssertion(asserted, detected, warn); err != nil {
		return "", err
	}
	if asserted != "" {
		return asserted, nil
	}
	return detected, nil
}

func runProbe(name string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.Output()
	return string(out), "", err
}

// selfTestInvoke is the launcher.Invoke relaxdrv wires into launcher.SelfTest:
// it wraps the `--version` spec the same way a real iteration would (via
// WrapMPI), but runs synchronously and captures both streams.
func selfTestInvoke(spec launcher.Spec) (stdout, stderr string, err error) {
	argv := strings.Fields(spec.ExecutableTemplate)
	if len(argv) == 0 {
		return "", "", fmt.Errorf("relaxdrv: empty executable template")
	}
	argv = launcher.WrapMPI(argv, spec.Library, spec.Cores, spec.Nodes, spec.RemoteNode, spec.Dir)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}
