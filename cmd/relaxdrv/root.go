package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagSeed         string
	flagNCores       int
	flagNProcesses   int
	flagMaxWalltime  string
	flagExecutable   string
	flagMode         string
	flagCustomParams bool
	flagMemcheck     bool
	flagMaxMem       int
	flagArcher       bool
	flagSlurm        bool
	flagIntel        bool
	flagConvCutoff   []float64
	flagConvKpt      []float64
	flagRedirect     string
	flagComputeDir   string
	flagPollTime     string
	flagReopt        bool
	flagKpts1D       bool
	flagDenFmt       bool
	flagVerbosity    int
	flagConfigFile   string
	flagMetricsAddr  string
)

// rootCmd is the base command: relaxdrv <seed> [flags].
var rootCmd = &cobra.Command{
	Use:   "relaxdrv <seed>",
	Short: "Geometry-optimisation driver for a CASTEP-family simulator",
	Long: `relaxdrv runs one structure relaxation to convergence, retrying
through an escalating rough/fine iteration schedule and applying
error-classifier remedies between attempts.

It is the single-structure primitive the batch worker pool (relaxdrv batch)
fans out across a shared working directory.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flagSeed = args[0]
		return runRelax(cmd.Context())
	},
}

// Execute runs the root command and exits non-zero on any error, including a
// propagated FatalExecutorError/WalltimeHit/InputError (spec §7).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfigFile, "config", "", "project YAML config file (lowest precedence)")
	flags.IntVar(&flagNCores, "ncores", 1, "cores per simulator invocation")
	flags.IntVar(&flagNProcesses, "nprocesses", 1, "concurrent worker processes (batch mode only)")
	flags.StringVar(&flagMaxWalltime, "max-walltime", "", "wall-clock budget, e.g. 3h30m (empty disables the check)")
	flags.StringVar(&flagExecutable, "executable", "castep", "executable template; $seed substitutes the seed name")
	flags.StringVar(&flagMode, "mode", "castep", `driver mode: "castep" or "generic"`)
	flags.BoolVar(&flagCustomParams, "custom-params", false, "never overwrite an existing .param file")
	flags.BoolVar(&flagMemcheck, "memcheck", false, "run a dryrun memory-budget check before every structure")
	flags.IntVar(&flagMaxMem, "maxmem", 0, "memory budget in MB, required when --memcheck is set")
	flags.BoolVar(&flagArcher, "archer", false, "assert the archer (aprun) MPI launcher")
	flags.BoolVar(&flagSlurm, "slurm", false, "assert the slurm (srun) MPI launcher")
	flags.BoolVar(&flagIntel, "intel", false, "assert the Intel MPI launcher")
	flags.Float64SliceVar(&flagConvCutoff, "conv-cutoff", nil, "cutoff energies for the convergence-test sub-mode")
	flags.Float64SliceVar(&flagConvKpt, "conv-kpt", nil, "k-point spacings for the convergence-test sub-mode")
	flags.StringVar(&flagRedirect, "redirect", "", "stdout redirect filename template; $seed substitutes the seed name")
	flags.StringVar(&flagComputeDir, "compute-dir", "", "per-host scratch directory the simulator runs in")
	flags.StringVar(&flagPollTime, "polltime", "30s", "supervisor poll interval")
	flags.BoolVar(&flagReopt, "reopt", false, "require one extra converged fine-grained pass before declaring success")
	flags.BoolVar(&flagKpts1D, "kpts-1d", false, "recompute a 1D k-point grid from kpoints_mp_spacing each step")
	flags.BoolVar(&flagDenFmt, "write-formatted-density", false, "request a formatted electron density dump and keep .den_fmt on completion")
	flags.IntVar(&flagVerbosity, "verbosity", 1, "stdout log verbosity, 0 (errors only) to 3 (debug)")
	flags.StringVar(&flagMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics at http://<addr>/metrics")

	rootCmd.AddCommand(batchCmd)
}
