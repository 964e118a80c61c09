package relax

import (
	"time"

	"github.com/AJMGroup/matador-go/internal/errclass"
	"github.com/AJMGroup/matador-go/internal/metrics"
	"github.com/AJMGroup/matador-go/internal/schedule"
)

// Mode selects the driver's top-level behaviour (spec §4.4 "Modes").
type Mode string

const (
	ModeCastep  Mode = "castep"
	ModeGeneric Mode = "generic"
)

// Logger is the minimal logging surface the driver needs: WARN for every
// local failure, ERROR for every global failure, both mirrored to stdout at
// the caller's verbosity and to a per-seed DEBUG sink (spec §7). Grounded on
// the teacher's verbosity-gated VerbosePrintf rather than a logging
// framework (SPEC_FULL §1).
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards everything; useful as a test default.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// ChildOutcome is what RunChild reports about one completed or
// prematurely-ended child invocation.
type ChildOutcome int

const (
	ChildFinished ChildOutcome = iota
	ChildWalltimeExpired
	ChildStaleOutput
	ChildOutputMissing
	ChildKillSwitch
)

// RunChild launches one child for numIter iterations and supervises it to
// completion, returning its exit code (meaningful only when Outcome is
// ChildFinished) and how it ended. It is the driver's only dependency on
// the launcher/supervisor components (C1/C2), kept as a function value so
// tests script process behaviour without touching the OS.
type RunChild func(seed string, numIter int) (exitCode int, outcome ChildOutcome, err error)

// Options configures one Driver invocation. There is no global/ambient
// configuration; every field here must be set explicitly by the caller
// (spec §9 design notes).
type Options struct {
	Mode Mode

	Rough, RoughIter, FineIter int
	GeomMethod                 string

	MaxRetries int // default 2 (spec §4.4 step 6)

	Reopt  bool
	Kpts1D bool

	Memcheck bool
	MaxMemMB int

	CustomParams bool

	// InitialSpin breaks spin symmetry on the very first iteration of a
	// fresh structure if non-nil (supplemented `spin` kwarg, SPEC_FULL §3).
	InitialSpin *float64
	// PositionNoise perturbs starting positions before the first launch if
	// non-zero (supplemented `noise` kwarg, SPEC_FULL §3).
	PositionNoise float64

	// CompletedDir nests completed/<dir>/ for this run, used by the
	// convergence-test sub-mode; empty means completed/ directly.
	CompletedDir string
	// KeepIntermediates controls the mv_to_completed keep flag.
	KeepIntermediates bool
	// WriteFormattedDensity gates the .den_fmt suffix in the short
	// whitelist applied when KeepIntermediates is false (spec §4.5).
	WriteFormattedDensity bool

	// ConvCutoffs/ConvKpts select the convergence-test sub-mode when
	// non-empty (spec §4.4 "Convergence-test sub-mode").
	ConvCutoffs []float64
	ConvKpts    []float64

	// CellOptions/ParamOptions are the simulator parameter maps supplied by
	// the caller (batch layer), merged into the structure to form the
	// CalcDoc during pre-flight (spec §3, §4.4).
	CellOptions, ParamOptions map[string]any

	RunChild RunChild
	Logger   Logger

	// Metrics, if non-nil, receives per-seed counters for remedy retries and
	// walltime kills (domain stack; internal/batch increments the
	// claim/optimised/failed counters at the pool level).
	Metrics *metrics.Collectors
}

func (o Options) schedulePolicy(residual int) schedule.Policy {
	return schedule.Policy{
		Rough:      o.Rough,
		RoughIter:  o.RoughIter,
		FineIter:   o.FineIter,
		GeomMethod: o.GeomMethod,
		MaxIter:    residual,
	}
}

func (o Options) maxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 2
}

func (o Options) logger() Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return NopLogger{}
}

// deadlineNow is overridable in tests; production code leaves it as
// time.Now.
var deadlineNow = time.Now

// remedyKind is a package-local alias for errclass.RemedyKind.
type remedyKind = errclass.RemedyKind
