package launcher

import "errors"

// Sentinel errors for the launcher package. Grounded on the teacher's
// internal/rpi/errors.go sentinel-per-failure-mode style, so callers can
// distinguish causes with errors.Is.
var (
	// ErrExecutableMissing is raised when the self-test invocation produces
	// output that does not match the expected magic string (spec §4.1).
	ErrExecutableMissing = errors.New("launcher: executable self-test failed")

	// ErrMPIMismatch is raised when the caller asserted an MPI library that
	// contradicts auto-detection, for the libraries where that is fatal
	// (archer, intel) rather than just a warning (slurm).
	ErrMPIMismatch = errors.New("launcher: asserted MPI library contradicts detection")

	// ErrMPIDetectionFailed is raised when no MPI launcher could be found at
	// all during auto-detection.
	ErrMPIDetectionFailed = errors.New("launcher: could not auto-detect MPI library")

	// ErrInsufficientSlots is raised when the self-test cannot recover by
	// halving cores because cores is already 1.
	ErrInsufficientSlots = errors.New("launcher: not enough MPI slots even at cores=1")
)
