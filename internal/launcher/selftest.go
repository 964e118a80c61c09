package launcher

import "strings"

// castepVersionMagic is the string the self-test expects to see on stdout.
const castepVersionMagic = "CASTEP version"

// notEnoughSlotsMarker is the stderr substring that triggers a halve-and-retry.
const notEnoughSlotsMarker = "not enough slots"

// Invoke runs one child and returns its captured stdout/stderr. Tests
// substitute this to avoid spawning a real binary.
type Invoke func(spec Spec) (stdout, stderr string, err error)

// SelfTest performs the one-shot `<executable> --version` self-test
// described in spec §4.1, halving cores on a "not enough slots" failure
// until cores would drop below 1, at which point it fails fatally. Any
// other non-matching output is ErrExecutableMissing.
func SelfTest(base Spec, invoke Invoke) (Spec, error) {
	spec := base
	spec.ExecutableTemplate = base.ExecutableTemplate + " --version"

	for {
		cores := coresOrOne(spec.Cores)
		spec.Cores = cores

		stdout, stderr, err := invoke(spec)
		if err == nil && strings.Contains(stdout, castepVersionMagic) {
			return spec, nil
		}
		if strings.Contains(stderr, notEnoughSlotsMarker) {
			if cores <= 1 {
				return spec, ErrInsufficientSlots
			}
			spec.Cores = cores / 2
			continue
		}
		return spec, ErrExecutableMissing
	}
}
