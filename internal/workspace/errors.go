package workspace

import "errors"

// Sentinel errors for the workspace package, matched with errors.Is.
var (
	// ErrAlreadyClaimed is returned by Claim when another worker already
	// holds the seed's lock file.
	ErrAlreadyClaimed = errors.New("workspace: seed already claimed")

	// ErrComputeDirNested is returned when a configured compute_dir is a
	// descendant of root, which the protocol forbids.
	ErrComputeDirNested = errors.New("workspace: compute_dir must not be nested under root")
)
