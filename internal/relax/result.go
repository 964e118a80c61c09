package relax

import "github.com/AJMGroup/matador-go/internal/docmodel"

// Outcome is the driver's public result tag (spec §4.4 "Public contract").
// Optimised, StructureFailed, and MaxMemoryExceeded are local; WalltimeHit
// and FatalExecutorError are global.
type Outcome int

const (
	Optimised Outcome = iota
	StructureFailed
	WalltimeHit
	FatalExecutorError
	MaxMemoryExceeded
)

func (o Outcome) String() string {
	switch o {
	case Optimised:
		return "Optimised"
	case StructureFailed:
		return "StructureFailed"
	case WalltimeHit:
		return "WalltimeHit"
	case FatalExecutorError:
		return "FatalExecutorError"
	case MaxMemoryExceeded:
		return "MaxMemoryExceeded"
	default:
		return "Unknown"
	}
}

// Result is what Run returns on every path, success or failure.
type Result struct {
	Outcome Outcome
	Doc     *docmodel.CalcDoc // set when Outcome == Optimised
	Reason  string            // set for StructureFailed
}

func kindToOutcome(k FailureKind) Outcome {
	switch k {
	case KindStructureFailed:
		return StructureFailed
	case KindWalltimeHit:
		return WalltimeHit
	case KindMaxMemoryExceeded:
		return MaxMemoryExceeded
	default:
		return FatalExecutorError
	}
}
