// Package codec declares the interface the core consumes for reading and
// writing simulator file formats (spec §6). The core treats every
// implementation as an opaque collaborator: the cell/param/result scrapers
// and writers themselves are out of scope (spec §1) and never implemented
// here beyond a deterministic fake used by the core's own tests.
package codec

import "github.com/AJMGroup/matador-go/internal/docmodel"

// Codec is the full external interface the core depends on.
type Codec interface {
	// ParseStructure reads a .res file into a StructDoc.
	ParseStructure(path string) (*docmodel.StructDoc, error)

	// ParseSimulatorLog scrapes a .castep-style log into a result map. A
	// partial parse must not panic: it returns success=false and the core
	// must tolerate that outcome (spec §6).
	ParseSimulatorLog(path string, verbose bool) (result map[string]any, success bool)

	// ParseCellOutput scrapes a high-precision <seed>-out.cell file.
	ParseCellOutput(path string, positions, lattice bool) (map[string]any, error)

	// WriteStructure writes doc as a .res file.
	WriteStructure(doc *docmodel.StructDoc, seed string, hashDupe bool) error
	// WriteCell writes doc as a .cell file.
	WriteCell(doc *docmodel.CalcDoc, seed string, copyPspots bool, spin *float64, hashDupe bool) error
	// WriteParameters writes doc as a .param file.
	WriteParameters(doc *docmodel.CalcDoc, seed string, spin *float64, hashDupe bool) error

	// VerifyCalculationParameters raises InputError-shaped errors for
	// contradictory parameter combinations.
	VerifyCalculationParameters(calc *docmodel.CalcDoc) error
	// VerifySimulationCell raises InputError-shaped errors for unphysical
	// cells.
	VerifySimulationCell(s *docmodel.StructDoc) error
}
