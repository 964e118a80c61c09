package codec

import (
	"fmt"
	"sync"

	"github.com/AJMGroup/matador-go/internal/docmodel"
)

// Fake is a deterministic in-memory Codec used by the core's own tests. It
// never touches CASTEP's real file formats; it only exercises the
// documented (path, flags) -> (doc, success) contract so relax/supervisor/
// workspace tests can drive the driver state machine without a real
// simulator binary.
type Fake struct {
	mu sync.Mutex

	// Structures seeds the result of ParseStructure, keyed by path.
	Structures map[string]*docmodel.StructDoc

	// LogResults scripts ParseSimulatorLog by call count for a given path:
	// the Nth call (0-indexed) to a given path returns LogResults[path][N].
	// If N is beyond the slice, the last entry repeats.
	LogResults map[string][]LogResult

	// CellOutputs scripts ParseCellOutput by path.
	CellOutputs map[string]map[string]any

	// VerifyErr, when non-nil, is returned by both Verify* calls.
	VerifyErr error

	writes     []string
	callCounts map[string]int
}

// LogResult is one scripted outcome for a simulator-log scrape.
type LogResult struct {
	Data    map[string]any
	Success bool
}

// NewFake returns an empty Fake ready for a test to populate.
func NewFake() *Fake {
	return &Fake{
		Structures:  map[string]*docmodel.StructDoc{},
		LogResults:  map[string][]LogResult{},
		CellOutputs: map[string]map[string]any{},
		callCounts:  map[string]int{},
	}
}

func (f *Fake) ParseStructure(path string) (*docmodel.StructDoc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.Structures[path]
	if !ok {
		return nil, fmt.Errorf("fake codec: no structure scripted for %s", path)
	}
	return doc.Clone(), nil
}

func (f *Fake) ParseSimulatorLog(path string, verbose bool) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := f.LogResults[path]
	if len(results) == 0 {
		return nil, false
	}
	n := f.callCounts[path]
	f.callCounts[path] = n + 1
	if n >= len(results) {
		n = len(results) - 1
	}
	r := results[n]
	return cloneMap(r.Data), r.Success
}

func (f *Fake) ParseCellOutput(path string, positions, lattice bool) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.CellOutputs[path]
	if !ok {
		return nil, fmt.Errorf("fake codec: no cell output scripted for %s", path)
	}
	return cloneMap(out), nil
}

func (f *Fake) WriteStructure(doc *docmodel.StructDoc, seed string, hashDupe bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, seed+".res")
	return nil
}

func (f *Fake) WriteCell(doc *docmodel.CalcDoc, seed string, copyPspots bool, spin *float64, hashDupe bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, seed+".cell")
	return nil
}

func (f *Fake) WriteParameters(doc *docmodel.CalcDoc, seed string, spin *float64, hashDupe bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, seed+".param")
	return nil
}

func (f *Fake) VerifyCalculationParameters(calc *docmodel.CalcDoc) error {
	return f.VerifyErr
}

func (f *Fake) VerifySimulationCell(s *docmodel.StructDoc) error {
	return f.VerifyErr
}

// Writes returns every file the fake was asked to write, in call order.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Codec = (*Fake)(nil)
