package relax

import (
	"path/filepath"
	"testing"

	"github.com/AJMGroup/matador-go/internal/codec"
	"github.com/AJMGroup/matador-go/internal/docmodel"
	"github.com/AJMGroup/matador-go/internal/workspace"
)

func testStruct() *docmodel.StructDoc {
	return &docmodel.StructDoc{
		AtomTypes:     []string{"Na", "Cl"},
		PositionsFrac: [][3]float64{{0, 0, 0}, {0.5, 0.5, 0.5}},
		LatticeCart:   [3][3]float64{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}},
		LatticeABC:    [2][3]float64{{5, 5, 5}, {90, 90, 90}},
		Source:        []string{"NaCl.res"},
	}
}

// newTestDriver builds a Driver over a Fake codec and a real, temp-rooted
// Workspace, with CellOptions carrying the given geom_max_iter so preflight
// can build a CalcDoc without a real simulator input file.
func newTestDriver(t *testing.T, dir, seed string, geomMaxIter int) (*Driver, *codec.Fake) {
	t.Helper()
	fake := codec.NewFake()
	fake.Structures[seed+".res"] = testStruct()

	d := &Driver{
		Codec:     fake,
		Workspace: workspace.New(dir),
		Seed:      seed,
		Dir:       dir,
		FirstRun:  true,
		Options: Options{
			Mode:         ModeCastep,
			Rough:        1,
			RoughIter:    2,
			FineIter:     2,
			MaxRetries:   2,
			CellOptions:  map[string]any{"geom_max_iter": geomMaxIter},
			ParamOptions: map[string]any{},
			Logger:       NopLogger{},
		},
	}
	return d, fake
}

func castepLogPath(dir, seed string) string {
	return filepath.Join(dir, seed+".castep")
}
