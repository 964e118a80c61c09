package relax

import (
	"github.com/AJMGroup/matador-go/internal/docmodel"
	"github.com/AJMGroup/matador-go/internal/errclass"
)

func classify(d *Driver, exitCode int) (errclass.Result, error) {
	return errclass.Classify(d.errFS(), d.Dir, d.Seed, exitCode)
}

func applyRemedy(kind errclass.RemedyKind, calc *docmodel.CalcDoc) {
	errclass.ApplyRemedy(kind, calc)
}
