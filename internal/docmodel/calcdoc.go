package docmodel

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for docmodel validation. Callers match with errors.Is.
var (
	ErrInvalidStructDoc = errors.New("invalid structure document")
	ErrInvalidCalcDoc   = errors.New("invalid calculation document")
)

// CalcDoc is a StructDoc merged with simulator cell and parameter options.
// The zero value is not usable; construct via NewCalcDoc.
type CalcDoc struct {
	StructDoc

	Task            string   `yaml:"task"`
	GeomMaxIter     int      `yaml:"geom_max_iter"`
	KpointsMPSpacing *float64 `yaml:"kpoints_mp_spacing,omitempty"`
	KpointsMPGrid    *[3]int  `yaml:"kpoints_mp_grid,omitempty"`
	KpointsMPOffset  *[3]float64 `yaml:"kpoints_mp_offset,omitempty"`

	CellOptions  map[string]any `yaml:"-"`
	ParamOptions map[string]any `yaml:"-"`
}

// NewCalcDoc merges struct, cell options, and param options into a CalcDoc,
// enforcing the cell-option purity invariant (spec §3, §8.4): the
// structural keys (atom_types, positions_frac, positions_abs, lattice_cart,
// lattice_abc) are always taken from the struct and stripped from the cell
// options before merge, regardless of what the cell options contain.
func NewCalcDoc(s *StructDoc, cellOptions, paramOptions map[string]any) (*CalcDoc, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil structure", ErrInvalidCalcDoc)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	cell := stripStructuralKeys(cellOptions)

	cd := &CalcDoc{
		StructDoc:    *s.Clone(),
		Task:         strings.ToUpper(stringOpt(cell, "task", stringOpt(paramOptions, "task", ""))),
		CellOptions:  cell,
		ParamOptions: cloneExtra(paramOptions),
	}

	if v, ok := intOpt(paramOptions, "geom_max_iter"); ok {
		cd.GeomMaxIter = v
	} else if v, ok := intOpt(cell, "geom_max_iter"); ok {
		cd.GeomMaxIter = v
	}
	if cd.GeomMaxIter <= 0 {
		return nil, fmt.Errorf("%w: geom_max_iter must be positive, got %d", ErrInvalidCalcDoc, cd.GeomMaxIter)
	}

	if v, ok := floatOpt(cell, "kpoints_mp_spacing"); ok {
		cd.KpointsMPSpacing = &v
	}

	return cd, nil
}

// stripStructuralKeys returns a shallow copy of opts with the structural
// keys removed, so they can never leak into a CalcDoc from the cell side.
func stripStructuralKeys(opts map[string]any) map[string]any {
	out := cloneExtra(opts)
	if out == nil {
		out = map[string]any{}
	}
	for _, k := range structuralKeys {
		delete(out, k)
	}
	return out
}

func stringOpt(m map[string]any, key, def string) string {
	if m == nil {
		return def
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func intOpt(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func floatOpt(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// rederivedKeys are stripped from a scrape result before it is merged back
// into the live CalcDoc (spec §4.4 step 8): they must be recomputed each
// step, not carried forward from a prior output file.
var rederivedKeys = []string{
	"kpoints_mp_spacing", "kpoints_mp_grid", "species_pot", "sedc_apply", "sedc_scheme",
}

// StripRederivedKeys removes the keys the driver must recompute every
// iteration from a freshly scraped result map.
func StripRederivedKeys(m map[string]any) map[string]any {
	out := cloneExtra(m)
	for _, k := range rederivedKeys {
		delete(out, k)
	}
	return out
}

// MergeExtra merges src into the CalcDoc's residual map, src taking
// precedence on key collision (spec §4.4 step 11: "merge opti_dict into
// calc_doc").
func (c *CalcDoc) MergeExtra(src map[string]any) {
	if c.Extra == nil {
		c.Extra = map[string]any{}
	}
	for k, v := range src {
		c.Extra[k] = v
	}
}
