package docmodel

import "testing"

func validStruct() *StructDoc {
	return &StructDoc{
		AtomTypes:     []string{"Na", "Cl"},
		PositionsFrac: [][3]float64{{0, 0, 0}, {0.5, 0.5, 0.5}},
		LatticeCart:   [3][3]float64{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}},
		LatticeABC:    [2][3]float64{{5, 5, 5}, {90, 90, 90}},
		Source:        []string{"NaCl.res"},
	}
}

func TestValidate_RequiresSingleSource(t *testing.T) {
	s := validStruct()
	s.Source = nil
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for missing source")
	}

	s.Source = []string{"a.res", "b.res"}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for multi-element source")
	}

	s.Source = []string{"NaCl.res"}
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	s := validStruct()
	s.Extra = map[string]any{"enthalpy": -123.4}
	clone := s.Clone()

	clone.AtomTypes[0] = "K"
	clone.Extra["enthalpy"] = 0.0

	if s.AtomTypes[0] != "Na" {
		t.Error("mutating clone.AtomTypes affected the original")
	}
	if s.Extra["enthalpy"] != -123.4 {
		t.Error("mutating clone.Extra affected the original")
	}
}

func TestNewCalcDoc_StripsStructuralKeysFromCellOptions(t *testing.T) {
	s := validStruct()
	cell := map[string]any{
		"atom_types":     []string{"K", "F"}, // must never leak in
		"lattice_cart":   [3][3]float64{},
		"geom_max_iter":  50,
		"cut_off_energy": 400.0,
	}

	calc, err := NewCalcDoc(s, cell, nil)
	if err != nil {
		t.Fatalf("NewCalcDoc: %v", err)
	}

	for _, key := range StructuralKeys() {
		if _, present := calc.CellOptions[key]; present {
			t.Errorf("structural key %q leaked into CellOptions", key)
		}
	}
	if got := calc.AtomTypes[0]; got != "Na" {
		t.Errorf("CalcDoc.AtomTypes[0] = %q, want Na (from the structure, not cell options)", got)
	}
	if calc.GeomMaxIter != 50 {
		t.Errorf("GeomMaxIter = %d, want 50", calc.GeomMaxIter)
	}
}

func TestNewCalcDoc_RequiresPositiveGeomMaxIter(t *testing.T) {
	s := validStruct()
	if _, err := NewCalcDoc(s, map[string]any{}, nil); err == nil {
		t.Fatal("expected error when geom_max_iter is absent")
	}
	if _, err := NewCalcDoc(s, map[string]any{"geom_max_iter": 0}, nil); err == nil {
		t.Fatal("expected error when geom_max_iter is zero")
	}
}

func TestStripRederivedKeys(t *testing.T) {
	in := map[string]any{
		"kpoints_mp_spacing": 0.05,
		"optimised":          true,
		"species_pot":        "ultrasoft",
	}
	out := StripRederivedKeys(in)
	if _, present := out["kpoints_mp_spacing"]; present {
		t.Error("kpoints_mp_spacing should have been stripped")
	}
	if _, present := out["species_pot"]; present {
		t.Error("species_pot should have been stripped")
	}
	if got, ok := out["optimised"].(bool); !ok || !got {
		t.Error("optimised should survive the strip")
	}
	// in must be untouched.
	if _, present := in["kpoints_mp_spacing"]; !present {
		t.Error("StripRederivedKeys must not mutate its input")
	}
}

func TestMergeExtra_SourceWins(t *testing.T) {
	s := validStruct()
	calc, err := NewCalcDoc(s, map[string]any{"geom_max_iter": 10}, nil)
	if err != nil {
		t.Fatalf("NewCalcDoc: %v", err)
	}
	calc.Extra = map[string]any{"enthalpy_per_atom": -1.0}
	calc.MergeExtra(map[string]any{"enthalpy_per_atom": -2.0, "pressure": 0.1})

	if calc.Extra["enthalpy_per_atom"] != -2.0 {
		t.Errorf("enthalpy_per_atom = %v, want the merged-in value -2.0", calc.Extra["enthalpy_per_atom"])
	}
	if calc.Extra["pressure"] != 0.1 {
		t.Errorf("pressure = %v, want 0.1", calc.Extra["pressure"])
	}
}
