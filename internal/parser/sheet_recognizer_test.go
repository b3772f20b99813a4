package parser

import "testing"

func TestSheetRecognizer_Kinds(t *testing.T) {
	t.Parallel()

	r := NewSheetRecognizer(DefaultHeaderOptions())
	hr := NewGrid([][]any{
		{nil, nil, nil, 45292, 45323, 45352},
		{"WP1", "Gestão", "Ana Silva", 0.5},
	})
	materials := NewGrid([][]any{
		{"Designação", "Preço unitário", "Quantidade"},
		{"Portátil", 900, 2},
	})
	expect := []struct {
		name string
		grid Grid
		want SheetKind
	}{
		{"Afetação RH", hr, SheetKindHumanResources},
		{"Folha1", hr, SheetKindHumanResources},
		{"Equipamentos", materials, SheetKindMaterials},
		{"Financiamento", NewGrid(nil), SheetKindFunding},
		{"Dados gerais", NewGrid(nil), SheetKindMetadata},
		{"Notas", NewGrid([][]any{{"livre"}}), SheetKindUnknown},
	}
	for _, e := range expect {
		res := r.Recognize(e.name, e.grid)
		if res.Kind != e.want {
			t.Fatalf("sheet %s type mismatch: got=%s conf=%.2f want=%s", e.name, res.Kind, res.Confidence, e.want)
		}
	}
}
