package parser

import (
	"testing"

	"planimport/internal/model"
)

func TestExtractMetadata(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{"Nome do projeto:", nil, "Plataforma Atlântica"},
		{"Data de início", 45292},
		{"Data de fim", "31/12/2026"},
	})
	res := ExtractMetadata("Projeto", g, DefaultDateSerialFloor)
	if !res.Found {
		t.Fatalf("expected metadata")
	}
	if res.Metadata.Name == nil || *res.Metadata.Name != "Plataforma Atlântica" {
		t.Fatalf("unexpected name %v", res.Metadata.Name)
	}
	if res.Metadata.ProjectStart == nil || res.Metadata.ProjectStart.Format("2006-01-02") != "2024-01-01" {
		t.Fatalf("unexpected start %v", res.Metadata.ProjectStart)
	}
	if res.Metadata.ProjectEnd == nil || res.Metadata.ProjectEnd.Format("2006-01-02") != "2026-12-31" {
		t.Fatalf("unexpected end %v", res.Metadata.ProjectEnd)
	}
}

func TestExtractMetadata_AbsentIsNotError(t *testing.T) {
	t.Parallel()

	res := ExtractMetadata("Vazio", NewGrid(nil), DefaultDateSerialFloor)
	if res.Found || res.Metadata.Name != nil {
		t.Fatalf("expected empty metadata, got %+v", res)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("expected one finding, got %+v", res.Findings)
	}
}

func TestExtractFundingAndETI(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{"Tipologia", "I&D Empresas"},
		{"Taxa de financiamento", 0.85},
		{"Custos indiretos", "25%"},
		{"Valor ETI", "2.750,00"},
	})
	f := ExtractFunding("Financiamento", g)
	if f.FundingType == nil || *f.FundingType != "I&D Empresas" {
		t.Fatalf("unexpected funding type %v", f.FundingType)
	}
	if f.FundingRatePercent == nil || *f.FundingRatePercent != 85 {
		t.Fatalf("unexpected funding rate %v", f.FundingRatePercent)
	}
	if f.OverheadPercent == nil || *f.OverheadPercent != 25 {
		t.Fatalf("unexpected overhead %v", f.OverheadPercent)
	}
	e := ExtractETI("Financiamento", g)
	if e.Value == nil || *e.Value != 2750 {
		t.Fatalf("unexpected eti %v", e.Value)
	}

	merged := MergeMetadata(nil, []FundingResult{f}, []ETIResult{e})
	if merged.ETIUnitValue == nil || merged.FundingType == nil {
		t.Fatalf("merge lost fields: %+v", merged)
	}
}

func TestExtractMaterials(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{"Lista de aquisições"},
		{"Designação", "Rubrica", "Preço unitário", "Quantidade", "Ano", "Atividade"},
		{"Osciloscópio", "Equipamento", 1200.5, 2, 2025, "WP2 - Desenvolvimento"},
		{"Licença CAD", "Software", "350,00", nil, 2025, "A3"},
		{"Reagentes", "Consumíveis", "n/d", 1, 2025, "WP1"},
		{"Deslocação Lisboa", "Viagens", 80, 1.5, 2026, "WP1"},
		{"Total", nil, 9999},
		{"Outro", "???", 10, 1, nil, nil},
	})
	res := ExtractMaterials("Materiais", g)
	if !res.Found {
		t.Fatalf("expected header")
	}
	if len(res.Materials) != 3 {
		t.Fatalf("want 3 materials got %d: %+v", len(res.Materials), res.Materials)
	}
	m := res.Materials[0]
	if m.Name != "Osciloscópio" || m.Quantity != 2 || m.UsageYear != 2025 || m.Category != model.MaterialInstruments {
		t.Fatalf("unexpected first material %+v", m)
	}
	if m.UnitPrice.String() != "1200.5" || m.WorkPackageRef != "WP2 - Desenvolvimento" {
		t.Fatalf("unexpected price/ref %s %s", m.UnitPrice, m.WorkPackageRef)
	}
	if res.Materials[1].Quantity != 1 || res.Materials[1].Category != model.MaterialSoftware || res.Materials[1].UnitPrice.String() != "350" {
		t.Fatalf("unexpected second material %+v", res.Materials[1])
	}
	if res.Materials[2].Category != model.MaterialOther {
		t.Fatalf("unknown category must map to other")
	}
	if len(res.Findings.Warnings()) != 2 {
		t.Fatalf("expected 2 skipped rows, got %+v", res.Findings)
	}
}

func TestMapMaterialCategory(t *testing.T) {
	t.Parallel()

	cases := map[string]model.MaterialCategory{
		"Instrumentos e equipamento": model.MaterialInstruments,
		"Consumíveis":                model.MaterialConsumables,
		"Licenças de software":       model.MaterialSoftware,
		"Aquisição de serviços":      model.MaterialServices,
		"Deslocações":                model.MaterialTravel,
		"":                           model.MaterialOther,
	}
	for in, want := range cases {
		if got := MapMaterialCategory(in); got != want {
			t.Fatalf("%q want=%s got=%s", in, want, got)
		}
	}
}

func TestSummarizeMetadata(t *testing.T) {
	t.Parallel()

	name := "Plataforma Atlântica"
	start := SerialToTime(45292)
	got := SummarizeMetadata(model.ProjectMetadata{Name: &name, ProjectStart: &start})
	if want := "项目 Plataforma Atlântica (2024-01-01 ~ -)"; got != want {
		t.Fatalf("want=%q got=%q", want, got)
	}
	if got := SummarizeMetadata(model.ProjectMetadata{}); got != "项目 - (- ~ -)" {
		t.Fatalf("empty metadata summary got=%q", got)
	}
}
