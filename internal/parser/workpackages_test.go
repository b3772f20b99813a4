package parser

import (
	"testing"

	"planimport/internal/model"
)

func TestParseWorkPackages_SingleBlock(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{nil, nil, nil, 44562, 44593},
		{"WP1", "Work Package One", "Ana Silva", 0.5, 0.3},
	})
	opts := DefaultWorkPackageOptions()
	opts.Matcher = NewIdentityMatcher([]model.Identity{{ID: "a1", Name: "Ana Silva"}}, 0)

	res := ParseWorkPackages("RH", g, opts)
	if len(res.WorkPackages) != 1 {
		t.Fatalf("want 1 work package got %d", len(res.WorkPackages))
	}
	wp := res.WorkPackages[0]
	if wp.Code != "WP1" || wp.Name != "Work Package One" {
		t.Fatalf("unexpected work package %+v", wp)
	}
	if len(wp.Resources) != 1 {
		t.Fatalf("want 1 resource got %d", len(wp.Resources))
	}
	r := wp.Resources[0]
	if r.IdentityID == nil || *r.IdentityID != "a1" {
		t.Fatalf("resource not bound: %+v", r)
	}
	want := []model.MonthlyAllocation{
		{Month: 1, Year: 2022, FractionOfFullTime: 0.5},
		{Month: 2, Year: 2022, FractionOfFullTime: 0.3},
	}
	if len(r.Allocations) != len(want) {
		t.Fatalf("allocations want=%v got=%v", want, r.Allocations)
	}
	for i := range want {
		if r.Allocations[i] != want[i] {
			t.Fatalf("allocation %d want=%v got=%v", i, want[i], r.Allocations[i])
		}
	}
}

func TestParseWorkPackages_AllocationBounds(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{nil, nil, nil, 45292, 45323, 45352, 45383, 45413},
		{"A1", "Gestão", "Rui Alves", 0, 1.5, -0.2, 0.31, 1.0},
	})
	res := ParseWorkPackages("RH", g, DefaultWorkPackageOptions())
	allocs := res.WorkPackages[0].Resources[0].Allocations
	if len(allocs) != 2 {
		t.Fatalf("want 2 allocations got %v", allocs)
	}
	if allocs[0].FractionOfFullTime != 0.31 || allocs[0].Month != 4 {
		t.Fatalf("unexpected first allocation %+v", allocs[0])
	}
	if allocs[1].FractionOfFullTime != 1.0 || allocs[1].Month != 5 {
		t.Fatalf("unexpected second allocation %+v", allocs[1])
	}
}

func TestParseWorkPackages_MultipleBlocksTasksAndNoise(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{"Plano", nil, nil, 2024, 2025, 2026},
		{nil, nil, nil, 45292, 45323, 45352},
		{"WP1", "Gestão", nil},
		{nil, nil, "T1.1 Coordenação"},
		{nil, nil, "Ana Silva - Investigadora", 34300},
		{nil, nil, "Ana Silva - Investigadora", 0.2, 0.2},
		{nil, nil, "Contratado 3", 0.5},
		{nil, nil, "Total", 0.7, 0.2},
		{"WP2", "Desenvolvimento", "Rui Alves", nil, 0.4, 0.4},
		{nil, nil, "Células cinza", 1},
	})
	opts := DefaultWorkPackageOptions()
	opts.Matcher = NewIdentityMatcher([]model.Identity{{ID: "a1", Name: "Ana Silva"}, {ID: "r1", Name: "Rui Alves"}}, 0)
	res := ParseWorkPackages("RH", g, opts)

	if len(res.WorkPackages) != 2 {
		t.Fatalf("want 2 work packages got %d", len(res.WorkPackages))
	}
	wp1 := res.WorkPackages[0]
	if len(wp1.Tasks) != 1 || wp1.Tasks[0].Code != "T1.1" || wp1.Tasks[0].Name != "Coordenação" {
		t.Fatalf("unexpected tasks %+v", wp1.Tasks)
	}
	if len(wp1.Resources) != 2 {
		t.Fatalf("wp1 want 2 resources got %+v", wp1.Resources)
	}
	ana := wp1.Resources[0]
	if ana.IdentityID == nil || *ana.IdentityID != "a1" {
		t.Fatalf("ana not bound: %+v", ana)
	}
	if ana.MonthlySalaryBase == nil {
		t.Fatalf("ana salary not inferred")
	}
	placeholder := wp1.Resources[1]
	if placeholder.IdentityID != nil {
		t.Fatalf("placeholder must stay unbound")
	}

	wp2 := res.WorkPackages[1]
	if wp2.Name != "Desenvolvimento" || len(wp2.Resources) != 1 || len(wp2.Resources[0].Allocations) != 2 {
		t.Fatalf("unexpected wp2 %+v", wp2)
	}
	if len(res.Findings.ByFacet(FacetIdentities)) != 1 {
		t.Fatalf("expected one unmatched identity finding, got %+v", res.Findings)
	}
}

func TestParseWorkPackages_NoBlocksIsEmpty(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{"Nome do projeto", "Projeto X"},
		{nil, nil, 45292, 45323, 45352},
	})
	res := ParseWorkPackages("Resumo", g, DefaultWorkPackageOptions())
	if len(res.WorkPackages) != 0 {
		t.Fatalf("expected no work packages, got %+v", res.WorkPackages)
	}
	if len(res.Findings.ByFacet(FacetWorkPackages)) == 0 {
		t.Fatalf("expected a finding describing the absence")
	}
}

func TestParseWorkPackages_DuplicateResourceMerged(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{nil, nil, nil, 45292, 45323, 45352},
		{"WP1", "Gestão", "Ana Silva", 0.5},
		{nil, nil, "ana silva", 0.1, 0.2},
	})
	res := ParseWorkPackages("RH", g, DefaultWorkPackageOptions())
	rs := res.WorkPackages[0].Resources
	if len(rs) != 1 {
		t.Fatalf("want merged resource, got %d", len(rs))
	}
	if len(rs[0].Allocations) != 2 || rs[0].Allocations[0].FractionOfFullTime != 0.5 {
		t.Fatalf("unexpected merged allocations %+v", rs[0].Allocations)
	}
	if len(res.Findings.Warnings()) != 1 {
		t.Fatalf("expected duplicate warning, got %+v", res.Findings)
	}
}
