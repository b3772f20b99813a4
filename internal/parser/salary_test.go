package parser

import (
	"math"
	"testing"
)

func TestNormalizeReportedSalary(t *testing.T) {
	t.Parallel()

	got := NormalizeReportedSalary(34300, DefaultSalaryOverhead)
	want := 34300 / (1.223 * 14 / 11)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("want=%v got=%v", want, got)
	}
	if math.Abs(got-22035.6) > 1 {
		t.Fatalf("unexpected base %v", got)
	}
}

func TestInferSalaries_PrefixLookup(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{"WP1", "Gestão", "Ana Silva - Investigadora", 34300},
		{nil, nil, "Total", 99999},
		{nil, nil, "Rui Alves", 0.5},
	})
	idx, _ := InferSalaries("RH", g, NewCodeColumnLayout(), DefaultSalaryOverhead)

	want := NormalizeReportedSalary(34300, DefaultSalaryOverhead)
	for _, name := range []string{"Ana Silva - Investigadora", "  ana silva - investigadora ", "Ana Silva", "Ana Silva - Bolseira"} {
		got, ok := idx.Lookup(name)
		if !ok || math.Abs(got-want) > 1e-9 {
			t.Fatalf("lookup %q want=%v got=%v ok=%v", name, want, got, ok)
		}
	}
	if _, ok := idx.Lookup("Total"); ok {
		t.Fatalf("aggregate row must not be indexed")
	}
	if _, ok := idx.Lookup("Rui Alves"); ok {
		t.Fatalf("allocation fraction must not be read as salary")
	}
}

func TestInferSalaries_LastWriteWins(t *testing.T) {
	t.Parallel()

	g := NewGrid([][]any{
		{"WP1", "Gestão", "Ana Silva", 30000},
		{nil, nil, "Ana Silva", 34300},
	})
	idx, _ := InferSalaries("RH", g, nil, 0)
	got, _ := idx.Lookup("ana silva")
	if math.Abs(got-NormalizeReportedSalary(34300, DefaultSalaryOverhead)) > 1e-9 {
		t.Fatalf("expected last row to win, got %v", got)
	}
}
