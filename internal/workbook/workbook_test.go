package workbook

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "RH"); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	values := map[string]any{
		"A1": "WP1",
		"B1": "Gestão",
		"D1": 45809,
		"E1": 45839,
		"C2": "Ana Silva",
		"D2": 0.5,
		"E2": "2025",
	}
	for cell, v := range values {
		if err := f.SetCellValue("RH", cell, v); err != nil {
			t.Fatalf("set %s: %v", cell, err)
		}
	}
	if _, err := f.NewSheet("Materiais"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	if err := f.SetCellValue("Materiais", "A1", "Designação"); err != nil {
		t.Fatalf("set: %v", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf
}

func TestGrid_NumbersTextAndEmpty(t *testing.T) {
	t.Parallel()
	wb, err := OpenReader(buildWorkbook(t))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer wb.Close()

	if names := wb.SheetNames(); len(names) != 2 || names[0] != "RH" || names[1] != "Materiais" {
		t.Fatalf("unexpected sheets: %v", names)
	}

	g, err := wb.Grid("RH")
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	if got := g.At(0, 0).String(); got != "WP1" {
		t.Fatalf("want=WP1 got=%q", got)
	}
	if v, ok := g.At(0, 3).Float(); !ok || v != 45809 {
		t.Fatalf("want serial 45809 got=%v ok=%v", v, ok)
	}
	if v, ok := g.At(1, 3).Float(); !ok || v != 0.5 {
		t.Fatalf("want=0.5 got=%v ok=%v", v, ok)
	}
	if g.At(1, 4).IsNumber() {
		t.Fatalf("text cell \"2025\" must stay text")
	}
	if !g.At(1, 0).IsEmpty() {
		t.Fatalf("want empty cell at A2")
	}
}

func TestGrids_AllSheets(t *testing.T) {
	t.Parallel()
	wb, err := OpenReader(buildWorkbook(t))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer wb.Close()

	grids, err := wb.Grids()
	if err != nil {
		t.Fatalf("Grids: %v", err)
	}
	if len(grids) != 2 || grids[1].Name != "Materiais" || grids[1].Grid.At(0, 0).String() != "Designação" {
		t.Fatalf("unexpected grids: %+v", grids)
	}
}

func TestGrid_MissingSheet(t *testing.T) {
	t.Parallel()
	wb, err := OpenReader(buildWorkbook(t))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer wb.Close()
	if _, err := wb.Grid("nope"); err == nil {
		t.Fatalf("want error for missing sheet")
	}
}
