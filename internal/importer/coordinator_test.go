package importer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"planimport/internal/parser"
	"planimport/internal/store"
)

// writePlanWorkbook 生成包含元数据、人力资源与物料三个 Sheet 的工作簿
func writePlanWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	set := func(sheet string, cells map[string]any) {
		for cell, v := range cells {
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("set %s!%s: %v", sheet, cell, err)
			}
		}
	}

	if err := f.SetSheetName("Sheet1", "Dados gerais"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	set("Dados gerais", map[string]any{
		"A1": "Nome do projeto", "B1": "Projeto Alfa",
		"A2": "Taxa de financiamento", "B2": 0.85,
		"A3": "Valor ETI", "B3": 2500,
	})

	for _, name := range []string{"Afetação RH", "Materiais"} {
		if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet %s: %v", name, err)
		}
	}
	set("Afetação RH", map[string]any{
		"D1": 45658, "E1": 45689, "F1": 45717,
		"A2": "WP1", "B2": "Gestão", "C2": "Ana Silva", "D2": 0.5, "E2": 0.5, "F2": 0.5,
		"C3": "Contratado 7", "D3": 0.3,
		"A4": "WP2", "B4": "Desenvolvimento", "C4": "Ana Silva", "D4": 0.2,
	})
	set("Materiais", map[string]any{
		"A1": "Designação", "B1": "Preço unitário", "C1": "Quantidade", "D1": "Atividade",
		"A2": "Servidor", "B2": 1200, "C2": 2, "D2": "WP2",
	})

	path := filepath.Join(t.TempDir(), "alfa.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func drain(ch <-chan ProgressEvent) (report *parser.ImportReport, events []ProgressEvent) {
	for evt := range ch {
		events = append(events, evt)
		if evt.Type == "done" {
			report, _ = evt.Data.(*parser.ImportReport)
		}
	}
	return report, events
}

func TestImport_PersistsPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := store.New(filepath.Join(t.TempDir(), "plan.db"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if _, err := st.CreateIdentity(ctx, "Ana Silva"); err != nil {
		t.Fatalf("create identity: %v", err)
	}

	c := NewCoordinator(st, nil, DefaultOptions())
	report, events := drain(c.Import(ctx, ImportOptions{FilePath: writePlanWorkbook(t), Persist: true}))
	for _, evt := range events {
		if evt.Type == "error" {
			t.Fatalf("import error event: %s", evt.Message)
		}
	}
	if report == nil {
		t.Fatalf("missing done report")
	}

	if report.TotalSheets != 3 || report.ParsedSheets != 3 {
		t.Fatalf("unexpected sheet counts: total=%d parsed=%d sheets=%+v", report.TotalSheets, report.ParsedSheets, report.Sheets)
	}
	if report.WorkPackages != 2 || report.Resources != 3 || report.Materials != 1 {
		t.Fatalf("unexpected counts: wp=%d res=%d mat=%d", report.WorkPackages, report.Resources, report.Materials)
	}
	if len(report.UnmatchedResources) != 1 || report.UnmatchedResources[0] != "Contratado 7" {
		t.Fatalf("unexpected unmatched: %v", report.UnmatchedResources)
	}
	if report.ProjectID == "" {
		t.Fatalf("missing project id")
	}

	p, err := st.GetProject(ctx, report.ProjectID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Name != "Projeto Alfa" || p.ETIUnitValue == nil || *p.ETIUnitValue != 2500 {
		t.Fatalf("unexpected project: %+v", p)
	}
	if p.FundingRatePercent == nil || *p.FundingRatePercent != 85 {
		t.Fatalf("want funding rate 85 got=%v", p.FundingRatePercent)
	}

	materials, err := st.Materials(ctx, report.ProjectID)
	if err != nil {
		t.Fatalf("materials: %v", err)
	}
	if len(materials) != 1 || materials[0].AssignedCode != "WP2" || materials[0].UsageYear != 2025 {
		t.Fatalf("unexpected materials: %+v", materials)
	}

	logs, err := st.ListImportLogs(ctx, 5)
	if err != nil {
		t.Fatalf("import logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Status != "completed" || logs[0].ProjectID != report.ProjectID || logs[0].FileHash == "" {
		t.Fatalf("unexpected import log: %+v", logs)
	}
	metas, err := st.ListSheetMeta(ctx, logs[0].ID)
	if err != nil {
		t.Fatalf("sheet meta: %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("want=3 sheet meta got=%d", len(metas))
	}
}

func TestImport_WithoutStoreOnlyParses(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil, nil, DefaultOptions())
	report, _ := drain(c.Import(context.Background(), ImportOptions{FilePath: writePlanWorkbook(t), Persist: true}))
	if report == nil {
		t.Fatalf("missing done report")
	}
	if report.ProjectID != "" {
		t.Fatalf("want no project id got=%s", report.ProjectID)
	}
	// 没有已知身份时所有资源都未绑定
	if len(report.UnmatchedResources) != 2 {
		t.Fatalf("unexpected unmatched: %v", report.UnmatchedResources)
	}
}

func TestImport_MissingFileEmitsError(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil, nil, DefaultOptions())
	_, events := drain(c.Import(context.Background(), ImportOptions{FilePath: filepath.Join(t.TempDir(), "none.xlsx")}))
	last := events[len(events)-1]
	if last.Type != "error" {
		t.Fatalf("want error event got=%s (%s)", last.Type, last.Message)
	}
}

func TestParse_EmptyWorkbookReportsMissingFacets(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil, nil, DefaultOptions())
	out, err := c.Parse(context.Background(), []parser.NamedGrid{{Name: "Notas", Grid: parser.NewGrid([][]any{{"livre"}})}}, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Report.SkippedSheets != 1 || len(out.Plan.WorkPackages) != 0 {
		t.Fatalf("unexpected outcome: %+v", out.Report)
	}
	if len(out.Report.Findings.ByFacet(parser.FacetWorkPackages).Warnings()) != 1 {
		t.Fatalf("want missing work packages warning got=%+v", out.Report.Findings)
	}
}
