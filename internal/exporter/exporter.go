// Package exporter 把已持久化的项目计划导出为 xlsx
package exporter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"planimport/internal/model"
	"planimport/internal/parser"
)

// Sheet 名称与导入识别使用的关键词保持一致，导出文件可以重新导入
const (
	SheetSummary    = "Resumo"
	SheetAllocation = "Afetação RH"
	SheetSubmitted  = "Afetação submetida"
	SheetMaterials  = "Materiais"
)

// Source 导出所需的读取能力
type Source interface {
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	LoadGraph(ctx context.Context, projectID string) (model.ProjectGraph, error)
	Tasks(ctx context.Context, projectID string) (map[string][]model.Task, error)
	Materials(ctx context.Context, projectID string) ([]model.Material, error)
	Snapshot(ctx context.Context, projectID string) (*model.ApprovedSnapshot, error)
}

// Exporter 项目计划导出器
//
// 占用表沿用导入时的块布局：A 列代码、B 列名称、C 列资源、D 列起为月份
type Exporter struct {
	source Source
}

// NewExporter 创建导出器
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// ExportOptions 导出选项
type ExportOptions struct {
	ProjectID string
	Progress  func(ProgressEvent)
}

// Export 导出 Excel
func (e *Exporter) Export(ctx context.Context, opts ExportOptions) (*excelize.File, error) {
	project, err := e.source.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return nil, err
	}
	graph, err := e.source.LoadGraph(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("读取项目图失败: %w", err)
	}
	tasks, err := e.source.Tasks(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("读取任务失败: %w", err)
	}
	materials, err := e.source.Materials(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("读取物料失败: %w", err)
	}
	snap, err := e.source.Snapshot(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("读取审批快照失败: %w", err)
	}
	reportProgress(opts.Progress, 10, "loaded")

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		_ = f.Close()
		return nil, err
	}
	monthStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("mm/yyyy")})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("创建月份样式失败: %w", err)
	}

	if err := writeSummary(f, project, graph, materials, snap); err != nil {
		_ = f.Close()
		return nil, err
	}
	reportProgress(opts.Progress, 30, "summary")

	if err := writeAllocations(f, SheetAllocation, graph, tasks, monthStyle); err != nil {
		_ = f.Close()
		return nil, err
	}
	reportProgress(opts.Progress, 60, "allocations")

	if snap != nil {
		if err := writeAllocations(f, SheetSubmitted, snap.Graph, nil, monthStyle); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	reportProgress(opts.Progress, 80, "submitted")

	if err := writeMaterials(f, materials); err != nil {
		_ = f.Close()
		return nil, err
	}
	reportProgress(opts.Progress, 100, "done")

	f.SetActiveSheet(0)
	return f, nil
}

func writeSummary(f *excelize.File, p *model.Project, g model.ProjectGraph, materials []model.Material, snap *model.ApprovedSnapshot) error {
	rows := [][]any{
		{"Nome do projeto", p.Name},
		{"Estado", string(p.Status)},
		{"Tipologia", p.FundingType},
		{"Taxa de financiamento", percentCell(p.FundingRatePercent)},
		{"Custos indiretos", percentCell(p.OverheadPercent)},
		{"Valor ETI", floatCell(p.ETIUnitValue)},
		{"Data de início", dateCell(p.StartDate)},
		{"Data de fim", dateCell(p.EndDate)},
		{"Ficheiro de origem", p.SourceFile},
	}

	resources := 0
	for _, wp := range g.WorkPackages {
		resources += len(wp.Resources)
	}
	total := decimal.Zero
	for _, m := range materials {
		total = total.Add(m.Total())
	}
	rows = append(rows,
		[]any{"Atividades", len(g.WorkPackages)},
		[]any{"Recursos", resources},
		[]any{"Custo de materiais", total.Round(2).InexactFloat64()},
	)
	if snap != nil {
		rows = append(rows, []any{"Aprovado em", snap.TakenAt.Format("2006-01-02 15:04:05")})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return fmt.Errorf("写入汇总表失败: %w", err)
		}
	}
	return f.SetColWidth(SheetSummary, "A", "A", 24)
}

type monthKey struct{ year, month int }

// graphMonths 图中出现过的全部月份，按时间排序
func graphMonths(g model.ProjectGraph) []monthKey {
	seen := make(map[monthKey]bool)
	var out []monthKey
	for _, wp := range g.WorkPackages {
		for _, r := range wp.Resources {
			for _, a := range r.Allocations {
				k := monthKey{a.Year, a.Month}
				if !seen[k] {
					seen[k] = true
					out = append(out, k)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].year != out[j].year {
			return out[i].year < out[j].year
		}
		return out[i].month < out[j].month
	})
	return out
}

func writeAllocations(f *excelize.File, sheet string, g model.ProjectGraph, tasks map[string][]model.Task, monthStyle int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("创建 Sheet %s 失败: %w", sheet, err)
	}
	months := graphMonths(g)
	col := make(map[monthKey]int, len(months))
	const firstMonthCol = 4

	for i, m := range months {
		col[m] = firstMonthCol + i
		cell, _ := excelize.CoordinatesToCellName(firstMonthCol+i, 1)
		if err := f.SetCellValue(sheet, cell, parser.EncodeSerial(m.month, m.year)); err != nil {
			return err
		}
	}
	if len(months) > 0 {
		from, _ := excelize.CoordinatesToCellName(firstMonthCol, 1)
		to, _ := excelize.CoordinatesToCellName(firstMonthCol+len(months)-1, 1)
		if err := f.SetCellStyle(sheet, from, to, monthStyle); err != nil {
			return err
		}
	}

	row := 2
	set := func(c int, v any) error {
		cell, _ := excelize.CoordinatesToCellName(c, row)
		return f.SetCellValue(sheet, cell, v)
	}
	for _, wp := range g.WorkPackages {
		if err := set(1, wp.Code); err != nil {
			return err
		}
		if err := set(2, wp.Name); err != nil {
			return err
		}
		row++

		totals := make(map[monthKey]decimal.Decimal)
		for _, r := range wp.Resources {
			if err := set(3, r.DisplayName); err != nil {
				return err
			}
			for _, a := range r.Allocations {
				k := monthKey{a.Year, a.Month}
				totals[k] = totals[k].Add(a.Fraction)
				if err := set(col[k], a.Fraction.InexactFloat64()); err != nil {
					return err
				}
			}
			row++
		}
		for _, t := range tasks[wp.ID] {
			if err := set(3, t.Code+" "+t.Name); err != nil {
				return err
			}
			row++
		}
		if len(totals) > 0 {
			if err := set(3, "Total "+wp.Code); err != nil {
				return err
			}
			for k, v := range totals {
				if err := set(col[k], v.InexactFloat64()); err != nil {
					return err
				}
			}
			row++
		}
	}
	return f.SetColWidth(sheet, "B", "C", 28)
}

func writeMaterials(f *excelize.File, materials []model.Material) error {
	if _, err := f.NewSheet(SheetMaterials); err != nil {
		return fmt.Errorf("创建 Sheet %s 失败: %w", SheetMaterials, err)
	}
	header := []any{"Designação", "Preço unitário", "Quantidade", "Ano", "Rubrica", "Atividade", "Valor total"}
	if err := f.SetSheetRow(SheetMaterials, "A1", &header); err != nil {
		return err
	}
	for i, m := range materials {
		row := []any{
			m.Name,
			m.UnitPrice.InexactFloat64(),
			m.Quantity,
			m.UsageYear,
			string(m.Category),
			m.AssignedCode,
			m.Total().Round(2).InexactFloat64(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetMaterials, cell, &row); err != nil {
			return fmt.Errorf("写入物料失败: %w", err)
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func percentCell(v *float64) any {
	if v == nil {
		return nil
	}
	return decimal.NewFromFloat(*v).Div(decimal.NewFromInt(100)).InexactFloat64()
}

func floatCell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func dateCell(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}
