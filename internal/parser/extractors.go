package parser

import (
	"fmt"
	"strings"
	"time"

	"planimport/internal/model"
)

var (
	projectNameLabels  = []string{"nome do projeto", "designação do projeto", "título do projeto", "project name", "projeto", "project"}
	projectStartLabels = []string{"data de início", "data de inicio", "início do projeto", "start date", "start"}
	projectEndLabels   = []string{"data de fim", "data de conclusão", "fim do projeto", "end date", "end"}

	fundingTypeLabels = []string{"tipologia", "tipo de financiamento", "programa", "funding type"}
	fundingRateLabels = []string{"taxa de financiamento", "taxa de cofinanciamento", "taxa de comparticipação", "funding rate"}
	overheadLabels    = []string{"custos indiretos", "overhead", "taxa de overhead"}

	etiLabels = []string{"valor eti", "valor do eti", "eti unit value", "eti"}
)

// labelHit 标签所在位置与其右侧的值
type labelHit struct {
	Row   int
	Value Cell
}

// findLabel 按标签优先级查找 "标签: 值" 形式的单元格对；标签需与单元格完全相同或以其开头
func findLabel(g Grid, labels []string, accept func(Cell) bool) (labelHit, bool) {
	for _, label := range labels {
		for r, row := range g {
			for col, c := range row {
				if c.IsNumber() {
					continue
				}
				text := normalizeLabel(c.String())
				if text != label && !strings.HasPrefix(text, label+" ") && !strings.HasPrefix(text, label+":") {
					continue
				}
				v, _, ok := nextValue(row, col)
				if !ok {
					continue
				}
				if accept != nil && !accept(v) {
					continue
				}
				return labelHit{Row: r, Value: v}, true
			}
		}
	}
	return labelHit{}, false
}

// MetadataResult 项目元数据抽取结果
type MetadataResult struct {
	Metadata model.ProjectMetadata `json:"metadata"`
	Found    bool                  `json:"found"`
	Findings Findings              `json:"findings,omitempty"`
}

// ExtractMetadata 抽取项目名称与起止日期
func ExtractMetadata(sheet string, g Grid, floor float64) MetadataResult {
	var res MetadataResult
	isText := func(c Cell) bool { return !c.IsNumber() }
	isDate := func(c Cell) bool { _, ok := parseDate(c, floor); return ok }

	if hit, ok := findLabel(g, projectNameLabels, isText); ok {
		name := hit.Value.String()
		res.Metadata.Name = &name
		res.Found = true
	}
	if hit, ok := findLabel(g, projectStartLabels, isDate); ok {
		t, _ := parseDate(hit.Value, floor)
		res.Metadata.ProjectStart = &t
		res.Found = true
	}
	if hit, ok := findLabel(g, projectEndLabels, isDate); ok {
		t, _ := parseDate(hit.Value, floor)
		res.Metadata.ProjectEnd = &t
		res.Found = true
	}
	if !res.Found {
		res.Findings.info(FacetMetadata, sheet, 0, "未找到项目元数据")
	}
	return res
}

// FundingResult 资助参数抽取结果
type FundingResult struct {
	FundingType        *string  `json:"fundingType,omitempty"`
	FundingRatePercent *float64 `json:"fundingRatePercent,omitempty"`
	OverheadPercent    *float64 `json:"overheadPercent,omitempty"`
	Found              bool     `json:"found"`
	Findings           Findings `json:"findings,omitempty"`
}

// ExtractFunding 抽取资助类型、资助比例与间接费用比例
func ExtractFunding(sheet string, g Grid) FundingResult {
	var res FundingResult
	isText := func(c Cell) bool { return !c.IsNumber() }
	isPercent := func(c Cell) bool { v, ok := parsePercent(c); return ok && v >= 0 && v <= 100 }

	if hit, ok := findLabel(g, fundingTypeLabels, isText); ok {
		v := hit.Value.String()
		res.FundingType = &v
		res.Found = true
	}
	if hit, ok := findLabel(g, fundingRateLabels, isPercent); ok {
		v, _ := parsePercent(hit.Value)
		res.FundingRatePercent = &v
		res.Found = true
	}
	if hit, ok := findLabel(g, overheadLabels, isPercent); ok {
		v, _ := parsePercent(hit.Value)
		res.OverheadPercent = &v
		res.Found = true
	}
	if !res.Found {
		res.Findings.info(FacetFunding, sheet, 0, "未找到资助参数")
	}
	return res
}

// ETIResult ETI 单价抽取结果
type ETIResult struct {
	Value    *float64 `json:"value,omitempty"`
	Findings Findings `json:"findings,omitempty"`
}

// ExtractETI 抽取 ETI 单价（必须为正数）
func ExtractETI(sheet string, g Grid) ETIResult {
	var res ETIResult
	positive := func(c Cell) bool { v, ok := parseNumber(c); return ok && v > 0 }
	if hit, ok := findLabel(g, etiLabels, positive); ok {
		v, _ := parseNumber(hit.Value)
		res.Value = &v
		return res
	}
	res.Findings.info(FacetETI, sheet, 0, "未找到 ETI 单价")
	return res
}

// MergeMetadata 按先到先得合并各 Sheet 的元数据与资助参数
func MergeMetadata(metas []MetadataResult, fundings []FundingResult, etis []ETIResult) model.ProjectMetadata {
	var out model.ProjectMetadata
	for _, m := range metas {
		if out.Name == nil {
			out.Name = m.Metadata.Name
		}
		if out.ProjectStart == nil {
			out.ProjectStart = m.Metadata.ProjectStart
		}
		if out.ProjectEnd == nil {
			out.ProjectEnd = m.Metadata.ProjectEnd
		}
	}
	for _, f := range fundings {
		if out.FundingType == nil {
			out.FundingType = f.FundingType
		}
		if out.FundingRatePercent == nil {
			out.FundingRatePercent = f.FundingRatePercent
		}
		if out.OverheadPercent == nil {
			out.OverheadPercent = f.OverheadPercent
		}
	}
	for _, e := range etis {
		if out.ETIUnitValue == nil {
			out.ETIUnitValue = e.Value
		}
	}
	return out
}

func describeDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

// SummarizeMetadata 用于导入日志的一行摘要
func SummarizeMetadata(m model.ProjectMetadata) string {
	name := "-"
	if m.Name != nil {
		name = *m.Name
	}
	return fmt.Sprintf("项目 %s (%s ~ %s)", name, describeDate(m.ProjectStart), describeDate(m.ProjectEnd))
}
