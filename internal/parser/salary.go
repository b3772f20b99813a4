package parser

import (
	"fmt"
	"strings"
)

const (
	// DefaultSalaryOverhead 雇主负担系数
	DefaultSalaryOverhead = 1.223
	salaryPayments        = 14.0
	salaryBaseMonths      = 11.0
)

// SalaryIndex 规范化姓名 -> 月薪基数
type SalaryIndex map[string]float64

// NormalizeReportedSalary 年化成本折算为月薪基数：reported / (overhead * 14 / 11)
func NormalizeReportedSalary(reported, overhead float64) float64 {
	if overhead <= 0 {
		overhead = DefaultSalaryOverhead
	}
	return reported / (overhead * salaryPayments / salaryBaseMonths)
}

// Lookup 先按完整规范化名查找，再按 " - " / "-" 前缀查找
func (idx SalaryIndex) Lookup(name string) (float64, bool) {
	for _, key := range salaryKeys(name) {
		if v, ok := idx[key]; ok {
			return v, true
		}
	}
	return 0, false
}

func (idx SalaryIndex) put(name string, base float64) {
	for _, key := range salaryKeys(name) {
		idx[key] = base
	}
}

func salaryKeys(name string) []string {
	full := NormalizeName(name)
	if full == "" {
		return nil
	}
	keys := []string{full}
	for _, sep := range []string{" - ", "-"} {
		if i := strings.Index(full, sep); i > 0 {
			prefix := strings.TrimSpace(full[:i])
			if prefix != "" && prefix != full {
				keys = append(keys, prefix)
			}
			break
		}
	}
	return keys
}

// InferSalaries 在同一 Sheet 中查找资源名旁边带正数成本的行，构建月薪索引
//
// 成本值必须大于 1，以免把占用比例当作薪资；同名多行后写覆盖
func InferSalaries(sheet string, g Grid, layout BlockLayout, overhead float64) (SalaryIndex, Findings) {
	var findings Findings
	idx := make(SalaryIndex)
	if layout == nil {
		layout = NewCodeColumnLayout()
	}

	resourceCol := -1
	for r, row := range g {
		if anchor, ok := layout.BlockStart(row); ok {
			resourceCol = anchor.ResourceCol
		}
		if resourceCol < 0 {
			continue
		}
		name := g.At(r, resourceCol).String()
		if IsAggregateRow(name) || isTaskLabel(name) {
			continue
		}
		reported, ok := g.At(r, resourceCol+1).Float()
		if !ok || reported <= 1 {
			continue
		}
		idx.put(name, NormalizeReportedSalary(reported, overhead))
	}

	if len(idx) == 0 {
		findings.info(FacetSalaries, sheet, 0, "未找到薪资行")
	} else {
		findings.info(FacetSalaries, sheet, 0, fmt.Sprintf("识别薪资 %d 项", len(idx)))
	}
	return idx, findings
}
