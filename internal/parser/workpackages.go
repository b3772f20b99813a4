package parser

import (
	"fmt"
	"strings"

	"planimport/internal/model"
)

// WorkPackageOptions 工作包抽取参数
type WorkPackageOptions struct {
	Header         HeaderOptions
	Layout         BlockLayout
	Matcher        *IdentityMatcher // 为 nil 时不做身份匹配
	SalaryOverhead float64
}

// DefaultWorkPackageOptions 默认参数
func DefaultWorkPackageOptions() WorkPackageOptions {
	return WorkPackageOptions{
		Header:         DefaultHeaderOptions(),
		Layout:         NewCodeColumnLayout(),
		SalaryOverhead: DefaultSalaryOverhead,
	}
}

// WorkPackageResult 单个 Sheet 的工作包抽取结果
type WorkPackageResult struct {
	Sheet        string              `json:"sheet"`
	Header       *MonthHeader        `json:"header,omitempty"`
	WorkPackages []model.WorkPackage `json:"workPackages"`
	Salaries     SalaryIndex         `json:"-"`
	Findings     Findings            `json:"findings,omitempty"`
}

// ResourceCount 资源行总数
func (r WorkPackageResult) ResourceCount() int {
	n := 0
	for _, wp := range r.WorkPackages {
		n += len(wp.Resources)
	}
	return n
}

// ParseWorkPackages 从网格中抽取工作包块、任务与资源占用
// 找不到块起始行时返回空结果，不视为错误
func ParseWorkPackages(sheet string, g Grid, opts WorkPackageOptions) WorkPackageResult {
	if opts.Layout == nil {
		opts.Layout = NewCodeColumnLayout()
	}
	if opts.Header.MinDateCells == 0 {
		opts.Header = DefaultHeaderOptions()
	}

	res := WorkPackageResult{Sheet: sheet}

	header, ok := FindMonthHeader(g, opts.Header)
	if ok {
		res.Header = &header
	} else {
		res.Findings.warn(FacetWorkPackages, sheet, 0, "未找到月份表头行")
	}

	salaries, salaryFindings := InferSalaries(sheet, g, opts.Layout, opts.SalaryOverhead)
	res.Salaries = salaries
	res.Findings = append(res.Findings, salaryFindings...)

	var (
		current *model.WorkPackage
		anchor  BlockAnchor
		byName  map[string]int
	)
	flush := func() {
		if current != nil {
			res.WorkPackages = append(res.WorkPackages, *current)
		}
	}

	for r, row := range g {
		if res.Header != nil && r == res.Header.Row {
			continue
		}
		if a, ok := opts.Layout.BlockStart(row); ok {
			flush()
			anchor = a
			name := a.Name
			if name == "" {
				name = a.Code
			}
			current = &model.WorkPackage{
				Code:        a.Code,
				Name:        name,
				SourceSheet: sheet,
				SourceRow:   r + 1,
			}
			byName = make(map[string]int)
		}
		if current == nil {
			continue
		}

		label := g.At(r, anchor.ResourceCol).String()
		if IsAggregateRow(label) {
			if label != "" {
				res.Findings.info(FacetWorkPackages, sheet, r+1, fmt.Sprintf("跳过汇总行: %s", label))
			}
			continue
		}
		if isTaskLabel(label) {
			current.Tasks = append(current.Tasks, parseTask(label, r+1))
			continue
		}

		allocations := rowAllocations(row, res.Header)
		if len(allocations) == 0 {
			continue
		}

		key := NormalizeName(label)
		if i, dup := byName[key]; dup {
			merged, clashes := mergeAllocations(current.Resources[i].Allocations, allocations)
			current.Resources[i].Allocations = merged
			if clashes > 0 {
				res.Findings.warn(FacetWorkPackages, sheet, r+1,
					fmt.Sprintf("资源 %s 在 %s 中重复出现，%d 个月份保留首个值", label, current.Code, clashes))
			}
			continue
		}

		resource := model.Resource{
			DisplayName: label,
			Allocations: allocations,
			SourceRow:   r + 1,
		}
		if opts.Matcher != nil {
			resource.IdentityID = opts.Matcher.Match(label)
			if resource.IdentityID == nil {
				res.Findings.warn(FacetIdentities, sheet, r+1, fmt.Sprintf("资源未匹配到身份: %s", label))
			}
		}
		if base, ok := salaries.Lookup(label); ok {
			b := base
			resource.MonthlySalaryBase = &b
		}
		byName[key] = len(current.Resources)
		current.Resources = append(current.Resources, resource)
	}
	flush()

	if len(res.WorkPackages) == 0 {
		res.Findings.info(FacetWorkPackages, sheet, 0, "未找到工作包块")
	}
	return res
}

// rowAllocations 月份列中 0 < v <= 1 的数字记为占用，其他值忽略
func rowAllocations(row []Cell, header *MonthHeader) []model.MonthlyAllocation {
	if header == nil {
		return nil
	}
	var out []model.MonthlyAllocation
	seen := make(map[[2]int]bool)
	for _, mc := range header.Columns {
		if mc.Index >= len(row) {
			continue
		}
		v, ok := row[mc.Index].Float()
		if !ok || v <= 0 || v > 1 {
			continue
		}
		k := [2]int{mc.Year, mc.Month}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, model.MonthlyAllocation{Month: mc.Month, Year: mc.Year, FractionOfFullTime: v})
	}
	return out
}

func mergeAllocations(base, extra []model.MonthlyAllocation) ([]model.MonthlyAllocation, int) {
	seen := make(map[[2]int]bool, len(base))
	for _, a := range base {
		seen[[2]int{a.Year, a.Month}] = true
	}
	clashes := 0
	for _, a := range extra {
		k := [2]int{a.Year, a.Month}
		if seen[k] {
			clashes++
			continue
		}
		seen[k] = true
		base = append(base, a)
	}
	return base, clashes
}

func parseTask(label string, row int) model.Task {
	label = strings.TrimSpace(label)
	fields := strings.SplitN(label, " ", 2)
	t := model.Task{Code: fields[0], Name: label, SourceRow: row}
	if len(fields) == 2 {
		t.Name = strings.TrimLeft(strings.TrimSpace(fields[1]), "-–: ")
	}
	return t
}
