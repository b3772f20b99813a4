// Package assembler 把各抽取器的结果合并为一棵工作包树，并推断缺失的起止日期
package assembler

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"planimport/internal/model"
	"planimport/internal/parser"
)

// Input 装配输入
type Input struct {
	Metadata     model.ProjectMetadata
	WorkPackages []model.WorkPackage // 按解析顺序
	Materials    []model.Material
}

// Result 装配结果
type Result struct {
	Plan     *model.Plan
	Findings parser.Findings
}

var materialCodeRe = regexp.MustCompile(`(?i)^\s*(A\d+)`)

// Assemble 合并工作包与物料，自下而上推断资源、工作包与项目的起止日期
func Assemble(in Input) Result {
	var findings parser.Findings
	plan := &model.Plan{
		Metadata:     in.Metadata,
		WorkPackages: make([]model.WorkPackage, len(in.WorkPackages)),
	}
	copy(plan.WorkPackages, in.WorkPackages)

	for i := range plan.WorkPackages {
		wp := &plan.WorkPackages[i]
		wp.Resources = append([]model.Resource(nil), wp.Resources...)
		wp.Materials = append([]model.Material(nil), wp.Materials...)
		inferWorkPackageBounds(&plan.WorkPackages[i])
		plan.InferredStart = minTime(plan.InferredStart, plan.WorkPackages[i].InferredStart)
		plan.InferredEnd = maxTime(plan.InferredEnd, plan.WorkPackages[i].InferredEnd)
	}

	if len(plan.WorkPackages) == 0 {
		if len(in.Materials) > 0 {
			findings = append(findings, parser.Finding{
				Facet:   parser.FacetMaterials,
				Level:   parser.LevelWarning,
				Message: fmt.Sprintf("没有工作包，%d 条物料未分配", len(in.Materials)),
			})
		}
		plan.Materials = append(plan.Materials, in.Materials...)
		return Result{Plan: plan, Findings: findings}
	}

	for _, m := range in.Materials {
		idx, how := ResolveWorkPackage(m.WorkPackageRef, plan.WorkPackages)
		if how == MatchFallback {
			findings = append(findings, parser.Finding{
				Facet: parser.FacetMaterials,
				Row:   m.SourceRow,
				Level: parser.LevelWarning,
				Message: fmt.Sprintf("物料 %s 的工作包 %q 无法识别，已归入 %s，请人工确认",
					m.Name, m.WorkPackageRef, plan.WorkPackages[idx].Code),
			})
		}
		if m.UsageYear == 0 {
			if start := plan.WorkPackages[idx].InferredStart; start != nil {
				m.UsageYear = start.Year()
			}
		}
		m.AssignedCode = plan.WorkPackages[idx].Code
		m.AssignedIndex = &idx
		plan.WorkPackages[idx].Materials = append(plan.WorkPackages[idx].Materials, m)
		plan.Materials = append(plan.Materials, m)
	}

	return Result{Plan: plan, Findings: findings}
}

// MatchKind 物料归属的判定方式
type MatchKind string

const (
	MatchName     MatchKind = "name"
	MatchCode     MatchKind = "code"
	MatchPattern  MatchKind = "pattern"
	MatchFallback MatchKind = "fallback"
)

// ResolveWorkPackage 依次按完整名称、" - " 前的代码、标签开头的 A<数字> 匹配；
// 都不命中时归入第一个工作包，物料不会被丢弃
func ResolveWorkPackage(label string, wps []model.WorkPackage) (int, MatchKind) {
	label = strings.TrimSpace(label)
	if label != "" {
		for i, wp := range wps {
			if wp.Name == label {
				return i, MatchName
			}
		}
		for i, wp := range wps {
			if code := nameCode(wp); code != "" && code == label {
				return i, MatchCode
			}
		}
		if m := materialCodeRe.FindStringSubmatch(label); m != nil {
			code := strings.ToUpper(m[1])
			for i, wp := range wps {
				if strings.ToUpper(wp.Code) == code {
					return i, MatchPattern
				}
			}
		}
	}
	return 0, MatchFallback
}

// nameCode 工作包名称中 " - " 之前的部分；名称不含分隔符时使用块代码
func nameCode(wp model.WorkPackage) string {
	if i := strings.Index(wp.Name, " - "); i > 0 {
		return strings.TrimSpace(wp.Name[:i])
	}
	return wp.Code
}

// inferWorkPackageBounds 资源取最早/最晚占用月份，工作包取资源的最小/最大值
func inferWorkPackageBounds(wp *model.WorkPackage) {
	var start, end *time.Time
	for j := range wp.Resources {
		r := &wp.Resources[j]
		r.InferredStart, r.InferredEnd = allocationBounds(r.Allocations)
		start = minTime(start, r.InferredStart)
		end = maxTime(end, r.InferredEnd)
	}
	if wp.InferredStart == nil {
		wp.InferredStart = start
	}
	if wp.InferredEnd == nil {
		wp.InferredEnd = end
	}
}

func allocationBounds(allocs []model.MonthlyAllocation) (*time.Time, *time.Time) {
	var start, end *time.Time
	for _, a := range allocs {
		s := parser.MonthStart(a.Month, a.Year)
		e := parser.MonthEnd(a.Month, a.Year)
		start = minTime(start, &s)
		end = maxTime(end, &e)
	}
	return start, end
}

func minTime(a, b *time.Time) *time.Time {
	if b == nil {
		return a
	}
	if a == nil || b.Before(*a) {
		t := *b
		return &t
	}
	return a
}

func maxTime(a, b *time.Time) *time.Time {
	if b == nil {
		return a
	}
	if a == nil || b.After(*a) {
		t := *b
		return &t
	}
	return a
}
