package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyAllocation 月度占用（全职比例，取值 (0,1]）
type MonthlyAllocation struct {
	Month              int     `json:"month"`
	Year               int     `json:"year"`
	FractionOfFullTime float64 `json:"fractionOfFullTime"`
}

// Resource 工作包中的人力资源行
type Resource struct {
	DisplayName       string              `json:"displayName"`
	IdentityID        *string             `json:"identityId"`        // 未匹配到身份时为 nil，需人工绑定
	MonthlySalaryBase *float64            `json:"monthlySalaryBase"` // 由薪资行推算的月基数
	Allocations       []MonthlyAllocation `json:"allocations"`
	InferredStart     *time.Time          `json:"inferredStart,omitempty"`
	InferredEnd       *time.Time          `json:"inferredEnd,omitempty"`
	SourceRow         int                 `json:"sourceRow"`
}

// Task 工作包下的任务行
type Task struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	SourceRow int    `json:"sourceRow"`
}

// MaterialCategory 物料类别（固定 6 类）
type MaterialCategory string

const (
	MaterialInstruments MaterialCategory = "instruments"
	MaterialConsumables MaterialCategory = "consumables"
	MaterialSoftware    MaterialCategory = "software"
	MaterialServices    MaterialCategory = "services"
	MaterialTravel      MaterialCategory = "travel"
	MaterialOther       MaterialCategory = "other"
)

// MaterialCategories 全部物料类别
var MaterialCategories = []MaterialCategory{
	MaterialInstruments,
	MaterialConsumables,
	MaterialSoftware,
	MaterialServices,
	MaterialTravel,
	MaterialOther,
}

// Material 物料明细
type Material struct {
	Name           string           `json:"name"`
	UnitPrice      decimal.Decimal  `json:"unitPrice"`
	Quantity       int              `json:"quantity"`
	UsageYear      int              `json:"usageYear"`
	Category       MaterialCategory `json:"category"`
	WorkPackageRef string           `json:"workPackageRef"`          // 原始工作包标签，由装配阶段解析
	AssignedCode   string           `json:"assignedCode"`            // 装配后归属的工作包代码
	AssignedIndex  *int             `json:"assignedIndex,omitempty"` // 归属工作包在 Plan.WorkPackages 中的下标，代码重复时以此为准
	SourceRow      int              `json:"sourceRow"`
}

// Total 物料总价
func (m Material) Total() decimal.Decimal {
	return m.UnitPrice.Mul(decimal.NewFromInt(int64(m.Quantity)))
}

// WorkPackage 解析得到的工作包
type WorkPackage struct {
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	Tasks         []Task     `json:"tasks"`
	Resources     []Resource `json:"resources"`
	Materials     []Material `json:"materials"`
	InferredStart *time.Time `json:"inferredStart,omitempty"`
	InferredEnd   *time.Time `json:"inferredEnd,omitempty"`
	SourceSheet   string     `json:"sourceSheet"`
	SourceRow     int        `json:"sourceRow"`
}

// ProjectMetadata 项目元数据，所有字段均可缺失
type ProjectMetadata struct {
	Name               *string    `json:"name,omitempty"`
	FundingType        *string    `json:"fundingType,omitempty"`
	FundingRatePercent *float64   `json:"fundingRatePercent,omitempty"`
	OverheadPercent    *float64   `json:"overheadPercent,omitempty"`
	ETIUnitValue       *float64   `json:"etiUnitValue,omitempty"`
	ProjectStart       *time.Time `json:"projectStart,omitempty"`
	ProjectEnd         *time.Time `json:"projectEnd,omitempty"`
}

// Plan 导入产物：元数据 + 工作包树 + 已分配的物料清单
type Plan struct {
	Metadata      ProjectMetadata `json:"metadata"`
	WorkPackages  []WorkPackage   `json:"workPackages"`
	Materials     []Material      `json:"materials"`
	InferredStart *time.Time      `json:"inferredStart,omitempty"`
	InferredEnd   *time.Time      `json:"inferredEnd,omitempty"`
}

// UnmatchedResources 返回未绑定身份的资源名（去重，保持顺序）
func (p *Plan) UnmatchedResources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, wp := range p.WorkPackages {
		for _, r := range wp.Resources {
			if r.IdentityID != nil || seen[r.DisplayName] {
				continue
			}
			seen[r.DisplayName] = true
			out = append(out, r.DisplayName)
		}
	}
	return out
}

// Identity 已知身份
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
