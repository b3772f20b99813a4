package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectStatus 项目审批状态
type ProjectStatus string

const (
	ProjectDraft    ProjectStatus = "draft"
	ProjectApproved ProjectStatus = "approved"
	ProjectRejected ProjectStatus = "rejected"
)

// Project 已持久化的项目
type Project struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Status             ProjectStatus `json:"status"`
	FundingType        string        `json:"fundingType"`
	FundingRatePercent *float64      `json:"fundingRatePercent,omitempty"`
	OverheadPercent    *float64      `json:"overheadPercent,omitempty"`
	ETIUnitValue       *float64      `json:"etiUnitValue,omitempty"`
	StartDate          *time.Time    `json:"startDate,omitempty"`
	EndDate            *time.Time    `json:"endDate,omitempty"`
	SourceFile         string        `json:"sourceFile"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// GraphAllocation 图中的单元格占用
type GraphAllocation struct {
	Month    int             `json:"month"`
	Year     int             `json:"year"`
	Fraction decimal.Decimal `json:"fraction"`
}

// GraphResource 图中的资源节点
type GraphResource struct {
	ID          string            `json:"id"`
	IdentityID  string            `json:"identityId"` // 未绑定资源使用 "unbound:<resourceId>"
	DisplayName string            `json:"displayName"`
	Allocations []GraphAllocation `json:"allocations"`
}

// GraphWorkPackage 图中的工作包节点
type GraphWorkPackage struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	StartDate *time.Time      `json:"startDate,omitempty"`
	EndDate   *time.Time      `json:"endDate,omitempty"`
	Resources []GraphResource `json:"resources"`
}

// ProjectGraph 项目的工作包/资源/占用图
type ProjectGraph struct {
	ProjectID    string             `json:"projectId"`
	WorkPackages []GraphWorkPackage `json:"workPackages"`
}

// Clone 深拷贝
func (g ProjectGraph) Clone() ProjectGraph {
	out := ProjectGraph{
		ProjectID:    g.ProjectID,
		WorkPackages: make([]GraphWorkPackage, len(g.WorkPackages)),
	}
	for i, wp := range g.WorkPackages {
		cp := wp
		if wp.StartDate != nil {
			t := *wp.StartDate
			cp.StartDate = &t
		}
		if wp.EndDate != nil {
			t := *wp.EndDate
			cp.EndDate = &t
		}
		cp.Resources = make([]GraphResource, len(wp.Resources))
		for j, r := range wp.Resources {
			rc := r
			rc.Allocations = append([]GraphAllocation(nil), r.Allocations...)
			cp.Resources[j] = rc
		}
		out.WorkPackages[i] = cp
	}
	return out
}

// ApprovedSnapshot 审批通过时冻结的项目图，创建后不再修改
type ApprovedSnapshot struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectId"`
	TakenAt   time.Time    `json:"takenAt"`
	Graph     ProjectGraph `json:"graph"`
}

// AllocationKey 对账单元键
type AllocationKey struct {
	WorkPackageID      string `json:"workPackageId"`
	ResourceIdentityID string `json:"resourceIdentityId"`
	Month              int    `json:"month"`
	Year               int    `json:"year"`
}
