// Package reconcile 维护实际占用（可编辑）与提交基线（审批快照，只读）之间的对账约束
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"planimport/internal/model"
)

// DefaultEpsilon 月度合计相等判定的容差
const DefaultEpsilon = 0.001

var (
	// ErrNoSnapshot 项目没有审批快照
	ErrNoSnapshot = errors.New("project has no approved snapshot")
	// ErrSnapshotExists 项目已冻结快照
	ErrSnapshotExists = errors.New("project already has an approved snapshot")
	// ErrProjectNotFound 项目不存在
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidEdit 编辑值非法
	ErrInvalidEdit = errors.New("invalid allocation edit")
)

// State 月度桶状态，每次读取时重新计算，不落库
type State string

const (
	StateBalanced      State = "balanced"
	StateDivergent     State = "divergent"
	StateUnconstrained State = "unconstrained" // 无快照，不做约束
)

// Mode 提交校验范围
type Mode string

const (
	ModeTouched   Mode = "touched"    // 仅校验编辑涉及的月份
	ModeWholeYear Mode = "whole_year" // 校验当前年份所有有值的月份
)

// Bucket (月, 年)
type Bucket struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func (b Bucket) String() string { return fmt.Sprintf("%d/%d", b.Month, b.Year) }

// BucketState 月度桶的实际合计、提交合计与状态
type BucketState struct {
	Bucket
	Real      decimal.Decimal `json:"real"`
	Submitted decimal.Decimal `json:"submitted"`
	State     State           `json:"state"`
}

// RealSet 实际占用：单元键 -> 值
type RealSet map[model.AllocationKey]decimal.Decimal

// Clone 浅拷贝（decimal 为值类型）
func (rs RealSet) Clone() RealSet {
	out := make(RealSet, len(rs))
	for k, v := range rs {
		out[k] = v
	}
	return out
}

// Edit 对单个单元的实际值设置；值为 0 表示删除
type Edit struct {
	model.AllocationKey
	Real decimal.Decimal `json:"real"`
}

// Verdict 提交校验结果
type Verdict struct {
	OK        bool          `json:"ok"`
	Divergent []BucketState `json:"divergentBuckets,omitempty"`
}

// DivergenceError 写事务中校验未通过
type DivergenceError struct {
	Verdict Verdict
}

func (e *DivergenceError) Error() string {
	parts := make([]string, 0, len(e.Verdict.Divergent))
	for _, b := range e.Verdict.Divergent {
		parts = append(parts, b.Bucket.String())
	}
	return fmt.Sprintf("allocations do not balance for %s", strings.Join(parts, ", "))
}

// Engine 对账引擎，纯计算
type Engine struct {
	epsilon decimal.Decimal
}

// NewEngine 创建引擎，epsilon <= 0 时使用默认容差
func NewEngine(epsilon float64) *Engine {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return &Engine{epsilon: decimal.NewFromFloat(epsilon)}
}

// SubmittedFromSnapshot 把快照展开为单元键 -> 提交值
func SubmittedFromSnapshot(snap *model.ApprovedSnapshot) RealSet {
	out := make(RealSet)
	if snap == nil {
		return out
	}
	for _, wp := range snap.Graph.WorkPackages {
		for _, r := range wp.Resources {
			for _, a := range r.Allocations {
				k := model.AllocationKey{
					WorkPackageID:      wp.ID,
					ResourceIdentityID: r.IdentityID,
					Month:              a.Month,
					Year:               a.Year,
				}
				out[k] = out[k].Add(a.Fraction)
			}
		}
	}
	return out
}

// RealFromGraph 把在线图展开为实际占用集合
func RealFromGraph(g model.ProjectGraph) RealSet {
	return SubmittedFromSnapshot(&model.ApprovedSnapshot{Graph: g})
}

func sumByBucket(set RealSet) map[Bucket]decimal.Decimal {
	out := make(map[Bucket]decimal.Decimal)
	for k, v := range set {
		b := Bucket{Month: k.Month, Year: k.Year}
		out[b] = out[b].Add(v)
	}
	return out
}

func (e *Engine) state(real, submitted decimal.Decimal) State {
	if real.Sub(submitted).Abs().LessThanOrEqual(e.epsilon) {
		return StateBalanced
	}
	return StateDivergent
}

// ComputeBucketStates 计算某年每个有值月份的桶状态；没有快照时所有桶为 unconstrained
func (e *Engine) ComputeBucketStates(real RealSet, snap *model.ApprovedSnapshot, year int) map[int]BucketState {
	realSums := sumByBucket(real)
	subSums := sumByBucket(SubmittedFromSnapshot(snap))

	out := make(map[int]BucketState)
	for month := 1; month <= 12; month++ {
		b := Bucket{Month: month, Year: year}
		r, hasReal := realSums[b]
		s, hasSub := subSums[b]
		if !hasReal && !hasSub {
			continue
		}
		st := StateUnconstrained
		if snap != nil {
			st = e.state(r, s)
		}
		out[month] = BucketState{Bucket: b, Real: r, Submitted: s, State: st}
	}
	return out
}

// ValidateEdits 编辑值必须落在 [0, 1]
func ValidateEdits(edits []Edit) error {
	one := decimal.NewFromInt(1)
	for _, ed := range edits {
		if ed.Month < 1 || ed.Month > 12 || ed.Year <= 0 {
			return fmt.Errorf("%w: bad month %d/%d", ErrInvalidEdit, ed.Month, ed.Year)
		}
		if ed.WorkPackageID == "" || ed.ResourceIdentityID == "" {
			return fmt.Errorf("%w: missing work package or resource", ErrInvalidEdit)
		}
		if ed.Real.IsNegative() || ed.Real.GreaterThan(one) {
			return fmt.Errorf("%w: value %s out of range", ErrInvalidEdit, ed.Real)
		}
	}
	return nil
}

// Apply 在副本上应用编辑
func Apply(real RealSet, edits []Edit) RealSet {
	out := real.Clone()
	for _, ed := range edits {
		if ed.Real.IsZero() {
			delete(out, ed.AllocationKey)
			continue
		}
		out[ed.AllocationKey] = ed.Real
	}
	return out
}

// CanCommit 应用编辑后，受影响的每个月度桶都必须平衡；任何一个不平衡则整批拒绝
func (e *Engine) CanCommit(real RealSet, snap *model.ApprovedSnapshot, edits []Edit, mode Mode, year int) Verdict {
	if snap == nil {
		return Verdict{OK: true}
	}
	next := Apply(real, edits)
	realSums := sumByBucket(next)
	subSums := sumByBucket(SubmittedFromSnapshot(snap))

	buckets := make(map[Bucket]bool)
	for _, ed := range edits {
		buckets[Bucket{Month: ed.Month, Year: ed.Year}] = true
	}
	if mode == ModeWholeYear {
		for b := range realSums {
			if b.Year == year {
				buckets[b] = true
			}
		}
		for b := range subSums {
			if b.Year == year {
				buckets[b] = true
			}
		}
	}

	var divergent []BucketState
	for b := range buckets {
		r, s := realSums[b], subSums[b]
		if st := e.state(r, s); st == StateDivergent {
			divergent = append(divergent, BucketState{Bucket: b, Real: r, Submitted: s, State: st})
		}
	}
	if len(divergent) == 0 {
		return Verdict{OK: true}
	}
	sort.Slice(divergent, func(i, j int) bool {
		if divergent[i].Year != divergent[j].Year {
			return divergent[i].Year < divergent[j].Year
		}
		return divergent[i].Month < divergent[j].Month
	})
	return Verdict{OK: false, Divergent: divergent}
}

// Freeze 深拷贝在线图作为快照内容
func Freeze(id string, live model.ProjectGraph, takenAt time.Time) model.ApprovedSnapshot {
	return model.ApprovedSnapshot{
		ID:        id,
		ProjectID: live.ProjectID,
		TakenAt:   takenAt.UTC(),
		Graph:     live.Clone(),
	}
}
