package reconcile

import (
	"context"
	"errors"
	"time"

	"planimport/internal/model"
)

// Store 对账所需的持久化协作者
//
// CommitReal 与 FreezeSnapshot 必须在同一个事务内完成"读取-校验-写入"，
// 并对同一项目的并发写入串行化
type Store interface {
	ProjectStatus(ctx context.Context, projectID string) (model.ProjectStatus, error)
	Snapshot(ctx context.Context, projectID string) (*model.ApprovedSnapshot, error) // 无快照返回 nil, nil
	RealAllocations(ctx context.Context, projectID string) (RealSet, error)
	CommitReal(ctx context.Context, projectID string, edits []Edit, check CheckFunc) error
	FreezeSnapshot(ctx context.Context, projectID string, freeze FreezeFunc) (*model.ApprovedSnapshot, error)
	MarkRejected(ctx context.Context, projectID string) error
}

// CheckFunc 在写事务内对最新已提交状态做校验，返回错误则回滚
type CheckFunc func(real RealSet, snap *model.ApprovedSnapshot) error

// FreezeFunc 在事务内由在线图生成快照
type FreezeFunc func(live model.ProjectGraph) model.ApprovedSnapshot

// Service 对账服务：查询、校验、提交、冻结
type Service struct {
	store  Store
	engine *Engine
	newID  func() string
	now    func() time.Time
}

// NewService 创建服务
func NewService(store Store, engine *Engine, newID func() string) *Service {
	if engine == nil {
		engine = NewEngine(DefaultEpsilon)
	}
	return &Service{store: store, engine: engine, newID: newID, now: time.Now}
}

// BucketStates 某年各月的对账状态
func (s *Service) BucketStates(ctx context.Context, projectID string, year int) (map[int]BucketState, error) {
	snap, err := s.store.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	real, err := s.store.RealAllocations(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.engine.ComputeBucketStates(real, snap, year), nil
}

// Validate 只校验不写入
func (s *Service) Validate(ctx context.Context, projectID string, edits []Edit, mode Mode, year int) (Verdict, error) {
	if err := ValidateEdits(edits); err != nil {
		return Verdict{}, err
	}
	snap, err := s.store.Snapshot(ctx, projectID)
	if err != nil {
		return Verdict{}, err
	}
	real, err := s.store.RealAllocations(ctx, projectID)
	if err != nil {
		return Verdict{}, err
	}
	return s.engine.CanCommit(real, snap, edits, mode, year), nil
}

// Commit 校验通过才写入；校验在写事务内基于最新提交状态重新执行
func (s *Service) Commit(ctx context.Context, projectID string, edits []Edit, mode Mode, year int) (Verdict, error) {
	if err := ValidateEdits(edits); err != nil {
		return Verdict{}, err
	}
	var verdict Verdict
	err := s.store.CommitReal(ctx, projectID, edits, func(real RealSet, snap *model.ApprovedSnapshot) error {
		verdict = s.engine.CanCommit(real, snap, edits, mode, year)
		if !verdict.OK {
			return &DivergenceError{Verdict: verdict}
		}
		return nil
	})
	var div *DivergenceError
	if errors.As(err, &div) {
		return div.Verdict, nil
	}
	if err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

// Approve 审批通过：冻结快照
func (s *Service) Approve(ctx context.Context, projectID string) (*model.ApprovedSnapshot, error) {
	return s.store.FreezeSnapshot(ctx, projectID, func(live model.ProjectGraph) model.ApprovedSnapshot {
		return Freeze(s.newID(), live, s.now())
	})
}

// Reject 驳回：不创建快照
func (s *Service) Reject(ctx context.Context, projectID string) error {
	return s.store.MarkRejected(ctx, projectID)
}
