package reconcile

import (
	"context"
	"fmt"
	"sync"

	"planimport/internal/model"
)

// MemoryStore 内存实现，单把锁保证读取-校验-写入的原子性
type MemoryStore struct {
	graphs    map[string]*model.ProjectGraph
	statuses  map[string]model.ProjectStatus
	snapshots map[string]*model.ApprovedSnapshot
	mu        sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs:    make(map[string]*model.ProjectGraph),
		statuses:  make(map[string]model.ProjectStatus),
		snapshots: make(map[string]*model.ApprovedSnapshot),
	}
}

// PutGraph 设置项目在线图（草稿状态）
func (s *MemoryStore) PutGraph(g model.ProjectGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := g.Clone()
	s.graphs[g.ProjectID] = &cp
	if _, ok := s.statuses[g.ProjectID]; !ok {
		s.statuses[g.ProjectID] = model.ProjectDraft
	}
}

// Graph 在线图副本
func (s *MemoryStore) Graph(projectID string) (model.ProjectGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[projectID]
	if !ok {
		return model.ProjectGraph{}, ErrProjectNotFound
	}
	return g.Clone(), nil
}

// ProjectStatus 项目状态
func (s *MemoryStore) ProjectStatus(_ context.Context, projectID string) (model.ProjectStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[projectID]
	if !ok {
		return "", ErrProjectNotFound
	}
	return st, nil
}

// Snapshot 审批快照
func (s *MemoryStore) Snapshot(_ context.Context, projectID string) (*model.ApprovedSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.graphs[projectID]; !ok {
		return nil, ErrProjectNotFound
	}
	snap := s.snapshots[projectID]
	if snap == nil {
		return nil, nil
	}
	cp := *snap
	cp.Graph = snap.Graph.Clone()
	return &cp, nil
}

// RealAllocations 实际占用
func (s *MemoryStore) RealAllocations(_ context.Context, projectID string) (RealSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return RealFromGraph(*g), nil
}

// CommitReal 持锁校验后写入
func (s *MemoryStore) CommitReal(_ context.Context, projectID string, edits []Edit, check CheckFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.graphs[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	if err := check(RealFromGraph(*g), s.snapshots[projectID]); err != nil {
		return err
	}
	next := g.Clone()
	if err := ApplyToGraph(&next, edits); err != nil {
		return err
	}
	s.graphs[projectID] = &next
	return nil
}

// FreezeSnapshot 持锁冻结，已有快照时拒绝
func (s *MemoryStore) FreezeSnapshot(_ context.Context, projectID string, freeze FreezeFunc) (*model.ApprovedSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.graphs[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	if _, exists := s.snapshots[projectID]; exists {
		return nil, ErrSnapshotExists
	}
	snap := freeze(*g)
	s.snapshots[projectID] = &snap
	s.statuses[projectID] = model.ProjectApproved
	out := snap
	out.Graph = snap.Graph.Clone()
	return &out, nil
}

// MarkRejected 标记驳回
func (s *MemoryStore) MarkRejected(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[projectID]; !ok {
		return ErrProjectNotFound
	}
	if _, exists := s.snapshots[projectID]; exists {
		return ErrSnapshotExists
	}
	s.statuses[projectID] = model.ProjectRejected
	return nil
}

// ApplyToGraph 把编辑写入在线图；资源节点不存在时新建
func ApplyToGraph(g *model.ProjectGraph, edits []Edit) error {
	for _, ed := range edits {
		wpIdx := -1
		for i := range g.WorkPackages {
			if g.WorkPackages[i].ID == ed.WorkPackageID {
				wpIdx = i
				break
			}
		}
		if wpIdx < 0 {
			return fmt.Errorf("%w: unknown work package %s", ErrInvalidEdit, ed.WorkPackageID)
		}
		wp := &g.WorkPackages[wpIdx]

		rIdx := -1
		for i := range wp.Resources {
			if wp.Resources[i].IdentityID == ed.ResourceIdentityID {
				rIdx = i
				break
			}
		}
		if rIdx < 0 {
			if ed.Real.IsZero() {
				continue
			}
			wp.Resources = append(wp.Resources, model.GraphResource{IdentityID: ed.ResourceIdentityID})
			rIdx = len(wp.Resources) - 1
		}
		r := &wp.Resources[rIdx]

		kept := r.Allocations[:0]
		for _, a := range r.Allocations {
			if a.Month == ed.Month && a.Year == ed.Year {
				continue
			}
			kept = append(kept, a)
		}
		r.Allocations = kept
		if !ed.Real.IsZero() {
			r.Allocations = append(r.Allocations, model.GraphAllocation{Month: ed.Month, Year: ed.Year, Fraction: ed.Real})
		}
	}
	return nil
}
