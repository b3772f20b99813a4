package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"planimport/internal/model"
	"planimport/internal/reconcile"
)

// LoadGraph 读取项目的在线图（工作包/资源/实际占用）
func (s *Store) LoadGraph(ctx context.Context, projectID string) (model.ProjectGraph, error) {
	if _, err := projectStatus(ctx, s.db, projectID); err != nil {
		return model.ProjectGraph{}, err
	}
	return loadGraph(ctx, s.db, projectID)
}

func loadGraph(ctx context.Context, q queryer, projectID string) (model.ProjectGraph, error) {
	g := model.ProjectGraph{ProjectID: projectID, WorkPackages: []model.GraphWorkPackage{}}

	rows, err := q.QueryContext(ctx, `
		SELECT id, code, name, start_date, end_date FROM work_packages
		WHERE project_id = ? ORDER BY position
	`, projectID)
	if err != nil {
		return g, fmt.Errorf("failed to query work packages: %w", err)
	}
	wpIndex := make(map[string]int)
	for rows.Next() {
		var wp model.GraphWorkPackage
		var start, end sql.NullString
		if err := rows.Scan(&wp.ID, &wp.Code, &wp.Name, &start, &end); err != nil {
			rows.Close()
			return g, fmt.Errorf("failed to scan work package: %w", err)
		}
		wp.StartDate = parseDate(start)
		wp.EndDate = parseDate(end)
		wp.Resources = []model.GraphResource{}
		wpIndex[wp.ID] = len(g.WorkPackages)
		g.WorkPackages = append(g.WorkPackages, wp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return g, err
	}

	// (工作包, 资源键) -> 资源节点下标
	type nodeKey struct{ wpID, key string }
	nodes := make(map[nodeKey]int)

	rows, err = q.QueryContext(ctx, `
		SELECT r.id, r.work_package_id, r.identity_id, r.display_name
		FROM resources r JOIN work_packages wp ON wp.id = r.work_package_id
		WHERE wp.project_id = ?
		ORDER BY wp.position, r.position
	`, projectID)
	if err != nil {
		return g, fmt.Errorf("failed to query resources: %w", err)
	}
	for rows.Next() {
		var id, wpID, name string
		var identity sql.NullString
		if err := rows.Scan(&id, &wpID, &identity, &name); err != nil {
			rows.Close()
			return g, fmt.Errorf("failed to scan resource: %w", err)
		}
		var idPtr *string
		if identity.Valid {
			idPtr = &identity.String
		}
		nk := nodeKey{wpID, ResourceKey(idPtr, id)}
		if _, dup := nodes[nk]; dup {
			continue
		}
		wp := &g.WorkPackages[wpIndex[wpID]]
		nodes[nk] = len(wp.Resources)
		wp.Resources = append(wp.Resources, model.GraphResource{
			ID:          id,
			IdentityID:  nk.key,
			DisplayName: name,
			Allocations: []model.GraphAllocation{},
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return g, err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT a.work_package_id, a.resource_key, a.month, a.year, a.fraction, COALESCE(i.name, '')
		FROM real_allocations a LEFT JOIN identities i ON i.id = a.resource_key
		WHERE a.project_id = ?
		ORDER BY a.year, a.month
	`, projectID)
	if err != nil {
		return g, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var wpID, key, raw, identityName string
		var month, year int
		if err := rows.Scan(&wpID, &key, &month, &year, &raw, &identityName); err != nil {
			return g, fmt.Errorf("failed to scan allocation: %w", err)
		}
		frac, err := decimal.NewFromString(raw)
		if err != nil {
			return g, fmt.Errorf("invalid fraction %q: %w", raw, err)
		}
		idx, ok := wpIndex[wpID]
		if !ok {
			continue
		}
		wp := &g.WorkPackages[idx]
		nk := nodeKey{wpID, key}
		ri, ok := nodes[nk]
		if !ok {
			// 编辑时新增的身份，没有对应的导入资源行
			name := identityName
			if name == "" {
				name = key
			}
			ri = len(wp.Resources)
			nodes[nk] = ri
			wp.Resources = append(wp.Resources, model.GraphResource{IdentityID: key, DisplayName: name})
		}
		wp.Resources[ri].Allocations = append(wp.Resources[ri].Allocations,
			model.GraphAllocation{Month: month, Year: year, Fraction: frac})
	}
	return g, rows.Err()
}

// RealAllocations 项目当前的实际占用
func (s *Store) RealAllocations(ctx context.Context, projectID string) (reconcile.RealSet, error) {
	if _, err := projectStatus(ctx, s.db, projectID); err != nil {
		return nil, err
	}
	return loadReal(ctx, s.db, projectID)
}

func loadReal(ctx context.Context, q queryer, projectID string) (reconcile.RealSet, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT work_package_id, resource_key, month, year, fraction
		FROM real_allocations WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	out := make(reconcile.RealSet)
	for rows.Next() {
		var k model.AllocationKey
		var raw string
		if err := rows.Scan(&k.WorkPackageID, &k.ResourceIdentityID, &k.Month, &k.Year, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fraction %q: %w", raw, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Snapshot 项目的审批快照；无快照返回 nil, nil
func (s *Store) Snapshot(ctx context.Context, projectID string) (*model.ApprovedSnapshot, error) {
	if _, err := projectStatus(ctx, s.db, projectID); err != nil {
		return nil, err
	}
	return loadSnapshot(ctx, s.db, projectID)
}

func loadSnapshot(ctx context.Context, q queryer, projectID string) (*model.ApprovedSnapshot, error) {
	var (
		snap    model.ApprovedSnapshot
		takenAt time.Time
		raw     string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, taken_at, graph_json FROM approved_snapshots WHERE project_id = ?
	`, projectID).Scan(&snap.ID, &takenAt, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &snap.Graph); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot graph: %w", err)
	}
	snap.ProjectID = projectID
	snap.TakenAt = takenAt.UTC()
	return &snap, nil
}

// CommitReal 在写事务内读取最新状态、执行校验并写入编辑
func (s *Store) CommitReal(ctx context.Context, projectID string, edits []reconcile.Edit, check reconcile.CheckFunc) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := projectStatus(ctx, tx, projectID); err != nil {
			return err
		}
		real, err := loadReal(ctx, tx, projectID)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := check(real, snap); err != nil {
			return err
		}

		for _, ed := range edits {
			var owner string
			err := tx.QueryRowContext(ctx, `SELECT project_id FROM work_packages WHERE id = ?`, ed.WorkPackageID).Scan(&owner)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != projectID) {
				return fmt.Errorf("%w: unknown work package %s", reconcile.ErrInvalidEdit, ed.WorkPackageID)
			}
			if err != nil {
				return fmt.Errorf("failed to resolve work package: %w", err)
			}

			if ed.Real.IsZero() {
				_, err = tx.ExecContext(ctx, `
					DELETE FROM real_allocations
					WHERE work_package_id = ? AND resource_key = ? AND month = ? AND year = ?
				`, ed.WorkPackageID, ed.ResourceIdentityID, ed.Month, ed.Year)
			} else {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO real_allocations (project_id, work_package_id, resource_key, month, year, fraction)
					VALUES (?, ?, ?, ?, ?, ?)
					ON CONFLICT (work_package_id, resource_key, month, year)
					DO UPDATE SET fraction = excluded.fraction, updated_at = CURRENT_TIMESTAMP
				`, projectID, ed.WorkPackageID, ed.ResourceIdentityID, ed.Month, ed.Year, ed.Real.String())
			}
			if err != nil {
				return fmt.Errorf("failed to write allocation: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, projectID); err != nil {
			return fmt.Errorf("failed to touch project: %w", err)
		}
		return nil
	})
}

// FreezeSnapshot 在事务内冻结在线图；已有快照时返回 ErrSnapshotExists
func (s *Store) FreezeSnapshot(ctx context.Context, projectID string, freeze reconcile.FreezeFunc) (*model.ApprovedSnapshot, error) {
	var out model.ApprovedSnapshot
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := projectStatus(ctx, tx, projectID); err != nil {
			return err
		}
		existing, err := loadSnapshot(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if existing != nil {
			return reconcile.ErrSnapshotExists
		}
		live, err := loadGraph(ctx, tx, projectID)
		if err != nil {
			return err
		}

		out = freeze(live)
		raw, err := json.Marshal(out.Graph)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot graph: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO approved_snapshots (id, project_id, taken_at, graph_json) VALUES (?, ?, ?, ?)
		`, out.ID, projectID, out.TakenAt, string(raw)); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		return setStatus(ctx, tx, projectID, model.ProjectApproved)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
