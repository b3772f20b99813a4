package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"planimport/internal/model"
	"planimport/internal/reconcile"
)

// UnboundPrefix 未绑定身份资源的键前缀
const UnboundPrefix = "unbound:"

// ResourceKey 资源在对账单元中的身份键
func ResourceKey(identityID *string, resourceID string) string {
	if identityID != nil && *identityID != "" {
		return *identityID
	}
	return UnboundPrefix + resourceID
}

type cellKey struct {
	wpID, key   string
	month, year int
}

// SavePlan 在单个事务内持久化导入的计划，返回项目 ID
func (s *Store) SavePlan(ctx context.Context, plan *model.Plan, sourceFile string) (string, error) {
	projectID := uuid.NewString()
	md := plan.Metadata

	name := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	if md.Name != nil && *md.Name != "" {
		name = *md.Name
	}
	fundingType := ""
	if md.FundingType != nil {
		fundingType = *md.FundingType
	}
	start, end := md.ProjectStart, md.ProjectEnd
	if start == nil {
		start = plan.InferredStart
	}
	if end == nil {
		end = plan.InferredEnd
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, status, funding_type, funding_rate_percent, overhead_percent,
				eti_unit_value, start_date, end_date, source_file)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, projectID, name, model.ProjectDraft, fundingType, nullFloat(md.FundingRatePercent),
			nullFloat(md.OverheadPercent), nullFloat(md.ETIUnitValue), formatDate(start), formatDate(end),
			filepath.Base(sourceFile)); err != nil {
			return fmt.Errorf("failed to insert project: %w", err)
		}

		wpIDs := make([]string, len(plan.WorkPackages))
		byCode := make(map[string]string, len(plan.WorkPackages))
		cells := make(map[cellKey]decimal.Decimal)
		var order []cellKey

		for i, wp := range plan.WorkPackages {
			wpID := uuid.NewString()
			wpIDs[i] = wpID
			if _, dup := byCode[wp.Code]; !dup {
				byCode[wp.Code] = wpID
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO work_packages (id, project_id, code, name, start_date, end_date, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, wpID, projectID, wp.Code, wp.Name, formatDate(wp.InferredStart), formatDate(wp.InferredEnd), i); err != nil {
				return fmt.Errorf("failed to insert work package %s: %w", wp.Code, err)
			}

			for j, t := range wp.Tasks {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO tasks (id, work_package_id, code, name, position) VALUES (?, ?, ?, ?, ?)
				`, uuid.NewString(), wpID, t.Code, t.Name, j); err != nil {
					return fmt.Errorf("failed to insert task %s: %w", t.Code, err)
				}
			}

			for j, r := range wp.Resources {
				resID := uuid.NewString()
				var identity any
				if r.IdentityID != nil {
					identity = *r.IdentityID
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO resources (id, work_package_id, identity_id, display_name, monthly_salary_base, position)
					VALUES (?, ?, ?, ?, ?, ?)
				`, resID, wpID, identity, r.DisplayName, nullFloat(r.MonthlySalaryBase), j); err != nil {
					return fmt.Errorf("failed to insert resource %s: %w", r.DisplayName, err)
				}

				key := ResourceKey(r.IdentityID, resID)
				for _, a := range r.Allocations {
					ck := cellKey{wpID: wpID, key: key, month: a.Month, year: a.Year}
					if _, ok := cells[ck]; !ok {
						order = append(order, ck)
					}
					cells[ck] = cells[ck].Add(decimal.NewFromFloat(a.FractionOfFullTime))
				}
			}
		}

		for _, ck := range order {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO real_allocations (project_id, work_package_id, resource_key, month, year, fraction)
				VALUES (?, ?, ?, ?, ?, ?)
			`, projectID, ck.wpID, ck.key, ck.month, ck.year, cells[ck].String()); err != nil {
				return fmt.Errorf("failed to insert allocation: %w", err)
			}
		}

		for i, m := range plan.Materials {
			var wpID any
			switch {
			case m.AssignedIndex != nil && *m.AssignedIndex >= 0 && *m.AssignedIndex < len(wpIDs):
				wpID = wpIDs[*m.AssignedIndex]
			default:
				if id, ok := byCode[m.AssignedCode]; ok {
					wpID = id
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO materials (id, project_id, work_package_id, name, unit_price, quantity, usage_year,
					category, work_package_ref, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, uuid.NewString(), projectID, wpID, m.Name, m.UnitPrice.String(), m.Quantity, m.UsageYear,
				string(m.Category), m.WorkPackageRef, i); err != nil {
				return fmt.Errorf("failed to insert material %s: %w", m.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return projectID, nil
}

const projectColumns = `id, name, status, funding_type, funding_rate_percent, overhead_percent,
	eti_unit_value, start_date, end_date, source_file, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*model.Project, error) {
	var (
		p                model.Project
		status           string
		rate, over, eti  sql.NullFloat64
		start, end       sql.NullString
		created, updated time.Time
	)
	if err := row.Scan(&p.ID, &p.Name, &status, &p.FundingType, &rate, &over, &eti,
		&start, &end, &p.SourceFile, &created, &updated); err != nil {
		return nil, err
	}
	p.Status = model.ProjectStatus(status)
	p.FundingRatePercent = floatPtr(rate)
	p.OverheadPercent = floatPtr(over)
	p.ETIUnitValue = floatPtr(eti)
	p.StartDate = parseDate(start)
	p.EndDate = parseDate(end)
	p.CreatedAt = created
	p.UpdatedAt = updated
	return &p, nil
}

// GetProject 获取项目
func (s *Store) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reconcile.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects 按创建时间倒序列出项目
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// ProjectStatus 项目审批状态
func (s *Store) ProjectStatus(ctx context.Context, projectID string) (model.ProjectStatus, error) {
	return projectStatus(ctx, s.db, projectID)
}

func projectStatus(ctx context.Context, q queryer, projectID string) (model.ProjectStatus, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM projects WHERE id = ?`, projectID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", reconcile.ErrProjectNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get project status: %w", err)
	}
	return model.ProjectStatus(status), nil
}

// MarkRejected 驳回项目；已审批的项目不可驳回
func (s *Store) MarkRejected(ctx context.Context, projectID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := projectStatus(ctx, tx, projectID); err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if snap != nil {
			return reconcile.ErrSnapshotExists
		}
		return setStatus(ctx, tx, projectID, model.ProjectRejected)
	})
}

func setStatus(ctx context.Context, q queryer, projectID string, status model.ProjectStatus) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE projects SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, string(status), projectID); err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	return nil
}

// Tasks 项目各工作包的任务，按工作包 ID 分组
func (s *Store) Tasks(ctx context.Context, projectID string) (map[string][]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.work_package_id, t.code, t.name
		FROM tasks t JOIN work_packages wp ON wp.id = t.work_package_id
		WHERE wp.project_id = ?
		ORDER BY wp.position, t.position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Task)
	for rows.Next() {
		var wpID string
		var t model.Task
		if err := rows.Scan(&wpID, &t.Code, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out[wpID] = append(out[wpID], t)
	}
	return out, rows.Err()
}

// Materials 项目物料清单；AssignedCode 为归属工作包代码
func (s *Store) Materials(ctx context.Context, projectID string) ([]model.Material, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.name, m.unit_price, m.quantity, m.usage_year, m.category, m.work_package_ref,
			COALESCE(wp.code, '')
		FROM materials m LEFT JOIN work_packages wp ON wp.id = m.work_package_id
		WHERE m.project_id = ?
		ORDER BY m.position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	materials := []model.Material{}
	for rows.Next() {
		var m model.Material
		var price, category string
		if err := rows.Scan(&m.Name, &price, &m.Quantity, &m.UsageYear, &category, &m.WorkPackageRef, &m.AssignedCode); err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		m.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price %q for material %s: %w", price, m.Name, err)
		}
		m.Category = model.MaterialCategory(category)
		materials = append(materials, m)
	}
	return materials, rows.Err()
}
