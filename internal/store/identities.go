package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"planimport/internal/model"
)

var (
	// ErrIdentityNotFound 身份不存在
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrResourceNotFound 资源不存在
	ErrResourceNotFound = errors.New("resource not found")
)

// ListIdentities 按名称列出已知身份
func (s *Store) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM identities ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	ids := []model.Identity{}
	for rows.Next() {
		var id model.Identity
		if err := rows.Scan(&id.ID, &id.Name); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateIdentity 新增身份
func (s *Store) CreateIdentity(ctx context.Context, name string) (model.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Identity{}, errors.New("identity name is required")
	}
	id := model.Identity{ID: uuid.NewString(), Name: name}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO identities (id, name) VALUES (?, ?)`, id.ID, id.Name); err != nil {
		return model.Identity{}, fmt.Errorf("failed to create identity: %w", err)
	}
	return id, nil
}

// BindResource 把资源绑定到身份，同时把该资源的实际占用迁移到身份键下
func (s *Store) BindResource(ctx context.Context, resourceID, identityID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM identities WHERE id = ?`, identityID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrIdentityNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to look up identity: %w", err)
		}

		var (
			wpID    string
			current sql.NullString
		)
		err = tx.QueryRowContext(ctx, `SELECT work_package_id, identity_id FROM resources WHERE id = ?`, resourceID).
			Scan(&wpID, &current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrResourceNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to look up resource: %w", err)
		}

		var currentPtr *string
		if current.Valid {
			currentPtr = &current.String
		}
		oldKey := ResourceKey(currentPtr, resourceID)
		if oldKey == identityID {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE resources SET identity_id = ? WHERE id = ?`, identityID, resourceID); err != nil {
			return fmt.Errorf("failed to bind resource: %w", err)
		}
		// 同一工作包内已有该身份的同月单元时两值相加，月度合计保持不变
		if err := mergeCollidingCells(ctx, tx, wpID, oldKey, identityID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE real_allocations SET resource_key = ?, updated_at = CURRENT_TIMESTAMP
			WHERE work_package_id = ? AND resource_key = ?
		`, identityID, wpID, oldKey); err != nil {
			return fmt.Errorf("failed to rekey allocations: %w", err)
		}
		return nil
	})
}

type cellValue struct {
	month, year int
	fraction    decimal.Decimal
}

// mergeCollidingCells 把 from 键下与 to 键同月的单元累加到 to 并删除原行
func mergeCollidingCells(ctx context.Context, tx *sql.Tx, wpID, from, to string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT f.month, f.year, f.fraction, t.fraction
		FROM real_allocations f
		JOIN real_allocations t
		  ON t.work_package_id = f.work_package_id AND t.resource_key = ?
		 AND t.month = f.month AND t.year = f.year
		WHERE f.work_package_id = ? AND f.resource_key = ?
	`, to, wpID, from)
	if err != nil {
		return fmt.Errorf("failed to query colliding allocations: %w", err)
	}
	var merged []cellValue
	for rows.Next() {
		var (
			cv       cellValue
			fromText string
			toText   string
		)
		if err := rows.Scan(&cv.month, &cv.year, &fromText, &toText); err != nil {
			rows.Close()
			return err
		}
		a, err := decimal.NewFromString(fromText)
		if err != nil {
			rows.Close()
			return fmt.Errorf("invalid stored fraction %q: %w", fromText, err)
		}
		b, err := decimal.NewFromString(toText)
		if err != nil {
			rows.Close()
			return fmt.Errorf("invalid stored fraction %q: %w", toText, err)
		}
		cv.fraction = a.Add(b)
		merged = append(merged, cv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, cv := range merged {
		if _, err := tx.ExecContext(ctx, `
			UPDATE real_allocations SET fraction = ?, updated_at = CURRENT_TIMESTAMP
			WHERE work_package_id = ? AND resource_key = ? AND month = ? AND year = ?
		`, cv.fraction.String(), wpID, to, cv.month, cv.year); err != nil {
			return fmt.Errorf("failed to merge allocation: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM real_allocations
			WHERE work_package_id = ? AND resource_key = ? AND month = ? AND year = ?
		`, wpID, from, cv.month, cv.year); err != nil {
			return fmt.Errorf("failed to drop merged allocation: %w", err)
		}
	}
	return nil
}
