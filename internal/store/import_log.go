package store

import (
	"context"
	"fmt"
	"time"
)

// ImportLog 导入日志
type ImportLog struct {
	ID                 int64      `json:"id"`
	Filename           string     `json:"filename"`
	FileSize           int64      `json:"fileSize"`
	FileHash           string     `json:"fileHash"`
	ProjectID          string     `json:"projectId,omitempty"`
	Status             string     `json:"status"`
	TotalSheets        int        `json:"totalSheets"`
	ParsedSheets       int        `json:"parsedSheets"`
	SkippedSheets      int        `json:"skippedSheets"`
	WorkPackages       int        `json:"workPackages"`
	Resources          int        `json:"resources"`
	Materials          int        `json:"materials"`
	UnmatchedResources int        `json:"unmatchedResources"`
	ErrorMessage       string     `json:"errorMessage,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

// ImportCounts 导入完成时的统计
type ImportCounts struct {
	TotalSheets        int
	ParsedSheets       int
	SkippedSheets      int
	WorkPackages       int
	Resources          int
	Materials          int
	UnmatchedResources int
}

// CreateImportLog 创建导入日志，返回 import_log_id
func (s *Store) CreateImportLog(ctx context.Context, filename string, fileSize int64, fileHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_logs (filename, file_size, file_hash, status)
		VALUES (?, ?, ?, 'processing')
	`, filename, fileSize, fileHash)
	if err != nil {
		return 0, fmt.Errorf("failed to create import log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get import log id: %w", err)
	}
	return id, nil
}

// CompleteImportLog 完成导入日志更新
func (s *Store) CompleteImportLog(ctx context.Context, id int64, projectID string, counts ImportCounts, status, errorMessage string) error {
	var pid any
	if projectID != "" {
		pid = projectID
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_logs SET
			project_id = ?,
			total_sheets = ?,
			parsed_sheets = ?,
			skipped_sheets = ?,
			work_packages = ?,
			resources = ?,
			materials = ?,
			unmatched_resources = ?,
			status = ?,
			error_message = ?,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, pid, counts.TotalSheets, counts.ParsedSheets, counts.SkippedSheets, counts.WorkPackages,
		counts.Resources, counts.Materials, counts.UnmatchedResources, status, errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to update import log: %w", err)
	}
	return nil
}

// ListImportLogs 最近的导入日志
func (s *Store) ListImportLogs(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, file_size, file_hash, COALESCE(project_id, ''), status, total_sheets,
			parsed_sheets, skipped_sheets, work_packages, resources, materials, unmatched_resources,
			error_message, created_at, completed_at
		FROM import_logs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	logs := []ImportLog{}
	for rows.Next() {
		var l ImportLog
		if err := rows.Scan(&l.ID, &l.Filename, &l.FileSize, &l.FileHash, &l.ProjectID, &l.Status,
			&l.TotalSheets, &l.ParsedSheets, &l.SkippedSheets, &l.WorkPackages, &l.Resources,
			&l.Materials, &l.UnmatchedResources, &l.ErrorMessage, &l.CreatedAt, &l.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
