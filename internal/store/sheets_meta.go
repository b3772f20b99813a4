package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// SheetMeta 单个工作表的导入记录
type SheetMeta struct {
	ImportLogID  int64    `json:"importLogId"`
	SheetName    string   `json:"sheetName"`
	SheetKind    string   `json:"sheetKind"`
	Confidence   float64  `json:"confidence"`
	Status       string   `json:"status"`
	WorkPackages int      `json:"workPackages"`
	Resources    int      `json:"resources"`
	Materials    int      `json:"materials"`
	Errors       []string `json:"errors"`
	DurationMS   int64    `json:"durationMs"`
}

// InsertSheetMeta 写入工作表元信息
func (s *Store) InsertSheetMeta(ctx context.Context, meta SheetMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sheets_meta (
			import_log_id, sheet_name, sheet_kind, confidence, status,
			work_packages, resources, materials, errors_json, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		meta.ImportLogID, meta.SheetName, meta.SheetKind, meta.Confidence, meta.Status,
		meta.WorkPackages, meta.Resources, meta.Materials, buildErrorsJSON(meta.Errors), meta.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sheets_meta: %w", err)
	}
	return nil
}

// ListSheetMeta 某次导入的工作表记录
func (s *Store) ListSheetMeta(ctx context.Context, importLogID int64) ([]SheetMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT import_log_id, sheet_name, sheet_kind, confidence, status,
			work_packages, resources, materials, errors_json, duration_ms
		FROM sheets_meta WHERE import_log_id = ? ORDER BY id
	`, importLogID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sheets_meta: %w", err)
	}
	defer rows.Close()

	out := []SheetMeta{}
	for rows.Next() {
		var m SheetMeta
		var raw string
		if err := rows.Scan(&m.ImportLogID, &m.SheetName, &m.SheetKind, &m.Confidence, &m.Status,
			&m.WorkPackages, &m.Resources, &m.Materials, &raw, &m.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan sheets_meta: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &m.Errors); err != nil {
			m.Errors = nil
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func buildErrorsJSON(errs []string) string {
	if len(errs) == 0 {
		return "[]"
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "[]"
	}
	return string(b)
}
