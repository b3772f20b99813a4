// Package workbook 把 xlsx 工作簿读成解析器使用的网格
package workbook

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"planimport/internal/parser"
)

// Workbook 只读工作簿
type Workbook struct {
	file *excelize.File
}

// Open 打开工作簿文件
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开工作簿失败: %w", err)
	}
	return &Workbook{file: f}, nil
}

// OpenReader 从字节流打开工作簿
func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("读取工作簿失败: %w", err)
	}
	return &Workbook{file: f}, nil
}

// Close 关闭工作簿
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames 按工作簿顺序返回 Sheet 名称
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// Grid 把单个 Sheet 转为网格
//
// 使用原始单元格值：日期保持序列号，数字不套用显示格式；
// 文本类型单元格即使看起来像数字也保留为文本
func (w *Workbook) Grid(sheet string) (parser.Grid, error) {
	rows, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("读取 Sheet %s 失败: %w", sheet, err)
	}

	g := make(parser.Grid, len(rows))
	for r, row := range rows {
		cells := make([]parser.Cell, len(row))
		for c, raw := range row {
			cells[c] = w.cellOf(sheet, r, c, raw)
		}
		g[r] = cells
	}
	return g, nil
}

// Grids 读取全部 Sheet
func (w *Workbook) Grids() ([]parser.NamedGrid, error) {
	names := w.SheetNames()
	out := make([]parser.NamedGrid, 0, len(names))
	for _, name := range names {
		g, err := w.Grid(name)
		if err != nil {
			return nil, err
		}
		out = append(out, parser.NamedGrid{Name: name, Grid: g})
	}
	return out, nil
}

func (w *Workbook) cellOf(sheet string, r, c int, raw string) parser.Cell {
	if strings.TrimSpace(raw) == "" {
		return parser.Empty
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return parser.Text(raw)
	}
	axis, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return parser.Number(v)
	}
	typ, err := w.file.GetCellType(sheet, axis)
	if err == nil && (typ == excelize.CellTypeSharedString || typ == excelize.CellTypeInlineString) {
		return parser.Text(raw)
	}
	return parser.Number(v)
}
