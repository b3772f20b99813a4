package parser

import (
	"strconv"
	"strings"
)

type cellKind uint8

const (
	cellEmpty cellKind = iota
	cellText
	cellNumber
)

// Cell 无类型单元格：字符串 / 数字 / 空
type Cell struct {
	kind cellKind
	text string
	num  float64
}

// Empty 空单元格
var Empty = Cell{}

// Text 构造字符串单元格，纯空白视为空
func Text(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Empty
	}
	return Cell{kind: cellText, text: s}
}

// Number 构造数字单元格
func Number(f float64) Cell {
	return Cell{kind: cellNumber, num: f}
}

// IsEmpty 是否为空
func (c Cell) IsEmpty() bool { return c.kind == cellEmpty }

// IsNumber 是否为数字单元格
func (c Cell) IsNumber() bool { return c.kind == cellNumber }

// Float 数字值；非数字单元格返回 false
func (c Cell) Float() (float64, bool) {
	if c.kind != cellNumber {
		return 0, false
	}
	return c.num, true
}

// String 单元格的文本表示（已去除首尾空白）
func (c Cell) String() string {
	switch c.kind {
	case cellText:
		return strings.TrimSpace(c.text)
	case cellNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Grid 行优先、0 起始的单元格网格，行长度可以不一致
type Grid [][]Cell

// At 越界返回空单元格
func (g Grid) At(row, col int) Cell {
	if row < 0 || row >= len(g) {
		return Empty
	}
	r := g[row]
	if col < 0 || col >= len(r) {
		return Empty
	}
	return r[col]
}

// RowCells 越界返回 nil
func (g Grid) RowCells(row int) []Cell {
	if row < 0 || row >= len(g) {
		return nil
	}
	return g[row]
}

// NewGrid 由 []any 构造网格，支持 string / 数字类型 / nil
func NewGrid(rows [][]any) Grid {
	g := make(Grid, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, v := range row {
			cells[j] = cellOf(v)
		}
		g[i] = cells
	}
	return g
}

func cellOf(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Empty
	case string:
		return Text(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case Cell:
		return x
	default:
		return Empty
	}
}

// NamedGrid 带 Sheet 名称的网格
type NamedGrid struct {
	Name string
	Grid Grid
}
