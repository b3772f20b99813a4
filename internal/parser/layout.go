package parser

import (
	"regexp"
	"strings"
)

// MonthColumn 月份列：列索引 + 日期序列号 + 解码后的年月
type MonthColumn struct {
	Index  int     `json:"index"`
	Serial float64 `json:"serial"`
	Month  int     `json:"month"`
	Year   int     `json:"year"`
}

// MonthHeader 月份表头行
type MonthHeader struct {
	Row     int           `json:"row"`
	Columns []MonthColumn `json:"columns"`
}

// HeaderOptions 表头识别参数
type HeaderOptions struct {
	DateSerialFloor float64 // 日期序列号下限
	MinDateCells    int     // 表头行至少包含的日期单元格数
	FallbackMin     int     // 找不到满足 MinDateCells 的行时的兜底下限，0 表示不兜底
}

// DefaultHeaderOptions 默认表头识别参数
func DefaultHeaderOptions() HeaderOptions {
	return HeaderOptions{
		DateSerialFloor: DefaultDateSerialFloor,
		MinDateCells:    3,
		FallbackMin:     2,
	}
}

// FindMonthHeader 自上而下查找第一行包含足够多日期序列号的行
// 只有年份整数（如 2023, 2024, 2025）而没有日期序列号的行会被跳过
func FindMonthHeader(g Grid, opts HeaderOptions) (MonthHeader, bool) {
	fallback := -1
	for r, row := range g {
		dates, years := 0, 0
		for _, c := range row {
			switch {
			case IsDateSerial(c, opts.DateSerialFloor):
				dates++
			case isBareYear(c):
				years++
			}
		}
		if years >= 3 && dates == 0 {
			continue
		}
		if dates >= opts.MinDateCells {
			return monthHeaderAt(g, r, opts.DateSerialFloor), true
		}
		if fallback < 0 && opts.FallbackMin > 0 && dates >= opts.FallbackMin {
			fallback = r
		}
	}
	if fallback >= 0 {
		return monthHeaderAt(g, fallback, opts.DateSerialFloor), true
	}
	return MonthHeader{}, false
}

func monthHeaderAt(g Grid, r int, floor float64) MonthHeader {
	h := MonthHeader{Row: r}
	for col, c := range g[r] {
		if !IsDateSerial(c, floor) {
			continue
		}
		v, _ := c.Float()
		month, year := DecodeSerial(v)
		h.Columns = append(h.Columns, MonthColumn{Index: col, Serial: v, Month: month, Year: year})
	}
	return h
}

// LayoutKind 工作包块布局类型
type LayoutKind string

const (
	LayoutCodeColumn LayoutKind = "code_column"
)

// BlockAnchor 工作包块起始行的定位结果
type BlockAnchor struct {
	Code        string
	Name        string
	CodeCol     int
	NameCol     int
	ResourceCol int
}

// BlockLayout 工作包块定位策略，新的表格布局通过新增实现接入
type BlockLayout interface {
	Kind() LayoutKind
	// BlockStart 判断该行是否开始一个新的工作包块
	BlockStart(row []Cell) (BlockAnchor, bool)
}

var blockCodeRe = regexp.MustCompile(`(?i)^(WP|A)\d+$`)

// CodeColumnLayout 前 N 列中第一个形如 WP1 / A3 的单元格开始新块；
// 其后一列是工作包名称，再后一列是后续各行的资源名
type CodeColumnLayout struct {
	ScanColumns int
}

// NewCodeColumnLayout 默认扫描前 5 列
func NewCodeColumnLayout() *CodeColumnLayout {
	return &CodeColumnLayout{ScanColumns: 5}
}

// Kind 布局类型
func (l *CodeColumnLayout) Kind() LayoutKind { return LayoutCodeColumn }

// BlockStart 判断是否为块起始行
func (l *CodeColumnLayout) BlockStart(row []Cell) (BlockAnchor, bool) {
	limit := l.ScanColumns
	if limit <= 0 || limit > len(row) {
		limit = len(row)
	}
	for col := 0; col < limit; col++ {
		code := row[col].String()
		if !blockCodeRe.MatchString(code) {
			continue
		}
		anchor := BlockAnchor{
			Code:        strings.ToUpper(code),
			CodeCol:     col,
			NameCol:     col + 1,
			ResourceCol: col + 2,
		}
		if anchor.NameCol < len(row) {
			anchor.Name = row[anchor.NameCol].String()
		}
		return anchor, true
	}
	return BlockAnchor{}, false
}

// aggregateKeywords 汇总/噪声行关键字
var aggregateKeywords = []string{
	"total",
	"subtotal",
	"contagem",
	"células cinza",
	"celulas cinza",
	"eng.",
}

// IsAggregateRow 资源名为空或为汇总/噪声行
func IsAggregateRow(name string) bool {
	n := NormalizeName(name)
	if n == "" {
		return true
	}
	return ContainsAny(n, aggregateKeywords)
}

var taskRe = regexp.MustCompile(`(?i)^(T\d+(\.\d+)*|tarefa\b|task\b)`)

// isTaskLabel 块内以 T1 / Tarefa 开头的行是任务而不是资源
func isTaskLabel(name string) bool {
	return taskRe.MatchString(strings.TrimSpace(name))
}
