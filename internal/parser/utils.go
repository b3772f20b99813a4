package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeName 规范化名称：去首尾空白、压缩空白、转小写
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = whitespaceRe.ReplaceAllString(name, " ")
	return strings.ToLower(name)
}

// normalizeLabel 标签比较用：额外去掉末尾冒号
func normalizeLabel(s string) string {
	s = NormalizeName(s)
	return strings.TrimRight(s, ": ")
}

// ContainsAny 检查字符串是否包含任意一个关键词
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// parseNumber 数字单元格直接取值；文本单元格兼容千分位、逗号小数和百分号
func parseNumber(c Cell) (float64, bool) {
	if v, ok := c.Float(); ok {
		return v, true
	}
	s := c.String()
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			// 1.234,50 形式
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parsePercent 0.85 / 85 / "85%" 统一为 85
func parsePercent(c Cell) (float64, bool) {
	v, ok := parseNumber(c)
	if !ok {
		return 0, false
	}
	if strings.Contains(c.String(), "%") {
		return v, true
	}
	if v > 0 && v <= 1 {
		return v * 100, true
	}
	return v, true
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
}

// parseDate 支持日期序列号、ISO 与 dd/mm/yyyy
func parseDate(c Cell, floor float64) (time.Time, bool) {
	if IsDateSerial(c, floor) {
		v, _ := c.Float()
		return SerialToTime(v), true
	}
	s := c.String()
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// nextValue 同一行中 col 右侧第一个非空单元格
func nextValue(row []Cell, col int) (Cell, int, bool) {
	for j := col + 1; j < len(row); j++ {
		if !row[j].IsEmpty() {
			return row[j], j, true
		}
	}
	return Empty, -1, false
}
