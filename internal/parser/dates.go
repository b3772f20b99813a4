package parser

import (
	"math"
	"time"
)

const (
	// serialUnixEpoch 1970-01-01 对应的表格序列号（已包含 1900 闰年偏差修正）
	serialUnixEpoch = 25569
	secondsPerDay   = 86400

	// DefaultDateSerialFloor 小于该值的数字不视为日期（约 2009 年）
	DefaultDateSerialFloor = 40000
)

// DecodeSerial 将表格日期序列号解码为 (月, 年)
func DecodeSerial(serial float64) (month, year int) {
	t := SerialToTime(serial)
	return int(t.Month()), t.Year()
}

// SerialToTime 序列号转 UTC 时间
func SerialToTime(serial float64) time.Time {
	ms := (serial - serialUnixEpoch) * secondsPerDay * 1000
	return time.UnixMilli(int64(math.Round(ms))).UTC()
}

// EncodeSerial 取该月 1 日的序列号
func EncodeSerial(month, year int) float64 {
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return float64(t.Unix())/secondsPerDay + serialUnixEpoch
}

// IsDateSerial 数字且大于下限才视为日期
func IsDateSerial(c Cell, floor float64) bool {
	v, ok := c.Float()
	return ok && v > floor
}

// isBareYear 形如 2023 的年份整数
func isBareYear(c Cell) bool {
	v, ok := c.Float()
	if !ok || v != math.Trunc(v) {
		return false
	}
	return v >= 2020 && v <= 2100
}

// MonthStart 当月第一天
func MonthStart(month, year int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd 当月最后一天
func MonthEnd(month, year int) time.Time {
	return MonthStart(month, year).AddDate(0, 1, -1)
}
