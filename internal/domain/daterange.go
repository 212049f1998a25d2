package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateRange 是闭区间 [From, To]；任一端为零值表示该端不限制。
type DateRange struct {
	From time.Time
	To   time.Time
}

// IsZero 表示不做任何过滤。
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Contains 判断 t 是否落在区间内（两端都包含）。
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

var exactLayouts = []string{
	TimestampLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

const dayLayout = "2006-01-02"

// ParseBound 解析过滤边界。
//
// - 只给日期（2023-06-01）：下界取当天 00:00:00，上界取当天最后一纳秒（即整天都包含）
// - 给了具体时间：按原值处理（无时区信息的一律视为 UTC）
// - 空串：返回零值（不限制）
func ParseBound(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.Parse(dayLayout, s); err == nil {
		if upper {
			return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return d, nil
	}
	for _, layout := range exactLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期 %q（支持 2006-01-02 或 2006-01-02 15:04:05）", s)
}

// ParseDateRange 同时解析上下界，并校验 from <= to。
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := ParseBound(from, false)
	if err != nil {
		return DateRange{}, fmt.Errorf("from：%w", err)
	}
	t, err := ParseBound(to, true)
	if err != nil {
		return DateRange{}, fmt.Errorf("to：%w", err)
	}
	if !f.IsZero() && !t.IsZero() && t.Before(f) {
		return DateRange{}, fmt.Errorf("to（%s）早于 from（%s）", to, from)
	}
	return DateRange{From: f, To: t}, nil
}
