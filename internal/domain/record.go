package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout 是导出目录里 Date 字段的固定格式（UTC，秒精度）。
const TimestampLayout = "2006-01-02 15:04:05 UTC"

// StemLayout 是输出文件名的时间前缀格式；同时也是去重时的匹配键。
const StemLayout = "2006-01-02_15-04-05"

// MediaKind 只有两种：photo / video。
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// ParseKind 把目录里的 "Media Type"（Image/PHOTO/Video...）规范化。
// 与导出工具保持一致：只有 video 被识别为视频，其余一律按照片处理。
func ParseKind(s string) MediaKind {
	if strings.EqualFold(strings.TrimSpace(s), "video") {
		return KindVideo
	}
	return KindPhoto
}

// Ext 返回该类型输出文件的扩展名。
func (k MediaKind) Ext() string {
	if k == KindVideo {
		return ".mp4"
	}
	return ".jpg"
}

// MediaRecord 是目录中的一条记录（解析后不可变）。
//
// 约束：
// - Timestamp 必须是 UTC 且为秒精度
// - PrimaryURL 非空；FallbackURL 可为空
// - 一条记录最多产生一个输出文件
type MediaRecord struct {
	Index       int // 目录中的位置（从 1 开始），用于报告排序与定位
	Timestamp   time.Time
	PrimaryURL  string
	FallbackURL string
	Kind        MediaKind
	Location    string
}

// Stem 返回时间戳前缀（例如 2023-06-01_12-00-00）。
func (r MediaRecord) Stem() string {
	return r.Timestamp.UTC().Format(StemLayout)
}

// URLs 按“主 -> 备”顺序返回非空 URL。
func (r MediaRecord) URLs() []string {
	out := make([]string, 0, 2)
	if u := strings.TrimSpace(r.PrimaryURL); u != "" {
		out = append(out, u)
	}
	if u := strings.TrimSpace(r.FallbackURL); u != "" {
		out = append(out, u)
	}
	return out
}

// ParseTimestamp 解析目录里的时间字符串。
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("时间格式无效 %q（期望 %q）", s, TimestampLayout)
	}
	return t.UTC(), nil
}
