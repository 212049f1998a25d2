package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
	StatusFiltered   = "filtered"
	StatusInvalid    = "invalid"
	StatusPlanned    = "planned"
)

const (
	MetadataEmbedded = "embedded"
	MetadataFailed   = "failed"
)

const (
	ErrCodeFetchFailed     = "fetch_failed"
	ErrCodeArchiveNoMedia  = "archive_no_media"
	ErrCodeArchiveInvalid  = "archive_invalid"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeUnsupportedType = "unsupported_type"
	ErrCodeToolMissing     = "tool_missing"
	ErrCodeToolFailed      = "tool_failed"
	ErrCodeExifFailed      = "exif_failed"
	ErrCodeInvalidRecord   = "invalid_record"
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeCatalogInvalid  = "catalog_invalid"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID   string `json:"run_id"`
	Catalog string `json:"catalog"`
	Output  string `json:"output"`
	DryRun  bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

// ReportSummary 是运行结束时的计数器（由 items 推导，不单独维护）。
type ReportSummary struct {
	Total            int `json:"total"`
	Downloaded       int `json:"downloaded"`
	Skipped          int `json:"skipped"`
	Duplicates       int `json:"duplicates"`
	MetadataEmbedded int `json:"metadata_embedded"`
	FailedDownload   int `json:"failed_download"`
	FailedMetadata   int `json:"failed_metadata"`

	Planned  int `json:"planned"`
	Filtered int `json:"filtered"`
	Invalid  int `json:"invalid"`
}

type ItemResult struct {
	Index int    `json:"index"`
	Date  string `json:"date"`
	Kind  string `json:"kind"`

	// File 是最终归属的文件名；去重命中时指向已存在的文件。
	File      string `json:"file"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	SourceURL string `json:"source_url"`
	Container bool   `json:"container"`
	Overlay   bool   `json:"overlay"`
	Metadata  string `json:"metadata"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Attempts []FetchAttempt `json:"attempts"`
}

// FetchAttempt 记录一次 URL 级别的获取（含重试次数与最终错误）。
type FetchAttempt struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	Tries     int    `json:"tries"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Failed 表示该条目需要用户关注（下载失败或元数据写入失败）。
func (it ItemResult) Failed() bool {
	return it.Status == StatusFailed || it.Status == StatusInvalid || it.Metadata == MetadataFailed
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 按目录顺序（Index）稳定排序
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Index < r.Items[j].Index })

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusFiltered:
			s.Filtered++
			continue
		case StatusInvalid:
			s.Invalid++
			continue
		case StatusDownloaded:
			s.Downloaded++
			if it.Metadata == MetadataFailed {
				s.FailedMetadata++
			}
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.FailedDownload++
		case StatusPlanned:
			s.Planned++
		}
		s.Total++
		if it.Duplicate {
			s.Duplicates++
		}
		if it.Metadata == MetadataEmbedded {
			s.MetadataEmbedded++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性：nil 切片统一输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	// 复制一份，避免修改调用方持有的 items。
	a.Items = append([]ItemResult{}, r.Items...)
	for i := range a.Items {
		if a.Items[i].Attempts == nil {
			a.Items[i].Attempts = []FetchAttempt{}
		}
	}
	return json.Marshal(a)
}
