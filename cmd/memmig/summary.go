package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/John-Robertt/memmig/internal/domain"
)

// summaryLine 是非交互模式下写到 stderr 的单行摘要。
func summaryLine(s domain.ReportSummary) string {
	return fmt.Sprintf("完成：total=%d downloaded=%d skipped=%d duplicates=%d metadata_embedded=%d failed_download=%d failed_metadata=%d",
		s.Total, s.Downloaded, s.Skipped, s.Duplicates, s.MetadataEmbedded, s.FailedDownload, s.FailedMetadata,
	)
}

// writeSummary 输出七个计数器；失败项非零时标红。
func writeSummary(w io.Writer, s domain.ReportSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "完成：")
	row := func(label string, n int, c *color.Color) {
		v := fmt.Sprint(n)
		if c != nil && n > 0 {
			v = c.Sprint(v)
		}
		fmt.Fprintf(w, "  %-18s %s\n", label, v)
	}
	row("total", s.Total, nil)
	row("downloaded", s.Downloaded, okColor)
	row("skipped", s.Skipped, nil)
	row("duplicates", s.Duplicates, nil)
	row("metadata_embedded", s.MetadataEmbedded, nil)
	row("failed_download", s.FailedDownload, failColor)
	row("failed_metadata", s.FailedMetadata, failColor)

	if s.Planned > 0 || s.Filtered > 0 || s.Invalid > 0 {
		fmt.Fprintf(w, "  (planned=%d filtered=%d invalid=%d)\n", s.Planned, s.Filtered, s.Invalid)
	}
}

// writeFailures 每个需要关注的条目一行：定位锚点 + error_code + 说明。
func writeFailures(w io.Writer, items []domain.ItemResult) {
	for _, it := range items {
		if !it.Failed() {
			continue
		}
		key := it.File
		if key == "" && it.Index > 0 {
			key = fmt.Sprintf("#%d", it.Index)
		}
		if key == "" {
			key = "<run>"
		}
		fmt.Fprintf(w, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
	}
}
