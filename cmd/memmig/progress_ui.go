package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/John-Robertt/memmig/internal/app/run"
	"github.com/John-Robertt/memmig/internal/config"
	"github.com/John-Robertt/memmig/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

var (
	okColor   = color.New(color.FgGreen)
	skipColor = color.New(color.FgCyan)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单个大文件下载时间较长时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total   int
	done    int
	ok      int
	fail    int
	skip    int
	current string

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "download"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不联网/不写盘)"
	}

	fmt.Fprintf(p.w, "[%s] memmig run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  catalog: %s\n", eff.Catalog)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  range: %s\n", formatRange(eff.Range, eff.From, eff.To))
	if eff.ResumeFrom != "" {
		fmt.Fprintf(p.w, "  resume_from: %s\n", eff.ResumeFrom)
	}
	fmt.Fprintf(p.w, "  retries: download=%d metadata=%d\n", eff.DownloadRetries, eff.MetadataRetries)
	fmt.Fprintf(p.w, "  overlay: %s\n", onOff(eff.CompositeOverlay))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if eff.RequestsPerSecond > 0 {
		fmt.Fprintf(p.w, "  requests_per_second: %g\n", eff.RequestsPerSecond)
	}
	fmt.Fprintf(p.w, "  ffmpeg: %s\n", formatFFmpeg(eff.Caps))
	if eff.Location != nil {
		fmt.Fprintf(p.w, "  metadata_timezone: %s\n", eff.Location)
	}

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  out: %s\n", eff.Output)
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "catalog":
		p.total = intField(fields, "records")
		fmt.Fprintf(p.w, "目录: format=%s entries=%d records=%d invalid=%d (%s)\n",
			stringField(fields, "format"), intField(fields, "entries"), p.total, intField(fields, "invalid"), formatShortDuration(dur),
		)
	case "index":
		fmt.Fprintf(p.w, "输出目录: files=%d (%s)\n\n", intField(fields, "files"), formatShortDuration(dur))
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemStart(idx, total int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = file
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total
	p.current = ""

	switch res.Status {
	case domain.StatusDownloaded, domain.StatusPlanned:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped, domain.StatusFiltered:
		p.skip++
	}

	fmt.Fprintln(p.w, formatItemLine(idx, total, res, dur))
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, skip int, current string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w, formatProgress(done, total, ok, fail, skip, current, elapsed))
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive（运行被中断、没有走到最后一条时由 CLI 调用）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, formatProgress(p.done, p.total, p.ok, p.fail, p.skip, p.current, time.Since(p.startedAt)))
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func formatItemLine(idx, total int, res domain.ItemResult, dur time.Duration) string {
	name := res.File
	if name == "" {
		name = "#" + fmt.Sprint(res.Index)
	}
	prefix := fmt.Sprintf("[%d/%d] %s", idx, total, name)

	switch res.Status {
	case domain.StatusFailed:
		chain := formatAttemptChain(res.Attempts, -1)
		if chain != "" {
			chain = " attempts=" + chain
		}
		return fmt.Sprintf("%s %s %s: %s%s (%s)",
			prefix, failColor.Sprint("FAIL"), res.ErrorCode, truncate(res.ErrorMsg, 160), chain, formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		return fmt.Sprintf("%s %s (已存在)%s (%s)", prefix, skipColor.Sprint("SKIP"), metadataNote(res), formatShortDuration(dur))
	case domain.StatusFiltered:
		return fmt.Sprintf("%s %s (%s 不在日期范围内)", prefix, dimColor.Sprint("FILTER"), res.Date)
	case domain.StatusPlanned:
		return fmt.Sprintf("%s %s", prefix, okColor.Sprint("PLAN"))
	default:
		var notes []string
		if res.Duplicate {
			notes = append(notes, "duplicate")
		}
		if res.Container {
			notes = append(notes, "zip")
		}
		if res.Overlay {
			notes = append(notes, "overlay")
		}
		if len(res.Attempts) > 1 {
			notes = append(notes, "fallback")
		}
		extra := ""
		if len(notes) > 0 {
			extra = " " + strings.Join(notes, ",")
		}
		return fmt.Sprintf("%s %s%s%s (%s)", prefix, okColor.Sprint("OK"), extra, metadataNote(res), formatShortDuration(dur))
	}
}

func metadataNote(res domain.ItemResult) string {
	if res.Metadata != domain.MetadataFailed {
		return ""
	}
	return " " + warnColor.Sprintf("metadata=%s: %s", res.ErrorCode, truncate(res.ErrorMsg, 120))
}

func formatProgress(done, total, ok, fail, skip int, current string, elapsed time.Duration) string {
	line := fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s",
		done, total, ok, fail, skip, formatElapsed(elapsed),
	)
	if current != "" {
		line += " current=" + current
	}
	return line
}

func formatAttemptChain(attempts []domain.FetchAttempt, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	if max < 0 {
		max = len(attempts)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := fmt.Sprintf("%s×%d", strings.TrimSpace(a.Method), a.Tries)
		if ec := strings.TrimSpace(a.ErrorCode); ec != "" {
			s += ":" + ec
		}
		parts = append(parts, s)
		if len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}

func formatRange(r domain.DateRange, from, to string) string {
	if r.IsZero() {
		return "all"
	}
	if from == "" {
		from = "-"
	}
	if to == "" {
		to = "-"
	}
	return from + " .. " + to
}

func formatFFmpeg(c config.Capabilities) string {
	if !c.FFmpeg {
		return "missing (视频元数据将无法写入)"
	}
	return c.FFmpegPath
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}

func stringField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	s, _ := fields[key].(string)
	return s
}
