package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/John-Robertt/memmig/internal/catalog"
	"github.com/John-Robertt/memmig/internal/config"
	"github.com/John-Robertt/memmig/internal/dedup"
	"github.com/John-Robertt/memmig/internal/domain"
	"github.com/John-Robertt/memmig/internal/embed"
	"github.com/John-Robertt/memmig/internal/fetch"
	"github.com/John-Robertt/memmig/internal/infra/fsx"
	"github.com/John-Robertt/memmig/internal/infra/httpx"
	"github.com/John-Robertt/memmig/internal/infra/logx"
	"github.com/John-Robertt/memmig/internal/naming"
	"github.com/John-Robertt/memmig/internal/scan"
	"github.com/John-Robertt/memmig/internal/unpack"
)

const (
	// ReportDir 是输出目录下存放运行报告的隐藏目录。
	ReportDir = ".memmig"
	// ReportName 是运行报告文件名（每次非 dry-run 运行覆盖写入）。
	ReportName = "report.json"
)

var log = logx.Get("run")

// Execute 执行一次迁移（dry-run/实际下载），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, cat *catalog.Catalog) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, cat, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, cat *catalog.Catalog, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Catalog:   eff.Catalog,
		Output:    eff.Output,
		DryRun:    eff.DryRun,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}
	if cat == nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeCatalogInvalid, "目录为空"))
		return finish(rr)
	}

	records := cat.Records
	firstIndex := 0
	if text := strings.TrimSpace(eff.ResumeFrom); text != "" {
		if start, ok := resumeStart(records, text); ok {
			records = records[start:]
			firstIndex = records[0].Index
		} else {
			log.Emit(logx.WARNING, "没有找到包含 %q 的文件名，从头开始处理", text)
		}
	}

	invalid := 0
	for _, inv := range cat.Invalid {
		if inv.Index < firstIndex {
			continue
		}
		rr.Items = append(rr.Items, invalidItem(inv))
		invalid++
	}

	if obs != nil {
		obs.OnPhaseDone("catalog", map[string]any{
			"format":  cat.Format,
			"entries": cat.Len(),
			"records": len(records),
			"invalid": invalid,
		}, time.Since(started))
	}

	if !eff.DryRun {
		if err := ensureDir(eff.Output); err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("创建输出目录失败：%v", err)))
			return finish(rr)
		}
	}

	indexStarted := time.Now()
	ix, err := scan.ReadIndex(eff.Output)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("读取输出目录失败：%v", err)))
		return finish(rr)
	}
	if obs != nil {
		obs.OnPhaseDone("index", map[string]any{"files": ix.Len()}, time.Since(indexStarted))
	}

	client, err := httpx.NewDownloadClient(httpx.Options{
		ProxyURL:          eff.ProxyURL,
		Timeout:           eff.Timeout,
		RequestsPerSecond: eff.RequestsPerSecond,
	})
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy_url 无效：%v", err)))
		return finish(rr)
	}

	r := &runner{
		eff:     eff,
		ix:      ix,
		names:   naming.NewAssigner(ix),
		fetcher: &fetch.Fetcher{Client: client, MaxAttempts: eff.DownloadRetries},
		embedder: &embed.Embedder{
			MaxAttempts: eff.MetadataRetries,
			FFmpeg:      eff.Caps.FFmpegPath,
			Location:    eff.Location,
		},
		obs: obs,
	}

	total := len(records)
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			log.Emit(logx.WARNING, "运行被中断：剩余 %d 条记录未处理", total-i)
			break
		}
		itemStarted := time.Now()
		res := r.processOne(ctx, i+1, total, rec)
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnItemDone(i+1, total, res, time.Since(itemStarted))
		}
	}

	rr = finish(rr)
	if !eff.DryRun {
		if err := writeReport(eff.Output, rr); err != nil {
			log.Emit(logx.WARNING, "写入运行报告失败：%v", err)
		}
	}
	return rr
}

type runner struct {
	eff      config.EffectiveConfig
	ix       *scan.Index
	names    *naming.Assigner
	fetcher  *fetch.Fetcher
	embedder *embed.Embedder
	obs      Observer
}

func (r *runner) processOne(ctx context.Context, idx, total int, rec domain.MediaRecord) domain.ItemResult {
	item := domain.ItemResult{
		Index: rec.Index,
		Date:  rec.Timestamp.UTC().Format(domain.TimestampLayout),
		Kind:  string(rec.Kind),
	}

	if !r.eff.Range.Contains(rec.Timestamp) {
		item.Status = domain.StatusFiltered
		return item
	}

	if err := r.ix.Refresh(); err != nil {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeIOFailed
		item.ErrorMsg = fmt.Sprintf("读取输出目录失败：%v", err)
		return item
	}

	name, existing := r.names.Assign(rec.Timestamp, rec.PrimaryURL, rec.Kind.Ext())
	item.File = name
	dst := r.ix.Path(name)
	if r.obs != nil {
		r.obs.OnItemStart(idx, total, name)
	}

	if existing {
		item.Status = domain.StatusSkipped
		log.Emit(logx.DEBUG, "%s 已存在，只补写元数据", name)
		if !r.eff.DryRun {
			r.embed(ctx, dst, rec, &item)
		}
		return item
	}

	if r.eff.DryRun {
		item.Status = domain.StatusPlanned
		return item
	}

	res, err := r.retrieve(ctx, rec, dst, &item)
	if err != nil {
		item.Status = domain.StatusFailed
		if item.ErrorCode == "" {
			item.ErrorCode = domain.ErrCodeFetchFailed
		}
		item.ErrorMsg = humanizeRetrieveError(err)
		return item
	}
	item.Container = res.Format == unpack.FormatContainer
	item.Overlay = res.Composited
	if res.OverlayErr != nil {
		log.Emit(logx.WARNING, "%s 叠加层合成失败，保留原图：%v", name, res.OverlayErr)
	}

	dup, found, err := dedup.FindDuplicate(r.ix, dst, rec.Stem())
	if err != nil {
		log.Emit(logx.WARNING, "%s 查重失败，按新文件处理：%v", name, err)
	}
	if found {
		if err := fsx.RemoveIfExists(dst); err != nil {
			log.Emit(logx.WARNING, "删除重复文件失败 %s：%v", dst, err)
		}
		dupName := filepath.Base(dup)
		log.Emit(logx.DEBUG, "%s 与已有文件 %s 内容相同，改用已有文件", name, dupName)
		dst = dup
		item.File = dupName
		item.Duplicate = true
		r.names.Reserve(dupName)
	}

	item.Status = domain.StatusDownloaded
	r.embed(ctx, dst, rec, &item)
	return item
}

// retrieve 依次尝试主链接与备用链接：每个链接先下载到 <dst>.tmp，再解包到 dst。
// 所有链接都失败时返回汇总每个链接原因的 *multierror.Error，item.ErrorCode 取最后一次失败。
// 每次尝试都记录到 item.Attempts。
func (r *runner) retrieve(ctx context.Context, rec domain.MediaRecord, dst string, item *domain.ItemResult) (unpack.Result, error) {
	urls := rec.URLs()
	if len(urls) == 0 {
		item.ErrorCode = domain.ErrCodeFetchFailed
		return unpack.Result{}, errors.New("没有可用的下载链接")
	}

	var all *multierror.Error
	tmp := dst + ".tmp"
	for _, u := range urls {
		att := domain.FetchAttempt{URL: u}

		out, err := r.fetcher.Download(ctx, u, tmp)
		att.Method, att.Tries = out.Method, out.Attempts
		if err != nil {
			var fe *fetch.Error
			if errors.As(err, &fe) {
				att.Method, att.Tries = fe.Method, fe.Attempts
			}
			att.ErrorCode, att.ErrorMsg = domain.ErrCodeFetchFailed, err.Error()
			item.Attempts = append(item.Attempts, att)
			item.ErrorCode = att.ErrorCode
			all = multierror.Append(all, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		res, err := unpack.Materialize(tmp, dst, unpack.Options{CompositeOverlay: r.eff.CompositeOverlay})
		if err != nil {
			att.ErrorCode, att.ErrorMsg = unpackErrCode(err), err.Error()
			item.Attempts = append(item.Attempts, att)
			item.ErrorCode = att.ErrorCode
			all = multierror.Append(all, err)
			continue
		}

		item.Attempts = append(item.Attempts, att)
		item.SourceURL = u
		item.ErrorCode = ""
		if len(item.Attempts) > 1 {
			log.Emit(logx.DEBUG, "%s 使用备用链接下载成功", filepath.Base(dst))
		}
		return res, nil
	}

	all.ErrorFormat = joinAttemptErrors
	log.Emit(logx.DEBUG, "%s 全部链接失败：%v", filepath.Base(dst), all)
	return unpack.Result{}, all.ErrorOrNil()
}

// joinAttemptErrors 把多个链接的失败原因压成一行。
func joinAttemptErrors(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = fmt.Sprintf("链接 %d：%v", i+1, err)
	}
	return strings.Join(parts, "；")
}

// embed 写入元数据，并把结果记到 item 上（不改变 Status）。
func (r *runner) embed(ctx context.Context, path string, rec domain.MediaRecord, item *domain.ItemResult) {
	if err := r.embedder.Embed(ctx, path, rec); err != nil {
		item.Metadata = domain.MetadataFailed
		item.ErrorCode = embedErrCode(err)
		item.ErrorMsg = humanizeEmbedError(err)
		return
	}
	item.Metadata = domain.MetadataEmbedded
}

func unpackErrCode(err error) string {
	switch {
	case errors.Is(err, unpack.ErrNoMedia):
		return domain.ErrCodeArchiveNoMedia
	case errors.Is(err, unpack.ErrUnreadable):
		return domain.ErrCodeArchiveInvalid
	default:
		return domain.ErrCodeIOFailed
	}
}

func embedErrCode(err error) string {
	switch {
	case errors.Is(err, embed.ErrUnsupportedType):
		return domain.ErrCodeUnsupportedType
	case errors.Is(err, embed.ErrToolMissing):
		return domain.ErrCodeToolMissing
	case errors.Is(err, embed.ErrToolFailed):
		return domain.ErrCodeToolFailed
	case errors.Is(err, embed.ErrExif):
		return domain.ErrCodeExifFailed
	default:
		return domain.ErrCodeIOFailed
	}
}

// humanizeRetrieveError 生成面向用户的失败说明；多个链接都失败时逐个列出。
func humanizeRetrieveError(err error) string {
	if err == nil {
		return "下载失败"
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		switch len(merr.Errors) {
		case 0:
			return "下载失败"
		case 1:
			err = merr.Errors[0]
		default:
			parts := make([]string, len(merr.Errors))
			for i, e := range merr.Errors {
				parts[i] = fmt.Sprintf("链接 %d：%s", i+1, humanizeRetrieveError(e))
			}
			return strings.Join(parts, "；")
		}
	}
	switch {
	case errors.Is(err, unpack.ErrNoMedia):
		return fmt.Sprintf("压缩包里没有可用的媒体文件：%v", err)
	case errors.Is(err, unpack.ErrUnreadable):
		return fmt.Sprintf("下载内容无法识别（空文件或损坏的压缩包）：%v", err)
	case fsx.IsPathTypeConflict(err):
		return fmt.Sprintf("目标路径被目录占用：%v", err)
	case fsx.IsCrossDevice(err):
		return fmt.Sprintf("输出目录跨越了挂载点，无法原子替换：%v", err)
	}
	return humanizeFetchError(err)
}

func humanizeFetchError(err error) string {
	if errors.Is(err, context.Canceled) {
		return "下载被中断"
	}

	// HTTP 非 2xx：尽量给出可操作提示（链接过期/限流最常见）。
	var hs *fetch.HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case http.StatusForbidden:
			return "下载链接返回 HTTP 403（链接可能已过期）。建议重新导出数据后再运行。"
		case http.StatusTooManyRequests:
			return "下载链接返回 HTTP 429（触发限流）。建议设置 requests_per_second 降低请求速度。"
		case http.StatusNotFound:
			return "下载链接返回 HTTP 404（资源不存在或已被删除）。"
		default:
			return fmt.Sprintf("下载链接返回 HTTP %d。", hs.StatusCode)
		}
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return "下载超时。建议检查网络/代理，或调大 timeout_seconds 后重试。"
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") || strings.Contains(low, "ssl") {
		return "连接失败（TLS/SSL）。建议配置 proxy_url 或稍后重试。"
	}
	return fmt.Sprintf("下载失败：%v", err)
}

func humanizeEmbedError(err error) string {
	switch {
	case errors.Is(err, embed.ErrToolMissing):
		return "找不到 ffmpeg，无法写入视频元数据。安装 ffmpeg 或设置 ffmpeg_path 后重新运行即可补写。"
	case errors.Is(err, embed.ErrUnsupportedType):
		return fmt.Sprintf("不支持写入该类型文件的元数据：%v", err)
	default:
		return fmt.Sprintf("写入元数据失败：%v", err)
	}
}

// resumeStart 返回第一条基础文件名包含 text 的记录位置。
func resumeStart(records []domain.MediaRecord, text string) (int, bool) {
	for i, rec := range records {
		if strings.Contains(naming.BaseName(rec.Timestamp, rec.PrimaryURL, rec.Kind.Ext()), text) {
			return i, true
		}
	}
	return 0, false
}

func invalidItem(inv catalog.Invalid) domain.ItemResult {
	return domain.ItemResult{
		Index:     inv.Index,
		Date:      inv.Date,
		Kind:      inv.Kind,
		Status:    domain.StatusInvalid,
		ErrorCode: domain.ErrCodeInvalidRecord,
		ErrorMsg:  inv.Reason,
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func finish(rr domain.RunReport) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func ensureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func writeReport(out string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Join(out, ReportDir)
	if err := ensureDir(dir); err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(dir, ReportName, append(b, '\n'))
}
