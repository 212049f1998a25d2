package embed

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/memmig/internal/domain"
	"github.com/John-Robertt/memmig/internal/infra/logx"
)

var log = logx.Get("embed")

var (
	// ErrUnsupportedType：扩展名既不是 JPEG 也不是 MP4，不重试。
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrToolMissing：找不到 ffmpeg，不重试。
	ErrToolMissing = errors.New("ffmpeg not found")
	// ErrToolFailed：ffmpeg 运行失败，可重试。
	ErrToolFailed = errors.New("ffmpeg failed")
	// ErrExif：读写 EXIF 失败，可重试。
	ErrExif = errors.New("exif write failed")
)

const defaultMaxAttempts = 3

// Embedder 把记录的拍摄时间与坐标写进输出文件。
type Embedder struct {
	// MaxAttempts 为单个文件的最大尝试次数（含首次）。
	MaxAttempts int
	// FFmpeg 为 ffmpeg 可执行文件路径；为空表示不可用（视频直接报 ErrToolMissing）。
	FFmpeg string
	// Location 决定时间字符串使用的时区；nil 为 UTC。
	Location *time.Location
}

// meta 在一次 Embed 调用内只计算一次，重试时复用。
type meta struct {
	Time time.Time
	Loc  *Location
}

// Embed 按扩展名选择写入方式：.jpg/.jpeg 写 EXIF，.mp4 走 ffmpeg，其它返回 ErrUnsupportedType。
func (e *Embedder) Embed(ctx context.Context, path string, rec domain.MediaRecord) error {
	var write func(context.Context, string, meta) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jpg", ".jpeg":
		write = func(_ context.Context, p string, m meta) error { return writeEXIF(p, m) }
	case ".mp4":
		write = func(ctx context.Context, p string, m meta) error { return writeVideo(ctx, e.FFmpeg, p, m) }
	default:
		return fmt.Errorf("%w：%q", ErrUnsupportedType, ext)
	}

	m := e.meta(rec)
	max := e.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		lastErr = write(ctx, path, m)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrToolMissing) || ctx.Err() != nil {
			return lastErr
		}
		if attempt < max {
			log.Emit(logx.WARNING, "写入元数据失败，重试 %d/%d：%s：%v", attempt, max, filepath.Base(path), lastErr)
		}
	}
	return lastErr
}

func (e *Embedder) meta(rec domain.MediaRecord) meta {
	tz := e.Location
	if tz == nil {
		tz = time.UTC
	}
	m := meta{Time: rec.Timestamp.In(tz)}
	if loc, ok := ParseLocation(rec.Location); ok {
		m.Loc = &loc
	}
	return m
}
