package unpack

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/John-Robertt/memmig/internal/infra/fsx"
	"github.com/John-Robertt/memmig/internal/infra/imgx"
	"github.com/John-Robertt/memmig/internal/infra/logx"
)

var log = logx.Get("unpack")

var (
	// ErrNoMedia 表示压缩包里没有可用的媒体条目（覆盖层不算）。
	ErrNoMedia = errors.New("no media file found")
	// ErrUnreadable 表示下载内容既不是媒体文件也不是可读的压缩包。
	ErrUnreadable = errors.New("下载内容不可读")
)

const (
	overlayMarker = "overlay"
	mainMarker    = "main"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".m4v": true,
}

func isMedia(ext string) bool { return imageExts[ext] || videoExts[ext] }

type Options struct {
	// CompositeOverlay 为 true 时，把覆盖层叠加到选中的图片上。
	CompositeOverlay bool
}

// Result 描述 Materialize 实际做了什么。
type Result struct {
	Format     Format
	Entry      string // 选中的压缩包条目（raw 时为空）
	Overlay    string // 参与叠加的覆盖层条目
	Composited bool
	OverlayErr error // 叠加失败不影响结果，保留未叠加的原图
}

// Materialize 把 tmp 中的下载内容落到 dst（覆盖已有文件），并总是删除 tmp。
func Materialize(tmp, dst string, opts Options) (Result, error) {
	defer func() { _ = os.Remove(tmp) }()

	format, err := Sniff(tmp)
	res := Result{Format: format}
	switch format {
	case FormatRaw:
		if err := fsx.ReplaceFile(tmp, dst); err != nil {
			return res, err
		}
		return res, nil
	case FormatContainer:
		return extract(tmp, dst, opts, res)
	default:
		return res, fmt.Errorf("%w：%v", ErrUnreadable, err)
	}
}

func extract(tmp, dst string, opts Options, res Result) (Result, error) {
	zr, err := zip.OpenReader(tmp)
	if err != nil {
		return res, fmt.Errorf("%w：%v", ErrUnreadable, err)
	}
	defer zr.Close()

	var media, overlays []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		base := strings.ToLower(path.Base(f.Name))
		ext := path.Ext(base)
		if strings.Contains(base, overlayMarker) {
			if imageExts[ext] {
				overlays = append(overlays, f)
			}
			continue
		}
		if isMedia(ext) {
			media = append(media, f)
		}
	}

	chosen := pick(media)
	if chosen == nil {
		return res, ErrNoMedia
	}
	res.Entry = chosen.Name

	// 暂存目录放在目标目录内：最终 rename 不会跨盘；'.' 前缀让目录索引忽略它。
	scratch, err := os.MkdirTemp(filepath.Dir(dst), ".unpack-*")
	if err != nil {
		return res, err
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	staged := filepath.Join(scratch, "asset"+filepath.Ext(dst))
	if err := extractEntry(chosen, staged); err != nil {
		return res, err
	}

	chosenExt := strings.ToLower(path.Ext(chosen.Name))
	if opts.CompositeOverlay && imageExts[chosenExt] {
		if ov := pick(overlays); ov != nil {
			res.Overlay = ov.Name
			if err := composite(staged, ov, filepath.Ext(dst)); err != nil {
				res.OverlayErr = err
				log.Emit(logx.WARNING, "覆盖层叠加失败，保留原图：%v", err)
			} else {
				res.Composited = true
			}
		}
	}

	if err := fsx.ReplaceFile(staged, dst); err != nil {
		return res, err
	}
	return res, nil
}

// pick 选择条目：优先文件名含 main 的条目；其中（或全部候选中）取解压后最大的；同样大小取先出现的。
func pick(files []*zip.File) *zip.File {
	var mains []*zip.File
	for _, f := range files {
		if strings.Contains(strings.ToLower(path.Base(f.Name)), mainMarker) {
			mains = append(mains, f)
		}
	}
	if len(mains) > 0 {
		files = mains
	}

	var best *zip.File
	for _, f := range files {
		if best == nil || f.UncompressedSize64 > best.UncompressedSize64 {
			best = f
		}
	}
	return best
}

func extractEntry(f *zip.File, to string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func composite(staged string, overlay *zip.File, ext string) error {
	base, err := os.ReadFile(staged)
	if err != nil {
		return err
	}
	ov, err := readEntry(overlay)
	if err != nil {
		return err
	}
	out, err := imgx.CompositeOverlay(base, ov, ext)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(staged), filepath.Base(staged), out)
}
