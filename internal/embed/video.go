package embed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"

	"github.com/John-Robertt/memmig/internal/infra/fsx"
)

const videoTimeLayout = "2006-01-02 15:04:05"

// 通过可替换的函数指针，让测试能用 helper 进程冒充 ffmpeg。
var execCommand = exec.CommandContext

// ToolError 表示 ffmpeg 运行失败（非 0 退出或没有产出）。
type ToolError struct {
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 300 {
		msg = "…" + msg[len(msg)-300:]
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("ffmpeg 失败（exit=%d）：%s", e.ExitCode, msg)
}

func (e *ToolError) Unwrap() error { return e.Err }

func (e *ToolError) Is(target error) bool { return target == ErrToolFailed }

// videoArgs 生成“流复制 + 写入元数据”的 ffmpeg 参数。
func videoArgs(in, out string, m meta) []string {
	codec := "copy"
	format := "mp4"
	overwrite := true
	opts := ffmpeg.Options{
		VideoCodec:   &codec,
		AudioCodec:   &codec,
		OutputFormat: &format,
		Overwrite:    &overwrite,
	}

	ts := m.Time.Format(videoTimeLayout)
	args := []string{"-i", in}
	args = append(args, opts.GetStrArguments()...)
	args = append(args, "-metadata", "creation_time="+ts, "-metadata", "date="+ts)
	if m.Loc != nil {
		loc := m.Loc.String()
		args = append(args, "-metadata", "location="+loc, "-metadata", "location-eng="+loc)
	}
	return append(args, out)
}

// writeVideo 用 ffmpeg 重新封装到 <path>.tmp，成功且非空时替换原文件；失败总是删除临时文件。
func writeVideo(ctx context.Context, bin, path string, m meta) error {
	if bin == "" {
		return ErrToolMissing
	}
	tmp := path + ".tmp"
	defer func() { _ = fsx.RemoveIfExists(tmp) }()

	cmd := execCommand(ctx, bin, videoArgs(path, tmp, m)...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w：%v", ErrToolMissing, err)
		}
		te := &ToolError{Path: path, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			te.ExitCode = ee.ExitCode()
		}
		return te
	}

	fi, err := os.Stat(tmp)
	if err != nil || fi.Size() == 0 {
		return &ToolError{Path: path, ExitCode: 0, Stderr: stderr.String(), Err: errors.New("ffmpeg 没有产出文件")}
	}
	return fsx.ReplaceFile(tmp, path)
}
