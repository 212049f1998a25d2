package unpack

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

// Format 是下载内容的嗅探结果。
type Format int

const (
	FormatUnreadable Format = iota
	FormatRaw
	FormatContainer
)

func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatContainer:
		return "container"
	default:
		return "unreadable"
	}
}

var (
	zipLocalHeader = []byte("PK\x03\x04")
	zipEmptyEOCD   = []byte("PK\x05\x06")
)

// Sniff 判断 path 是压缩包、原始媒体还是无法使用的内容。
//
// 规则：
// - 空文件：unreadable
// - 带 ZIP 签名且能打开中央目录：container
// - 带 ZIP 签名但目录损坏：unreadable（截断的压缩包不能当作媒体文件）
// - 其它：raw
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnreadable, err
	}
	defer f.Close()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return FormatUnreadable, errors.New("下载内容为空")
		}
		return FormatUnreadable, err
	}
	head = head[:n]
	if !bytes.Equal(head, zipLocalHeader) && !bytes.Equal(head, zipEmptyEOCD) {
		return FormatRaw, nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return FormatUnreadable, err
	}
	_ = zr.Close()
	return FormatContainer, nil
}
