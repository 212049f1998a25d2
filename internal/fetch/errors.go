package fetch

import (
	"fmt"
	"strings"
)

// HTTPStatusError 表示服务端返回了非 2xx 的 HTTP 状态码。
// Snippet 是响应体开头的一小段文本，用于识别“方法不支持”之类的提示。
type HTTPStatusError struct {
	URL        string
	Method     string
	StatusCode int
	Snippet    string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	s := strings.TrimSpace(e.Snippet)
	if s == "" {
		return fmt.Sprintf("HTTP %d (%s)", e.StatusCode, e.Method)
	}
	return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Method, s)
}

// Error 是单个 URL 下载用尽尝试次数后的终止错误，携带最后一次失败原因。
type Error struct {
	URL      string
	Method   string // 最后一次尝试使用的方法
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "fetch error"
	}
	return fmt.Sprintf("下载失败（%s，%d 次尝试）：%v", e.Method, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
