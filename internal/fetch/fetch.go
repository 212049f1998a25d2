package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/John-Robertt/memmig/internal/infra/httpx"
	"github.com/John-Robertt/memmig/internal/infra/logx"
)

var log = logx.Get("fetch")

const (
	// RouteTagHeader 是导出服务要求的路由头。
	RouteTagHeader = "X-Snap-Route-Tag"
	RouteTagValue  = "mem-dmd"

	chunkSize    = 8192
	snippetLimit = 512

	defaultMaxAttempts = 3
)

// 服务端拒绝 GET 时在错误文本里给出的提示。
var methodMarkers = []string{"GET is not supported", "HTTP method GET"}

// Outcome 描述一次成功下载。
type Outcome struct {
	Method   string
	Attempts int
	Bytes    int64
}

// Fetcher 负责把单个 URL 的内容流式写入临时文件。
//
// 规则：
//   - 起始方法为 GET；遇到 405 或“方法不支持”的提示时切换为 POST（仅一次，不消耗尝试次数）
//   - 其它失败消耗一次尝试并立即重试（无退避）
//   - ctx 取消后不再重试
type Fetcher struct {
	Client      *http.Client
	MaxAttempts int
}

// Download 下载 rawURL 到 tmpPath。失败时 tmpPath 被删除，返回 *Error。
func (f *Fetcher) Download(ctx context.Context, rawURL, tmpPath string) (Outcome, error) {
	max := f.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	c := f.Client
	if c == nil {
		c = http.DefaultClient
	}

	method := http.MethodGet
	switched := false
	attempts := 0
	var lastErr error

	for attempts < max {
		attempts++
		n, err := f.once(ctx, c, method, rawURL, tmpPath)
		if err == nil {
			log.Emit(logx.DEBUG, "%s %s -> %d 字节（第 %d 次）", method, rawURL, n, attempts)
			return Outcome{Method: method, Attempts: attempts, Bytes: n}, nil
		}
		_ = os.Remove(tmpPath)
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if !switched && method == http.MethodGet && methodRejected(err) {
			switched = true
			method = http.MethodPost
			// 切换方法不算一次尝试。
			attempts--
			log.Emit(logx.DEBUG, "服务端拒绝 GET，改用 POST：%s", rawURL)
			continue
		}
		if attempts < max {
			log.Emit(logx.WARNING, "下载失败，重试 %d/%d：%v", attempts, max, err)
		}
	}

	return Outcome{}, &Error{URL: rawURL, Method: method, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) once(ctx context.Context, c *http.Client, method, rawURL, tmpPath string) (int64, error) {
	req, err := newRequest(ctx, method, rawURL)
	if err != nil {
		return 0, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		return 0, &HTTPStatusError{URL: rawURL, Method: method, StatusCode: resp.StatusCode, Snippet: string(b)}
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, err
	}
	n, werr := copyChunks(out, resp.Body)
	cerr := out.Close()
	if werr != nil {
		return n, werr
	}
	if cerr != nil {
		return n, cerr
	}
	return n, nil
}

func newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	var req *http.Request
	var err error
	if method == http.MethodPost {
		// POST：? 之前为地址，查询串原样作为表单 body。
		base, query, _ := strings.Cut(rawURL, "?")
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, base, strings.NewReader(query))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(RouteTagHeader, RouteTagValue)
	}
	req.Header.Set("User-Agent", httpx.RandomUserAgent())
	return req, nil
}

// copyChunks 以固定大小的块写盘，内存占用与文件大小无关。
func copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
			if w != n {
				return total, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func methodRejected(err error) bool {
	var se *HTTPStatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusMethodNotAllowed {
		return true
	}
	msg := err.Error()
	for _, m := range methodMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
