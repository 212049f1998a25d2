package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/memmig/internal/infra/httpx"
)

type seen struct {
	Method      string
	RouteTag    string
	UA          string
	ContentType string
	Body        string
	RawQuery    string
}

type recorder struct {
	mu   sync.Mutex
	reqs []seen
}

func (r *recorder) add(req *http.Request) int {
	b, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, seen{
		Method:      req.Method,
		RouteTag:    req.Header.Get(RouteTagHeader),
		UA:          req.Header.Get("User-Agent"),
		ContentType: req.Header.Get("Content-Type"),
		Body:        string(b),
		RawQuery:    req.URL.RawQuery,
	})
	return len(r.reqs)
}

func (r *recorder) all() []seen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]seen(nil), r.reqs...)
}

func newFetcher(t *testing.T, max int) *Fetcher {
	t.Helper()
	c, err := httpx.NewDownloadClient(httpx.Options{})
	require.NoError(t, err)
	return &Fetcher{Client: c, MaxAttempts: max}
}

func TestDownload_GETSuccessWritesBody(t *testing.T) {
	rec := &recorder{}
	payload := strings.Repeat("x", 3*chunkSize+17)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	tmp := filepath.Join(t.TempDir(), "a.jpg.tmp")
	out, err := newFetcher(t, 3).Download(context.Background(), srv.URL+"/m?uid=1&sig=2", tmp)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, out.Method)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, int64(len(payload)), out.Bytes)

	b, err := os.ReadFile(tmp)
	require.NoError(t, err)
	assert.Equal(t, payload, string(b))

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, RouteTagValue, reqs[0].RouteTag)
	assert.NotEmpty(t, reqs[0].UA)
	assert.Equal(t, "uid=1&sig=2", reqs[0].RawQuery)
}

func TestDownload_405SwitchesToPOSTWithoutConsumingAttempt(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = io.WriteString(w, "media")
	}))
	defer srv.Close()

	tmp := filepath.Join(t.TempDir(), "a.jpg.tmp")
	// 只有 1 次尝试预算：切换不消耗预算，POST 仍能执行。
	out, err := newFetcher(t, 1).Download(context.Background(), srv.URL+"/m?uid=1&sig=2", tmp)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, out.Method)
	assert.Equal(t, 1, out.Attempts)

	reqs := rec.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, http.MethodPost, reqs[1].Method)
	assert.Equal(t, "uid=1&sig=2", reqs[1].Body)
	assert.Equal(t, "", reqs[1].RawQuery)
	assert.Equal(t, "application/x-www-form-urlencoded", reqs[1].ContentType)
}

func TestDownload_SwitchIsPermanentAndHappensOnce(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	tmp := filepath.Join(t.TempDir(), "a.jpg.tmp")
	_, err := newFetcher(t, 3).Download(context.Background(), srv.URL+"/m?a=b", tmp)
	require.Error(t, err)

	reqs := rec.all()
	// 1 次 GET（切换，不计数）+ 3 次 POST。
	require.Len(t, reqs, 4)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	for _, r := range reqs[1:] {
		assert.Equal(t, http.MethodPost, r.Method)
	}

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, http.MethodPost, fe.Method)
}

func TestDownload_BodyMessageSwitchesToPOST(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, "Request method 'GET' rejected: HTTP method GET is not supported by this URL")
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	tmp := filepath.Join(t.TempDir(), "a.mp4.tmp")
	out, err := newFetcher(t, 2).Download(context.Background(), srv.URL+"/m?x=1", tmp)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, out.Method)
	assert.Len(t, rec.all(), 2)
}

func TestDownload_ExhaustionReturnsLastErrorAndRemovesTmp(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := rec.add(r)
		w.WriteHeader(500 + n) // 501, 502, 503：便于确认是“最后一次”的错误
	}))
	defer srv.Close()

	tmp := filepath.Join(t.TempDir(), "a.jpg.tmp")
	_, err := newFetcher(t, 3).Download(context.Background(), srv.URL, tmp)
	require.Error(t, err)
	assert.Len(t, rec.all(), 3)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Attempts)

	var se *HTTPStatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 503, se.StatusCode)

	_, statErr := os.Stat(tmp)
	assert.True(t, os.IsNotExist(statErr), "失败后不应留下临时文件")
}

func TestDownload_RetriesThenSucceeds(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec.add(r) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	tmp := filepath.Join(t.TempDir(), "a.jpg.tmp")
	out, err := newFetcher(t, 3).Download(context.Background(), srv.URL, tmp)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, http.MethodGet, out.Method)
}

func TestDownload_CancelledContextStopsRetrying(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tmp := filepath.Join(t.TempDir(), "a.jpg.tmp")
	_, err := newFetcher(t, 5).Download(ctx, srv.URL, tmp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, rec.all())
}
