package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDownloadClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewDownloadClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	require.NoError(t, err)
	tr, ok := c.Transport.(*Transport)
	require.True(t, ok, "期望 *Transport，实际 %T", c.Transport)

	assert.NotNil(t, tr.Base.Proxy, "期望启用代理")
	assert.True(t, tr.Base.DisableKeepAlives, "期望禁用 keep-alive")
	assert.True(t, tr.DisableKeepAlives, "期望设置 Request.Close=true 的额外保险")
}

func TestNewDownloadClient_Defaults(t *testing.T) {
	c, err := NewDownloadClient(Options{})
	require.NoError(t, err)
	tr := c.Transport.(*Transport)

	assert.Nil(t, tr.Base.Proxy, "不期望启用代理")
	assert.Nil(t, tr.Limiter, "未配置限速时 Limiter 应为 nil")
	assert.Equal(t, 90*time.Second, c.Timeout)
}

func TestNewDownloadClient_TimeoutAndLimiter(t *testing.T) {
	c, err := NewDownloadClient(Options{Timeout: 5 * time.Second, RequestsPerSecond: 0.5})
	require.NoError(t, err)
	tr := c.Transport.(*Transport)

	require.NotNil(t, tr.Limiter, "期望启用限速")
	assert.Equal(t, 1, tr.Limiter.Burst(), "burst 至少为 1")
	assert.Equal(t, 5*time.Second, c.Timeout)
}

func TestNewDownloadClient_InvalidProxyURL(t *testing.T) {
	_, err := NewDownloadClient(Options{ProxyURL: "http://[::1"})
	assert.Error(t, err)
}

func TestTransport_SetsUserAgentWhenMissing(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	c, err := NewDownloadClient(Options{})
	require.NoError(t, err)
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	ua, _ := gotUA.Load().(string)
	assert.Contains(t, globalUA.uas, ua, "UA 应来自内置 UA 池")
}

func TestTransport_SendsOnceOnConnectionError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("ResponseWriter 不支持 Hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("Hijack 失败：%v", err)
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	c, err := NewDownloadClient(Options{})
	require.NoError(t, err)
	resp, err := c.Get(srv.URL)
	if err == nil {
		resp.Body.Close()
	}
	require.Error(t, err, "期望连接错误")
	assert.Equal(t, int32(1), hits.Load(), "Transport 不应自行重试")
}
