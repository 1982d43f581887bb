package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyfeed/internal/service/metrics"
	"proxyfeed/internal/shared/settings"
	"proxyfeed/internal/shared/types"
	manager "proxyfeed/proxypool"
	"proxyfeed/proxypool/assembler"
	"proxyfeed/proxypool/scraper"
	"proxyfeed/proxypool/storage"
)

const (
	testUser     = "admin"
	testPassword = "secret"
)

// fakeFeedServer serves a three-page channel "demo" with twenty vless records per
// page, plus "broken" (HTTP 500) and "slow" (never answers in time).
func fakeFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		channel := strings.TrimPrefix(r.URL.Path, "/s/")
		switch channel {
		case "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		case "slow":
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}

		page := 0
		if before := r.URL.Query().Get("before"); before != "" {
			page, _ = strconv.Atoi(strings.TrimPrefix(before, "c"))
		}

		var b strings.Builder
		b.WriteString(`<html><body><div class="tgme_channel_history">`)
		if page < 2 {
			fmt.Fprintf(&b, `<div class="tme_messages_more" data-before="c%d"></div>`, page+1)
		}
		for m := 0; m < 20; m++ {
			fmt.Fprintf(&b, `<div class="tgme_widget_message_text">cfg<br>vless://p%dm%d@host:443?type=ws&amp;security=tls</div>`, page, m)
		}
		b.WriteString(`</div></body></html>`)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, b.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	srv       *httptest.Server
	client    *http.Client
	sm        *settings.SettingsManager
	collector *manager.Collector
	hub       *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	feed := fakeFeedServer(t)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "v2ray", "mixed.txt"), "vless://a\nvmess://b\nvless://c\n")
	writeFile(t, filepath.Join(root, "regular", "http.txt"), "1.1.1.1:80\n2.2.2.2:80\n")

	cfg := &types.Config{}
	cfg.ServerConf.WebUser = testUser
	cfg.ServerConf.WebPassword = testPassword
	cfg.FilesConf.Root = root
	cfg.ApplyDefaults()

	fetcher, err := scraper.NewHTTPFetcher(scraper.FetcherOptions{
		BaseURL:   feed.URL + "/s",
		UserAgent: "proxyfeed-test",
		Timeout:   500 * time.Millisecond,
	})
	require.NoError(t, err)

	sm, err := settings.NewSettingsManager("")
	require.NoError(t, err)

	collector := manager.NewCollector(fetcher, 5*time.Second)
	asm := assembler.New()
	require.NoError(t, sm.Register("feed", collector))
	require.NoError(t, sm.Register("subscription", asm))

	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	m := metrics.New()
	collector.AddObserver(m)
	collector.AddObserver(hub)

	handler := NewHandler(collector, asm, storage.NewFileStorage(cfg.FilesConf), sm, hub, fetcher.Name())
	router, err := NewRouter(cfg, handler, hub, m)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv: srv,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		sm:        sm,
		collector: collector,
		hub:       hub,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestTelegram_DefaultIsBase64(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/telegram/demo")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, assembler.ContentType, resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("profile-title"), "base64:"))

	plain, err := assembler.Decode(body)
	require.NoError(t, err)
	records := strings.Split(plain, assembler.Separator)
	assert.Len(t, records, 20)
	assert.Equal(t, "vless://p0m19@host:443?type=ws&security=tls", records[0])
}

func TestTelegram_ThreePages(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/telegram/demo?count=45&decrypted")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	records := strings.Split(body, assembler.Separator)
	require.Len(t, records, 45)
	assert.Equal(t, "vless://p1m19@host:443?type=ws&security=tls", records[20])
	assert.Equal(t, "vless://p2m15@host:443?type=ws&security=tls", records[44])
}

func TestTelegram_QuotaParameters(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		query string
		want  int
	}{
		{"limit=3&decrypted", 3},
		{"amount=4&decrypted", 4},
		{"count=2&limit=9&decrypted", 2},
		{"count=abc&decrypted", 20},
		{"count=-5&decrypted", 20},
		{"count=1000&decrypted", 60},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, body := env.get(t, "/telegram/demo?"+tt.query)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Len(t, strings.Split(body, assembler.Separator), tt.want)
		})
	}
}

func TestTelegram_FilterWithoutMatches(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/telegram/demo?protocol=vmess")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestTelegram_DecryptedFalse(t *testing.T) {
	env := newTestEnv(t)

	// 参数存在即明文，值为 false 或 0 也一样
	for _, v := range []string{"false", "0"} {
		_, body := env.get(t, "/telegram/demo?count=1&decrypted="+v)
		assert.Equal(t, "vless://p0m19@host:443?type=ws&security=tls", body, v)
	}
}

func TestTelegram_Errors(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/telegram/broken")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = env.get(t, "/telegram/slow")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestV2rayFile(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/proxies/v2ray/mixed?decrypted&protocol=vless&amount=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, settings.DefaultSentinel+"\n\nvless://a", body)

	_, body = env.get(t, "/proxies/v2ray/mixed.txt")
	plain, err := assembler.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultSentinel+"\n\nvless://a\n\nvmess://b\n\nvless://c", plain)

	resp, _ = env.get(t, "/proxies/v2ray/absent")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegularFile(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/proxies/regular/http")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1.1.1.1:80\n2.2.2.2:80", body)

	_, body = env.get(t, "/proxies/regular/http?count=1")
	assert.Equal(t, "1.1.1.1:80", body)
}

func TestFileIndex(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.get(t, "/proxies/v2ray/")
	assert.Equal(t, "available endpoints: mixed", body)

	_, body = env.get(t, "/proxies/regular/")
	assert.Equal(t, "available endpoints: http", body)
}

func TestRedirects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path     string
		location string
	}{
		{"/recive/mixed?count=2", "/proxies/v2ray/mixed?count=2"},
		{"/receive/mixed", "/proxies/v2ray/mixed"},
		{"/channel/demo?protocol=vless&decrypted", "/telegram/demo?protocol=vless&decrypted"},
	}
	for _, tt := range tests {
		resp, _ := env.get(t, tt.path)
		assert.Equal(t, http.StatusFound, resp.StatusCode, tt.path)
		assert.Equal(t, tt.location, resp.Header.Get("Location"), tt.path)
	}
}

func TestImport(t *testing.T) {
	env := newTestEnv(t)
	host := strings.TrimPrefix(env.srv.URL, "http://")

	resp, _ := env.get(t, "/import/v2rayng/install-sub/?url=@/proxies/v2ray/mixed")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "v2rayng://install-sub?url=http://"+host+"/proxies/v2ray/mixed", resp.Header.Get("Location"))

	resp, _ = env.get(t, "/import/v2rayng/install-sub")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.get(t, "/raw-import?url=@/telegram/demo")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "http://"+host+"/telegram/demo", resp.Header.Get("Location"))

	resp, body := env.get(t, "/raw-import")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad usage\n", body)
}

func TestAliveAndIndex(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.get(t, "/alive")
	assert.Equal(t, "I'm Alive", body)

	resp, body := env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<title>proxyfeed</title>")
}

func TestSettingsAPI(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/api/settings")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/settings", nil)
	req.SetBasicAuth(testUser, testPassword)
	resp, body := env.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var current settings.RuntimeSettings
	require.NoError(t, json.Unmarshal([]byte(body), &current))
	assert.Equal(t, 200, current.Feed.MaxCount)

	post := func(module, payload string) int {
		req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/api/settings/"+module, strings.NewReader(payload))
		req.SetBasicAuth(testUser, testPassword)
		resp, _ := env.do(t, req)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNotFound, post("gateway", `{}`))
	assert.Equal(t, http.StatusBadRequest, post("feed", `{"max_count":"ten"}`))
	assert.Equal(t, http.StatusOK, post("feed", `{"max_count":10}`))

	assert.Eventually(t, func() bool {
		return env.collector.FeedSettings().MaxCount == 10
	}, time.Second, 10*time.Millisecond)

	_, body = env.get(t, "/telegram/demo?count=45&decrypted")
	assert.Len(t, strings.Split(body, assembler.Separator), 10)
}

func TestStatusAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "http", status["fetcher"])
	assert.Contains(t, status, "globalStatus")

	env.get(t, "/telegram/demo?count=1")
	_, body = env.get(t, "/metrics")
	assert.Contains(t, body, `proxyfeed_http_responses_total{code="200",route="telegram"} 1`)
	assert.Contains(t, body, `proxyfeed_feed_pages_fetched_total{fetcher="http"} 2`)
}

func TestQueryHelpers(t *testing.T) {
	q := func(raw string) url.Values {
		v, err := url.ParseQuery(raw)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, 20, parseCount(q(""), 20))
	assert.Equal(t, 0, parseCount(q("count=0"), 20))
	assert.Equal(t, 7, parseCount(q("count=&limit=7"), 20))

	assert.Equal(t, 0, parseAmount(q("")))
	assert.Equal(t, 3, parseAmount(q("amount=0&limit=3")))
	assert.Equal(t, 5, parseAmount(q("amount=-1&count=5")))

	assert.False(t, isDecrypted(q("")))
	assert.True(t, isDecrypted(q("decrypted")))
	assert.True(t, isDecrypted(q("decrypted=1")))
	assert.True(t, isDecrypted(q("decrypted=yes")))
	assert.True(t, isDecrypted(q("decrypted=false")))
	assert.True(t, isDecrypted(q("decrypted=0")))
	assert.False(t, isDecrypted(q("protocol=vless")))
}
