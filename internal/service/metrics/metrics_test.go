package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	manager "proxyfeed/proxypool"
	"proxyfeed/proxypool/model"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Observer(t *testing.T) {
	m := New()
	var _ manager.Observer = m

	m.PageFetched("http", 120*time.Millisecond)
	m.PageFetched("http", 80*time.Millisecond)
	m.FetchFailed("http", "timeout")
	m.CollectFinished(&manager.Report{
		Extracted: 7,
		Records:   []model.Record{"vless://a", "vless://b"},
		Took:      time.Second,
	}, nil)
	m.CollectFinished(&manager.Report{Took: time.Second}, errors.New("boom"))

	body := scrape(t, m)
	assert.Contains(t, body, `proxyfeed_feed_pages_fetched_total{fetcher="http"} 2`)
	assert.Contains(t, body, `proxyfeed_feed_fetch_failures_total{fetcher="http",kind="timeout"} 1`)
	assert.Contains(t, body, `proxyfeed_feed_collections_total{result="ok"} 1`)
	assert.Contains(t, body, `proxyfeed_feed_collections_total{result="error"} 1`)
	assert.Contains(t, body, `proxyfeed_feed_records_extracted_total 7`)
	assert.Contains(t, body, `proxyfeed_feed_records_returned_total 2`)
	assert.Contains(t, body, `proxyfeed_feed_collect_duration_seconds_count 2`)
}

func TestMetrics_Responses(t *testing.T) {
	m := New()
	m.ObserveResponse("telegram", 200)
	m.ObserveResponse("telegram", 502)
	m.ObserveResponse("telegram", 502)

	body := scrape(t, m)
	assert.Contains(t, body, `proxyfeed_http_responses_total{code="200",route="telegram"} 1`)
	assert.Contains(t, body, `proxyfeed_http_responses_total{code="502",route="telegram"} 2`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// 每个实例使用私有 registry, 重复创建不会触发重复注册 panic
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
