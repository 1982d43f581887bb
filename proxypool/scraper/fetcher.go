package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"proxyfeed/internal/shared/logger"
	"proxyfeed/proxypool/model"
)

// maxPageBytes 限制单个页面读取的字节数，频道页面通常在 200KB 以内。
const maxPageBytes = 8 << 20

// PageFetcher 定义了所有频道页面抓取器必须实现的接口
type PageFetcher interface {
	// Fetch 对 <base>/<channel> 发起一次 GET，cursor 非空时附加 before 参数。
	Fetch(ctx context.Context, channel string, cursor model.Cursor) (*model.FeedPage, error)
	// Name 返回抓取器名称，用于日志和指标
	Name() string
}

// FetcherOptions 是两个抓取器实现共享的参数
type FetcherOptions struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	UpstreamProxy  string // socks5://[user:pass@]host:port, 为空时直连
	TLSFingerprint string // "none", "chrome", "randomized"
}

// New 根据名称创建抓取器: "http" (默认) 或 "colly"。
func New(name string, opts FetcherOptions) (PageFetcher, error) {
	switch strings.ToLower(name) {
	case "", "http":
		return NewHTTPFetcher(opts)
	case "colly":
		return NewCollyFetcher(opts)
	default:
		return nil, fmt.Errorf("unknown fetcher %q", name)
	}
}

// PageURL builds the address of a channel page. The cursor is sent unchanged:
// it is percent-escaped here ("a+b=c" becomes "a%2Bb%3Dc") and the server's
// query decoding gives back the exact cursor. Writing it raw would turn "+"
// into a space on the server side.
func PageURL(baseURL, channel string, cursor model.Cursor) string {
	u := strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(channel)
	if !cursor.IsZero() {
		u += "?" + url.Values{"before": {string(cursor)}}.Encode()
	}
	return u
}

// HTTPFetcher 使用标准 http.Client 抓取频道页面。
type HTTPFetcher struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewHTTPFetcher(opts FetcherOptions) (*HTTPFetcher, error) {
	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &HTTPFetcher{
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}, nil
}

func (f *HTTPFetcher) Name() string {
	return "http"
}

func (f *HTTPFetcher) Fetch(ctx context.Context, channel string, cursor model.Cursor) (*model.FeedPage, error) {
	l := logger.WithComponent("Feed/Fetcher")
	pageURL := PageURL(f.baseURL, channel, cursor)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{Channel: channel, URL: pageURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, NewFetchError(ctx, channel, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Channel:    channel,
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status code error: %d %s", resp.StatusCode, resp.Status),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), contentType)
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: fmt.Errorf("decode charset: %w", err)}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewFetchError(ctx, channel, pageURL, err)
	}

	l.Debug().
		Str("url", pageURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("took", time.Since(start)).
		Msg("Fetched feed page.")

	return &model.FeedPage{
		Channel:     channel,
		URL:         pageURL,
		Body:        body,
		Cursor:      cursor,
		ContentType: contentType,
	}, nil
}
