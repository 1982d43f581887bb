package scraper

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"proxyfeed/internal/shared/logger"
	"proxyfeed/proxypool/model"
)

// CollyFetcher 实现了 PageFetcher 接口，使用 colly 抓取频道页面。
// 每次 Fetch 创建一个新的 collector，回调不会在请求之间累积。
type CollyFetcher struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	transport http.RoundTripper
}

// NewCollyFetcher 创建一个新的 CollyFetcher 实例。
func NewCollyFetcher(opts FetcherOptions) (*CollyFetcher, error) {
	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &CollyFetcher{
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		transport: transport,
	}, nil
}

// Name 返回抓取器的名称。
func (f *CollyFetcher) Name() string {
	return "colly"
}

// Fetch 执行一次页面抓取。
func (f *CollyFetcher) Fetch(ctx context.Context, channel string, cursor model.Cursor) (*model.FeedPage, error) {
	l := logger.WithComponent("Feed/Fetcher")
	pageURL := PageURL(f.baseURL, channel, cursor)

	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.timeout)
	c.WithTransport(f.transport)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	var page *model.FeedPage
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		page = &model.FeedPage{
			Channel:     channel,
			URL:         pageURL,
			Body:        r.Body,
			Cursor:      cursor,
			ContentType: r.Headers.Get("Content-Type"),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		l.Debug().Err(err).Int("status_code", r.StatusCode).Str("url", pageURL).Msg("Feed request failed.")
		if r.StatusCode != 0 {
			fetchErr = &FetchError{Channel: channel, URL: pageURL, StatusCode: r.StatusCode, Err: err}
			return
		}
		fetchErr = NewFetchError(ctx, channel, pageURL, err)
	})

	visitErr := c.Visit(pageURL)
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, NewFetchError(ctx, channel, pageURL, visitErr)
	}
	if page == nil {
		return nil, &FetchError{Channel: channel, URL: pageURL, Err: errNoResponse}
	}

	l.Debug().Str("url", pageURL).Int("bytes", len(page.Body)).Msg("Fetched feed page.")
	return page, nil
}
