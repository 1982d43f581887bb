package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"proxyfeed/internal/shared/logger"
	"proxyfeed/internal/shared/settings"
	"proxyfeed/proxypool/model"
	"proxyfeed/proxypool/scraper"
)

// Observer 接收采集过程中的事件，用于指标和实时推送。实现必须是并发安全的。
type Observer interface {
	PageFetched(fetcher string, took time.Duration)
	FetchFailed(fetcher, kind string)
	CollectFinished(report *Report, err error)
}

// PageStat 记录一次页面抓取的统计。
type PageStat struct {
	Index      int
	URL        string
	Cursor     model.Cursor // 抓取本页时使用的游标
	NextCursor model.Cursor // 本页给出的下一页游标，空表示终止
	Messages   int
	Records    int
	Took       time.Duration
}

// Report 是一次采集的完整记录，Inspect 返回它，Collect 只取其中的 Records。
type Report struct {
	RequestID  string
	Channel    string
	Protocol   string
	Requested  int // 夹紧后的数量
	PageBudget int
	MaxFetches int
	Strategy   settings.Strategy
	Fetcher    string
	Pages      []PageStat
	Extracted  int // 过滤与截断前的记录数
	Records    []model.Record
	Took       time.Duration
}

// Collector 是频道采集的总控制器: 按游标顺序抓取页面、提取记录、过滤并截断。
// 每次调用互不共享可变状态，运行时配置通过原子指针读取快照。
type Collector struct {
	fetcher        scraper.PageFetcher
	extractor      scraper.MessageExtractor
	collectTimeout time.Duration
	feed           atomic.Pointer[settings.FeedSettings]

	mu        sync.RWMutex
	observers []Observer
}

// NewCollector 创建采集器。collectTimeout <= 0 表示整个采集过程不设总超时。
func NewCollector(fetcher scraper.PageFetcher, collectTimeout time.Duration) *Collector {
	c := &Collector{
		fetcher:        fetcher,
		collectTimeout: collectTimeout,
	}
	c.feed.Store(settings.Default().Feed)
	return c
}

// AddObserver 注册一个事件观察者。
func (c *Collector) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// OnSettingsUpdate implements settings.ConfigurableModule for the "feed" module.
func (c *Collector) OnSettingsUpdate(moduleKey string, newSettings interface{}) error {
	fs, ok := newSettings.(*settings.FeedSettings)
	if !ok {
		return fmt.Errorf("unexpected settings type %T for module %s", newSettings, moduleKey)
	}
	snapshot := *fs
	c.feed.Store(&snapshot)
	logger.Info().
		Int("max_count", snapshot.MaxCount).
		Int("page_size", snapshot.PageSize).
		Str("strategy", string(snapshot.Strategy)).
		Msg("Feed settings applied.")
	return nil
}

// FeedSettings 返回当前生效的配置快照。
func (c *Collector) FeedSettings() settings.FeedSettings {
	return *c.feed.Load()
}

// Collect 返回频道中最多 requested 条记录，protocol 非空时只保留以其为前缀的记录。
// 任意一页失败都会使整个采集失败，不返回部分结果。
func (c *Collector) Collect(ctx context.Context, channel string, requested int, protocol string) ([]model.Record, error) {
	report, err := c.Inspect(ctx, channel, requested, protocol)
	if err != nil {
		return nil, err
	}
	return report.Records, nil
}

// Inspect 与 Collect 执行同样的采集，额外返回每一页的统计。
func (c *Collector) Inspect(ctx context.Context, channel string, requested int, protocol string) (*Report, error) {
	feed := c.FeedSettings()
	count := ClampCount(requested, feed.MaxCount)
	budget := PageBudget(count, feed.PageSize)

	report := &Report{
		RequestID:  RequestIDFromContext(ctx),
		Channel:    channel,
		Protocol:   protocol,
		Requested:  count,
		PageBudget: budget,
		MaxFetches: MaxFetches(count, feed),
		Strategy:   feed.Strategy,
		Fetcher:    c.fetcher.Name(),
	}

	start := time.Now()
	err := c.run(ctx, report, feed)
	report.Took = time.Since(start)

	c.finish(report, err)
	return report, err
}

func (c *Collector) run(ctx context.Context, report *Report, feed settings.FeedSettings) error {
	l := logger.WithComponent("Feed/Collector").With().
		Str("request_id", report.RequestID).
		Str("channel", report.Channel).
		Logger()

	if c.collectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.collectTimeout)
		defer cancel()
	}

	l.Debug().
		Int("requested", report.Requested).
		Int("page_budget", report.PageBudget).
		Int("max_fetches", report.MaxFetches).
		Str("strategy", string(report.Strategy)).
		Msg("Starting collection...")

	var (
		accumulated []model.Record
		matched     int
		cursor      model.Cursor
	)

	for i := 0; i < report.MaxFetches; i++ {
		if i > 0 {
			if cursor.IsZero() {
				l.Debug().Int("pages", i).Msg("No cursor on last page, feed exhausted.")
				break
			}
			if feed.Strategy == settings.StrategyFill && matched >= report.Requested {
				break
			}
		}

		pageStart := time.Now()
		page, err := c.fetcher.Fetch(ctx, report.Channel, cursor)
		if err != nil {
			err = c.classify(ctx, report, cursor, err)
			l.Warn().Err(err).Int("page", i).Msg("Page fetch failed, aborting collection.")
			return err
		}
		c.notifyPage(time.Since(pageStart))

		messages, next, err := c.extractor.Extract(page)
		if err != nil {
			c.notifyFailure("parse")
			l.Warn().Err(err).Int("page", i).Msg("Page parse failed, aborting collection.")
			return err
		}

		records := scraper.ExtractAll(messages)
		accumulated = append(accumulated, records...)
		matched += len(FilterByProtocol(records, report.Protocol))

		report.Pages = append(report.Pages, PageStat{
			Index:      i,
			URL:        page.URL,
			Cursor:     cursor,
			NextCursor: next,
			Messages:   len(messages),
			Records:    len(records),
			Took:       time.Since(pageStart),
		})
		cursor = next
	}

	report.Extracted = len(accumulated)
	report.Records = Truncate(FilterByProtocol(accumulated, report.Protocol), report.Requested)
	if report.Records == nil {
		report.Records = []model.Record{}
	}

	l.Info().
		Int("pages", len(report.Pages)).
		Int("extracted", report.Extracted).
		Int("returned", len(report.Records)).
		Msg("Collection finished.")
	return nil
}

// classify 保证返回给调用者的抓取错误都是 *scraper.FetchError，并记录失败类型。
func (c *Collector) classify(ctx context.Context, report *Report, cursor model.Cursor, err error) error {
	var fetchErr *scraper.FetchError
	if !errors.As(err, &fetchErr) {
		if errors.Is(err, context.Canceled) {
			c.notifyFailure("canceled")
			return err
		}
		url := scraper.PageURL("", report.Channel, cursor)
		fetchErr = scraper.NewFetchError(ctx, report.Channel, url, err)
		err = fetchErr
	}

	switch {
	case fetchErr.Timeout():
		c.notifyFailure("timeout")
	case fetchErr.StatusCode != 0:
		c.notifyFailure("status")
	case errors.Is(err, context.Canceled):
		c.notifyFailure("canceled")
	default:
		c.notifyFailure("network")
	}
	return err
}

func (c *Collector) snapshotObservers() []Observer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Observer(nil), c.observers...)
}

func (c *Collector) notifyPage(took time.Duration) {
	for _, o := range c.snapshotObservers() {
		o.PageFetched(c.fetcher.Name(), took)
	}
}

func (c *Collector) notifyFailure(kind string) {
	for _, o := range c.snapshotObservers() {
		o.FetchFailed(c.fetcher.Name(), kind)
	}
}

func (c *Collector) finish(report *Report, err error) {
	for _, o := range c.snapshotObservers() {
		o.CollectFinished(report, err)
	}
}
