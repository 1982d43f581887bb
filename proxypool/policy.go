package manager

import (
	"context"

	"proxyfeed/internal/shared/settings"
	"proxyfeed/proxypool/model"
)

// ClampCount 把请求数量限制在 [0, max] 范围内。对结果再次调用不会改变它。
func ClampCount(requested, max int) int {
	if requested < 0 {
		return 0
	}
	if requested > max {
		return max
	}
	return requested
}

// PageBudget 是第 0 页之后最多额外抓取的页数: ceil(count / pageSize)。
func PageBudget(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// MaxFetches 返回一次采集最多发出的抓取次数 (包含第 0 页)。
func MaxFetches(count int, feed settings.FeedSettings) int {
	if feed.Strategy == settings.StrategyFill {
		return PageBudget(feed.MaxCount, feed.PageSize) + 1
	}
	return PageBudget(count, feed.PageSize) + 1
}

// FilterByProtocol 保留以 prefix 字面开头的记录，prefix 为空时原样返回。
func FilterByProtocol(records []model.Record, prefix string) []model.Record {
	if prefix == "" {
		return records
	}
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.HasPrefix(prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Truncate 返回前 n 条记录。
func Truncate(records []model.Record, n int) []model.Record {
	if n < 0 {
		n = 0
	}
	if len(records) <= n {
		return records
	}
	return records[:n]
}

type requestIDKey struct{}

// WithRequestID 把请求 ID 放入 context，采集日志和事件会带上它。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
