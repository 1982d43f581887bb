package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout marks a fetch that ran out of time, either the per-fetch
// deadline or the overall collection deadline.
var ErrTimeout = errors.New("feed fetch timed out")

var errNoResponse = errors.New("no response received")

// FetchError 表示一次页面抓取失败: 网络错误、非 2xx 状态码或超时。
type FetchError struct {
	Channel    string
	URL        string
	StatusCode int // 0 表示没有收到响应
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a deadline.
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// ParseError 表示页面内容无法被解析为 HTML 文档。
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewFetchError classifies err and attaches ErrTimeout when a deadline was hit.
func NewFetchError(ctx context.Context, channel, url string, err error) *FetchError {
	if isTimeout(ctx, err) && !errors.Is(err, ErrTimeout) {
		err = errors.Join(ErrTimeout, err)
	}
	return &FetchError{Channel: channel, URL: url, Err: err}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
