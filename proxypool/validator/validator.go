package validator

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"proxyfeed/internal/shared/logger"
)

const (
	defaultValidationTarget = "www.google.com:443" // Use a target that requires TLS
	defaultGeoURL           = "http://ip-api.com/json/"
	defaultTimeout          = 10 * time.Second
	defaultConcurrency      = 20
	geoAPITimeout           = 5 * time.Second
)

// Kind 决定如何检查一个目标
type Kind string

const (
	KindHTTP   Kind = "http"   // HTTP 代理, 通过 CONNECT 访问校验目标
	KindSocks5 Kind = "socks5" // SOCKS5 代理, 通过代理拨号校验目标
	KindTCP    Kind = "tcp"    // 分享链接的服务端, 只检查 TCP 可达
)

var ErrNoAddress = errors.New("no host:port in entry")

// Target 是一条待检查的条目
type Target struct {
	Raw     string // 文件中的原始行
	Address string // host:port
	Kind    Kind
}

// Result 是一次检查的结果
type Result struct {
	Target
	Alive   bool
	Latency time.Duration
	Err     error

	Country string
	Region  string
	City    string
}

// geoAPIResponse defines the structure for the ip-api.com JSON response.
type geoAPIResponse struct {
	Status     string `json:"status"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"` // Province
	City       string `json:"city"`
}

type Options struct {
	Timeout     time.Duration
	Concurrency int
	// CheckTarget 是通过代理访问的 host:port，为空时使用 www.google.com:443
	CheckTarget string
	// Geo 为 true 时对存活的条目查询地理位置
	Geo    bool
	GeoURL string
}

type Validator struct {
	opts      Options
	geoClient *http.Client // Add a dedicated client for Geo API calls
}

func NewValidator(opts Options) *Validator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.CheckTarget == "" {
		opts.CheckTarget = defaultValidationTarget
	}
	if opts.GeoURL == "" {
		opts.GeoURL = defaultGeoURL
	}
	return &Validator{
		opts: opts,
		geoClient: &http.Client{
			Timeout: geoAPITimeout,
		},
	}
}

// ParseTarget 把文件中的一行转换为检查目标。
// 裸的 host:port 使用 fallback 作为类型；带 scheme 的行按 scheme 判断，
// vless/vmess/ss/trojan 链接只检查服务端的 TCP 可达性。
func ParseTarget(line string, fallback Kind) (Target, error) {
	line = strings.TrimSpace(line)
	t := Target{Raw: line}

	scheme, rest, ok := strings.Cut(line, "://")
	if !ok {
		if _, _, err := net.SplitHostPort(line); err != nil {
			return t, fmt.Errorf("%w: %q", ErrNoAddress, line)
		}
		t.Address = line
		t.Kind = fallback
		return t, nil
	}

	switch strings.ToLower(scheme) {
	case "http", "https":
		t.Kind = KindHTTP
	case "socks5", "socks5h", "socks":
		t.Kind = KindSocks5
	case "vmess":
		addr, err := vmessAddress(rest)
		if err != nil {
			return t, err
		}
		t.Address = addr
		t.Kind = KindTCP
		return t, nil
	default:
		t.Kind = KindTCP
	}

	u, err := url.Parse(line)
	if err == nil && u.Port() != "" {
		t.Address = u.Host
		return t, nil
	}
	// ss://base64(method:password@host:port)#tag
	if decoded, ok := decodeBase64(strings.SplitN(rest, "#", 2)[0]); ok {
		if i := strings.LastIndexByte(decoded, '@'); i >= 0 {
			if _, _, err := net.SplitHostPort(decoded[i+1:]); err == nil {
				t.Address = decoded[i+1:]
				return t, nil
			}
		}
	}
	return t, fmt.Errorf("%w: %q", ErrNoAddress, line)
}

// vmessAddress 从 vmess://base64(json) 中取出 add 和 port
func vmessAddress(payload string) (string, error) {
	decoded, ok := decodeBase64(payload)
	if !ok {
		return "", fmt.Errorf("%w: vmess payload is not base64", ErrNoAddress)
	}
	var v struct {
		Add  string          `json:"add"`
		Port json.RawMessage `json:"port"`
	}
	if err := json.Unmarshal([]byte(decoded), &v); err != nil {
		return "", fmt.Errorf("%w: vmess payload: %v", ErrNoAddress, err)
	}
	// port 在不同客户端导出的链接里可能是数字也可能是字符串
	port := strings.Trim(string(v.Port), `"`)
	if v.Add == "" || port == "" {
		return "", fmt.Errorf("%w: vmess payload without add/port", ErrNoAddress)
	}
	return net.JoinHostPort(v.Add, port), nil
}

func decodeBase64(s string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), true
		}
	}
	return "", false
}

// Validate 并发检查所有目标，结果顺序与输入一致。
func (v *Validator) Validate(ctx context.Context, targets []Target) []Result {
	l := logger.WithComponent("ProxyPool/Validator")
	results := make([]Result, len(targets))
	if len(targets) == 0 {
		return results
	}

	l.Info().Int("count", len(targets)).Int("concurrency", v.opts.Concurrency).Msg("Starting validation batch...")

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.opts.Concurrency)

	for i, t := range targets {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			results[i] = Result{Target: t, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results[i] = v.validateSingle(ctx, t)
		}(i, t)
	}

	wg.Wait()

	alive := 0
	for _, r := range results {
		if r.Alive {
			alive++
		}
	}
	l.Info().Int("alive", alive).Int("count", len(targets)).Msg("Validation batch finished.")
	return results
}

// validateSingle acts as a dispatcher based on the target kind.
func (v *Validator) validateSingle(ctx context.Context, t Target) Result {
	res := Result{Target: t}
	start := time.Now()

	switch t.Kind {
	case KindSocks5:
		res.Err = v.checkSocks5Connect(ctx, t.Address)
	case KindTCP:
		res.Err = v.checkTCP(ctx, t.Address)
	default:
		res.Err = v.checkHttpConnect(ctx, t.Address)
	}

	if res.Err != nil {
		return res
	}
	res.Alive = true
	res.Latency = time.Since(start)

	if v.opts.Geo {
		host, _, _ := net.SplitHostPort(t.Address)
		res.Country, res.Region, res.City = v.fetchGeoInfo(ctx, host)
	}
	return res
}

// fetchGeoInfo queries the ip-api.com service.
func (v *Validator) fetchGeoInfo(ctx context.Context, host string) (country, region, city string) {
	l := logger.WithComponent("ProxyPool/Validator")
	apiURL := v.opts.GeoURL + url.PathEscape(host) + "?fields=status,country,regionName,city"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", "", ""
	}
	resp, err := v.geoClient.Do(req)
	if err != nil {
		l.Warn().Err(err).Str("host", host).Msg("Geo API request failed.")
		return "", "", ""
	}
	defer resp.Body.Close()

	var apiResp geoAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		l.Warn().Err(err).Str("host", host).Msg("Failed to decode Geo API response.")
		return "", "", ""
	}

	if apiResp.Status != "success" {
		l.Debug().Str("host", host).Str("status", apiResp.Status).Msg("Geo API returned non-success status.")
		return "", "", ""
	}

	return apiResp.Country, apiResp.RegionName, apiResp.City
}

// checkHttpConnect validates a proxy by attempting an HTTP CONNECT request.
func (v *Validator) checkHttpConnect(ctx context.Context, address string) error {
	proxyURL, err := url.Parse("http://" + address)
	if err != nil {
		return err
	}

	dialer := &net.Dialer{
		Timeout:   v.opts.Timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyURL(proxyURL),
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       v.opts.Timeout,
		TLSHandshakeTimeout:   v.opts.Timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   v.opts.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+v.opts.CheckTarget, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}

// checkSocks5Connect validates a proxy by attempting a SOCKS5 connection.
func (v *Validator) checkSocks5Connect(ctx context.Context, address string) error {
	dialer, err := proxy.SOCKS5("tcp", address, nil, &net.Dialer{Timeout: v.opts.Timeout})
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	// Create a context with a deadline that covers the entire operation.
	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	conn, err := dialer.(proxy.ContextDialer).DialContext(ctx, "tcp", v.opts.CheckTarget)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// checkTCP 只检查服务端端口是否可连接
func (v *Validator) checkTCP(ctx context.Context, address string) error {
	dialer := &net.Dialer{Timeout: v.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// KindForFile 推断静态文件条目的默认类型: v2ray 文件按链接检查,
// regular 文件名包含 socks 时按 SOCKS5, 否则按 HTTP 代理。
func KindForFile(role, name string) Kind {
	if role == "v2ray" {
		return KindTCP
	}
	if strings.Contains(strings.ToLower(name), "socks") {
		return KindSocks5
	}
	return KindHTTP
}
