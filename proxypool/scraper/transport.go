package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// newTransport 构建抓取用的 http.Transport:
// 可选地通过上游 SOCKS5 代理拨号，可选地使用浏览器指纹的 TLS ClientHello。
func newTransport(opts FetcherOptions) (*http.Transport, error) {
	dial, err := newDialer(opts.UpstreamProxy)
	if err != nil {
		return nil, err
	}

	t := &http.Transport{
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	hello, err := parseFingerprint(opts.TLSFingerprint)
	if err != nil {
		return nil, err
	}
	if hello != nil {
		// uTLS 连接不是 *tls.Conn, http.Transport 只会在其上说 HTTP/1.1。
		t.ForceAttemptHTTP2 = false
		t.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialUTLS(ctx, dial, network, addr, *hello)
		}
	}
	return t, nil
}

// newDialer 返回直连或经由 SOCKS5 上游的拨号函数。
func newDialer(upstream string) (dialFunc, error) {
	base := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if upstream == "" {
		return base.DialContext, nil
	}

	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream proxy %q: %w", upstream, err)
	}
	d, err := proxy.FromURL(u, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream dialer: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}

// parseFingerprint 把配置中的指纹名称转换为 uTLS ClientHelloID，"none" 返回 nil。
func parseFingerprint(name string) (*utls.ClientHelloID, error) {
	var id utls.ClientHelloID
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "chrome":
		id = utls.HelloChrome_Auto
	case "firefox":
		id = utls.HelloFirefox_Auto
	case "randomized":
		id = utls.HelloRandomizedNoALPN
	default:
		return nil, fmt.Errorf("unknown tls fingerprint %q", name)
	}
	if _, err := helloSpec(id); err != nil {
		return nil, fmt.Errorf("failed to build client hello for %q: %w", name, err)
	}
	return &id, nil
}

// helloSpec 为浏览器指纹生成 ClientHelloSpec 并把 ALPN 固定为 http/1.1。
// 随机指纹返回 nil, 由 uTLS 在握手时生成且不带 ALPN。
// 扩展对象带有握手状态，每个连接都要重新生成。
func helloSpec(id utls.ClientHelloID) (*utls.ClientHelloSpec, error) {
	if id == utls.HelloRandomizedNoALPN {
		return nil, nil
	}
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, err
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return &spec, nil
}

func dialUTLS(ctx context.Context, dial dialFunc, network, addr string, id utls.ClientHelloID) (net.Conn, error) {
	raw, err := dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	spec, err := helloSpec(id)
	if err != nil {
		raw.Close()
		return nil, err
	}

	var conn *utls.UConn
	if spec == nil {
		conn = utls.UClient(raw, &utls.Config{ServerName: host}, id)
	} else {
		conn = utls.UClient(raw, &utls.Config{ServerName: host}, utls.HelloCustom)
		if err := conn.ApplyPreset(spec); err != nil {
			raw.Close()
			return nil, fmt.Errorf("apply client hello: %w", err)
		}
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}
