package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"proxyfeed/internal/service/metrics"
	"proxyfeed/internal/shared/logger"
	"proxyfeed/internal/shared/types"
	"proxyfeed/proxypool/storage"
)

//go:embed all:static
var staticFiles embed.FS

// loggingListener logs every accepted connection at debug level.
type loggingListener struct {
	net.Listener
	log zerolog.Logger
}

func (l loggingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.log.Debug().Str("remote_addr", conn.RemoteAddr().String()).Msg("Connection accepted.")
	}
	return conn, err
}

// basicAuthMiddleware 检查 web_user 和 web_password 是否已配置。
// 如果配置了，它将强制执行 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	// 如果用户名或密码未设置，则不启用认证，直接返回原始处理器
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		// 认证成功，继续处理请求
		next.ServeHTTP(w, r)
	})
}

// statusRecorder 记录处理器写出的状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument 为路由记录访问日志和响应计数。
func instrument(route string, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		if m != nil {
			m.ObserveResponse(route, rec.status)
		}
		logger.Debug().
			Str("route", route).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Msgf("Handled request in %s", time.Since(start))
	})
}

// NewRouter 组装全部路由。/ws 在压缩层之外注册，以便连接升级。
func NewRouter(cfg *types.Config, handler *Handler, hub *Hub, m *metrics.Metrics) (http.Handler, error) {
	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.Handler) {
		mux.Handle(pattern, instrument(route, m, h))
	}

	// --- 订阅接口 ---
	handle("GET /telegram/{channel}", "telegram", http.HandlerFunc(handler.HandleTelegram))
	handle("GET /proxies/v2ray/{name}", "v2ray", http.HandlerFunc(handler.HandleV2rayFile))
	handle("GET /proxies/v2ray/{$}", "v2ray_index", handler.HandleFileIndex(storage.RoleV2ray))
	handle("GET /proxies/regular/{name}", "regular", http.HandlerFunc(handler.HandleRegularFile))
	handle("GET /proxies/regular/{$}", "regular_index", handler.HandleFileIndex(storage.RoleRegular))

	// --- 旧路径 ---
	toV2ray := redirectTo(func(r *http.Request) string { return "/proxies/v2ray/" + r.PathValue("name") })
	handle("GET /recive/{name}", "redirect", toV2ray)
	handle("GET /receive/{name}", "redirect", toV2ray)
	handle("GET /channel/{name}", "redirect", redirectTo(func(r *http.Request) string { return "/telegram/" + r.PathValue("name") }))

	// --- 导入 ---
	handle("GET /import/{app}/{pattern}", "import", http.HandlerFunc(handler.HandleImport))
	handle("GET /import/{app}/{pattern}/{$}", "import", http.HandlerFunc(handler.HandleImport))
	handle("GET /raw-import", "import", http.HandlerFunc(handler.HandleRawImport))

	handle("GET /alive", "alive", http.HandlerFunc(handler.HandleAlive))

	// --- 认证保护的 API ---
	webUser := cfg.ServerConf.WebUser
	webPassword := cfg.ServerConf.WebPassword
	handle("GET /api/settings", "settings", basicAuthMiddleware(http.HandlerFunc(handler.HandleGetSettings), webUser, webPassword))
	handle("POST /api/settings/{module}", "settings", basicAuthMiddleware(http.HandlerFunc(handler.HandleUpdateSettings), webUser, webPassword))

	// 公开的状态 API
	handle("GET /api/status", "status", http.HandlerFunc(handler.HandleStatus))

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	// --- 静态文件和主页 ---
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create sub filesystem for static assets: %w", err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	handle("GET /{$}", "index", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		index, err := staticFiles.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "Could not load index.html", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(index)
	}))

	root := http.NewServeMux()
	// --- WebSocket Endpoint (公开，无需认证) ---
	root.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})
	root.Handle("/", gzhttp.GzipHandler(mux))
	return root, nil
}

// Server 是对外的 HTTP 服务
type Server struct {
	srv  *http.Server
	addr string
}

func NewServer(cfg *types.Config, handler http.Handler) *Server {
	addr := fmt.Sprintf("%s:%d", cfg.ServerConf.Listen, cfg.ServerConf.Port)
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start 开始监听并在后台提供服务，监听失败时立即返回错误。
func (s *Server) Start(wg *sync.WaitGroup) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.addr = listener.Addr().String()
	logger.Info().Msgf("SUCCESS: HTTP server is listening on http://%s", s.addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		// Wrap the original listener with our logging listener
		loggingL := loggingListener{Listener: listener, log: logger.WithComponent("WebServer")}
		if err := s.srv.Serve(loggingL); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Web server error")
		}
		logger.Info().Msg("Web server stopped.")
	}()
	return nil
}

// Addr 返回监听地址；Start 之后为实际绑定的地址。
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown 优雅关闭服务。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
