package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"proxyfeed/internal/shared/globalstate"
	"proxyfeed/internal/shared/logger"
	"proxyfeed/internal/shared/settings"
	manager "proxyfeed/proxypool"
	"proxyfeed/proxypool/assembler"
	"proxyfeed/proxypool/model"
	"proxyfeed/proxypool/scraper"
	"proxyfeed/proxypool/storage"
)

// FeedCollector defines what the web handler needs from the channel collector.
// This decouples the web package from the collector's construction.
type FeedCollector interface {
	Collect(ctx context.Context, channel string, requested int, protocol string) ([]model.Record, error)
	FeedSettings() settings.FeedSettings
}

type Handler struct {
	collector       FeedCollector
	assembler       *assembler.Assembler
	files           storage.Storage
	settingsManager *settings.SettingsManager
	hub             *Hub
	fetcherName     string
}

func NewHandler(
	collector FeedCollector,
	asm *assembler.Assembler,
	files storage.Storage,
	settingsManager *settings.SettingsManager,
	hub *Hub,
	fetcherName string,
) *Handler {
	return &Handler{
		collector:       collector,
		assembler:       asm,
		files:           files,
		settingsManager: settingsManager,
		hub:             hub,
		fetcherName:     fetcherName,
	}
}

// --- 订阅接口 ---

// HandleTelegram 处理 GET /telegram/{channel} 请求
func (h *Handler) HandleTelegram(w http.ResponseWriter, r *http.Request) {
	l := logger.WithComponent("Web/Handler")
	channel := r.PathValue("channel")
	q := r.URL.Query()

	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	ctx := manager.WithRequestID(r.Context(), requestID)

	count := parseCount(q, h.collector.FeedSettings().DefaultCount)
	records, err := h.collector.Collect(ctx, channel, count, q.Get("protocol"))
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			l.Debug().Str("request_id", requestID).Str("channel", channel).Msg("Client went away during collection.")
			return
		}
		status := collectErrorStatus(err)
		l.Warn().Err(err).Str("request_id", requestID).Str("channel", channel).Int("status", status).Msg("Collection failed.")
		http.Error(w, http.StatusText(status), status)
		return
	}

	res := h.assembler.Assemble(records, assembler.Options{
		Decrypted: isDecrypted(q),
		Sentinel:  h.assembler.Settings().SentinelTelegram,
	})
	h.writeSubscription(w, strings.ToUpper(channel), res)
}

// collectErrorStatus maps collection errors to HTTP status codes.
func collectErrorStatus(err error) int {
	var fetchErr *scraper.FetchError
	switch {
	case errors.Is(err, scraper.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		// *scraper.ParseError and anything unexpected
		return http.StatusInternalServerError
	}
}

// HandleV2rayFile 处理 GET /proxies/v2ray/{name} 请求
func (h *Handler) HandleV2rayFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q := r.URL.Query()

	content, ok := h.lookup(w, storage.RoleV2ray, name)
	if !ok {
		return
	}

	lines := storage.FilterPrefix(storage.Lines(content), q.Get("protocol"))
	lines = storage.Slice(lines, parseAmount(q))

	records := make([]model.Record, len(lines))
	for i, line := range lines {
		records[i] = model.Record(line)
	}

	res := h.assembler.Assemble(records, assembler.Options{
		Decrypted: isDecrypted(q),
		Sentinel:  h.assembler.Settings().SentinelV2ray,
	})
	h.writeSubscription(w, strings.ToUpper(name), res)
}

// HandleRegularFile 处理 GET /proxies/regular/{name} 请求
func (h *Handler) HandleRegularFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	content, ok := h.lookup(w, storage.RoleRegular, name)
	if !ok {
		return
	}

	lines := storage.Slice(storage.Lines(content), parseAmount(r.URL.Query()))
	w.Header().Set("Content-Type", assembler.ContentType)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, assembler.JoinLines(lines))
}

// HandleFileIndex 返回某一类静态文件的端点列表
func (h *Handler) HandleFileIndex(role storage.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := h.files.List(role)
		if err != nil {
			logger.Error().Err(err).Str("role", string(role)).Msg("Failed to list proxy files.")
			http.Error(w, "Failed to list endpoints", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", assembler.ContentType)
		io.WriteString(w, "available endpoints: "+strings.Join(names, ", "))
	}
}

func (h *Handler) lookup(w http.ResponseWriter, role storage.Role, name string) (string, bool) {
	content, err := h.files.Lookup(role, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return "", false
		}
		logger.Error().Err(err).Str("role", string(role)).Str("name", name).Msg("Failed to read proxy file.")
		http.Error(w, "Failed to read proxy file", http.StatusInternalServerError)
		return "", false
	}
	return content, true
}

func (h *Handler) writeSubscription(w http.ResponseWriter, title string, res assembler.Result) {
	for k, v := range h.assembler.Headers(title) {
		w.Header()[k] = v
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, res.Body)
}

// --- 兼容旧路径与导入 ---

// redirectTo 返回一个保留原查询串的重定向处理器
func redirectTo(target func(r *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dest := target(r)
		if r.URL.RawQuery != "" {
			dest += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, dest, http.StatusFound)
	}
}

// importURL 读取 url 参数并把第一个 "@" 替换为本服务的地址
func importURL(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("url")
	if u == "" {
		return "", false
	}
	return strings.Replace(u, "@", "http://"+r.Host, 1), true
}

// HandleImport 处理 GET /import/{app}/{pattern}/ 请求
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	u, ok := importURL(r)
	if !ok {
		http.Error(w, "bad usage", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, r.PathValue("app")+"://"+r.PathValue("pattern")+"?url="+u, http.StatusMovedPermanently)
}

// HandleRawImport 处理 GET /raw-import 请求
func (h *Handler) HandleRawImport(w http.ResponseWriter, r *http.Request) {
	u, ok := importURL(r)
	if !ok {
		http.Error(w, "bad usage", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, u, http.StatusMovedPermanently)
}

// HandleAlive 处理 GET /alive 请求
func (h *Handler) HandleAlive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", assembler.ContentType)
	io.WriteString(w, "I'm Alive")
}

// --- 统一配置 API ---

// HandleGetSettings 处理 GET /api/settings 请求
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	currentSettings := h.settingsManager.Get()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(currentSettings)
}

// HandleUpdateSettings 处理 POST /api/settings/{module} 请求
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	moduleKey := r.PathValue("module")
	if moduleKey == "" {
		http.Error(w, "Module key is missing in URL path", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}

	// 将更新请求委托给 SettingsManager
	if err := h.settingsManager.Update(moduleKey, body); err != nil {
		switch {
		case errors.Is(err, settings.ErrUnknownModule):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, settings.ErrInvalidSettings):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	logger.Info().Str("module", moduleKey).Msg("[Handler] Runtime settings updated.")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "Settings updated successfully"}`))
}

// HandleStatus 处理 GET /api/status 请求
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	type StatusResponse struct {
		GlobalStatus  string                `json:"globalStatus"`
		StatusSince   string                `json:"statusSince"`
		Fetcher       string                `json:"fetcher"`
		Feed          settings.FeedSettings `json:"feed"`
		WebSocketPeer int                   `json:"websocketClients"`
	}

	response := StatusResponse{
		GlobalStatus: globalstate.GlobalStatus.Get(),
		StatusSince:  globalstate.GlobalStatus.Since().Truncate(time.Second).String(),
		Fetcher:      h.fetcherName,
		Feed:         h.collector.FeedSettings(),
	}
	if h.hub != nil {
		response.WebSocketPeer = h.hub.ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
