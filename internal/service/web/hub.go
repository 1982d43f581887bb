package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"proxyfeed/internal/shared/logger"
	manager "proxyfeed/proxypool"
)

const writeWait = 5 * time.Second

// CollectEvent 是一次采集结束后推送给前端的摘要
type CollectEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	Channel    string    `json:"channel"`
	Requested  int       `json:"requested"`
	Pages      int       `json:"pages"`
	Records    int       `json:"records"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// WebSocketMessage 定义了 WebSocket 消息的通用格式
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to the
// clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stop       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client registered.")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client unregistered.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					logger.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Error writing to websocket client.")
					// Assume client is disconnected, let the read pump handle unregistering
				}
			}
			h.mu.Unlock()
		case <-h.stop:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 关闭所有连接并结束 Run 循环。
func (h *Hub) Stop() {
	close(h.stop)
}

// ClientCount 返回当前连接的客户端数量。
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) send(msg WebSocketMessage) {
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Str("type", msg.Type).Msg("Hub: Failed to marshal message")
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
		// Do not log warning for full channel here to avoid log spam
	}
}

// BroadcastStatusUpdate 广播状态更新消息
func (h *Hub) BroadcastStatusUpdate() {
	logger.Debug().Msg("Hub: Broadcasting status update to all clients.")
	h.send(WebSocketMessage{Type: "status_update", Data: nil})
}

// BroadcastCollectEvent 广播一次采集的结果
func (h *Hub) BroadcastCollectEvent(event *CollectEvent) {
	h.send(WebSocketMessage{Type: "collect", Data: event})
}

// PageFetched implements manager.Observer.
func (h *Hub) PageFetched(string, time.Duration) {}

// FetchFailed implements manager.Observer.
func (h *Hub) FetchFailed(string, string) {}

// CollectFinished implements manager.Observer.
func (h *Hub) CollectFinished(report *manager.Report, err error) {
	event := &CollectEvent{
		Timestamp:  time.Now().UTC(),
		RequestID:  report.RequestID,
		Channel:    report.Channel,
		Requested:  report.Requested,
		Pages:      len(report.Pages),
		Records:    len(report.Records),
		DurationMs: report.Took.Milliseconds(),
	}
	if err != nil {
		event.Records = 0
		event.Error = err.Error()
	}
	h.BroadcastCollectEvent(event)
}

// OnSettingsUpdate implements settings.ConfigurableModule so that open
// dashboards refresh after a settings change.
func (h *Hub) OnSettingsUpdate(moduleKey string, newSettings interface{}) error {
	h.send(WebSocketMessage{Type: "settings_update", Data: map[string]interface{}{moduleKey: newSettings}})
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	select {
	case hub.register <- conn:
	case <-hub.stop:
		conn.Close()
		return
	}

	// This is a read pump. It's needed to detect when a client closes the connection.
	go func() {
		defer func() {
			select {
			case hub.unregister <- conn:
			case <-hub.stop:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn().Err(err).Msg("Unexpected websocket close error")
				}
				break
			}
		}
	}()
}
