package app

import (
	"proxyfeed/internal/shared/globalstate"
	"proxyfeed/internal/shared/logger"
)

// setStatus 更新全局状态并通知所有 WebSocket 客户端
func (s *AppServer) setStatus(status string) {
	globalstate.GlobalStatus.Set(status)
	logger.Info().Str("status", status).Msg("[AppServer] Status changed.")
	s.hub.BroadcastStatusUpdate()
}
