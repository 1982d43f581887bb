package globalstate

import (
	"sync"
	"time"
)

const (
	StatusInitializing = "Initializing..."
	StatusRunning      = "Running"
	StatusStopping     = "Stopping"
)

// StatusManager 结构体用于管理全局状态。
// 它使用 RWMutex 来保护对状态字符串的并发读写。
type StatusManager struct {
	mu      sync.RWMutex
	status  string
	changed time.Time
}

// 全局的状态管理器实例
var GlobalStatus = NewStatusManager()

// NewStatusManager returns a manager in the initializing state.
func NewStatusManager() *StatusManager {
	return &StatusManager{status: StatusInitializing, changed: time.Now()}
}

// Set 方法用于安全地更新状态。
func (sm *StatusManager) Set(newStatus string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.status = newStatus
	sm.changed = time.Now()
}

// Get 方法用于安全地读取状态。
func (sm *StatusManager) Get() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.status
}

// Since returns how long the current status has been held.
func (sm *StatusManager) Since() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return time.Since(sm.changed)
}
