package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	// ErrUnknownModule is returned by Update for a module key that has no settings block.
	ErrUnknownModule = errors.New("unknown settings module")
	// ErrInvalidSettings wraps JSON decoding failures of an update payload.
	ErrInvalidSettings = errors.New("invalid settings payload")
)

// SettingsManager 是运行时配置的核心管理器。
// 它线程安全，并使用原子操作和发布/订阅模式来处理配置的读取和热重载。
type SettingsManager struct {
	filePath    string
	settings    atomic.Value // 存储一个 *RuntimeSettings 指针，用于无锁读取
	subscribers map[string][]ConfigurableModule
	mu          sync.RWMutex // 用于保护 subscribers map 和文件写入操作
}

// NewSettingsManager 创建并初始化一个新的配置管理器。
// 它会立即从指定的路径加载配置，如果文件不存在，则会创建一个默认配置。
// filePath 为空时只在内存中工作。
func NewSettingsManager(filePath string) (*SettingsManager, error) {
	sm := &SettingsManager{
		filePath:    filePath,
		subscribers: make(map[string][]ConfigurableModule),
	}

	if filePath == "" {
		sm.settings.Store(createDefaultSettings())
		return sm, nil
	}

	if err := sm.load(); err != nil {
		return nil, fmt.Errorf("failed to load initial settings: %w", err)
	}

	return sm, nil
}

// load 从磁盘加载 settings.json 文件。
func (sm *SettingsManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	settings := &RuntimeSettings{}

	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read settings file: %w", err)
		}
		log.Warn().Str("path", sm.filePath).Msg("settings.json not found, creating with default values.")
		settings = createDefaultSettings()
		if err := sm.persist(settings); err != nil {
			return fmt.Errorf("failed to write default settings file: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, settings); err != nil {
			return fmt.Errorf("failed to parse settings.json: %w", err)
		}
		ensureDefaultModules(settings)
	}

	sm.settings.Store(settings)
	return nil
}

// Register 将一个模块注册为特定配置主题的订阅者，并立即推送当前值。
func (sm *SettingsManager) Register(moduleKey string, module ConfigurableModule) error {
	sm.mu.Lock()
	sm.subscribers[moduleKey] = append(sm.subscribers[moduleKey], module)
	sm.mu.Unlock()

	current := getModuleByKey(sm.Get(), moduleKey)
	if current == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleKey)
	}
	return module.OnSettingsUpdate(moduleKey, current)
}

// Get 返回当前运行时配置的一个快照。此操作是无锁的。
func (sm *SettingsManager) Get() *RuntimeSettings {
	return sm.settings.Load().(*RuntimeSettings)
}

// Update 接收一个模块的原始JSON数据，原子性地更新内存中的配置、持久化到磁盘，并通知所有相关订阅者。
// JSON 中未出现的字段保留原值。
func (sm *SettingsManager) Update(moduleKey string, newSettingsData json.RawMessage) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// 1. 深拷贝当前的配置，以避免竞态条件
	newSettings := deepCopy(sm.Get())

	// 2. 将新的JSON数据反序列化到新配置的对应模块上
	targetModule := getModuleByKey(newSettings, moduleKey)
	if targetModule == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleKey)
	}
	if err := json.Unmarshal(newSettingsData, targetModule); err != nil {
		return fmt.Errorf("%w for module %s: %v", ErrInvalidSettings, moduleKey, err)
	}
	ensureDefaultModules(newSettings)

	// 3. 持久化到文件
	if sm.filePath != "" {
		if err := sm.persist(newSettings); err != nil {
			return fmt.Errorf("failed to save updated settings to disk: %w", err)
		}
	}

	// 4. 原子地替换内存中的配置指针
	sm.settings.Store(newSettings)

	// 5. 异步通知订阅者
	go sm.notify(moduleKey, targetModule)

	return nil
}

// persist 将完整的配置结构体写入到 settings.json 文件。
func (sm *SettingsManager) persist(settings *RuntimeSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sm.filePath, data, 0644)
}

// notify 通知所有订阅了指定模块的模块。
func (sm *SettingsManager) notify(moduleKey string, newSettings interface{}) {
	sm.mu.RLock()
	subscribers := append([]ConfigurableModule(nil), sm.subscribers[moduleKey]...)
	sm.mu.RUnlock()

	log.Debug().Str("module", moduleKey).Int("subscribers", len(subscribers)).Msg("Notifying subscribers of settings update.")
	for _, sub := range subscribers {
		if err := sub.OnSettingsUpdate(moduleKey, newSettings); err != nil {
			log.Error().Err(err).Str("module", moduleKey).Msg("Error notifying subscriber.")
		}
	}
}

// --- 辅助函数 ---

func deepCopy(s *RuntimeSettings) *RuntimeSettings {
	newS := *s
	if s.Feed != nil {
		feedCopy := *s.Feed
		newS.Feed = &feedCopy
	}
	if s.Subscription != nil {
		subCopy := *s.Subscription
		newS.Subscription = &subCopy
	}
	if s.Logging != nil {
		logCopy := *s.Logging
		newS.Logging = &logCopy
	}
	return &newS
}

func getModuleByKey(s *RuntimeSettings, key string) interface{} {
	switch key {
	case "feed":
		return s.Feed
	case "subscription":
		return s.Subscription
	case "logging":
		return s.Logging
	default:
		return nil
	}
}
