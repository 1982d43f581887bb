package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce 合并编辑器保存时产生的连续事件
const reloadDebounce = 500 * time.Millisecond

var moduleKeys = []string{"feed", "subscription", "logging"}

// Reload 重新读取 settings.json，替换内存中的配置，并通知内容有变化的模块。
// 返回发生变化的模块名。
func (sm *SettingsManager) Reload() ([]string, error) {
	if sm.filePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	next := &RuntimeSettings{}
	if err := json.Unmarshal(data, next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	ensureDefaultModules(next)

	sm.mu.Lock()
	prev := sm.Get()
	sm.settings.Store(next)
	sm.mu.Unlock()

	var changed []string
	for _, key := range moduleKeys {
		if reflect.DeepEqual(getModuleByKey(prev, key), getModuleByKey(next, key)) {
			continue
		}
		changed = append(changed, key)
		sm.notify(key, getModuleByKey(next, key))
	}
	return changed, nil
}

// Watch 监听 settings.json 所在目录，文件被外部修改后自动 Reload。
// 监听目录而不是文件本身，这样原子替换(写临时文件再 rename)也能被捕获。
// ctx 结束时返回 nil。
func (sm *SettingsManager) Watch(ctx context.Context) error {
	if sm.filePath == "" {
		return errors.New("settings manager has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(sm.filePath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	log.Info().Str("path", target).Msg("Watching settings file for changes.")

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
	)
	reload := func() {
		changed, err := sm.Reload()
		if err != nil {
			log.Warn().Err(err).Msg("Settings reload failed, keeping current settings.")
			return
		}
		if len(changed) > 0 {
			log.Info().Strs("modules", changed).Msg("Settings reloaded from disk.")
		}
	}
	defer func() {
		mu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// 忽略无用事件
			if event.Has(fsnotify.Chmod) || event.Has(fsnotify.Remove) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				mu.Lock()
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(reloadDebounce, reload)
				mu.Unlock()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Settings watcher error.")
		}
	}
}
