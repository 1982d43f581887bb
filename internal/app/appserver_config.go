package app

import (
	"fmt"
	"path/filepath"
	"time"

	"proxyfeed/internal/shared/config"
	"proxyfeed/internal/shared/logger"
	"proxyfeed/internal/shared/settings"
	"proxyfeed/internal/shared/types"
	"proxyfeed/proxypool/scraper"
)

const (
	IniFileName      = "proxyfeed.ini"
	SettingsFileName = "settings.json"
)

// LoadConfig 读取 configDir 下的 proxyfeed.ini，并返回 settings.json 的路径。
func LoadConfig(configDir string) (*types.Config, string, error) {
	iniPath := filepath.Join(configDir, IniFileName)
	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		return nil, "", fmt.Errorf("failed to load config file '%s': %w", iniPath, err)
	}
	return cfg, filepath.Join(configDir, SettingsFileName), nil
}

func fetcherOptions(conf types.FeedConf) scraper.FetcherOptions {
	return scraper.FetcherOptions{
		BaseURL:        conf.BaseURL,
		UserAgent:      conf.UserAgent,
		Timeout:        time.Duration(conf.FetchTimeoutSeconds) * time.Second,
		UpstreamProxy:  conf.UpstreamProxy,
		TLSFingerprint: conf.TLSFingerprint,
	}
}

// registerModules 把各组件订阅到对应的运行时配置模块。
// Register 会立即推送当前值，所以失败意味着 settings.json 内容不可用。
func (s *AppServer) registerModules() error {
	subscriptions := []struct {
		key    string
		module settings.ConfigurableModule
	}{
		{"feed", s.collector},
		{"subscription", s.assembler},
		{"logging", logger.LevelSubscriber{}},
		{"feed", s.hub},
		{"subscription", s.hub},
		{"logging", s.hub},
	}
	for _, sub := range subscriptions {
		if err := s.settingsManager.Register(sub.key, sub.module); err != nil {
			return fmt.Errorf("failed to apply %s settings: %w", sub.key, err)
		}
	}
	return nil
}
