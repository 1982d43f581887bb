package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"proxyfeed/internal/shared/types"
)

// LoadIni 加载 proxyfeed.ini 静态配置文件。
// 文件不存在时使用默认值；同目录下的 .env 会先被载入环境变量，再用环境变量覆盖配置。
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	switch {
	case err == nil:
		if err := iniFile.MapTo(cfg); err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist):
		// 没有配置文件时完全依赖默认值与环境变量
	default:
		return err
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(fileName), ".env")); err != nil {
		return err
	}

	overrideFromEnvInt(&cfg.ServerConf.Port, "PORT")
	overrideFromEnvString(&cfg.LogConf.Level, "LOG_LEVEL")
	overrideFromEnvString(&cfg.FeedConf.BaseURL, "FEED_BASE_URL")
	overrideFromEnvString(&cfg.FeedConf.UpstreamProxy, "UPSTREAM_PROXY")
	overrideFromEnvString(&cfg.ServerConf.WebPassword, "WEB_PASSWORD")

	cfg.ApplyDefaults()
	return nil
}

// loadDotEnv does not override variables that are already set in the process.
// A missing file is not an error; a malformed one is.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
