package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyfeed/internal/shared/types"
)

const sampleIni = `
[server]
port = 9090
web_user = admin
web_password = secret

[log]
level = debug

[feed]
base_url = http://127.0.0.1:1/s
fetcher = colly
fetch_timeout_seconds = 5

[files]
root = /srv/proxies
`

func TestLoadIni_MapsSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxyfeed.ini")
	require.NoError(t, os.WriteFile(path, []byte(sampleIni), 0o644))

	cfg := new(types.Config)
	require.NoError(t, LoadIni(cfg, path))

	assert.Equal(t, 9090, cfg.ServerConf.Port)
	assert.Equal(t, "admin", cfg.ServerConf.WebUser)
	assert.Equal(t, "debug", cfg.LogConf.Level)
	assert.Equal(t, "http://127.0.0.1:1/s", cfg.FeedConf.BaseURL)
	assert.Equal(t, "colly", cfg.FeedConf.Fetcher)
	assert.Equal(t, 5, cfg.FeedConf.FetchTimeoutSeconds)
	assert.Equal(t, types.DefaultCollectTimeoutSeconds, cfg.FeedConf.CollectTimeoutSeconds)
	assert.Equal(t, "/srv/proxies", cfg.FilesConf.Root)
	assert.Equal(t, "v2ray", cfg.FilesConf.V2rayDir)
}

func TestLoadIni_MissingFileUsesDefaults(t *testing.T) {
	cfg := new(types.Config)
	require.NoError(t, LoadIni(cfg, filepath.Join(t.TempDir(), "absent.ini")))

	assert.Equal(t, types.DefaultPort, cfg.ServerConf.Port)
	assert.Equal(t, types.DefaultFeedBaseURL, cfg.FeedConf.BaseURL)
	assert.Equal(t, "http", cfg.FeedConf.Fetcher)
	assert.Equal(t, "none", cfg.FeedConf.TLSFingerprint)
}

func TestLoadIni_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("UPSTREAM_PROXY", "socks5://127.0.0.1:1080")

	cfg := new(types.Config)
	require.NoError(t, LoadIni(cfg, filepath.Join(t.TempDir(), "absent.ini")))

	assert.Equal(t, 7000, cfg.ServerConf.Port)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.FeedConf.UpstreamProxy)
}

func TestLoadIni_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FEED_BASE_URL=http://feed.local/s\n"), 0o644))
	t.Setenv("FEED_BASE_URL", "")
	os.Unsetenv("FEED_BASE_URL")

	cfg := new(types.Config)
	require.NoError(t, LoadIni(cfg, filepath.Join(dir, "proxyfeed.ini")))
	t.Cleanup(func() { os.Unsetenv("FEED_BASE_URL") })

	assert.Equal(t, "http://feed.local/s", cfg.FeedConf.BaseURL)
}

func TestLoadIni_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ini")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = x"), 0o644))

	err := LoadIni(new(types.Config), path)
	assert.Error(t, err)
}

func TestLoadIni_MalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BAD-KEY=1\n"), 0o644))

	err := LoadIni(new(types.Config), filepath.Join(dir, "proxyfeed.ini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".env")
}
