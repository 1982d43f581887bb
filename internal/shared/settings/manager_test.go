package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingModule struct {
	mu   sync.Mutex
	seen []interface{}
}

func (m *recordingModule) OnSettingsUpdate(moduleKey string, newSettings interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, newSettings)
	return nil
}

func (m *recordingModule) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *recordingModule) last() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[len(m.seen)-1]
}

func TestNewSettingsManager_InMemoryDefaults(t *testing.T) {
	sm, err := NewSettingsManager("")
	require.NoError(t, err)

	s := sm.Get()
	assert.Equal(t, 200, s.Feed.MaxCount)
	assert.Equal(t, 20, s.Feed.PageSize)
	assert.Equal(t, StrategyBudget, s.Feed.Strategy)
	assert.Equal(t, DefaultSentinel, s.Subscription.Sentinel)
	assert.False(t, s.Subscription.SentinelTelegram)
	assert.True(t, s.Subscription.SentinelV2ray)
}

func TestNewSettingsManager_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	_, err := NewSettingsManager(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk RuntimeSettings
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.NotNil(t, onDisk.Feed)
	assert.Equal(t, 200, onDisk.Feed.MaxCount)
}

func TestNewSettingsManager_FillsMissingModules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"feed":{"max_count":50,"page_size":0,"strategy":"bogus"}}`), 0o644))

	sm, err := NewSettingsManager(path)
	require.NoError(t, err)

	s := sm.Get()
	assert.Equal(t, 50, s.Feed.MaxCount)
	assert.Equal(t, 20, s.Feed.PageSize, "non-positive page size falls back to the default")
	assert.Equal(t, StrategyBudget, s.Feed.Strategy)
	require.NotNil(t, s.Subscription)
	require.NotNil(t, s.Logging)
}

func TestRegister_PushesCurrentValue(t *testing.T) {
	sm, err := NewSettingsManager("")
	require.NoError(t, err)

	mod := &recordingModule{}
	require.NoError(t, sm.Register("feed", mod))
	require.Equal(t, 1, mod.count())
	assert.Equal(t, 200, mod.last().(*FeedSettings).MaxCount)

	assert.ErrorIs(t, sm.Register("nope", &recordingModule{}), ErrUnknownModule)
}

func TestUpdate_PersistsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	sm, err := NewSettingsManager(path)
	require.NoError(t, err)

	mod := &recordingModule{}
	require.NoError(t, sm.Register("feed", mod))

	before := sm.Get()
	require.NoError(t, sm.Update("feed", json.RawMessage(`{"strategy":"fill","max_count":100}`)))

	after := sm.Get()
	assert.Equal(t, StrategyFill, after.Feed.Strategy)
	assert.Equal(t, 100, after.Feed.MaxCount)
	assert.Equal(t, 20, after.Feed.PageSize, "fields absent from the payload keep their value")
	assert.Equal(t, StrategyBudget, before.Feed.Strategy, "earlier snapshots are never mutated")

	assert.Eventually(t, func() bool { return mod.count() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, StrategyFill, mod.last().(*FeedSettings).Strategy)

	reloaded, err := NewSettingsManager(path)
	require.NoError(t, err)
	assert.Equal(t, 100, reloaded.Get().Feed.MaxCount)
}

func TestUpdate_Errors(t *testing.T) {
	sm, err := NewSettingsManager("")
	require.NoError(t, err)

	assert.ErrorIs(t, sm.Update("gateway", json.RawMessage(`{}`)), ErrUnknownModule)
	assert.ErrorIs(t, sm.Update("feed", json.RawMessage(`{"max_count":"many"}`)), ErrInvalidSettings)
	assert.Equal(t, 200, sm.Get().Feed.MaxCount)
}
