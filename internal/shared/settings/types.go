package settings

// Strategy 决定分页控制器何时停止抓取
type Strategy string

const (
	// StrategyBudget 按 ceil(count/page_size) 的固定预算额外抓取 (默认)。
	StrategyBudget Strategy = "budget"
	// StrategyFill 在结果不足且仍有游标时继续抓取，上限由 max_count 推导。
	StrategyFill Strategy = "fill"
)

// DefaultSentinel is the placeholder entry prepended to subscription bodies.
const DefaultSentinel = "vless://discord@discord.server:0000?type=tcp#1oi.xyz/discord"

// ConfigurableModule 是所有希望其配置能被在线管理的模块必须实现的接口。
// 它定义了一个标准的回调方法，当相关配置发生变更时，SettingsManager会调用此方法。
type ConfigurableModule interface {
	// OnSettingsUpdate 在配置变更时被 SettingsManager 调用。
	// moduleKey: 告知是哪个模块的配置发生了变化 (e.g., "feed", "subscription")。
	// newSettings: 是对应模块的、已经解析好的新配置结构体指针 (e.g., *FeedSettings)。
	OnSettingsUpdate(moduleKey string, newSettings interface{}) error
}

// RuntimeSettings 是 settings.json 文件的顶层结构。
// 使用指针类型确保了当JSON文件中缺少某个模块时，对应的字段为nil，而不是一个空的结构体。
type RuntimeSettings struct {
	Feed         *FeedSettings         `json:"feed"`
	Subscription *SubscriptionSettings `json:"subscription"`
	Logging      *LoggingSettings      `json:"logging"`
}

// FeedSettings 对应 settings.json 中的 "feed" 模块。
type FeedSettings struct {
	MaxCount     int      `json:"max_count"`     // 单次请求可返回的最大记录数
	PageSize     int      `json:"page_size"`     // 平台每页大约返回的消息数
	DefaultCount int      `json:"default_count"` // 未指定 count/limit/amount 时的数量
	Strategy     Strategy `json:"strategy"`      // "budget" 或 "fill"
}

// SubscriptionSettings 对应 settings.json 中的 "subscription" 模块。
type SubscriptionSettings struct {
	Sentinel            string `json:"sentinel"`
	SentinelTelegram    bool   `json:"sentinel_telegram"`
	SentinelV2ray       bool   `json:"sentinel_v2ray"`
	TitlePrefix         string `json:"title_prefix"`
	UpdateIntervalHours int    `json:"update_interval_hours"`
	WebPageURL          string `json:"web_page_url"`
	SupportURL          string `json:"support_url"`
}

// LoggingSettings 对应 settings.json 中的 "logging" 模块。
type LoggingSettings struct {
	Level string `json:"level"`
}

func defaultFeedSettings() *FeedSettings {
	return &FeedSettings{
		MaxCount:     200,
		PageSize:     20,
		DefaultCount: 20,
		Strategy:     StrategyBudget,
	}
}

func defaultSubscriptionSettings() *SubscriptionSettings {
	return &SubscriptionSettings{
		Sentinel:            DefaultSentinel,
		SentinelTelegram:    false,
		SentinelV2ray:       true,
		TitlePrefix:         "proxyfeed",
		UpdateIntervalHours: 2,
	}
}

func createDefaultSettings() *RuntimeSettings {
	return &RuntimeSettings{
		Feed:         defaultFeedSettings(),
		Subscription: defaultSubscriptionSettings(),
		Logging:      &LoggingSettings{},
	}
}

// Default returns a fresh copy of the built-in runtime settings.
func Default() *RuntimeSettings {
	return createDefaultSettings()
}

func ensureDefaultModules(s *RuntimeSettings) {
	if s.Feed == nil {
		s.Feed = defaultFeedSettings()
	}
	if s.Subscription == nil {
		s.Subscription = defaultSubscriptionSettings()
	}
	if s.Logging == nil {
		s.Logging = &LoggingSettings{}
	}
	s.Feed.normalize()
}

// normalize 修正非法值，避免除零或负数预算。
func (f *FeedSettings) normalize() {
	def := defaultFeedSettings()
	if f.MaxCount <= 0 {
		f.MaxCount = def.MaxCount
	}
	if f.PageSize <= 0 {
		f.PageSize = def.PageSize
	}
	if f.DefaultCount <= 0 {
		f.DefaultCount = def.DefaultCount
	}
	if f.Strategy != StrategyBudget && f.Strategy != StrategyFill {
		f.Strategy = StrategyBudget
	}
}
