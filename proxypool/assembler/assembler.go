package assembler

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"proxyfeed/internal/shared/settings"
	"proxyfeed/proxypool/model"
)

const (
	// Separator 分隔订阅正文中的记录。
	Separator = "\n\n"
	// LineSeparator 用于 regular 类型的静态文件。
	LineSeparator = "\n"
	ContentType   = "text/plain; charset=utf-8"
)

// Options 控制一次组装的输出形式。
type Options struct {
	Decrypted bool // true 输出明文，否则输出 Base64
	Sentinel  bool // 在正文前插入占位记录
}

// Result 是组装后的响应正文。
type Result struct {
	Body        string
	ContentType string
}

// Assembler 把记录序列转换为订阅正文和描述性响应头。
type Assembler struct {
	sub atomic.Pointer[settings.SubscriptionSettings]
}

func New() *Assembler {
	a := &Assembler{}
	a.sub.Store(settings.Default().Subscription)
	return a
}

// OnSettingsUpdate implements settings.ConfigurableModule for the "subscription" module.
func (a *Assembler) OnSettingsUpdate(moduleKey string, newSettings interface{}) error {
	ss, ok := newSettings.(*settings.SubscriptionSettings)
	if !ok {
		return fmt.Errorf("unexpected settings type %T for module %s", newSettings, moduleKey)
	}
	snapshot := *ss
	a.sub.Store(&snapshot)
	return nil
}

// Settings 返回当前生效的订阅配置快照。
func (a *Assembler) Settings() settings.SubscriptionSettings {
	return *a.sub.Load()
}

// Plaintext 返回未编码的正文: 可选的占位记录, 然后是以空行分隔的记录。
func (a *Assembler) Plaintext(records []model.Record, sentinel bool) string {
	joined := strings.Join(model.Strings(records), Separator)
	if !sentinel {
		return joined
	}
	return a.Settings().Sentinel + Separator + joined
}

// Assemble 组装订阅正文。非明文输出可以用 Decode 精确还原。
func (a *Assembler) Assemble(records []model.Record, opts Options) Result {
	body := a.Plaintext(records, opts.Sentinel)
	if !opts.Decrypted {
		body = Encode(body)
	}
	return Result{Body: body, ContentType: ContentType}
}

// Headers 返回订阅客户端识别的描述性响应头，name 用于生成标题。
func (a *Assembler) Headers(name string) http.Header {
	s := a.Settings()
	h := make(http.Header)

	title := name
	if s.TitlePrefix != "" {
		title = s.TitlePrefix + " | " + name
	}
	h.Set("profile-title", "base64:"+Encode(title))
	if s.UpdateIntervalHours > 0 {
		h.Set("profile-update-interval", strconv.Itoa(s.UpdateIntervalHours))
	}
	if s.WebPageURL != "" {
		h.Set("profile-web-page-url", s.WebPageURL)
	}
	if s.SupportURL != "" {
		h.Set("support-url", s.SupportURL)
	}
	return h
}

// JoinLines 以单个换行拼接静态文件中的行，不做编码。
func JoinLines(lines []string) string {
	return strings.Join(lines, LineSeparator)
}

// Encode 返回 s 的 UTF-8 字节的标准 Base64。
func Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// Decode 是 Encode 的逆运算。
func Decode(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decode subscription body: %w", err)
	}
	return string(b), nil
}
