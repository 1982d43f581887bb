package model

import "strings"

// Protocols 是记录语法允许的四种协议前缀，顺序与匹配正则保持一致。
var Protocols = []string{"vless", "vmess", "ss", "trojan"}

// Cursor 是从频道页面 "load more" 元素中读取的不透明分页令牌。
// 空字符串表示没有更早的页面 (分页终止)。
type Cursor string

// IsZero reports whether the cursor is absent.
func (c Cursor) IsZero() bool {
	return c == ""
}

// FeedPage 是一次抓取得到的原始页面，只在单个请求内存在，解析后即丢弃。
type FeedPage struct {
	Channel string
	URL     string
	Body    []byte
	// Cursor 是抓取本页时使用的游标，第 0 页为空。
	Cursor      Cursor
	ContentType string
}

// Message 是页面中的一条消息正文。
// Position 是其在本页中按时间从旧到新排列后的下标。
type Message struct {
	Position int
	Text     string
}

// Record 是从消息文本中匹配出的一条代理 URI，原样保留，不做结构校验。
type Record string

// Protocol 返回 "://" 之前的协议部分，没有分隔符时返回空字符串。
func (r Record) Protocol() string {
	i := strings.Index(string(r), "://")
	if i < 0 {
		return ""
	}
	return string(r[:i])
}

// HasPrefix reports whether the record literally starts with prefix.
func (r Record) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(r), prefix)
}

func (r Record) String() string {
	return string(r)
}

// Strings converts a record slice into plain strings.
func Strings(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r)
	}
	return out
}
