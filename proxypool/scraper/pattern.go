package scraper

import (
	"regexp"
	"strings"

	"proxyfeed/proxypool/model"
)

// recordSpace 对应一般正则方言里的 \s: ASCII 空白, \v, 所有 Unicode 分隔符和 BOM。
// 频道文本里常见不换行空格, 只用 Go 的 \s 会把它并进 URI。
const recordSpace = `\s\x{0B}\p{Z}\x{FEFF}`

var recordPattern = regexp.MustCompile(
	`(?:vless|vmess|ss|trojan)://[^` + recordSpace + `#]+(?:#[^` + recordSpace + `]*)?`,
)

// ExtractRecords 返回消息中按出现顺序匹配到的全部代理 URI。
// 没有匹配时返回 nil，这不是错误。
func ExtractRecords(msg model.Message) []model.Record {
	matches := recordPattern.FindAllString(msg.Text, -1)
	if len(matches) == 0 {
		return nil
	}
	records := make([]model.Record, len(matches))
	for i, m := range matches {
		records[i] = model.Record(normalizeEntities(m))
	}
	return records
}

// ExtractAll 依次处理每条消息并拼接结果，保持消息顺序。
func ExtractAll(messages []model.Message) []model.Record {
	var records []model.Record
	for _, msg := range messages {
		records = append(records, ExtractRecords(msg)...)
	}
	return records
}

// normalizeEntities 把残留的 "&amp;" 还原为 "&"。
func normalizeEntities(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}
