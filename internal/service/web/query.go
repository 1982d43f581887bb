package web

import (
	"net/url"
	"strconv"
	"strings"
)

// quotaKeys 按优先级排列的数量参数名
var quotaKeys = []string{"count", "limit", "amount"}

// parseCount 读取频道接口的数量: 第一个非空的 count|limit|amount 生效，
// 无法解析或为负数时使用默认值。
func parseCount(q url.Values, def int) int {
	for _, key := range quotaKeys {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return def
		}
		return n
	}
	return def
}

// parseAmount 读取静态文件接口的数量: amount|limit|count 中第一个正整数生效，
// 都没有时返回 0 表示全部。
func parseAmount(q url.Values) int {
	for _, key := range []string{"amount", "limit", "count"} {
		n, err := strconv.Atoi(strings.TrimSpace(q.Get(key)))
		if err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// isDecrypted 判断是否输出明文: 只要带了 decrypted 参数就是明文，值不参与判断，
// 所以 decrypted=false 也返回明文。
func isDecrypted(q url.Values) bool {
	return q.Has("decrypted")
}
