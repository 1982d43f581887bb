package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"proxyfeed/proxypool/model"
)

func TestExtractRecords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []model.Record
	}{
		{
			name: "entity normalization",
			text: "vless://x&amp;y=1",
			want: []model.Record{"vless://x&y=1"},
		},
		{
			name: "fragment kept until whitespace",
			text: "config: vmess://eyJ2Ijoi#name#with-hash tail",
			want: []model.Record{"vmess://eyJ2Ijoi#name#with-hash"},
		},
		{
			name: "all matches in text order",
			text: "ss://a@b:1 and trojan://c@d:2\nvless://e@f:3",
			want: []model.Record{"ss://a@b:1", "trojan://c@d:2", "vless://e@f:3"},
		},
		{
			name: "non-breaking space terminates",
			text: "vless://a@b:443\u00a0#tag",
			want: []model.Record{"vless://a@b:443"},
		},
		{
			name: "unknown scheme ignored",
			text: "http://example.com hysteria2://x@y:1",
			want: nil,
		},
		{
			name: "scheme without body ignored",
			text: "vless:// vless://#x",
			want: nil,
		},
		{
			name: "no match",
			text: "just chatter",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractRecords(model.Message{Text: tt.text})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractRecords_ProtocolIsKnown(t *testing.T) {
	text := "vless://1 vmess://2 ss://3 trojan://4 xss://5"
	for _, r := range ExtractRecords(model.Message{Text: text}) {
		assert.Contains(t, model.Protocols, r.Protocol())
		assert.False(t, strings.Contains(string(r), "&amp;"))
	}
}

func TestExtractAll_KeepsMessageOrder(t *testing.T) {
	messages := []model.Message{
		{Position: 0, Text: "vless://old"},
		{Position: 1, Text: "nothing"},
		{Position: 2, Text: "vless://new1 vless://new2"},
	}
	got := ExtractAll(messages)
	assert.Equal(t, []model.Record{"vless://old", "vless://new1", "vless://new2"}, got)
}
