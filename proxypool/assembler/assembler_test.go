package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyfeed/internal/shared/settings"
	"proxyfeed/proxypool/model"
)

func TestAssemble_RoundTrip(t *testing.T) {
	a := New()
	cases := [][]model.Record{
		nil,
		{},
		{"vless://a@h:1"},
		{"vless://a@h:1?x=1&y=2#名字", "trojan://b@h:2", "ss://YWVz@h:3#frag#more"},
	}

	for _, records := range cases {
		for _, sentinel := range []bool{false, true} {
			res := a.Assemble(records, Options{Sentinel: sentinel})
			assert.Equal(t, ContentType, res.ContentType)

			decoded, err := Decode(res.Body)
			require.NoError(t, err)
			assert.Equal(t, a.Plaintext(records, sentinel), decoded)
		}
	}
}

func TestAssemble_EmptyIsEmpty(t *testing.T) {
	res := New().Assemble(nil, Options{})
	assert.Equal(t, "", res.Body)
}

func TestAssemble_Decrypted(t *testing.T) {
	a := New()
	records := []model.Record{"vless://a@h:1", "vmess://b"}

	res := a.Assemble(records, Options{Decrypted: true})
	assert.Equal(t, "vless://a@h:1\n\nvmess://b", res.Body)

	res = a.Assemble(records, Options{Decrypted: true, Sentinel: true})
	assert.Equal(t, settings.DefaultSentinel+"\n\nvless://a@h:1\n\nvmess://b", res.Body)
}

func TestAssemble_DefaultIsBase64(t *testing.T) {
	res := New().Assemble([]model.Record{"vless://a@h:1"}, Options{})
	assert.Equal(t, "dmxlc3M6Ly9hQGg6MQ==", res.Body)
}

func TestAssemble_CustomSentinel(t *testing.T) {
	a := New()
	s := *settings.Default().Subscription
	s.Sentinel = "trojan://banner@example:1#hello"
	require.NoError(t, a.OnSettingsUpdate("subscription", &s))

	res := a.Assemble([]model.Record{"ss://x"}, Options{Decrypted: true, Sentinel: true})
	assert.Equal(t, "trojan://banner@example:1#hello\n\nss://x", res.Body)
}

func TestHeaders(t *testing.T) {
	a := New()
	s := settings.SubscriptionSettings{
		TitlePrefix:         "proxyfeed",
		UpdateIntervalHours: 6,
		WebPageURL:          "https://example.org",
		SupportURL:          "https://example.org/support",
	}
	require.NoError(t, a.OnSettingsUpdate("subscription", &s))

	h := a.Headers("demo")
	title, err := Decode(h.Get("profile-title")[len("base64:"):])
	require.NoError(t, err)
	assert.Equal(t, "proxyfeed | demo", title)
	assert.Equal(t, "6", h.Get("profile-update-interval"))
	assert.Equal(t, "https://example.org", h.Get("profile-web-page-url"))
	assert.Equal(t, "https://example.org/support", h.Get("support-url"))
}

func TestHeaders_OmitsEmpty(t *testing.T) {
	a := New()
	require.NoError(t, a.OnSettingsUpdate("subscription", &settings.SubscriptionSettings{}))

	h := a.Headers("demo")
	assert.Equal(t, "base64:"+Encode("demo"), h.Get("profile-title"))
	assert.Empty(t, h.Get("profile-update-interval"))
	assert.Empty(t, h.Get("support-url"))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode("not base64!")
	assert.Error(t, err)
}

func TestJoinLines(t *testing.T) {
	assert.Equal(t, "a\nb", JoinLines([]string{"a", "b"}))
	assert.Equal(t, "", JoinLines(nil))
}
