package tgui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulikaff659/zolo/internal/transport"
)

func TestDataParse(t *testing.T) {
	cases := []struct {
		data                   string
		scope, action, payload string
		ok                     bool
	}{
		{Data("slot", "get", "1xbet"), "slot", "get", "1xbet", true},
		{Data("asset", "get", ""), "asset", "get", "", true},
		{"bc:attach", "bc", "attach", "", true},
		{"a:b:c:d", "a", "b", "c:d", true},
		{"nocolon", "", "", "", false},
		{":x", "", "", "", false},
	}
	for _, tc := range cases {
		scope, action, payload, ok := Parse(tc.data)
		assert.Equal(t, tc.ok, ok, tc.data)
		assert.Equal(t, tc.scope, scope, tc.data)
		assert.Equal(t, tc.action, action, tc.data)
		assert.Equal(t, tc.payload, payload, tc.data)
	}
}

func TestDataChecked(t *testing.T) {
	_, err := DataChecked("slot", "get", strings.Repeat("x", 70))
	assert.ErrorIs(t, err, ErrCallbackDataTooLong)
	d, err := DataChecked("slot", "get", "winwin")
	require.NoError(t, err)
	assert.Equal(t, "slot:get:winwin", d)
}

func TestSprintfEscapes(t *testing.T) {
	got := Sprintf("%s %s %d", B("a<b"), "x&y", 3)
	assert.Equal(t, H("<b>a&lt;b</b> x&amp;y 3"), got)
	assert.Equal(t, H(`<a href="https://x?a=1&amp;b=2">go</a>`), Link("go", "https://x?a=1&b=2"))
	assert.Equal(t, H("a\nb"), Lines(Esc("a"), "", Esc("b")))
}

func TestSprintfKeepsNumbers(t *testing.T) {
	assert.Equal(t, H("sent 3 / failed 1 (75.0%)"), Sprintf("sent %d / failed %d (%.1f%%)", 3, int64(1), 75.0))
	assert.Equal(t, H("err: a&lt;b"), Sprintf("err: %v", errors.New("a<b")))
	assert.Equal(t, H("took 1.5s"), Sprintf("took %s", 1500*time.Millisecond))
}

func TestMarkup(t *testing.T) {
	assert.Nil(t, Markup(nil))
	rm := Markup([][]transport.Button{
		{DataBtn("Get", "slot:get:x"), URLBtn("Site", "https://x")},
		{DataBtn("Asset", "asset:get")},
	})
	require.NotNil(t, rm)
	require.Len(t, rm.InlineKeyboard, 2)
	assert.Equal(t, "https://x", rm.InlineKeyboard[0][1].URL)
	assert.Equal(t, "Asset", rm.InlineKeyboard[1][0].Text)
	assert.Len(t, Rows(DataBtn("a", "a:b"), DataBtn("c", "c:d")), 2)
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"short"}, Split("short", 10))
	parts := Split("aaaa\nbbbb\ncccc", 10)
	assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc"}, parts)
	long := Split(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, long)
	assert.Equal(t, "ab…", TruncRunes("abc", 2))
}
