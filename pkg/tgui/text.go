package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is Telegram's text message limit in runes.
const MaxMessageLen = 4096

// TruncRunes returns s truncated to at most n runes, with "…" when cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

// Split breaks s into chunks of at most n runes, preferring line breaks.
func Split(s string, n int) []string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.SplitAfter(s, "\n") {
		l := utf8.RuneCountInString(line)
		if curLen+l > n {
			flush()
		}
		for l > n {
			r := []rune(line)
			out = append(out, string(r[:n]))
			line = string(r[n:])
			l -= n
		}
		cur.WriteString(line)
		curLen += l
	}
	flush()
	return out
}
