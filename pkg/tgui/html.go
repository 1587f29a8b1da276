package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is HTML that is safe to send with ParseMode="HTML".
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

func Link(text, url string) H {
	return H(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(text)))
}

// Lines joins non-empty parts with newlines.
func Lines(parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, "\n"))
}

// Sprintf formats with text arguments escaped. H arguments pass through, and
// other values keep their type so numeric verbs still apply.
func Sprintf(format string, args ...any) H {
	esc := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case H:
			esc[i] = v.String()
		case string:
			esc[i] = html.EscapeString(v)
		case error:
			esc[i] = html.EscapeString(v.Error())
		case fmt.Stringer:
			esc[i] = html.EscapeString(v.String())
		default:
			esc[i] = v
		}
	}
	return H(fmt.Sprintf(format, esc...))
}
