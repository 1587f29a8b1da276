package tgui

import (
	tele "gopkg.in/telebot.v4"

	"github.com/tulikaff659/zolo/internal/transport"
)

func DataBtn(text, data string) transport.Button { return transport.Button{Text: text, Data: data} }
func URLBtn(text, url string) transport.Button   { return transport.Button{Text: text, URL: url} }

// Rows puts every button on its own row.
func Rows(btns ...transport.Button) [][]transport.Button {
	out := make([][]transport.Button, 0, len(btns))
	for _, b := range btns {
		out = append(out, []transport.Button{b})
	}
	return out
}

// Markup converts transport buttons into a telebot inline keyboard.
// It returns nil when there are no buttons.
func Markup(rows [][]transport.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	out := make([]tele.Row, 0, len(rows))
	for _, r := range rows {
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				btns = append(btns, tele.Btn{Text: b.Text, URL: b.URL})
			} else {
				btns = append(btns, tele.Btn{Text: b.Text, Data: b.Data})
			}
		}
		if len(btns) > 0 {
			out = append(out, rm.Row(btns...))
		}
	}
	if len(out) == 0 {
		return nil
	}
	rm.Inline(out...)
	return rm
}
