// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/tulikaff659/zolo/internal/transport"
)

type Sent struct {
	Kind string // "text", "document", "copy"
	To   int64
	Text string
	Doc  transport.OutgoingDocument
	From transport.MessageRef
	Opt  *transport.SendOptions
}

type Answer struct {
	ID   string
	Text string
}

// Adapter records outgoing calls. Files maps file ids to contents served by
// FetchDocument; Fail marks chat ids whose sends return an error.
type Adapter struct {
	mu      sync.Mutex
	sent    []Sent
	answers []Answer
	menu    []transport.BotCommand
	next    int

	Files map[string]string
	Fail  map[int64]bool
}

func New() *Adapter {
	return &Adapter{Files: map[string]string{}, Fail: map[int64]bool{}}
}

func (a *Adapter) Start(ctx context.Context, _ chan<- transport.Update) error {
	<-ctx.Done()
	return nil
}

func (a *Adapter) Stop(context.Context) error { return nil }

func (a *Adapter) record(s Sent) (transport.MessageRef, error) {
	a.mu.Lock()
	a.sent = append(a.sent, s)
	a.next++
	id := a.next
	fail := a.Fail[s.To]
	a.mu.Unlock()
	if fail {
		return transport.MessageRef{}, errors.New("Forbidden: bot was blocked by the user")
	}
	return transport.MessageRef{ChatID: s.To, MessageID: id}, nil
}

func (a *Adapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return a.record(Sent{Kind: "text", To: to.ChatID, Text: text, Opt: opt})
}

func (a *Adapter) SendDocument(_ context.Context, to transport.ChatTarget, doc transport.OutgoingDocument, opt *transport.SendOptions) (transport.MessageRef, error) {
	if doc.Reader != nil {
		b, err := io.ReadAll(doc.Reader)
		if err != nil {
			return transport.MessageRef{}, err
		}
		doc.Reader = strings.NewReader(string(b))
		doc.FileID = "upload:" + string(b)
	}
	return a.record(Sent{Kind: "document", To: to.ChatID, Text: doc.Caption, Doc: doc, Opt: opt})
}

func (a *Adapter) CopyMessage(_ context.Context, to transport.ChatTarget, from transport.MessageRef, opt *transport.SendOptions) (transport.MessageRef, error) {
	return a.record(Sent{Kind: "copy", To: to.ChatID, From: from, Opt: opt})
}

func (a *Adapter) FetchDocument(_ context.Context, fileID string) (io.ReadCloser, error) {
	a.mu.Lock()
	body, ok := a.Files[fileID]
	a.mu.Unlock()
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (a *Adapter) AnswerCallback(_ context.Context, id string, text string) error {
	a.mu.Lock()
	a.answers = append(a.answers, Answer{ID: id, Text: text})
	a.mu.Unlock()
	return nil
}

func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand) error {
	a.mu.Lock()
	a.menu = append([]transport.BotCommand(nil), cmds...)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SetFile(id, body string) {
	a.mu.Lock()
	a.Files[id] = body
	a.mu.Unlock()
}

func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

// SentTo filters Sent by recipient.
func (a *Adapter) SentTo(chatID int64) []Sent {
	var out []Sent
	for _, s := range a.Sent() {
		if s.To == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (a *Adapter) Answers() []Answer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Answer(nil), a.answers...)
}

func (a *Adapter) Menu() []transport.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]transport.BotCommand(nil), a.menu...)
}

// Reset forgets recorded calls.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.sent, a.answers = nil, nil
	a.mu.Unlock()
}

// Text builds an incoming private text message.
func Text(id int, from int64, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID: id, ChatID: from, FromID: from, Text: text, IsPrivate: true,
	}}
}

// DocumentMsg builds an incoming private document message.
func DocumentMsg(id int, from int64, doc transport.Document) transport.Update {
	d := doc
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID: id, ChatID: from, FromID: from, Document: &d, IsPrivate: true,
	}}
}

// Press builds a callback from a private chat.
func Press(id string, from int64, data string) transport.Update {
	return transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{
		ID: id, FromID: from, ChatID: from, MessageID: 1, Data: data,
	}}
}
