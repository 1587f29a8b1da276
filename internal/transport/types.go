package transport

import (
	"context"
	"io"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	// Text holds the message text, or the caption for media messages.
	Text      string
	Document  *Document
	HasMedia  bool // photo, video, audio, voice, animation, sticker...
	IsPrivate bool
}

// Ref returns a reference that can be used to copy this message later.
func (m *Message) Ref() MessageRef {
	return MessageRef{ChatID: m.ChatID, MessageID: m.ID}
}

type Document struct {
	FileID   string
	FileName string
	MIME     string
	Size     int64
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is a transport-neutral inline button. Exactly one of URL or Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Buttons are rendered as an inline keyboard, one slice per row.
	Buttons [][]Button
}

// OutgoingDocument is either a previously uploaded file (FileID) or a fresh
// upload read from Reader.
type OutgoingDocument struct {
	FileID   string
	Reader   io.Reader
	FileName string
	Caption  string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc OutgoingDocument, opt *SendOptions) (MessageRef, error)
	CopyMessage(ctx context.Context, to ChatTarget, from MessageRef, opt *SendOptions) (MessageRef, error)
	FetchDocument(ctx context.Context, fileID string) (io.ReadCloser, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
