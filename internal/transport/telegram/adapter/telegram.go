package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "github.com/tulikaff659/zolo/internal/runtime/supervisor"
	kit "github.com/tulikaff659/zolo/internal/transport"
	"github.com/tulikaff659/zolo/pkg/logx"
	"github.com/tulikaff659/zolo/pkg/tgui"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// WebhookListen and WebhookURL switch the adapter from long polling to a
	// webhook when both are set, e.g. "0.0.0.0:8080" and "https://host/webhook".
	WebhookListen string
	WebhookURL    string
	WebhookSecret string
}

// Webhook reports whether the config selects webhook mode.
func (c Config) Webhook() bool {
	return strings.TrimSpace(c.WebhookListen) != "" && strings.TrimSpace(c.WebhookURL) != ""
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger, stop watcher).
	// It is created on Start() and cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower than Telegram.
	droppedUpdates uint64

	menuMu   sync.Mutex
	menuHash uint64
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

// Running reports whether Start has been called without a matching Stop.
func (a *Adapter) Running() bool {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.running
}

func poller(cfg Config) tele.Poller {
	if cfg.Webhook() {
		return &tele.Webhook{
			Listen:      cfg.WebhookListen,
			SecretToken: cfg.WebhookSecret,
			Endpoint:    &tele.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: poller(cfg),
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// messageEndpoints are the telebot events forwarded as message updates.
var messageEndpoints = []string{
	tele.OnText, tele.OnDocument, tele.OnPhoto, tele.OnVideo, tele.OnAudio,
	tele.OnVoice, tele.OnAnimation, tele.OnVideoNote, tele.OnSticker,
	tele.OnLocation, tele.OnContact, tele.OnPoll, tele.OnVenue, tele.OnDice,
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	for _, ep := range messageEndpoints {
		a.bot.Handle(ep, func(c tele.Context) error {
			if m := convertMessage(c.Message()); m != nil {
				a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: m})
			}
			return nil
		})
	}

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || cb.Sender == nil {
			return nil
		}
		up := kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:     cb.ID,
				FromID: cb.Sender.ID,
				Data:   cb.Data,
			},
		}
		if m := cb.Message; m != nil && m.Chat != nil {
			up.Callback.ChatID = m.Chat.ID
			up.Callback.MessageID = m.ID
		}
		a.sendUpdate(up)
		return nil
	})
}

func convertMessage(m *tele.Message) *kit.Message {
	if m == nil || m.Chat == nil || m.Sender == nil {
		return nil
	}
	out := &kit.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		Text:         m.Text,
		IsPrivate:    m.Chat.Type == tele.ChatPrivate,
	}
	if out.Text == "" {
		out.Text = m.Caption
	}
	switch {
	case m.Document != nil:
		out.Document = &kit.Document{
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MIME:     m.Document.MIME,
			Size:     m.Document.FileSize,
		}
	case m.Photo != nil, m.Video != nil, m.Audio != nil, m.Voice != nil,
		m.Animation != nil, m.VideoNote != nil, m.Sticker != nil,
		m.Location != nil, m.Contact != nil, m.Poll != nil, m.Venue != nil, m.Dice != nil:
		out.HasMedia = true
	}
	return out
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped updates (avoid noisy per-update logs).
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	mode := "polling"
	if a.cfg.Webhook() {
		mode = "webhook"
	}
	// Telebot's Start() is a long-running loop. In some failure modes it can
	// exit unexpectedly; run it under a restart loop so the adapter self-heals.
	sup.GoRestart("telebot."+mode, func(c context.Context) error {
		a.log.Info("updates started", logx.String("mode", mode), logx.String("listen", a.cfg.WebhookListen))
		a.bot.Start()
		a.log.Info("updates stopped", logx.String("mode", mode))
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		// Restart if Start() returns while context is still active.
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Never block shutdown for too long on Telegram long-poll.
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", atomic.LoadUint64(&a.droppedUpdates)))
	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(opt *kit.SendOptions, withMarkup bool) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	so := &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
	}
	if withMarkup {
		so.ReplyMarkup = tgui.Markup(opt.Buttons)
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	chunks := tgui.Split(text, tgui.MaxMessageLen)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		// Attach markup only to the last chunk so buttons sit under the full text.
		msg, err := a.bot.Send(chat, chunk, sendOptions(opt, i == len(chunks)-1))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendDocument(ctx context.Context, to kit.ChatTarget, doc kit.OutgoingDocument, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	file := tele.File{FileID: doc.FileID}
	if doc.Reader != nil {
		file = tele.FromReader(doc.Reader)
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, &tele.Document{
		File:     file,
		FileName: doc.FileName,
		Caption:  doc.Caption,
	}, sendOptions(opt, true))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) CopyMessage(ctx context.Context, to kit.ChatTarget, from kit.MessageRef, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	src := tele.StoredMessage{MessageID: strconv.Itoa(from.MessageID), ChatID: from.ChatID}
	msg, err := a.bot.Copy(&tele.Chat{ID: to.ChatID}, src, sendOptions(opt, true))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

// FetchDocument downloads a file by id. The reader is closed when ctx ends.
func (a *Adapter) FetchDocument(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := a.bot.File(&tele.File{FileID: fileID})
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	return &fetchReader{ReadCloser: rc, stop: stop}, nil
}

type fetchReader struct {
	io.ReadCloser
	stop func() bool
}

func (r *fetchReader) Close() error {
	r.stop()
	return r.ReadCloser.Close()
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// UpdateMenuCommands updates Telegram's global /menu command list (setMyCommands).
// It only performs a network call when the command list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
		list = append(list, tele.Command{Text: c.Command, Description: c.Description})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
