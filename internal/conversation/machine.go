// Package conversation drives the multi-step admin dialogs: asset upload,
// link setup and broadcast composition.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/repeater/v2"

	"github.com/tulikaff659/zolo/internal/assets"
	"github.com/tulikaff659/zolo/internal/eventbus"
	"github.com/tulikaff659/zolo/internal/services/broadcast"
	"github.com/tulikaff659/zolo/internal/state"
	"github.com/tulikaff659/zolo/internal/transport"
	"github.com/tulikaff659/zolo/pkg/logx"
	"github.com/tulikaff659/zolo/pkg/tgui"
)

var (
	ErrUnauthorized = errors.New("not the admin")
	ErrNoSession    = errors.New("no open dialog")

	errTooLarge = errors.New("file exceeds upload limit")
)

// Callback data for the broadcast button choice.
var (
	ChoiceAttachData = tgui.Data("bc", string(ChoiceAttach), "")
	ChoiceNoneData   = tgui.Data("bc", string(ChoiceNone), "")
)

type Fetcher interface {
	FetchDocument(ctx context.Context, fileID string) (io.ReadCloser, error)
}

type Library interface {
	Put(ctx context.Context, s assets.Slot, r io.Reader) (int64, error)
}

type Broadcaster interface {
	Submit(job broadcast.Job, onDone func(broadcast.Report)) (string, error)
}

type Recipients interface {
	Snapshot() []int64
}

type Config struct {
	// MaxUploadBytes caps slot uploads; 0 disables the check.
	MaxUploadBytes int64
	FetchAttempts  int
	FetchDelay     time.Duration
}

type Deps struct {
	Admin     int64
	Sessions  *state.SessionStore[State]
	Settings  *state.SettingsStore
	Registry  Recipients
	Library   Library
	Fetcher   Fetcher
	Broadcast Broadcaster
	Bus       eventbus.Bus
	Log       logx.Logger
	// OnReport receives the final report of every broadcast this machine started.
	OnReport func(broadcast.Report)
}

// Reply is what the admin should see after a step.
type Reply struct {
	Text    tgui.H
	Buttons [][]transport.Button
}

func reply(text string) Reply { return Reply{Text: tgui.Esc(text)} }

// Machine serializes every transition under one lock. Broadcast submission
// happens after the lock is released.
type Machine struct {
	mu  sync.Mutex
	cfg Config
	d   Deps
	log logx.Logger
}

func New(cfg Config, d Deps) *Machine {
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 3
	}
	if cfg.FetchDelay <= 0 {
		cfg.FetchDelay = 500 * time.Millisecond
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Sessions == nil {
		d.Sessions = state.NewSessionStore[State]()
	}
	return &Machine{cfg: cfg, d: d, log: d.Log.With(logx.String("comp", "conversation"))}
}

// Apply swaps the upload limits.
func (m *Machine) Apply(cfg Config) {
	m.mu.Lock()
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = m.cfg.FetchAttempts
	}
	if cfg.FetchDelay <= 0 {
		cfg.FetchDelay = m.cfg.FetchDelay
	}
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Machine) Sessions() *state.SessionStore[State] { return m.d.Sessions }

// Active returns the open dialog step of actor, if any.
func (m *Machine) Active(actor int64) (State, bool) {
	return m.d.Sessions.Get(actor)
}

func (m *Machine) StartUpload(actor int64, slot assets.Slot) (Reply, error) {
	s := slot
	return m.start(actor, AwaitingFile{Slot: &s})
}

func (m *Machine) StartSetAsset(actor int64) (Reply, error) {
	return m.start(actor, AwaitingFile{})
}

func (m *Machine) StartLink(actor int64) (Reply, error) {
	return m.start(actor, AwaitingLinkLabel{})
}

func (m *Machine) StartBroadcast(actor int64) (Reply, error) {
	return m.start(actor, AwaitingPayload{})
}

func (m *Machine) start(actor int64, st State) (Reply, error) {
	if actor != m.d.Admin {
		return reply(textUnauthorized), ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, had := m.d.Sessions.Get(actor)
	m.d.Sessions.Set(actor, st)

	r := m.prompt(st)
	if had {
		m.log.Info("dialog replaced",
			logx.Int64("admin", actor),
			logx.String("prev_flow", prev.Flow().String()),
			logx.String("prev_step", prev.Step()),
			logx.String("flow", st.Flow().String()))
		r.Text = tgui.Lines(tgui.Esc(textDiscarded), r.Text)
	}
	return r, nil
}

func (m *Machine) prompt(st State) Reply {
	switch s := st.(type) {
	case AwaitingFile:
		if s.Slot != nil {
			return Reply{Text: textUploadPrompt(*s.Slot)}
		}
		return reply(textSetAssetPrompt)
	case AwaitingLinkLabel:
		return reply(textLinkLabel)
	case AwaitingLinkURL:
		return reply(textLinkURL)
	case AwaitingPayload:
		return reply(textBroadcastStart)
	case AwaitingButtonChoice:
		return Reply{
			Text: tgui.Esc(textChoicePrompt),
			Buttons: [][]transport.Button{{
				tgui.DataBtn(textChoiceAttach, ChoiceAttachData),
				tgui.DataBtn(textChoiceNone, ChoiceNoneData),
			}},
		}
	case AwaitingButtonLabel:
		return reply(textButtonLabel)
	case AwaitingButtonURL:
		if m.d.Settings.Snapshot().HasAsset() {
			return reply(textButtonURLSkip)
		}
		return reply(textButtonURL)
	}
	return reply(textFault)
}

// Cancel closes any open dialog of actor without side effects.
func (m *Machine) Cancel(actor int64) (Reply, error) {
	if actor != m.d.Admin {
		return reply(textUnauthorized), ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.d.Sessions.Get(actor)
	if !had {
		return reply(textNothingActive), nil
	}
	m.d.Sessions.Clear(actor)
	m.log.Debug("dialog cancelled", logx.Int64("admin", actor), logx.String("flow", prev.Flow().String()), logx.String("step", prev.Step()))
	return reply(textCancelled), nil
}

type dispatch struct {
	job broadcast.Job
}

// Handle feeds one input into the open dialog of actor.
func (m *Machine) Handle(ctx context.Context, actor int64, in Input) (Reply, error) {
	if actor != m.d.Admin {
		return reply(textUnauthorized), ErrUnauthorized
	}

	m.mu.Lock()
	cur, ok := m.d.Sessions.Get(actor)
	if !ok {
		m.mu.Unlock()
		if in.Kind == InputChoice {
			return reply(textStaleChoice), nil
		}
		return Reply{}, ErrNoSession
	}
	r, next, d := m.step(ctx, actor, cur, in)
	switch {
	case d != nil || next == nil:
		m.d.Sessions.Clear(actor)
	default:
		// Re-set even when unchanged so the idle sweep sees activity.
		m.d.Sessions.Set(actor, next)
	}
	m.mu.Unlock()

	if d != nil {
		return m.dispatch(actor, d), nil
	}
	return r, nil
}

// step computes the reply and the next state. A nil next state closes the
// dialog.
func (m *Machine) step(ctx context.Context, actor int64, cur State, in Input) (Reply, State, *dispatch) {
	if in.Kind == InputChoice {
		if s, ok := cur.(AwaitingButtonChoice); ok {
			return m.onChoice(s, in.Choice)
		}
		return reply(textStaleChoice), cur, nil
	}

	switch s := cur.(type) {
	case AwaitingFile:
		return m.onFile(ctx, actor, s, in)

	case AwaitingLinkLabel:
		label := strings.TrimSpace(in.Text)
		if in.Kind != InputText || label == "" {
			return reply(textNeedText), cur, nil
		}
		next := AwaitingLinkURL{Label: label}
		return m.prompt(next), next, nil

	case AwaitingLinkURL:
		raw := strings.TrimSpace(in.Text)
		if in.Kind != InputText || raw == "" {
			return reply(textNeedText), cur, nil
		}
		if err := broadcast.ValidateURL(raw); err != nil {
			return reply(textInvalidURL), cur, nil
		}
		m.d.Settings.Update(func(v *state.Settings) {
			v.LinkLabel = s.Label
			v.LinkURL = raw
		})
		m.publish(eventbus.SettingsChanged, actor, map[string]any{"keys": []string{state.KeyLinkLabel, state.KeyLinkURL}})
		m.log.Info("link updated", logx.Int64("admin", actor), logx.String("url", raw))
		return Reply{Text: textLinkSaved(s.Label, raw)}, nil, nil

	case AwaitingPayload:
		next := AwaitingButtonChoice{Payload: in.Message}
		return m.prompt(next), next, nil

	case AwaitingButtonChoice:
		// Anything but a choice repeats the question.
		return m.prompt(cur), cur, nil

	case AwaitingButtonLabel:
		label := strings.TrimSpace(in.Text)
		if in.Kind != InputText || label == "" {
			return reply(textNeedText), cur, nil
		}
		next := AwaitingButtonURL{Payload: s.Payload, Label: label}
		return m.prompt(next), next, nil

	case AwaitingButtonURL:
		return m.onButtonURL(s, in)
	}

	m.log.Error("unknown dialog state", logx.Int64("admin", actor), logx.String("state", fmt.Sprintf("%T", cur)))
	return reply(textFault), nil, nil
}

func (m *Machine) onChoice(s AwaitingButtonChoice, c Choice) (Reply, State, *dispatch) {
	switch c {
	case ChoiceAttach:
		next := AwaitingButtonLabel{Payload: s.Payload}
		return m.prompt(next), next, nil
	case ChoiceNone:
		return Reply{}, nil, &dispatch{job: broadcast.Job{Payload: s.Payload}}
	}
	return m.prompt(s), s, nil
}

func isSkip(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "skip" || t == "-"
}

func (m *Machine) onButtonURL(s AwaitingButtonURL, in Input) (Reply, State, *dispatch) {
	if in.Kind != InputText || strings.TrimSpace(in.Text) == "" {
		return reply(textNeedText), s, nil
	}
	if isSkip(in.Text) {
		if !m.d.Settings.Snapshot().HasAsset() {
			return reply(textSkipNoAsset), s, nil
		}
		btn, err := broadcast.AssetButton(s.Label)
		if err != nil {
			return reply(textNeedText), AwaitingButtonLabel{Payload: s.Payload}, nil
		}
		return Reply{}, nil, &dispatch{job: broadcast.Job{Payload: s.Payload, Button: &btn}}
	}
	btn, err := broadcast.URLButton(s.Label, in.Text)
	if err != nil {
		return reply(textInvalidURL), s, nil
	}
	return Reply{}, nil, &dispatch{job: broadcast.Job{Payload: s.Payload, Button: &btn}}
}

func (m *Machine) onFile(ctx context.Context, actor int64, s AwaitingFile, in Input) (Reply, State, *dispatch) {
	if in.Kind != InputDocument || in.Document == nil {
		return reply(textNotDocument), s, nil
	}
	doc := in.Document

	if s.Slot == nil {
		label := strings.TrimSpace(in.Text)
		if label == "" {
			label = state.DefaultAssetLabel
		}
		m.d.Settings.Update(func(v *state.Settings) {
			v.AssetRef = doc.FileID
			v.AssetLabel = label
		})
		m.publish(eventbus.SettingsChanged, actor, map[string]any{"keys": []string{state.KeyAssetRef, state.KeyAssetLabel}, "file": doc.FileName})
		m.log.Info("cached asset updated", logx.Int64("admin", actor), logx.String("file", doc.FileName), logx.Int64("size", doc.Size))
		return Reply{Text: textAssetSaved(label)}, nil, nil
	}

	slot := *s.Slot
	if !strings.HasSuffix(strings.ToLower(doc.FileName), ".apk") {
		return reply(textNotAPK), s, nil
	}
	limit := m.cfg.MaxUploadBytes
	if limit > 0 && doc.Size > limit {
		return Reply{Text: textTooLarge(limit)}, s, nil
	}

	size, err := m.download(ctx, slot, doc, limit)
	if errors.Is(err, errTooLarge) {
		return Reply{Text: textTooLarge(limit)}, s, nil
	}
	if err != nil {
		m.log.Error("slot upload failed", logx.Int64("admin", actor), logx.String("slot", slot.ID), logx.String("file_id", doc.FileID), logx.Err(err))
		return reply(textFault), s, nil
	}

	m.publish(eventbus.AssetUploaded, actor, map[string]any{"slot": slot.ID, "size": size, "file": doc.FileName})
	m.log.Info("slot uploaded", logx.Int64("admin", actor), logx.String("slot", slot.ID), logx.Int64("size", size))
	return Reply{Text: textSlotUploaded(slot, size)}, nil, nil
}

func (m *Machine) download(ctx context.Context, slot assets.Slot, doc *transport.Document, limit int64) (int64, error) {
	var size int64
	retrier := repeater.NewBackoff(m.cfg.FetchAttempts, m.cfg.FetchDelay, repeater.WithMaxDelay(5*time.Second))
	err := retrier.Do(ctx, func() error {
		rc, err := m.d.Fetcher.FetchDocument(ctx, doc.FileID)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		defer rc.Close()

		var r io.Reader = rc
		if limit > 0 {
			r = &capReader{r: rc, left: limit}
		}
		size, err = m.d.Library.Put(ctx, slot, r)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		return nil
	}, errTooLarge)
	return size, err
}

func (m *Machine) dispatch(actor int64, d *dispatch) Reply {
	job := d.job
	job.Actor = actor
	job.Recipients = m.d.Registry.Snapshot()

	id, err := m.d.Broadcast.Submit(job, m.d.OnReport)
	if err != nil {
		m.log.Error("broadcast submit failed", logx.Int64("admin", actor), logx.Int("recipients", len(job.Recipients)), logx.Err(err))
		if errors.Is(err, broadcast.ErrQueueFull) {
			return reply(textQueueBusy)
		}
		return reply(textFault)
	}
	m.log.Info("broadcast submitted", logx.Int64("admin", actor), logx.String("job", id), logx.Int("recipients", len(job.Recipients)), logx.Bool("button", job.Button != nil))
	return Reply{Text: textDispatching(len(job.Recipients))}
}

func (m *Machine) publish(typ string, actor int64, data map[string]any) {
	if m.d.Bus == nil {
		return
	}
	m.d.Bus.Publish(eventbus.Event{Type: typ, Actor: actor, Data: data})
}

// capReader fails once more than left bytes have been read.
type capReader struct {
	r    io.Reader
	left int64
}

func (c *capReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, errTooLarge
	}
	return n, err
}
