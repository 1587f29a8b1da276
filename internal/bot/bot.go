// Package bot binds the command surface to the conversation machine, the
// asset library and the broadcast engine.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tulikaff659/zolo/internal/assets"
	"github.com/tulikaff659/zolo/internal/conversation"
	"github.com/tulikaff659/zolo/internal/eventbus"
	"github.com/tulikaff659/zolo/internal/services/broadcast"
	"github.com/tulikaff659/zolo/internal/state"
	"github.com/tulikaff659/zolo/internal/storage"
	"github.com/tulikaff659/zolo/internal/transport"
	"github.com/tulikaff659/zolo/internal/transport/telegram/router"
	"github.com/tulikaff659/zolo/pkg/logx"
	"github.com/tulikaff659/zolo/pkg/tgui"
)

// Callback data of the public download buttons.
const (
	ScopeSlot     = "slot"
	ScopeAsset    = "asset"
	ActionGet     = "get"
	AssetCallback = ScopeAsset + ":" + ActionGet
)

type History interface {
	Recent(n int) []broadcast.Report
}

type Deps struct {
	Admin    int64
	Adapter  transport.Adapter
	Machine  *conversation.Machine
	Library  *assets.Library
	Settings *state.SettingsStore
	Registry *state.Registry
	History  History
	Bus      eventbus.Bus
	Log      logx.Logger

	CommandTimeout time.Duration
}

type Bot struct {
	d   Deps
	log logx.Logger
}

func New(d Deps) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.CommandTimeout <= 0 {
		d.CommandTimeout = defaultCmdTimeout
	}
	return &Bot{d: d, log: d.Log.With(logx.String("comp", "bot"))}
}

const defaultCmdTimeout = 20 * time.Second

const (
	// DeniedText answers non-admins on admin-only routes.
	DeniedText = textDenied
	// FaultText is shown when a handler fails.
	FaultText = textFault
)

func (b *Bot) Commands() []router.Command {
	t := b.d.CommandTimeout
	return []router.Command{
		{Name: "start", Description: "APK fayllar", Usage: "/start", Access: router.AccessEveryone, Timeout: t, Handle: b.cmdStart},
		{Name: "help", Aliases: []string{"admin"}, Description: "Admin buyruqlari", Usage: "/help", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdHelp},
		{Name: "list", Description: "Tugmalar ro'yxati", Usage: "/list", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdList},
		{Name: "upload", Description: "APK yuklash", Usage: "/upload <tugma>", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdUpload},
		{Name: "delete", Description: "APK o'chirish", Usage: "/delete <tugma>", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdDelete},
		{Name: "setapk", Description: "Yuklab olish tugmasi uchun APK", Usage: "/setapk", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdSetAsset},
		{Name: "setlink", Description: "Havola tugmasini sozlash", Usage: "/setlink", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdSetLink},
		{Name: "broadcast", Description: "Hammaga xabar yuborish", Usage: "/broadcast", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdBroadcast},
		{Name: "users", Aliases: []string{"stats"}, Description: "Foydalanuvchilar statistikasi", Usage: "/users", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdUsers},
		{Name: "toggle_apk", Description: "APK tugmasini yoqish/o'chirish", Usage: "/toggle_apk", Access: router.AccessAdminOnly, Timeout: t, Handle: b.cmdToggleAsset},
		// The machine does its own admin check so non-admins get the same
		// answer as for any other step.
		{Name: "cancel", Description: "Amalni bekor qilish", Usage: "/cancel", Access: router.AccessEveryone, Hidden: true, Timeout: t, Handle: b.cmdCancel},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Scope: ScopeSlot, Action: ActionGet, Access: router.CallbackAccessEveryone, Timeout: 2 * time.Minute, Handle: b.cbSlot},
		{Scope: ScopeAsset, Action: ActionGet, Access: router.CallbackAccessEveryone, Handle: b.cbAsset},
		{Scope: "bc", Action: string(conversation.ChoiceAttach), Access: router.CallbackAccessAdminOnly, Handle: b.cbChoice(conversation.ChoiceAttach)},
		{Scope: "bc", Action: string(conversation.ChoiceNone), Access: router.CallbackAccessAdminOnly, Handle: b.cbChoice(conversation.ChoiceNone)},
	}
}

// Register records a private-chat user. It runs on the dispatch goroutine.
func (b *Bot) Register(userID int64) {
	if userID == 0 || !b.d.Registry.Add(userID) {
		return
	}
	b.log.Debug("user registered", logx.Int64("user_id", userID), logx.Int("total", b.d.Registry.Count()))
	if b.d.Bus != nil {
		b.d.Bus.Publish(eventbus.Event{Type: eventbus.UserRegistered, Time: time.Now(), Actor: userID})
	}
}

// OnMessage handles non-command messages: dialog input from the admin, or a
// hint when the admin sends a file outside of a dialog.
func (b *Bot) OnMessage(ctx context.Context, req *router.Request) error {
	if !req.IsAdmin || req.Message == nil {
		return nil
	}
	r, err := b.d.Machine.Handle(ctx, req.FromID, conversation.FromMessage(req.Message))
	if errors.Is(err, conversation.ErrNoSession) {
		if req.Message.Document != nil {
			return req.Reply(ctx, tgui.Esc(textUploadFirst).String(), nil)
		}
		return nil
	}
	if err != nil && !errors.Is(err, conversation.ErrUnauthorized) {
		return err
	}
	return b.send(ctx, req, r)
}

// NotifyReport tells the admin how a broadcast went.
func (b *Bot) NotifyReport(rep broadcast.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err := b.d.Adapter.SendText(ctx, transport.ChatTarget{ChatID: rep.Actor}, textReport(rep).String(),
		&transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		b.log.Warn("broadcast report not delivered", logx.String("id", rep.ID), logx.Err(err))
	}
}

func (b *Bot) send(ctx context.Context, req *router.Request, r conversation.Reply) error {
	if r.Text == "" {
		return nil
	}
	return req.Reply(ctx, r.Text.String(), &transport.SendOptions{Buttons: r.Buttons})
}

func (b *Bot) publish(typ string, actor int64, data map[string]any) {
	if b.d.Bus == nil {
		return
	}
	b.d.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Actor: actor, Data: data})
}

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	slots, err := b.d.Library.Available(ctx)
	if err != nil {
		return err
	}
	set := b.d.Settings.Snapshot()

	var rows [][]transport.Button
	for _, s := range slots {
		rows = append(rows, []transport.Button{tgui.DataBtn(s.Name, tgui.Data(ScopeSlot, ActionGet, s.ID))})
	}
	if set.HasAsset() {
		rows = append(rows, []transport.Button{tgui.DataBtn(set.AssetLabel, AssetCallback)})
	}
	if set.HasLink() {
		rows = append(rows, []transport.Button{tgui.URLBtn(set.LinkLabel, set.LinkURL)})
	}
	return req.Reply(ctx, textStart(len(rows) > 0).String(), &transport.SendOptions{Buttons: rows})
}

func (b *Bot) cmdHelp(ctx context.Context, req *router.Request) error {
	st, err := b.d.Library.Status(ctx)
	if err != nil {
		return err
	}
	var entries []helpEntry
	for _, c := range b.Commands() {
		if c.Name == "start" {
			continue
		}
		entries = append(entries, helpEntry{usage: c.Usage, desc: c.Description})
	}
	return req.Reply(ctx, textHelp(entries, st).String(), nil)
}

func (b *Bot) cmdList(ctx context.Context, req *router.Request) error {
	st, err := b.d.Library.Status(ctx)
	if err != nil {
		return err
	}
	return req.Reply(ctx, textSlotList(st).String(), nil)
}

func (b *Bot) cmdUpload(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, textMissingSlotArg("upload").String(), nil)
	}
	slot, ok := assets.Lookup(req.Args[0])
	if !ok {
		return req.Reply(ctx, textBadSlot().String(), nil)
	}
	r, err := b.d.Machine.StartUpload(req.FromID, slot)
	if err != nil && !errors.Is(err, conversation.ErrUnauthorized) {
		return err
	}
	return b.send(ctx, req, r)
}

func (b *Bot) cmdDelete(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, textMissingSlotArg("delete").String(), nil)
	}
	slot, ok := assets.Lookup(req.Args[0])
	if !ok {
		return req.Reply(ctx, tgui.Esc(textNoSuchSlot).String(), nil)
	}
	err := b.d.Library.Remove(ctx, slot)
	if errors.Is(err, storage.ErrNotFound) {
		return req.Reply(ctx, textNothingToDelete(slot).String(), nil)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", slot.ID, err)
	}
	b.publish(eventbus.AssetDeleted, req.FromID, map[string]any{"slot": slot.ID})
	req.Logger.Info("slot deleted", logx.String("slot", slot.ID))
	return req.Reply(ctx, textDeleted(slot).String(), nil)
}

func (b *Bot) startWith(ctx context.Context, req *router.Request, start func(int64) (conversation.Reply, error)) error {
	r, err := start(req.FromID)
	if err != nil && !errors.Is(err, conversation.ErrUnauthorized) {
		return err
	}
	return b.send(ctx, req, r)
}

func (b *Bot) cmdSetAsset(ctx context.Context, req *router.Request) error {
	return b.startWith(ctx, req, b.d.Machine.StartSetAsset)
}

func (b *Bot) cmdSetLink(ctx context.Context, req *router.Request) error {
	return b.startWith(ctx, req, b.d.Machine.StartLink)
}

func (b *Bot) cmdBroadcast(ctx context.Context, req *router.Request) error {
	return b.startWith(ctx, req, b.d.Machine.StartBroadcast)
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	return b.startWith(ctx, req, b.d.Machine.Cancel)
}

func (b *Bot) cmdUsers(ctx context.Context, req *router.Request) error {
	set := b.d.Settings.Snapshot()
	var recent []broadcast.Report
	if b.d.History != nil {
		recent = b.d.History.Recent(5)
	}
	text := textUsers(b.d.Registry.Count(), b.d.Machine.Sessions().Len(), set.AssetEnabled, set.AssetRef != "", recent)
	return req.Reply(ctx, text.String(), nil)
}

func (b *Bot) cmdToggleAsset(ctx context.Context, req *router.Request) error {
	set := b.d.Settings.Update(func(s *state.Settings) { s.AssetEnabled = !s.AssetEnabled })
	b.publish(eventbus.SettingsChanged, req.FromID, map[string]any{"keys": []string{state.KeyAssetEnabled}, "value": set.AssetEnabled})
	req.Logger.Info("asset button toggled", logx.Bool("enabled", set.AssetEnabled))

	text := textAssetOff
	if set.AssetEnabled {
		text = textAssetOn
		if set.AssetRef == "" {
			text += "\n" + textAssetNoRef
		}
	}
	return req.Reply(ctx, tgui.Esc(text).String(), nil)
}

func (b *Bot) cbSlot(ctx context.Context, req *router.Request, payload string) error {
	slot, ok := assets.Lookup(payload)
	if !ok {
		req.Toast(textMissingFile)
		return nil
	}
	rc, err := b.d.Library.Open(ctx, slot)
	if errors.Is(err, storage.ErrNotFound) {
		return req.Reply(ctx, tgui.Esc(textMissingFile).String(), nil)
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = b.d.Adapter.SendDocument(ctx, req.Chat, transport.OutgoingDocument{
		Reader:   rc,
		FileName: slot.FileName(),
		Caption:  textSlotCaption(slot),
	}, nil)
	if err != nil {
		return err
	}
	req.Logger.Debug("slot served", logx.String("slot", slot.ID))
	return nil
}

func (b *Bot) cbAsset(ctx context.Context, req *router.Request, _ string) error {
	set := b.d.Settings.Snapshot()
	if !set.HasAsset() {
		req.Toast(textMissingFile)
		return nil
	}
	_, err := b.d.Adapter.SendDocument(ctx, req.Chat, transport.OutgoingDocument{
		FileID:  set.AssetRef,
		Caption: textAssetCaption,
	}, nil)
	return err
}

func (b *Bot) cbChoice(c conversation.Choice) router.CallbackHandlerFunc {
	return func(ctx context.Context, req *router.Request, _ string) error {
		r, err := b.d.Machine.Handle(ctx, req.FromID, conversation.ChoiceInput(c))
		if err != nil && !errors.Is(err, conversation.ErrUnauthorized) {
			return err
		}
		return b.send(ctx, req, r)
	}
}
