// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/tulikaff659/zolo/internal/assets"
	"github.com/tulikaff659/zolo/internal/bot"
	"github.com/tulikaff659/zolo/internal/config"
	"github.com/tulikaff659/zolo/internal/conversation"
	"github.com/tulikaff659/zolo/internal/eventbus"
	"github.com/tulikaff659/zolo/internal/ops"
	"github.com/tulikaff659/zolo/internal/runtime/supervisor"
	"github.com/tulikaff659/zolo/internal/services/broadcast"
	"github.com/tulikaff659/zolo/internal/services/scheduler"
	"github.com/tulikaff659/zolo/internal/state"
	"github.com/tulikaff659/zolo/internal/storage"
	kit "github.com/tulikaff659/zolo/internal/transport"
	telegram "github.com/tulikaff659/zolo/internal/transport/telegram/adapter"
	"github.com/tulikaff659/zolo/internal/transport/telegram/router"
	"github.com/tulikaff659/zolo/pkg/logx"
)

const (
	jobSessionSweep = "sessions.sweep"
	jobAuditPrune   = "audit.prune"
)

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Resolved

	sup  *supervisor.Supervisor
	sups *supervisor.Registry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  *telegram.Adapter
	settings *state.SettingsStore
	registry *state.Registry
	bcast    *broadcast.Service
	machine  *conversation.Machine
	bot      *bot.Bot
	cmdm     *router.CommandManager
	sched    *scheduler.Service
	ops      *ops.Server

	sessionTTL atomic.Int64

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgm *config.ConfigManager) (*App, error) {
	raw, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Resolve(raw)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(raw.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(mapAdapterConfig(cfg), bootLog)
	if err != nil {
		return nil, err
	}

	// Enable the Telegram sink only after the target is set.
	logCfg := mapLoggingConfig(raw)
	tgEnabled := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logSvc, log := logx.New(logCfg, ad)
	logSvc.SetTelegramTarget(cfg.AdminID)
	logCfg.Telegram.Enabled = tgEnabled
	logSvc.Apply(logCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	var store storage.Store
	if sc, enabled := mapStorageConfig(cfg); enabled {
		store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		log.Info("audit storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	blobs, err := storage.NewBlobStore(cfg.AssetsDir, ".apk")
	if err != nil {
		closeStore(store)
		return nil, err
	}
	lib := assets.NewLibrary(blobs)

	bus := eventbus.New()
	settings := state.NewSettingsStore()
	registry := state.NewRegistry()
	bcast := broadcast.New(mapBroadcastConfig(cfg), ad, log,
		broadcast.WithAssetCallback(bot.AssetCallback),
		broadcast.WithBus(bus),
	)

	var b *bot.Bot
	machine := conversation.New(mapConversationConfig(cfg), conversation.Deps{
		Admin:     cfg.AdminID,
		Settings:  settings,
		Registry:  registry,
		Library:   lib,
		Fetcher:   ad,
		Broadcast: bcast,
		Bus:       bus,
		Log:       log,
		OnReport:  func(r broadcast.Report) { b.NotifyReport(r) },
	})
	b = bot.New(bot.Deps{
		Admin:          cfg.AdminID,
		Adapter:        ad,
		Machine:        machine,
		Library:        lib,
		Settings:       settings,
		Registry:       registry,
		History:        bcast,
		Bus:            bus,
		Log:            log,
		CommandTimeout: cfg.CommandTimeout,
	})

	sups := supervisor.NewRegistry()
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "router")), ad, cfg.AdminID, router.Options{
		MessageTimeout: cfg.UploadTimeout,
		DeniedText:     bot.DeniedText,
		FaultText:      bot.FaultText,
		OnInteraction:  b.Register,
		Fallback:       b.OnMessage,
		Supervisors:    sups,
	})
	cmdm.SetRegistry(b.Commands(), b.Callbacks())

	a := &App{
		cfgm:     cfgm,
		cfg:      cfg,
		sups:     sups,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		settings: settings,
		registry: registry,
		bcast:    bcast,
		machine:  machine,
		bot:      b,
		cmdm:     cmdm,
		sched:    scheduler.New(cfg.Location, log),
		updates:  make(chan kit.Update, 256),
	}
	a.sessionTTL.Store(int64(cfg.SessionTTL))

	if err := a.sched.Add(jobSessionSweep, a.sweepSpec(cfg), 10*time.Second, a.sweepSessions); err != nil {
		closeStore(store)
		return nil, err
	}
	if err := a.sched.Add(jobAuditPrune, a.pruneSpec(cfg), time.Minute, pruneAudit(store, cfg.Retention, a.log)); err != nil {
		closeStore(store)
		return nil, err
	}
	if cfg.Ops.Enabled {
		a.ops = ops.New(mapOpsConfig(cfg), ops.Deps{Ready: a.ready, Stats: a.stats}, log)
	}
	return a, nil
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}

// sweepSpec is empty when sessions never expire.
func (a *App) sweepSpec(cfg *config.Resolved) string {
	if cfg.SessionTTL <= 0 {
		return ""
	}
	return cfg.SessionSweep
}

// pruneSpec is empty when there is nothing to prune.
func (a *App) pruneSpec(cfg *config.Resolved) string {
	if a.store == nil {
		return ""
	}
	return cfg.AuditPrune
}

func (a *App) sweepSessions(context.Context) error {
	ttl := time.Duration(a.sessionTTL.Load())
	if ttl <= 0 {
		return nil
	}
	if ids := a.machine.Sessions().Sweep(ttl); len(ids) > 0 {
		a.log.Info("expired dialogs closed", logx.Int("count", len(ids)), logx.Duration("ttl", ttl))
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.sups.Set("app", a.sup)

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sups.Set("telegram.adapter", a.adapter.Supervisor())

	a.bcast.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("router.menu", func(c context.Context) {
		if err := a.cmdm.UpdateMenu(c); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.audit", func(c context.Context) {
		defer unsub()
		runEvents(c, events, a.store, a.log.With(logx.String("comp", "audit")))
	})

	if a.ops != nil {
		a.sup.Go("ops.http", func(c context.Context) error {
			err := a.ops.Start(c)
			if err != nil {
				a.log.Error("ops server failed", logx.Err(err))
			}
			// A dead ops listener should not take the bot down.
			return nil
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	mode := "polling"
	if a.cfg.Webhook.PublicURL != "" {
		mode = "webhook"
	}
	a.log.Info("app started",
		logx.String("mode", mode),
		logx.Int64("admin_id", a.cfg.AdminID),
		logx.String("assets_dir", a.cfg.AssetsDir),
		logx.String("storage", a.cfg.StorageDriver),
		logx.Bool("ops", a.ops != nil),
	)
	return nil
}

// applyConfig applies the hot-reloadable parts of next.
func (a *App) applyConfig(prev, next *config.Config) {
	r, err := config.Resolve(next)
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}
	sections, fields := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLoggingConfig(next))
	a.bcast.Apply(mapBroadcastConfig(r))
	a.machine.Apply(mapConversationConfig(r))

	a.sessionTTL.Store(int64(r.SessionTTL))
	if err := a.sched.Reschedule(jobSessionSweep, a.sweepSpec(r)); err != nil {
		a.log.Warn("session sweep not rescheduled", logx.Err(err))
	}
	if err := a.sched.Reschedule(jobAuditPrune, a.pruneSpec(r)); err != nil {
		a.log.Warn("audit prune not rescheduled", logx.Err(err))
	}

	if config.RestartRequired(sections) {
		a.log.Warn("config changes need a restart to take effect", logx.String("changed", strings.Join(sections, ",")))
	}
	fields = append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) ready() error {
	if a.sup == nil || a.sup.Context().Err() != nil {
		return errors.New("app not running")
	}
	if !a.adapter.Running() {
		return errors.New("telegram adapter not running")
	}
	return nil
}

func (a *App) stats(context.Context) ops.Stats {
	set := a.settings.Snapshot()
	st := ops.Stats{
		Users:        a.registry.Count(),
		Sessions:     a.machine.Sessions().Len(),
		AssetEnabled: set.HasAsset(),
		BusDropped:   a.bus.Dropped(),
		Supervisors:  a.sups.Snapshots(),
	}
	if last, ok := a.bcast.Last(); ok {
		st.LastBroadcast = &ops.BroadcastSummary{
			ID:         last.ID,
			Total:      last.Total,
			Sent:       last.Sent,
			Failed:     last.Failed,
			Running:    last.Running,
			StartedAt:  last.StartedAt,
			FinishedAt: last.FinishedAt,
		}
	}
	snap := a.sched.Snapshot()
	st.Scheduler = &snap
	return st
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Stop intake first so no new dialog or broadcast starts mid-shutdown.
	a.step(ctx, "adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "broadcast", 3*time.Second, func(c context.Context) error { a.bcast.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error {
		if a.ops != nil {
			return a.ops.Stop(c)
		}
		return nil
	})
	// Wait for supervised goroutines (dispatch, audit, config watch) before
	// closing the store they write to.
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component cannot
// stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < limit {
			limit = rem
		}
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
