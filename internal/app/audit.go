package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tulikaff659/zolo/internal/eventbus"
	"github.com/tulikaff659/zolo/internal/storage"
	"github.com/tulikaff659/zolo/pkg/logx"
)

// auditEntry maps a bus event to an audit row. User registrations are not
// admin actions and are skipped.
func auditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	if e.Type == eventbus.UserRegistered {
		return storage.AuditEntry{}, false
	}
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	out := storage.AuditEntry{At: at, ActorID: e.Actor, Action: e.Type}
	if v, ok := e.Data["slot"].(string); ok {
		out.Target = v
	}
	if v, ok := e.Data["job"].(string); ok {
		out.Target = v
	}
	if v, ok := e.Data["sent"].(int); ok {
		out.OK = v
	}
	if v, ok := e.Data["failed"].(int); ok {
		out.Fail = v
	}
	if len(e.Data) > 0 {
		if b, err := json.Marshal(e.Data); err == nil {
			out.Meta = string(b)
		}
	}
	return out, true
}

// runEvents logs each event at debug and appends it to the audit store when
// one is configured. It returns when ctx ends or the channel closes.
func runEvents(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			log.Debug("event", logx.String("type", e.Type), logx.Int64("actor", e.Actor), logx.Time("time", e.Time))
			if store == nil {
				continue
			}
			entry, ok := auditEntry(e)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := store.AppendAudit(wctx, entry); err != nil {
				log.Warn("audit append failed", logx.String("action", entry.Action), logx.Err(err))
			}
			cancel()
		}
	}
}

// pruneAudit drops audit rows older than retention.
func pruneAudit(store storage.Store, retention time.Duration, log logx.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if store == nil || retention <= 0 {
			return nil
		}
		n, err := store.PruneAudit(ctx, time.Now().Add(-retention))
		if err != nil {
			return fmt.Errorf("audit prune: %w", err)
		}
		if n > 0 {
			log.Info("audit pruned", logx.Int("rows", n), logx.Duration("retention", retention))
		}
		return nil
	}
}
