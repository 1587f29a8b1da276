package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/tulikaff659/zolo/internal/eventbus"
	"github.com/tulikaff659/zolo/internal/transport"
	"github.com/tulikaff659/zolo/pkg/logx"
)

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain(ctx.Err())
			return
		case j := <-s.queue:
			s.runOne(ctx, j)
		}
	}
}

// runOne executes j and reports it. A panic ends only this job.
func (s *Service) runOne(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in broadcast job", logx.String("job", j.id), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	rep := s.execJob(ctx, j)
	s.notify(j, rep)
}

func (s *Service) notify(j job, rep Report) {
	if j.onDone == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in broadcast report callback", logx.String("job", j.id), logx.Any("panic", r))
		}
	}()
	j.onDone(rep)
}

// drain fails every queued job without attempting delivery.
func (s *Service) drain(cause error) {
	for {
		select {
		case j := <-s.queue:
			now := time.Now()
			rep := Report{ID: j.id, Actor: j.spec.Actor, Total: len(j.spec.Recipients), Failed: len(j.spec.Recipients), StartedAt: now, FinishedAt: now}
			for _, r := range j.spec.Recipients {
				rep.Results = append(rep.Results, Result{Recipient: r, Err: cause})
			}
			s.finishStatus(rep)
			s.log.Warn("broadcast job dropped on shutdown", logx.String("job", j.id), logx.Int("total", rep.Total))
			s.notify(j, rep)
		default:
			return
		}
	}
}

func (s *Service) execJob(ctx context.Context, j job) Report {
	cfg := s.config()
	rep := Report{
		ID:        j.id,
		Actor:     j.spec.Actor,
		Total:     len(j.spec.Recipients),
		Running:   true,
		StartedAt: time.Now(),
		Results:   make([]Result, 0, len(j.spec.Recipients)),
	}
	s.updateStatus(rep)
	s.publish(eventbus.BroadcastStarted, rep)
	s.log.Info("broadcast job started", logx.String("job", j.id), logx.Int("total", rep.Total))

	opt := s.sendOptions(j.spec.Button)
	for i, r := range j.spec.Recipients {
		if i > 0 {
			if err := s.sleep(ctx, cfg.Delay); err != nil {
				s.failRemaining(&rep, j.spec.Recipients[i:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			s.failRemaining(&rep, j.spec.Recipients[i:], err)
			break
		}
		res := s.sendOne(ctx, j.id, r, j.spec.Payload, opt)
		rep.Results = append(rep.Results, res)
		if res.Err != nil {
			rep.Failed++
		} else {
			rep.Sent++
		}
		s.updateStatus(rep)
	}

	rep.Running = false
	rep.FinishedAt = time.Now()
	s.finishStatus(rep)
	s.publish(eventbus.BroadcastFinished, rep)

	fields := []logx.Field{
		logx.String("job", j.id),
		logx.Int("total", rep.Total),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.Duration()),
	}
	if rep.Failed > 0 {
		s.log.Warn("broadcast job finished with failures", fields...)
	} else {
		s.log.Info("broadcast job finished", fields...)
	}
	return rep
}

func (s *Service) sendOne(ctx context.Context, jobID string, to int64, payload transport.MessageRef, opt *transport.SendOptions) (res Result) {
	res.Recipient = to
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		if res.Err != nil {
			s.log.Warn("broadcast send failed", logx.String("job", jobID), logx.Int64("recipient", to), logx.Err(res.Err))
		}
	}()
	_, res.Err = s.sender.CopyMessage(ctx, transport.ChatTarget{ChatID: to}, payload, opt)
	return res
}

func (s *Service) failRemaining(rep *Report, rest []int64, cause error) {
	for _, r := range rest {
		rep.Results = append(rep.Results, Result{Recipient: r, Err: cause})
	}
	rep.Failed += len(rest)
	s.log.Warn("broadcast interrupted", logx.String("job", rep.ID), logx.Int("remaining", len(rest)), logx.Err(cause))
}

func (s *Service) sendOptions(b *Button) *transport.SendOptions {
	if b == nil {
		return nil
	}
	switch b.Kind() {
	case ButtonURL:
		return &transport.SendOptions{Buttons: [][]transport.Button{{{Text: b.Label(), URL: b.URL()}}}}
	case ButtonAsset:
		if s.assetCB == "" {
			return nil
		}
		return &transport.SendOptions{Buttons: [][]transport.Button{{{Text: b.Label(), Data: s.assetCB}}}}
	}
	return nil
}

func (s *Service) publish(typ string, rep Report) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type:  typ,
		Actor: rep.Actor,
		Data: map[string]any{
			"job":    rep.ID,
			"total":  rep.Total,
			"sent":   rep.Sent,
			"failed": rep.Failed,
		},
	})
}
