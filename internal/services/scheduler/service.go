package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tulikaff659/zolo/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	loc    *time.Location
	parser cron.Parser

	c    *cron.Cron
	ctx  context.Context
	defs []*scheduleDef
	wg   sync.WaitGroup
}

func New(loc *time.Location, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log.With(logx.String("comp", "scheduler")),
		loc:    loc,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers job under name. The spec is validated immediately; an empty
// spec registers the job paused, so it only runs through Trigger.
func (s *Service) Add(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	spec = strings.TrimSpace(spec)
	if name == "" || job == nil {
		return fmt.Errorf("scheduler: job needs a name and a func")
	}
	if err := s.validate(name, spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(name) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	d := &scheduleDef{name: name, spec: spec, timeout: timeout, job: job, state: &runState{}}
	s.defs = append(s.defs, d)
	if s.c != nil {
		return s.addCronLocked(d)
	}
	return nil
}

// Reschedule swaps the spec of a registered job. An empty spec pauses it.
func (s *Service) Reschedule(name, spec string) error {
	spec = strings.TrimSpace(spec)
	if err := s.validate(name, spec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findLocked(name)
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	if d.spec == spec {
		return nil
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
		d.entryID = 0
	}
	d.spec = spec
	s.log.Info("job rescheduled", logx.String("job", name), logx.String("spec", spec))
	if s.c != nil {
		return s.addCronLocked(d)
	}
	return nil
}

func (s *Service) validate(name, spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	return nil
}

func (s *Service) findLocked(name string) *scheduleDef {
	for _, d := range s.defs {
		if d.name == name {
			return d
		}
	}
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Warn("schedule rejected", logx.String("job", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.defs)), logx.String("tz", s.loc.String()))
}

// Stop halts the cron runner and waits for in-flight runs or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
	}
}

// Trigger runs the named job once, synchronously, honoring the overlap rule.
func (s *Service) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	def := s.findLocked(name)
	s.mu.Unlock()
	if def == nil {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return s.execOne(ctx, def)
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	if d.spec == "" {
		return nil
	}
	id, err := s.c.AddFunc(d.spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		_ = s.execOne(ctx, d)
	})
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) execOne(ctx context.Context, d *scheduleDef) (err error) {
	st := d.state
	st.mu.Lock()
	if st.running {
		st.skipped++
		st.mu.Unlock()
		s.log.Debug("previous run still active; skipping", logx.String("job", d.name))
		return nil
	}
	st.running = true
	st.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		dur := time.Since(start)

		st.mu.Lock()
		st.running = false
		st.runs++
		st.lastRun = start
		st.lastDur = dur
		st.lastErr = ""
		if err != nil {
			st.failures++
			st.lastErr = err.Error()
		}
		st.mu.Unlock()

		if err != nil {
			s.log.Warn("job failed", logx.String("job", d.name), logx.Duration("dur", dur), logx.Err(err))
			return
		}
		s.log.Debug("job ok", logx.String("job", d.name), logx.Duration("dur", dur))
	}()

	return d.job(runCtx)
}
