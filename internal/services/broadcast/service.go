package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tulikaff659/zolo/internal/eventbus"
	"github.com/tulikaff659/zolo/internal/transport"
	"github.com/tulikaff659/zolo/pkg/logx"
)

// Sender is the delivery side of the messaging gateway.
type Sender interface {
	CopyMessage(ctx context.Context, to transport.ChatTarget, from transport.MessageRef, opt *transport.SendOptions) (transport.MessageRef, error)
}

type job struct {
	id     string
	spec   Job
	onDone func(Report)
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	sender  Sender
	log     logx.Logger
	bus     eventbus.Bus
	assetCB string

	queue     chan job
	running   bool
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	statusMu sync.RWMutex
	status   map[string]*Report

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Service)

// WithAssetCallback sets the callback data carried by asset-download buttons.
func WithAssetCallback(data string) Option {
	return func(s *Service) { s.assetCB = data }
}

func WithBus(b eventbus.Bus) Option {
	return func(s *Service) { s.bus = b }
}

func New(cfg Config, sender Sender, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    normalize(cfg),
		sender: sender,
		log:    log.With(logx.String("comp", "broadcast")),
		status: map[string]*Report{},
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	return s
}

func normalize(cfg Config) Config {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	return cfg
}

// Apply swaps the delay and history limits. The queue size is fixed at New.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	cfg.QueueSize = s.cfg.QueueSize
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.runCancel = cancel

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		s.worker(runCtx)
	}()
	s.log.Info("service started", logx.Duration("delay", s.cfg.Delay), logx.Int("queue", cap(s.queue)))
}

// Stop cancels the running job and waits for the worker, bounded by ctx.
// Queued jobs that never started are reported with every recipient failed.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("service stop timed out", logx.Err(ctx.Err()))
	}
}

// Submit queues a job and returns its id. onDone, if set, is called from the
// worker goroutine with the final report.
func (s *Service) Submit(spec Job, onDone func(Report)) (string, error) {
	spec.Recipients = append([]int64(nil), spec.Recipients...)
	id := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return "", ErrStopped
	}
	s.putStatus(&Report{ID: id, Actor: spec.Actor, Total: len(spec.Recipients), QueuedAt: now}, s.cfg)
	select {
	case s.queue <- job{id: id, spec: spec, onDone: onDone}:
		s.log.Debug("broadcast job enqueued", logx.String("job", id), logx.Int("total", len(spec.Recipients)), logx.Int("queue_len", len(s.queue)))
		return id, nil
	default:
		s.dropStatus(id)
		s.log.Warn("broadcast queue full; rejecting job", logx.String("job", id), logx.Int("queue_cap", cap(s.queue)))
		return "", ErrQueueFull
	}
}

// Run executes spec synchronously on the caller goroutine.
func (s *Service) Run(ctx context.Context, spec Job) Report {
	spec.Recipients = append([]int64(nil), spec.Recipients...)
	id := uuid.NewString()
	s.putStatus(&Report{ID: id, Actor: spec.Actor, Total: len(spec.Recipients), QueuedAt: time.Now()}, s.config())
	return s.execJob(ctx, job{id: id, spec: spec})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
