package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tulikaff659/zolo/internal/runtime/supervisor"
	kit "github.com/tulikaff659/zolo/internal/transport"
	"github.com/tulikaff659/zolo/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string   // without the leading slash
	Aliases     []string // e.g. ["h"] for "help"
	Description string
	Usage       string
	Access      Access
	// Hidden commands are routed but left out of the Telegram menu.
	Hidden  bool
	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess controls who can trigger an inline-button callback.
//
// Default is admin-only. Set CallbackAccessEveryone explicitly for public
// buttons such as downloads.
type CallbackAccess int

const (
	CallbackAccessAdminOnly CallbackAccess = iota
	CallbackAccessEveryone
)

// CallbackRoute matches callback data of the form "scope:action[:payload]".
type CallbackRoute struct {
	Scope   string
	Action  string
	Access  CallbackAccess
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	Command  string // command name or "scope:action" for callbacks
	Args     []string
	Payload  string // callback payload (raw string)
	Message  *kit.Message
	Callback *kit.Callback
	IsAdmin  bool
	ReqID    string

	Adapter kit.Adapter
	Logger  logx.Logger

	toastMu sync.Mutex
	toast   string
}

// Toast sets the text shown when the callback is answered. Only the last
// call wins; message requests ignore it.
func (r *Request) Toast(text string) {
	r.toastMu.Lock()
	r.toast = text
	r.toastMu.Unlock()
}

func (r *Request) toastText() string {
	r.toastMu.Lock()
	defer r.toastMu.Unlock()
	return r.toast
}

// Reply sends HTML text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, html string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if opt.ParseMode == "" {
		opt.ParseMode = "HTML"
	}
	opt.DisablePreview = true
	_, err := r.Adapter.SendText(ctx, r.Chat, html, opt)
	return err
}

type Options struct {
	// Workers defaults to max(2, NumCPU). Updates of one chat always land on
	// the same worker, so they are handled in arrival order.
	Workers   int
	QueueSize int // per worker, default 64

	MessageTimeout  time.Duration // timeout for Fallback
	CallbackTimeout time.Duration // default for callbacks without their own

	DeniedText  string
	BusyText    string
	UnknownText string
	// FaultText is shown when a handler fails or panics. Empty keeps faults
	// silent.
	FaultText string

	// OnInteraction runs on the dispatch goroutine for every private-chat
	// update before routing. It must not block.
	OnInteraction func(userID int64)

	// Fallback receives messages that are not commands.
	Fallback HandlerFunc

	Supervisors *supervisor.Registry
}

func (o *Options) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
		if o.Workers < 2 {
			o.Workers = 2
		}
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.CallbackTimeout <= 0 {
		o.CallbackTimeout = 30 * time.Second
	}
	if o.BusyText == "" {
		o.BusyText = "⏳ Bot band, birozdan so'ng qayta urinib ko'ring."
	}
	if o.DeniedText == "" {
		o.DeniedText = "⛔ Ruxsat yo'q"
	}
}

type CommandManager struct {
	mu       sync.RWMutex
	commands []Command
	byName   map[string]*Command

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // scope -> action -> route

	admin int64

	log     logx.Logger
	adapter kit.Adapter
	opts    Options

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs []chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, admin int64, opts Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	opts.withDefaults()
	jobs := make([]chan func(), opts.Workers)
	for i := range jobs {
		jobs[i] = make(chan func(), opts.QueueSize)
	}
	return &CommandManager{
		byName:    map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		admin:     admin,
		log:       log,
		adapter:   adapter,
		opts:      opts,
		jobs:      jobs,
	}
}

// Supervisor returns the command manager's internal supervisor (nil if not running).
func (m *CommandManager) Supervisor() *supervisor.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *supervisor.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// SetAdmin updates the id used for admin-only checks. Safe during hot-reload.
func (m *CommandManager) SetAdmin(id int64) {
	m.mu.Lock()
	m.admin = id
	m.mu.Unlock()
}

func (m *CommandManager) isAdmin(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return id != 0 && id == m.admin
}

// Commands returns the registered commands in registration order.
func (m *CommandManager) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Command(nil), m.commands...)
}

func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	list := make([]Command, 0, len(cmds))
	byName := map[string]*Command{}
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		list = append(list, c)
	}
	for i := range list {
		c := &list[i]
		byName[c.Name] = c
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = c
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		s := strings.TrimSpace(r.Scope)
		a := strings.TrimSpace(r.Action)
		if s == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[s] == nil {
			cb[s] = map[string]CallbackRoute{}
		}
		cb[s][a] = r
	}

	m.mu.Lock()
	m.commands = list
	m.byName = byName
	m.mu.Unlock()

	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()
}

// UpdateMenu pushes the command menu to the adapter when it supports it.
func (m *CommandManager) UpdateMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, buildTelegramMenuCommands(m.Commands()))
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := len(m.jobs)

	// Internal supervisor keeps the worker pool resilient and observable.
	sup := supervisor.New(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.opts.Supervisors.Set("telegram.router", sup)

	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", m.opts.QueueSize))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			for _, ch := range m.jobs {
				close(ch)
			}
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		jobs := m.jobs[i]
		name := "command.worker." + strconv.Itoa(idx)
		sup.GoRestart(name, func(c context.Context) error {
			m.log.Debug("command worker started", logx.Int("worker", idx))
			defer m.log.Debug("command worker stopped", logx.Int("worker", idx))
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.opts.Supervisors.Delete("telegram.router")
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(chatID int64, fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	shard := chatID % int64(len(m.jobs))
	if shard < 0 {
		shard = -shard
	}
	select {
	case m.jobs[shard] <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		if up.Message.IsPrivate && m.opts.OnInteraction != nil {
			m.opts.OnInteraction(up.Message.FromID)
		}
		m.routeMessage(root, up)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		// Callbacks come from the bot's own private keyboards when ChatID
		// equals the sender.
		if up.Callback.ChatID == up.Callback.FromID && m.opts.OnInteraction != nil {
			m.opts.OnInteraction(up.Callback.FromID)
		}
		m.routeCallback(root, up)
	}
}

func (m *CommandManager) newRequest(up kit.Update, chat kit.ChatTarget, from int64, name string) *Request {
	rid := newReqID()
	return &Request{
		Update:   up,
		Chat:     chat,
		FromID:   from,
		Command:  name,
		Message:  up.Message,
		Callback: up.Callback,
		IsAdmin:  m.isAdmin(from),
		ReqID:    rid,
		Adapter:  m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
		),
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID}
	text := strings.TrimSpace(msg.Text)

	var parts []string
	word, isCmd := "", false
	if strings.HasPrefix(text, "/") && msg.Document == nil && !msg.HasMedia {
		parts = tokenizeCommandLine(text)
		if len(parts) > 0 {
			word, isCmd = commandWord(parts[0])
		}
	}

	if !isCmd {
		if m.opts.Fallback == nil {
			return
		}
		req := m.newRequest(up, chat, msg.FromID, "")
		m.enqueue(root, req, m.opts.Fallback, m.opts.MessageTimeout)
		return
	}

	m.mu.RLock()
	cmd, ok := m.byName[word]
	m.mu.RUnlock()
	if !ok || cmd == nil {
		m.log.Debug("unknown command", logx.String("cmd", word), logx.Int64("from_id", msg.FromID))
		if m.opts.UnknownText != "" && msg.IsPrivate {
			_, _ = m.adapter.SendText(root, chat, m.opts.UnknownText, nil)
		}
		return
	}

	c := *cmd
	if c.Access == AccessAdminOnly && !m.isAdmin(msg.FromID) {
		m.log.Info("admin command denied", logx.String("cmd", c.Name), logx.Int64("from_id", msg.FromID))
		_, _ = m.adapter.SendText(root, chat, m.opts.DeniedText, nil)
		return
	}

	req := m.newRequest(up, chat, msg.FromID, c.Name)
	req.Args = parts[1:]
	req.Logger = req.Logger.With(logx.String("cmd", c.Name))
	m.enqueue(root, req, c.Handle, c.Timeout)
}

func (m *CommandManager) enqueue(root context.Context, req *Request, h HandlerFunc, timeout time.Duration) {
	final := Chain(
		h,
		MWFaultReply(m.opts.FaultText),
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	run := func() {
		_ = final(root, req)
		if req.Callback != nil {
			m.answer(root, req)
		}
	}
	if !m.tryEnqueue(req.Chat.ChatID, run) {
		req.Logger.Warn("job queue full, update dropped")
		if req.Callback != nil {
			_ = m.adapter.AnswerCallback(root, req.Callback.ID, m.opts.BusyText)
			return
		}
		_, _ = m.adapter.SendText(root, req.Chat, m.opts.BusyText, nil)
	}
}

func (m *CommandManager) routeCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	data := strings.TrimSpace(cb.Data)
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}
	scope, action := parts[0], parts[1]
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	m.cbMu.RLock()
	route, ok := m.callbacks[scope][action]
	m.cbMu.RUnlock()
	if !ok {
		m.log.Debug("unknown callback", logx.String("data", data))
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}

	if route.Access == CallbackAccessAdminOnly && !m.isAdmin(cb.FromID) {
		_ = m.adapter.AnswerCallback(root, cb.ID, m.opts.DeniedText)
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID}, cb.FromID, scope+":"+action)
	req.Payload = payload
	req.Logger = req.Logger.With(logx.String("cmd", req.Command))

	timeout := route.Timeout
	if timeout <= 0 {
		timeout = m.opts.CallbackTimeout
	}
	h := func(ctx context.Context, r *Request) error {
		return route.Handle(ctx, r, payload)
	}
	m.enqueue(root, req, h, timeout)
}

// answer acknowledges a callback once its handler chain is done, so the
// toast includes any fault text.
func (m *CommandManager) answer(root context.Context, req *Request) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(root), 5*time.Second)
	defer cancel()
	if err := m.adapter.AnswerCallback(actx, req.Callback.ID, req.toastText()); err != nil {
		req.Logger.Debug("answer callback failed", logx.Err(err))
	}
}
