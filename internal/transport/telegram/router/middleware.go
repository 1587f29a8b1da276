package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/tulikaff659/zolo/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

const slowRequest = 750 * time.Millisecond

func reqLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

// MWFaultReply tells the sender that their request failed. Callbacks get the
// text as their answer toast, messages get a plain reply. Requests cut short
// by shutdown stay quiet.
func MWFaultReply(text string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if err == nil || text == "" || errors.Is(err, context.Canceled) {
				return err
			}
			if req.Callback != nil {
				req.Toast(text)
				return err
			}
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if _, serr := req.Adapter.SendText(sctx, req.Chat, text, nil); serr != nil {
				req.Logger.Debug("fault reply failed", logx.Err(serr))
			}
			return err
		}
	}
}

// MWPanicRecover turns a handler panic into an error carrying the panic value.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				cmd := ""
				if req != nil {
					cmd = req.Command
				}
				reqLogger(log, req).Error("handler panic",
					logx.String("cmd", cmd),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic in %q: %v", cmd, r)
			}()
			return next(ctx, req)
		}
	}
}

// MWTimeout bounds the handler. d <= 0 leaves ctx as is.
func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(tctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			l := reqLogger(log, req).With(
				logx.String("kind", string(req.Update.Kind)),
				logx.Duration("dur", took),
			)
			switch {
			case err != nil:
				l.Warn("request failed", logx.Err(err))
			case took >= slowRequest:
				l.Info("slow request")
			default:
				l.Debug("request ok")
			}
			return err
		}
	}
}
