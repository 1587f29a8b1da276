package ops

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tulikaff659/zolo/internal/runtime/supervisor"
	"github.com/tulikaff659/zolo/internal/services/scheduler"
	"github.com/tulikaff659/zolo/pkg/logx"
)

// Stats is the /stats payload.
type Stats struct {
	Uptime        string                         `json:"uptime,omitempty"`
	Users         int                            `json:"users"`
	Sessions      int                            `json:"sessions"`
	AssetEnabled  bool                           `json:"asset_enabled"`
	LastBroadcast *BroadcastSummary              `json:"last_broadcast,omitempty"`
	BusDropped    uint64                         `json:"bus_dropped"`
	Supervisors   map[string]supervisor.Snapshot `json:"supervisors,omitempty"`
	Scheduler     *scheduler.Snapshot            `json:"scheduler,omitempty"`
}

type BroadcastSummary struct {
	ID         string    `json:"id"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.status),
			logx.Int("bytes", ww.bytes),
			logx.Duration("dur", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}
