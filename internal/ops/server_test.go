package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulikaff659/zolo/pkg/logx"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	ready := errors.New("adapter not running")
	s := New(Config{}, Deps{Ready: func() error { return ready }}, logx.Nop())
	h := s.Handler()

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "adapter not running")

	ready = nil
	rec = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true}`, rec.Body.String())
}

func TestStats(t *testing.T) {
	s := New(Config{}, Deps{Stats: func(context.Context) Stats {
		return Stats{Users: 3, Sessions: 1, LastBroadcast: &BroadcastSummary{ID: "b1", Total: 3, Sent: 2, Failed: 1}}
	}}, logx.Nop())

	rec := get(t, s.Handler(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Users)
	assert.Equal(t, 1, st.Sessions)
	require.NotNil(t, st.LastBroadcast)
	assert.Equal(t, 1, st.LastBroadcast.Failed)

	rec = get(t, New(Config{}, Deps{}, logx.Nop()).Handler(), "/stats")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	off := New(Config{}, Deps{}, logx.Nop()).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, off, "/debug/pprof/").Code)

	on := New(Config{Pprof: true}, Deps{}, logx.Nop()).Handler()
	assert.Equal(t, http.StatusOK, get(t, on, "/debug/pprof/").Code)
}

func TestStartStop(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{Ready: func() error { return nil }}, logx.Nop())
	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, <-done)
	require.NoError(t, s.Stop(context.Background()))
}
