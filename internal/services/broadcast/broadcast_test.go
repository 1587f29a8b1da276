package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulikaff659/zolo/internal/eventbus"
	"github.com/tulikaff659/zolo/internal/transport"
	"github.com/tulikaff659/zolo/pkg/logx"
)

type fakeSender struct {
	mu      sync.Mutex
	fail    map[int64]bool
	calls   []int64
	opts    []*transport.SendOptions
	onCall  func(n int)
	payload transport.MessageRef
}

func (f *fakeSender) CopyMessage(_ context.Context, to transport.ChatTarget, from transport.MessageRef, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.calls = append(f.calls, to.ChatID)
	f.opts = append(f.opts, opt)
	f.payload = from
	n := len(f.calls)
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if f.fail[to.ChatID] {
		return transport.MessageRef{}, errors.New("bot was blocked by the user")
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func newTestService(sender Sender, opts ...Option) *Service {
	s := New(Config{Delay: time.Millisecond}, sender, logx.Nop(), opts...)
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s
}

func TestRunCountsFailures(t *testing.T) {
	cases := []struct {
		name       string
		recipients []int64
		fail       []int64
	}{
		{"none", []int64{1, 2, 3}, nil},
		{"some", []int64{1, 2, 3, 4, 5}, []int64{2, 5}},
		{"all", []int64{7, 8}, []int64{7, 8}},
		{"empty", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeSender{fail: map[int64]bool{}}
			for _, id := range tc.fail {
				fs.fail[id] = true
			}
			s := newTestService(fs)
			rep := s.Run(context.Background(), Job{Payload: transport.MessageRef{ChatID: 99, MessageID: 10}, Recipients: tc.recipients})

			assert.Equal(t, len(tc.recipients), rep.Total)
			assert.Equal(t, rep.Total, rep.Sent+rep.Failed)
			assert.Equal(t, len(tc.fail), rep.Failed)
			assert.Equal(t, tc.recipients, fs.calls)
			assert.Len(t, rep.Results, rep.Total)
			assert.False(t, rep.Running)
		})
	}
}

func TestRunAttachesButtons(t *testing.T) {
	urlBtn, err := URLButton("Open", "https://example.com")
	require.NoError(t, err)
	assetBtn, err := AssetButton("Download")
	require.NoError(t, err)

	fs := &fakeSender{}
	s := newTestService(fs, WithAssetCallback("asset:get"))
	s.Run(context.Background(), Job{Button: &urlBtn, Recipients: []int64{1}})
	s.Run(context.Background(), Job{Button: &assetBtn, Recipients: []int64{1}})
	s.Run(context.Background(), Job{Recipients: []int64{1}})

	require.Len(t, fs.opts, 3)
	assert.Equal(t, transport.Button{Text: "Open", URL: "https://example.com"}, fs.opts[0].Buttons[0][0])
	assert.Equal(t, transport.Button{Text: "Download", Data: "asset:get"}, fs.opts[1].Buttons[0][0])
	assert.Nil(t, fs.opts[2])
}

func TestRunCanceledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fs := &fakeSender{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	s := newTestService(fs)
	rep := s.Run(ctx, Job{Recipients: []int64{1, 2, 3, 4}})

	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 4, rep.Sent+rep.Failed)
	assert.ErrorIs(t, rep.Results[3].Err, context.Canceled)
}

func TestSubmitRunsAndReports(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	fs := &fakeSender{fail: map[int64]bool{3: true}}
	s := newTestService(fs, WithBus(bus))
	_, err := s.Submit(Job{Recipients: []int64{1}}, nil)
	require.ErrorIs(t, err, ErrStopped)

	s.Start(context.Background())
	defer s.Stop(context.Background())

	done := make(chan Report, 1)
	id, err := s.Submit(Job{Actor: 5, Recipients: []int64{1, 2, 3}}, func(r Report) { done <- r })
	require.NoError(t, err)

	select {
	case rep := <-done:
		assert.Equal(t, id, rep.ID)
		assert.Equal(t, 2, rep.Sent)
		assert.Equal(t, 1, rep.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not finish")
	}

	st, ok := s.Status(id)
	require.True(t, ok)
	assert.False(t, st.Running)
	assert.Nil(t, st.Results)
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, id, last.ID)

	var types []string
	for len(types) < 2 {
		select {
		case e := <-events:
			types = append(types, e.Type)
			assert.Equal(t, int64(5), e.Actor)
		case <-time.After(time.Second):
			t.Fatal("missing broadcast events")
		}
	}
	assert.Equal(t, []string{eventbus.BroadcastStarted, eventbus.BroadcastFinished}, types)
}

func TestWorkerSurvivesReportPanic(t *testing.T) {
	fs := &fakeSender{}
	s := newTestService(fs)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_, err := s.Submit(Job{Recipients: []int64{1}}, func(Report) { panic("report lost") })
	require.NoError(t, err)

	done := make(chan Report, 1)
	_, err = s.Submit(Job{Recipients: []int64{2, 3}}, func(r Report) { done <- r })
	require.NoError(t, err)

	select {
	case rep := <-done:
		assert.Equal(t, 2, rep.Sent)
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a report panic")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, fs.calls)
}

func TestStopFailsQueuedJobs(t *testing.T) {
	release := make(chan struct{})
	fs := &fakeSender{}
	s := newTestService(fs)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	}
	s.Start(context.Background())

	reports := make(chan Report, 2)
	_, err := s.Submit(Job{Recipients: []int64{1, 2, 3}}, func(r Report) { reports <- r })
	require.NoError(t, err)
	_, err = s.Submit(Job{Recipients: []int64{4, 5}}, func(r Report) { reports <- r })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return len(fs.calls) == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	close(release)

	first, second := <-reports, <-reports
	assert.Equal(t, 1, first.Sent)
	assert.Equal(t, 2, first.Failed)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 2, second.Failed)
}

func TestValidateURL(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"https://x", true},
		{"http://example.com/path?q=1", true},
		{"HTTPS://Example.com", true},
		{"ftp://x", false},
		{"example.com", false},
		{"https://", false},
		{"", false},
	}
	for _, tc := range cases {
		err := ValidateURL(tc.in)
		if tc.ok {
			assert.NoError(t, err, tc.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidURL, tc.in)
		}
	}
}

func TestButtonConstructors(t *testing.T) {
	_, err := URLButton("", "https://x")
	assert.ErrorIs(t, err, ErrInvalidButton)
	_, err = URLButton("Go", "ftp://x")
	assert.ErrorIs(t, err, ErrInvalidURL)
	_, err = AssetButton("  ")
	assert.ErrorIs(t, err, ErrInvalidButton)

	b, err := URLButton(" Go ", " https://x ")
	require.NoError(t, err)
	assert.Equal(t, ButtonURL, b.Kind())
	assert.Equal(t, "Go", b.Label())
	assert.Equal(t, "https://x", b.URL())
}

func TestHistoryPruning(t *testing.T) {
	s := New(Config{HistorySize: 2}, &fakeSender{}, logx.Nop())
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	for i := 0; i < 4; i++ {
		s.Run(context.Background(), Job{Recipients: []int64{1}})
	}
	// The newest report is added before pruning, so at most size+1 survive.
	assert.LessOrEqual(t, len(s.Recent(-1)), 3)
	assert.Len(t, s.Recent(1), 1)
}
