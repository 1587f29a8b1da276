package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulikaff659/zolo/internal/assets"
	"github.com/tulikaff659/zolo/internal/eventbus"
	"github.com/tulikaff659/zolo/internal/services/broadcast"
	"github.com/tulikaff659/zolo/internal/state"
	"github.com/tulikaff659/zolo/internal/storage"
	"github.com/tulikaff659/zolo/internal/transport"
	"github.com/tulikaff659/zolo/pkg/tgui"
)

const admin int64 = 1000

func esc(s string) string { return tgui.Esc(s).String() }

type fakeFetcher struct {
	mu       sync.Mutex
	files    map[string]string
	failures int
	calls    int
}

func (f *fakeFetcher) FetchDocument(_ context.Context, fileID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("telegram: bad gateway")
	}
	body, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type fakeBroadcaster struct {
	jobs     []broadcast.Job
	err      error
	sessions *state.SessionStore[State]
	openAt   []bool
}

func (f *fakeBroadcaster) Submit(job broadcast.Job, _ func(broadcast.Report)) (string, error) {
	_, open := f.sessions.Get(admin)
	f.openAt = append(f.openAt, open)
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, job)
	return "job-1", nil
}

type harness struct {
	m        *Machine
	settings *state.SettingsStore
	registry *state.Registry
	lib      *assets.Library
	fetcher  *fakeFetcher
	bc       *fakeBroadcaster
	bus      eventbus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	blobs, err := storage.NewBlobStore(t.TempDir(), ".apk")
	require.NoError(t, err)

	h := &harness{
		settings: state.NewSettingsStore(),
		registry: state.NewRegistry(),
		lib:      assets.NewLibrary(blobs),
		fetcher:  &fakeFetcher{files: map[string]string{}},
		bus:      eventbus.New(),
	}
	sessions := state.NewSessionStore[State]()
	h.bc = &fakeBroadcaster{sessions: sessions}
	h.m = New(Config{MaxUploadBytes: 64, FetchAttempts: 3, FetchDelay: time.Millisecond}, Deps{
		Admin:     admin,
		Sessions:  sessions,
		Settings:  h.settings,
		Registry:  h.registry,
		Library:   h.lib,
		Fetcher:   h.fetcher,
		Broadcast: h.bc,
		Bus:       h.bus,
	})
	return h
}

func text(s string) Input { return Input{Kind: InputText, Text: s, Message: transport.MessageRef{ChatID: admin, MessageID: 1}} }

func doc(fileID, name string, size int64, caption string) Input {
	return Input{
		Kind:     InputDocument,
		Text:     caption,
		Document: &transport.Document{FileID: fileID, FileName: name, Size: size},
		Message:  transport.MessageRef{ChatID: admin, MessageID: 2},
	}
}

func (h *harness) handle(t *testing.T, in Input) Reply {
	t.Helper()
	r, err := h.m.Handle(context.Background(), admin, in)
	require.NoError(t, err)
	return r
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	st, ok := h.m.Active(admin)
	require.True(t, ok, "expected an open dialog")
	return st
}

func (h *harness) idle(t *testing.T) {
	t.Helper()
	_, ok := h.m.Active(admin)
	require.False(t, ok, "expected no open dialog")
}

func TestLinkSetupRejectsBadURL(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.StartLink(admin)
	require.NoError(t, err)

	h.handle(t, text("Our site"))
	assert.Equal(t, AwaitingLinkURL{Label: "Our site"}, h.state(t))

	r := h.handle(t, text("ftp://x"))
	assert.Contains(t, r.Text.String(), "Noto&#39;g&#39;ri havola")
	assert.Equal(t, AwaitingLinkURL{Label: "Our site"}, h.state(t))
	assert.False(t, h.settings.Snapshot().HasLink())

	h.handle(t, text("https://x"))
	h.idle(t)
	got := h.settings.Snapshot()
	assert.Equal(t, "Our site", got.LinkLabel)
	assert.Equal(t, "https://x", got.LinkURL)
}

func TestLinkSetupNeedsText(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.StartLink(admin)
	require.NoError(t, err)
	h.handle(t, Input{Kind: InputMedia})
	assert.Equal(t, AwaitingLinkLabel{}, h.state(t))
	h.handle(t, text("   "))
	assert.Equal(t, AwaitingLinkLabel{}, h.state(t))
}

func TestCancelInEveryState(t *testing.T) {
	slot, _ := assets.Lookup("betwinner")
	cases := []struct {
		name  string
		start func(m *Machine) (Reply, error)
		steps []Input
	}{
		{"upload", func(m *Machine) (Reply, error) { return m.StartUpload(admin, slot) }, nil},
		{"setapk", func(m *Machine) (Reply, error) { return m.StartSetAsset(admin) }, nil},
		{"link-label", func(m *Machine) (Reply, error) { return m.StartLink(admin) }, nil},
		{"link-url", func(m *Machine) (Reply, error) { return m.StartLink(admin) }, []Input{text("L")}},
		{"bc-payload", func(m *Machine) (Reply, error) { return m.StartBroadcast(admin) }, nil},
		{"bc-choice", func(m *Machine) (Reply, error) { return m.StartBroadcast(admin) }, []Input{text("Hello")}},
		{"bc-label", func(m *Machine) (Reply, error) { return m.StartBroadcast(admin) }, []Input{text("Hello"), ChoiceInput(ChoiceAttach)}},
		{"bc-url", func(m *Machine) (Reply, error) { return m.StartBroadcast(admin) }, []Input{text("Hello"), ChoiceInput(ChoiceAttach), text("Open")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := tc.start(h.m)
			require.NoError(t, err)
			for _, in := range tc.steps {
				h.handle(t, in)
			}
			h.state(t)

			r, err := h.m.Cancel(admin)
			require.NoError(t, err)
			assert.Equal(t, esc(textCancelled), r.Text.String())
			h.idle(t)
			assert.Empty(t, h.bc.jobs)
			assert.Equal(t, state.DefaultSettings(), h.settings.Snapshot())

			// A fresh entry starts with empty scratch and no discard note.
			_, err = tc.start(h.m)
			require.NoError(t, err)
			switch st := h.state(t).(type) {
			case AwaitingFile, AwaitingLinkLabel, AwaitingPayload:
			default:
				t.Fatalf("unexpected initial state %T", st)
			}
		})
	}
}

func TestCancelWithoutSession(t *testing.T) {
	h := newHarness(t)
	r, err := h.m.Cancel(admin)
	require.NoError(t, err)
	assert.Equal(t, esc(textNothingActive), r.Text.String())
}

func TestUnauthorizedActorTouchesNothing(t *testing.T) {
	h := newHarness(t)
	slot, _ := assets.Lookup("betwinner")
	const stranger int64 = 55

	_, err := h.m.StartUpload(stranger, slot)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.m.StartBroadcast(stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.m.Cancel(stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.m.Handle(context.Background(), stranger, doc("f1", "x.apk", 3, ""))
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, 0, h.m.Sessions().Len())
	ok, err := h.lib.Has(context.Background(), slot)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandleWithoutSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Handle(context.Background(), admin, text("hi"))
	assert.ErrorIs(t, err, ErrNoSession)

	r, err := h.m.Handle(context.Background(), admin, ChoiceInput(ChoiceNone))
	require.NoError(t, err)
	assert.Equal(t, esc(textStaleChoice), r.Text.String())
}

func TestEntryReplacesOpenDialog(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.StartLink(admin)
	require.NoError(t, err)
	h.handle(t, text("Label"))

	r, err := h.m.StartBroadcast(admin)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.Text.String(), esc(textDiscarded)))
	assert.Equal(t, AwaitingPayload{}, h.state(t))
}

func TestSlotUploadLastWriteWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	slot, _ := assets.Lookup("1xbet")
	h.fetcher.files["f1"] = "first"
	h.fetcher.files["f2"] = "second!"

	for _, id := range []string{"f1", "f2"} {
		_, err := h.m.StartUpload(admin, slot)
		require.NoError(t, err)
		r := h.handle(t, doc(id, "app.APK", 6, ""))
		assert.Contains(t, r.Text.String(), "muvaffaqiyatli yuklandi")
		h.idle(t)
	}

	ok, err := h.lib.Has(ctx, slot)
	require.NoError(t, err)
	assert.True(t, ok)
	rc, err := h.lib.Open(ctx, slot)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second!", string(body))
}

func TestSlotUploadValidation(t *testing.T) {
	h := newHarness(t)
	slot, _ := assets.Lookup("winwin")
	_, err := h.m.StartUpload(admin, slot)
	require.NoError(t, err)
	want := AwaitingFile{Slot: &slot}

	r := h.handle(t, text("here it is"))
	assert.Equal(t, esc(textNotDocument), r.Text.String())
	assert.Equal(t, want, h.state(t))

	r = h.handle(t, doc("f1", "readme.txt", 10, ""))
	assert.Equal(t, esc(textNotAPK), r.Text.String())
	assert.Equal(t, want, h.state(t))

	r = h.handle(t, doc("f1", "big.apk", 1000, ""))
	assert.Contains(t, r.Text.String(), "juda katta")
	assert.Equal(t, want, h.state(t))

	// Declared size lies; the stream is still capped.
	h.fetcher.files["f2"] = strings.Repeat("x", 100)
	r = h.handle(t, doc("f2", "liar.apk", 10, ""))
	assert.Contains(t, r.Text.String(), "juda katta")
	assert.Equal(t, want, h.state(t))
	ok, err := h.lib.Has(context.Background(), slot)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlotUploadRetriesFetch(t *testing.T) {
	h := newHarness(t)
	slot, _ := assets.Lookup("dbbet")
	h.fetcher.files["f1"] = "apk"
	h.fetcher.failures = 2

	_, err := h.m.StartUpload(admin, slot)
	require.NoError(t, err)
	h.handle(t, doc("f1", "dbbet.apk", 3, ""))
	h.idle(t)
	assert.Equal(t, 3, h.fetcher.calls)
}

func TestSlotUploadFaultKeepsSession(t *testing.T) {
	h := newHarness(t)
	slot, _ := assets.Lookup("megapari")
	_, err := h.m.StartUpload(admin, slot)
	require.NoError(t, err)

	r := h.handle(t, doc("missing", "m.apk", 3, ""))
	assert.Equal(t, esc(textFault), r.Text.String())
	assert.Equal(t, AwaitingFile{Slot: &slot}, h.state(t))
}

func TestSetAssetStoresRefAndLabel(t *testing.T) {
	cases := []struct {
		caption, label string
	}{
		{"Yangi versiya", "Yangi versiya"},
		{"", state.DefaultAssetLabel},
	}
	for _, tc := range cases {
		h := newHarness(t)
		events, unsub := h.bus.Subscribe(4)
		_, err := h.m.StartSetAsset(admin)
		require.NoError(t, err)

		h.handle(t, Input{Kind: InputMedia})
		assert.Equal(t, AwaitingFile{}, h.state(t))

		h.handle(t, doc("file-xyz", "any.bin", 10, tc.caption))
		h.idle(t)
		got := h.settings.Snapshot()
		assert.Equal(t, "file-xyz", got.AssetRef)
		assert.Equal(t, tc.label, got.AssetLabel)
		e := <-events
		assert.Equal(t, eventbus.SettingsChanged, e.Type)
		unsub()
	}
}

func TestBroadcastWithoutButton(t *testing.T) {
	h := newHarness(t)
	for _, id := range []int64{1, 2, 3} {
		h.registry.Add(id)
	}
	_, err := h.m.StartBroadcast(admin)
	require.NoError(t, err)

	r := h.handle(t, text("Hello"))
	require.Len(t, r.Buttons, 1)
	assert.Equal(t, ChoiceNoneData, r.Buttons[0][1].Data)
	assert.Equal(t, AwaitingButtonChoice{Payload: transport.MessageRef{ChatID: admin, MessageID: 1}}, h.state(t))

	// Text while a choice is pending repeats the question.
	h.handle(t, text("again"))
	assert.IsType(t, AwaitingButtonChoice{}, h.state(t))

	r = h.handle(t, ChoiceInput(ChoiceNone))
	assert.Contains(t, r.Text.String(), "3 ta foydalanuvchiga")
	h.idle(t)

	require.Len(t, h.bc.jobs, 1)
	job := h.bc.jobs[0]
	assert.Nil(t, job.Button)
	assert.Equal(t, []int64{1, 2, 3}, job.Recipients)
	assert.Equal(t, admin, job.Actor)
	assert.Equal(t, []bool{false}, h.bc.openAt, "session must be closed before submit")
}

func TestBroadcastButtonURL(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.StartBroadcast(admin)
	require.NoError(t, err)
	h.handle(t, text("Hello"))
	h.handle(t, ChoiceInput(ChoiceAttach))
	h.handle(t, text("Open"))

	payload := transport.MessageRef{ChatID: admin, MessageID: 1}
	h.handle(t, text("ftp://x"))
	assert.Equal(t, AwaitingButtonURL{Payload: payload, Label: "Open"}, h.state(t))

	r := h.handle(t, text("skip"))
	assert.Equal(t, esc(textSkipNoAsset), r.Text.String())
	assert.Equal(t, AwaitingButtonURL{Payload: payload, Label: "Open"}, h.state(t))

	h.handle(t, text("https://x"))
	h.idle(t)
	require.Len(t, h.bc.jobs, 1)
	require.NotNil(t, h.bc.jobs[0].Button)
	assert.Equal(t, broadcast.ButtonURL, h.bc.jobs[0].Button.Kind())
	assert.Equal(t, "https://x", h.bc.jobs[0].Button.URL())
}

func TestBroadcastSkipUsesCachedAsset(t *testing.T) {
	for _, sentinel := range []string{"SKIP", "-"} {
		h := newHarness(t)
		require.NoError(t, h.settings.Set(state.KeyAssetRef, "file-abc"))
		_, err := h.m.StartBroadcast(admin)
		require.NoError(t, err)
		h.handle(t, text("Hello"))
		h.handle(t, ChoiceInput(ChoiceAttach))
		r := h.handle(t, text("Yuklab olish"))
		assert.Contains(t, r.Text.String(), "skip")

		h.handle(t, text(sentinel))
		h.idle(t)
		require.Len(t, h.bc.jobs, 1)
		assert.Equal(t, broadcast.ButtonAsset, h.bc.jobs[0].Button.Kind())
		assert.Equal(t, "Yuklab olish", h.bc.jobs[0].Button.Label())
	}
}

func TestBroadcastSkipNeedsEnabledAsset(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Set(state.KeyAssetRef, "file-abc"))
	require.NoError(t, h.settings.Set(state.KeyAssetEnabled, "false"))
	_, err := h.m.StartBroadcast(admin)
	require.NoError(t, err)
	h.handle(t, text("Hello"))
	h.handle(t, ChoiceInput(ChoiceAttach))
	r := h.handle(t, text("Yuklab olish"))
	assert.Equal(t, esc(textButtonURL), r.Text.String())

	r = h.handle(t, text("skip"))
	assert.Equal(t, esc(textSkipNoAsset), r.Text.String())
	assert.Equal(t, AwaitingButtonURL{Payload: transport.MessageRef{ChatID: admin, MessageID: 1}, Label: "Yuklab olish"}, h.state(t))
	assert.Empty(t, h.bc.jobs)
}

func TestBroadcastSubmitFailure(t *testing.T) {
	h := newHarness(t)
	h.bc.err = broadcast.ErrQueueFull
	_, err := h.m.StartBroadcast(admin)
	require.NoError(t, err)
	h.handle(t, text("Hello"))
	r := h.handle(t, ChoiceInput(ChoiceNone))
	assert.Equal(t, esc(textQueueBusy), r.Text.String())
	h.idle(t)
}

func TestStaleChoiceOutsideBroadcast(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.StartLink(admin)
	require.NoError(t, err)
	r := h.handle(t, ChoiceInput(ChoiceAttach))
	assert.Equal(t, esc(textStaleChoice), r.Text.String())
	assert.Equal(t, AwaitingLinkLabel{}, h.state(t))
}

func TestFromMessage(t *testing.T) {
	cases := []struct {
		msg  transport.Message
		kind InputKind
	}{
		{transport.Message{Text: "hi"}, InputText},
		{transport.Message{Document: &transport.Document{FileID: "f"}}, InputDocument},
		{transport.Message{HasMedia: true, Text: "caption"}, InputMedia},
	}
	for _, tc := range cases {
		in := FromMessage(&tc.msg)
		assert.Equal(t, tc.kind, in.Kind)
	}
}
