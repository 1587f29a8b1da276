package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulikaff659/zolo/pkg/logx"
)

func TestBlobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	b, err := NewBlobStore(t.TempDir(), ".apk")
	require.NoError(t, err)

	ok, err := b.Exists(ctx, "betwinner")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := b.Write(ctx, "betwinner", strings.NewReader("v1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = b.Write(ctx, "betwinner", strings.NewReader("version-2"))
	require.NoError(t, err)

	ok, err = b.Exists(ctx, "betwinner")
	require.NoError(t, err)
	assert.True(t, ok)
	size, err := b.Size(ctx, "betwinner")
	require.NoError(t, err)
	assert.Equal(t, int64(9), size)

	rc, err := b.Read(ctx, "betwinner")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "version-2", string(body))
	assert.FileExists(t, filepath.Join(b.Dir(), "betwinner.apk"))

	require.NoError(t, b.Delete(ctx, "betwinner"))
	assert.True(t, errors.Is(b.Delete(ctx, "betwinner"), ErrNotFound))
	_, err = b.Read(ctx, "betwinner")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBlobStoreRejectsBadKeys(t *testing.T) {
	b, err := NewBlobStore(t.TempDir(), ".apk")
	require.NoError(t, err)
	for _, key := range []string{"", "../etc", "A B", "x/y"} {
		_, err := b.Exists(context.Background(), key)
		assert.True(t, errors.Is(err, ErrInvalidKey), key)
	}
}

func TestBlobStoreWriteCanceled(t *testing.T) {
	b, err := NewBlobStore(t.TempDir(), ".apk")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Write(ctx, "1xbet", strings.NewReader("data"))
	require.Error(t, err)
	ok, err := b.Exists(context.Background(), "1xbet")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}

func TestAuditDrivers(t *testing.T) {
	cases := []struct {
		driver string
		file   string
	}{
		{"file", "zolo.db"},
		{"sqlite", "zolo.db"},
	}
	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			ctx := context.Background()
			st, err := Open(Config{Driver: tc.driver, Path: filepath.Join(t.TempDir(), tc.file)}, logx.Nop())
			require.NoError(t, err)
			defer st.Close()

			old := time.Now().Add(-48 * time.Hour)
			require.NoError(t, st.AppendAudit(ctx, AuditEntry{At: old, ActorID: 1, Action: "asset.uploaded", Target: "1xbet"}))
			require.NoError(t, st.AppendAudit(ctx, AuditEntry{ActorID: 1, Action: "broadcast.finished", OK: 3, Fail: 1}))

			recent, err := st.RecentAudit(ctx, 10)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "broadcast.finished", recent[0].Action)
			assert.Equal(t, 3, recent[0].OK)
			assert.Equal(t, 1, recent[0].Fail)

			n, err := st.PruneAudit(ctx, time.Now().Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			recent, err = st.RecentAudit(ctx, 10)
			require.NoError(t, err)
			require.Len(t, recent, 1)
			assert.Equal(t, "broadcast.finished", recent[0].Action)

			require.NoError(t, st.AppendAudit(ctx, AuditEntry{Action: "settings.changed"}))
			recent, err = st.RecentAudit(ctx, 1)
			require.NoError(t, err)
			require.Len(t, recent, 1)
			assert.Equal(t, "settings.changed", recent[0].Action)
		})
	}
}
