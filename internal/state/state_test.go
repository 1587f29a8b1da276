package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	s := NewSettingsStore()
	v, err := s.Get(KeyAssetEnabled)
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	v, err = s.Get(KeyAssetLabel)
	require.NoError(t, err)
	assert.Equal(t, DefaultAssetLabel, v)

	assert.False(t, s.Snapshot().HasAsset())
	assert.False(t, s.Snapshot().HasLink())
}

func TestSettingsSetGet(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{KeyAssetRef, "file-1", "file-1"},
		{KeyAssetLabel, "Download", "Download"},
		{KeyLinkLabel, "Site", "Site"},
		{KeyLinkURL, "https://x", "https://x"},
		{KeyAssetEnabled, "0", "false"},
	}
	s := NewSettingsStore()
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			require.NoError(t, s.Set(tc.key, tc.value))
			got, err := s.Get(tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSettingsUnknownKey(t *testing.T) {
	s := NewSettingsStore()
	err := s.Set("theme", "dark")
	assert.True(t, errors.Is(err, ErrUnknownKey))
	_, err = s.Get("theme")
	assert.True(t, errors.Is(err, ErrUnknownKey))
	assert.Equal(t, DefaultSettings(), s.Snapshot())
}

func TestSettingsBadBool(t *testing.T) {
	s := NewSettingsStore()
	require.Error(t, s.Set(KeyAssetEnabled, "maybe"))
	assert.True(t, s.Snapshot().AssetEnabled)
}

func TestRegistryIdempotent(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Add(42))
	assert.False(t, r.Add(42))
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.Contains(42))
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int64{3, 1, 2} {
		r.Add(id)
	}
	snap := r.Snapshot()
	assert.Equal(t, []int64{3, 1, 2}, snap)

	r.Add(9)
	snap[0] = 100
	assert.Equal(t, []int64{3, 1, 2, 9}, r.Snapshot())
}

func TestRegistryConcurrentAdd(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			r.Add(id % 10)
		}(int64(i))
	}
	wg.Wait()
	assert.Equal(t, 10, r.Count())
}

func TestSessionStoreOverwriteAndClear(t *testing.T) {
	s := NewSessionStore[string]()
	_, ok := s.Get(1)
	assert.False(t, ok)

	s.Set(1, "a")
	s.Set(1, "b")
	v, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Clear(1))
	assert.False(t, s.Clear(1))
}

func TestSessionStoreSweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessionStore[int]()
	s.now = func() time.Time { return now }
	s.Set(1, 1)
	now = now.Add(2 * time.Hour)
	s.Set(2, 2)

	assert.Nil(t, s.Sweep(0))
	removed := s.Sweep(time.Hour)
	assert.Equal(t, []int64{1}, removed)
	_, ok := s.Get(2)
	assert.True(t, ok)
}
