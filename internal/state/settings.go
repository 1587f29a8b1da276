// Package state holds the in-process stores of the bot: settings, the user
// registry and admin dialog sessions. Nothing here survives a restart.
package state

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Setting keys. The set is closed; anything else is rejected.
const (
	KeyAssetEnabled = "asset_enabled"
	KeyAssetRef     = "asset_ref"
	KeyAssetLabel   = "asset_label"
	KeyLinkLabel    = "link_label"
	KeyLinkURL      = "link_url"
)

const DefaultAssetLabel = "📥 APK yuklab olish"

var ErrUnknownKey = errors.New("unknown setting key")

// Settings is a typed copy of all setting values.
type Settings struct {
	AssetEnabled bool
	AssetRef     string
	AssetLabel   string
	LinkLabel    string
	LinkURL      string
}

func DefaultSettings() Settings {
	return Settings{AssetEnabled: true, AssetLabel: DefaultAssetLabel}
}

// HasAsset reports whether a cached asset is set and enabled.
func (s Settings) HasAsset() bool { return s.AssetEnabled && s.AssetRef != "" }

// HasLink reports whether both link fields are set.
func (s Settings) HasLink() bool { return s.LinkLabel != "" && s.LinkURL != "" }

// SettingsStore is a mutex-guarded settings map with last-write-wins semantics.
type SettingsStore struct {
	mu sync.RWMutex
	v  Settings
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{v: DefaultSettings()}
}

func (s *SettingsStore) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Update applies fn under the write lock and returns the resulting settings.
func (s *SettingsStore) Update(fn func(*Settings)) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.v)
	return s.v
}

func (s *SettingsStore) Get(key string) (string, error) {
	v := s.Snapshot()
	switch key {
	case KeyAssetEnabled:
		return strconv.FormatBool(v.AssetEnabled), nil
	case KeyAssetRef:
		return v.AssetRef, nil
	case KeyAssetLabel:
		return v.AssetLabel, nil
	case KeyLinkLabel:
		return v.LinkLabel, nil
	case KeyLinkURL:
		return v.LinkURL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

func (s *SettingsStore) Set(key, value string) error {
	var apply func(*Settings)
	switch key {
	case KeyAssetEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		apply = func(v *Settings) { v.AssetEnabled = b }
	case KeyAssetRef:
		apply = func(v *Settings) { v.AssetRef = value }
	case KeyAssetLabel:
		apply = func(v *Settings) { v.AssetLabel = value }
	case KeyLinkLabel:
		apply = func(v *Settings) { v.LinkLabel = value }
	case KeyLinkURL:
		apply = func(v *Settings) { v.LinkURL = value }
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	s.Update(apply)
	return nil
}
