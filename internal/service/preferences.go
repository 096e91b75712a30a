package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/port"

	"go.uber.org/zap"
)

// PreferenceStore reads and writes the UI preferences kept next to the session.
type PreferenceStore struct {
	store  port.KeyValueStore
	bus    port.Broadcaster
	logger *zap.Logger
}

// NewPreferenceStore creates a PreferenceStore.
func NewPreferenceStore(store port.KeyValueStore, bus port.Broadcaster, logger *zap.Logger) *PreferenceStore {
	return &PreferenceStore{store: store, bus: bus, logger: logger}
}

// Get returns the stored preferences; missing keys keep their zero value.
func (p *PreferenceStore) Get(ctx context.Context) (domain.Preferences, error) {
	var prefs domain.Preferences

	tab, _, err := p.store.Get(ctx, domain.KeyActiveTab)
	if err != nil {
		return prefs, fmt.Errorf("read %s: %w", domain.KeyActiveTab, err)
	}
	prefs.ActiveTab = tab

	if prefs.HasSetDefaultTab, err = p.getBool(ctx, domain.KeyHasSetDefaultTab); err != nil {
		return prefs, err
	}
	if prefs.DarkMode, err = p.getBool(ctx, domain.KeyDarkMode); err != nil {
		return prefs, err
	}
	return prefs, nil
}

// Set stores prefs and announces each key.
func (p *PreferenceStore) Set(ctx context.Context, prefs domain.Preferences) error {
	values := []struct{ key, value string }{
		{domain.KeyActiveTab, prefs.ActiveTab},
		{domain.KeyHasSetDefaultTab, strconv.FormatBool(prefs.HasSetDefaultTab)},
		{domain.KeyDarkMode, strconv.FormatBool(prefs.DarkMode)},
	}
	for _, kv := range values {
		if err := p.store.Set(ctx, kv.key, kv.value); err != nil {
			return fmt.Errorf("write %s: %w", kv.key, err)
		}
		value := kv.value
		if err := p.bus.Publish(ctx, domain.StorageChange{Key: kv.key, Value: &value}); err != nil {
			p.logger.Warn("preferences: failed to announce change", zap.String("key", kv.key), zap.Error(err))
		}
	}
	return nil
}

func (p *PreferenceStore) getBool(ctx context.Context, key string) (bool, error) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.logger.Debug("preferences: ignoring malformed value", zap.String("key", key), zap.String("value", raw))
		return false, nil
	}
	return b, nil
}
