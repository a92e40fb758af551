package personnel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is an ephemeral key-value store with per-key expiry. The sweep only
// writes through it; the dashboard reads the feed back.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns (nil, false, nil) for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

const (
	DefaultFeedKey = "personnel:intern_warnings"
	DefaultFeedTTL = 24 * time.Hour
)

// WarningFeed publishes the upcoming-expiry list as one JSON value.
type WarningFeed struct {
	cache Cache
	key   string
	ttl   time.Duration
}

func NewWarningFeed(cache Cache, key string, ttl time.Duration) *WarningFeed {
	if key == "" {
		key = DefaultFeedKey
	}
	if ttl <= 0 {
		ttl = DefaultFeedTTL
	}
	return &WarningFeed{cache: cache, key: key, ttl: ttl}
}

// Publish replaces the feed. An empty list is published as [] so readers can
// tell "no warnings" from "never published".
func (f *WarningFeed) Publish(ctx context.Context, warnings []Warning) error {
	if warnings == nil {
		warnings = []Warning{}
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	if err := f.cache.Set(ctx, f.key, data, f.ttl); err != nil {
		return fmt.Errorf("publish warnings to %s: %w", f.key, err)
	}
	return nil
}

// Latest returns the last published list, or an empty list when the feed
// expired or was never published.
func (f *WarningFeed) Latest(ctx context.Context) ([]Warning, error) {
	data, ok, err := f.cache.Get(ctx, f.key)
	if err != nil {
		return nil, fmt.Errorf("read warnings from %s: %w", f.key, err)
	}
	if !ok {
		return []Warning{}, nil
	}
	var warnings []Warning
	if err := json.Unmarshal(data, &warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	return warnings, nil
}
