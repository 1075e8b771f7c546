// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// dimKeyPrefix is the Valkey key prefix for cached dimensions.
	dimKeyPrefix = "dim:"

	// DefaultDimensionTTL is how long a variation's size stays cached.
	DefaultDimensionTTL = 24 * time.Hour
)

// DimensionCache stores the pixel size of rendered variations in Valkey so
// width and height lookups skip reading the file. Errors are logged and
// treated as misses; the cache is never authoritative.
type DimensionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDimensionCache creates a dimension cache backed by the given client.
func NewDimensionCache(client *redis.Client, ttl time.Duration) *DimensionCache {
	if ttl == 0 {
		ttl = DefaultDimensionTTL
	}
	return &DimensionCache{client: client, ttl: ttl}
}

// Get returns the cached size of path.
func (dc *DimensionCache) Get(ctx context.Context, path string) (int, int, bool) {
	val, err := dc.client.Get(ctx, dimKeyPrefix+path).Result()
	if err == redis.Nil {
		return 0, 0, false
	}
	if err != nil {
		slog.Warn("dimension cache get error", "path", path, "error", err)
		return 0, 0, false
	}
	w, h, err := parseDims(val)
	if err != nil {
		slog.Warn("dimension cache corrupt entry", "path", path, "value", val)
		return 0, 0, false
	}
	return w, h, true
}

// Set caches the size of path with the configured TTL.
func (dc *DimensionCache) Set(ctx context.Context, path string, width, height int) {
	if err := dc.client.Set(ctx, dimKeyPrefix+path, formatDims(width, height), dc.ttl).Err(); err != nil {
		slog.Warn("dimension cache set error", "path", path, "error", err)
	}
}

// Invalidate drops the cached sizes of paths.
func (dc *DimensionCache) Invalidate(ctx context.Context, paths ...string) {
	if len(paths) == 0 {
		return
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = dimKeyPrefix + p
	}
	if err := dc.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("dimension cache invalidate error", "paths", len(paths), "error", err)
	}
}

// InvalidateAll removes every cached size by scanning for the prefix. Used
// after a batch run with replace, since any variation may have changed.
func (dc *DimensionCache) InvalidateAll(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := dc.client.Scan(ctx, cursor, dimKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("dimension cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := dc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("dimension cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("dimension cache cleared", "deleted", deleted)
	}
}

func formatDims(w, h int) string {
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

func parseDims(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("malformed dimensions %q", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, err
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}
