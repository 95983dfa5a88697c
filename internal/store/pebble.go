package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/timzifer/ringd/settings"
)

const pebbleCacheSizeBytes = int64(8 << 20)

type pebbleBackend struct {
	db    *pebble.DB
	cache *pebble.Cache
}

func openPebble(path string) (*pebbleBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: pebble path is empty")
	}
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("store: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("store: stat path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure directory: %w", err)
	}

	cache := pebble.NewCache(pebbleCacheSizeBytes)
	db, err := pebble.Open(path, &pebble.Options{Cache: cache})
	if err != nil {
		cache.Unref()
		return nil, fmt.Errorf("store: open pebble: %w", err)
	}
	return &pebbleBackend{db: db, cache: cache}, nil
}

func pebbleKey(ns settings.Namespace, user int, key string) []byte {
	return []byte(string(ns) + "|" + strconv.Itoa(user) + "|" + key)
}

func (b *pebbleBackend) get(_ context.Context, ns settings.Namespace, user int, key string) (string, bool, error) {
	value, closer, err := b.db.Get(pebbleKey(ns, user, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	defer closer.Close()
	return string(value), true, nil
}

func (b *pebbleBackend) put(_ context.Context, ns settings.Namespace, user int, key, value string) error {
	return b.db.Set(pebbleKey(ns, user, key), []byte(value), pebble.Sync)
}

func (b *pebbleBackend) close() error {
	err := b.db.Close()
	if b.cache != nil {
		b.cache.Unref()
	}
	return err
}
