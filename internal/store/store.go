// Package store provides the backing stores for the settings registry. Every
// store keeps flat key/value string pairs per namespace and publishes one
// version counter per namespace that moves on every write.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/timzifer/ringd/settings"
)

// Supported drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// backend persists values. Global values are always stored for user 0.
type backend interface {
	get(ctx context.Context, ns settings.Namespace, user int, key string) (string, bool, error)
	put(ctx context.Context, ns settings.Namespace, user int, key, value string) error
	close() error
}

// Option configures a Store.
type Option func(*options) error

type options struct {
	logger zerolog.Logger
	user   int
	seed   map[string]map[string]string
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithUser sets the user assumed for queries that do not carry one.
func WithUser(user int) Option {
	return func(o *options) error {
		if user < 0 {
			return errors.New("store user must not be negative")
		}
		o.user = user
		return nil
	}
}

// WithSeed provides initial values per namespace. A seeded key is only written
// when the store does not hold a value for it yet.
func WithSeed(seed map[string]map[string]string) Option {
	return func(o *options) error {
		for ns := range seed {
			if _, err := settings.ParseNamespace(ns); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}
		o.seed = seed
		return nil
	}
}

// Store implements settings.Provider and settings.Properties on top of a
// persistence backend.
type Store struct {
	backend backend
	driver  string
	logger  zerolog.Logger
	user    int

	mu       sync.RWMutex
	closed   bool
	versions map[settings.Namespace]int64
}

// Open creates a store for the given driver. Path is ignored by the memory
// driver.
func Open(ctx context.Context, driver, path string, opts ...Option) (*Store, error) {
	cfg := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	var (
		b   backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		driver = DriverMemory
		b = newMemoryBackend()
	case DriverSQLite:
		driver = DriverSQLite
		b, err = openSQLite(ctx, path)
	case DriverPebble:
		driver = DriverPebble
		b, err = openPebble(path)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{
		backend:  b,
		driver:   driver,
		logger:   cfg.logger.With().Str("component", "store").Str("driver", driver).Logger(),
		user:     cfg.user,
		versions: make(map[settings.Namespace]int64, 3),
	}
	if err := s.applySeed(ctx, cfg.seed); err != nil {
		_ = b.close()
		return nil, err
	}
	return s, nil
}

// Driver reports the driver backing the store.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

func (s *Store) applySeed(ctx context.Context, seed map[string]map[string]string) error {
	names := make([]string, 0, len(seed))
	for name := range seed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ns, err := settings.ParseNamespace(name)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		for key, value := range seed[name] {
			if target, moved := settings.MovedTo(ns, key); moved {
				return fmt.Errorf("seed %s/%s (now in %s): %w", ns, key, target, settings.ErrMovedKey)
			}
			user := s.userFor(ns, nil)
			if _, ok, err := s.backend.get(ctx, ns, user, key); err != nil {
				return fmt.Errorf("seed %s/%s: %w", ns, key, err)
			} else if ok {
				continue
			}
			if err := s.backend.put(ctx, ns, user, key, value); err != nil {
				return fmt.Errorf("seed %s/%s: %w", ns, key, err)
			}
			s.logger.Debug().Str("namespace", ns.String()).Str("key", key).Msg("seeded setting")
		}
	}
	return nil
}

func (s *Store) userFor(ns settings.Namespace, user *int) int {
	if ns == settings.NamespaceGlobal {
		return 0
	}
	if user != nil {
		return *user
	}
	return s.user
}

// Call handles the GET_<namespace> and PUT_<namespace> commands. Unknown
// commands are not handled and yield a nil reply.
func (s *Store) Call(ctx context.Context, command, key string, args settings.CallArgs) (*settings.Reply, error) {
	if s == nil {
		return nil, ErrClosed
	}
	for _, ns := range settings.Namespaces() {
		switch command {
		case ns.GetCommand():
			value, ok, err := s.get(ctx, ns, s.userFor(ns, args.UserID), key)
			if err != nil {
				return nil, err
			}
			return &settings.Reply{Value: value, Found: ok}, nil
		case ns.PutCommand():
			if args.Value == nil {
				return nil, fmt.Errorf("store: %s %s: missing value", command, key)
			}
			if target, moved := settings.MovedTo(ns, key); moved {
				return nil, fmt.Errorf("store: %s %s (now in %s): %w", command, key, target, settings.ErrMovedKey)
			}
			if err := s.Set(ctx, ns, s.userFor(ns, args.UserID), key, *args.Value); err != nil {
				return nil, err
			}
			return &settings.Reply{Value: *args.Value, Found: true}, nil
		}
	}
	return nil, nil
}

// Query returns the value stored under key in the namespace addressed by uri.
func (s *Store) Query(ctx context.Context, uri, key string) (string, bool, error) {
	if s == nil {
		return "", false, ErrClosed
	}
	for _, ns := range settings.Namespaces() {
		if ns.URI() == uri {
			return s.get(ctx, ns, s.userFor(ns, nil), key)
		}
	}
	return "", false, fmt.Errorf("store: unknown uri %q", uri)
}

// Int64 returns the version counter published under a namespace version
// property name.
func (s *Store) Int64(name string, def int64) int64 {
	if s == nil {
		return def
	}
	for _, ns := range settings.Namespaces() {
		if ns.VersionProperty() == name {
			return s.Version(ns)
		}
	}
	return def
}

// Version returns the current version counter of a namespace.
func (s *Store) Version(ns settings.Namespace) int64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[ns]
}

// Set writes a value and moves the version counter of the namespace.
func (s *Store) Set(ctx context.Context, ns settings.Namespace, user int, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.backend.put(ctx, ns, user, key, value); err != nil {
		return fmt.Errorf("store: put %s/%s: %w", ns, key, err)
	}
	s.versions[ns]++
	s.logger.Debug().
		Str("namespace", ns.String()).
		Str("key", key).
		Int("user", user).
		Int64("version", s.versions[ns]).
		Msg("setting updated")
	return nil
}

func (s *Store) get(ctx context.Context, ns settings.Namespace, user int, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	value, ok, err := s.backend.get(ctx, ns, user, key)
	if err != nil {
		return "", false, fmt.Errorf("store: get %s/%s: %w", ns, key, err)
	}
	return value, ok, nil
}

// Close releases the backend. Further operations return ErrClosed.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.close()
}
