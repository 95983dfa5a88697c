package settings

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/timzifer/ringd/telemetry"
)

// Option configures a Registry.
type Option func(*options) error

type options struct {
	logger    zerolog.Logger
	collector telemetry.Collector
	userID    int
}

// WithLogger sets the logger used for store failures and moved key warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithTelemetry sets the collector receiving lookup and store error metrics.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(o *options) error {
		if collector == nil {
			return errors.New("telemetry collector must not be nil")
		}
		o.collector = collector
		return nil
	}
}

// WithUserID sets the own user. Only lookups for this user are cached.
func WithUserID(userID int) Option {
	return func(o *options) error {
		if userID < 0 {
			return errors.New("user id must not be negative")
		}
		o.userID = userID
		return nil
	}
}

// Registry resolves settings of all namespaces through one backing provider.
// It is safe for concurrent use.
type Registry struct {
	logger zerolog.Logger
	userID int
	caches map[Namespace]*nameValueCache
}

// NewRegistry creates a registry. The provider is resolved on first use.
func NewRegistry(resolver Resolver, properties Properties, opts ...Option) (*Registry, error) {
	cfg := options{
		logger:    zerolog.Nop(),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if resolver == nil {
		return nil, errors.New("settings resolver must not be nil")
	}

	logger := cfg.logger.With().Str("component", "settings").Logger()
	r := &Registry{
		logger: logger,
		userID: cfg.userID,
		caches: make(map[Namespace]*nameValueCache, 3),
	}
	for _, ns := range Namespaces() {
		r.caches[ns] = newNameValueCache(ns, resolver, properties, logger, cfg.collector)
	}
	return r, nil
}

// UserID returns the own user of the registry.
func (r *Registry) UserID() int {
	if r == nil {
		return 0
	}
	return r.userID
}

// GetString looks up a setting for the own user.
func (r *Registry) GetString(ctx context.Context, ns Namespace, key string) (string, bool) {
	return r.GetStringForUser(ctx, ns, key, r.UserID())
}

// GetStringForUser looks up a setting. Keys that moved to another namespace
// are read from their new location.
func (r *Registry) GetStringForUser(ctx context.Context, ns Namespace, key string, userID int) (string, bool) {
	if r == nil {
		return "", false
	}
	for hops := 0; hops < len(r.caches); hops++ {
		target, moved := MovedTo(ns, key)
		if !moved {
			break
		}
		r.logger.Warn().
			Str("key", key).
			Str("from", ns.String()).
			Str("to", target.String()).
			Msg("setting has moved, reading from new namespace")
		ns = target
	}
	cache, ok := r.caches[ns]
	if !ok {
		r.logger.Warn().Str("namespace", ns.String()).Str("key", key).Msg("unknown settings namespace")
		return "", false
	}
	return cache.get(ctx, key, userID, userID == r.userID)
}

// PutString stores a setting for the own user.
func (r *Registry) PutString(ctx context.Context, ns Namespace, key, value string) bool {
	return r.PutStringForUser(ctx, ns, key, value, r.UserID())
}

// PutStringForUser stores a setting. Writes through the namespace a key moved
// away from are rejected without contacting the store.
func (r *Registry) PutStringForUser(ctx context.Context, ns Namespace, key, value string, userID int) bool {
	if r == nil {
		return false
	}
	if target, moved := MovedTo(ns, key); moved {
		r.logger.Warn().
			Err(ErrMovedKey).
			Str("key", key).
			Str("from", ns.String()).
			Str("to", target.String()).
			Msg("setting has moved, value is read-only here")
		return false
	}
	cache, ok := r.caches[ns]
	if !ok {
		r.logger.Warn().Str("namespace", ns.String()).Str("key", key).Msg("unknown settings namespace")
		return false
	}
	return cache.put(ctx, key, value, userID)
}

// GetInt returns the setting as an integer, or def if it is missing or not a
// number.
func (r *Registry) GetInt(ctx context.Context, ns Namespace, key string, def int) int {
	return r.GetIntForUser(ctx, ns, key, def, r.UserID())
}

// GetIntForUser is GetInt for an explicit user.
func (r *Registry) GetIntForUser(ctx context.Context, ns Namespace, key string, def, userID int) int {
	value, ok := r.GetStringForUser(ctx, ns, key, userID)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return def
	}
	return int(n)
}

// GetFloat returns the setting as a float, or def if it is missing or not a
// number.
func (r *Registry) GetFloat(ctx context.Context, ns Namespace, key string, def float64) float64 {
	value, ok := r.GetString(ctx, ns, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return f
}

// GetBool reports whether the integer setting is non-zero.
func (r *Registry) GetBool(ctx context.Context, ns Namespace, key string, def bool) bool {
	d := 0
	if def {
		d = 1
	}
	return r.GetInt(ctx, ns, key, d) != 0
}

// PutInt stores an integer setting for the own user.
func (r *Registry) PutInt(ctx context.Context, ns Namespace, key string, value int) bool {
	return r.PutIntForUser(ctx, ns, key, value, r.UserID())
}

// PutIntForUser stores an integer setting.
func (r *Registry) PutIntForUser(ctx context.Context, ns Namespace, key string, value, userID int) bool {
	return r.PutStringForUser(ctx, ns, key, strconv.Itoa(value), userID)
}

// PutFloat stores a float setting for the own user.
func (r *Registry) PutFloat(ctx context.Context, ns Namespace, key string, value float64) bool {
	return r.PutString(ctx, ns, key, strconv.FormatFloat(value, 'g', -1, 64))
}

// Validator returns the validator registered for the key, if any.
func (r *Registry) Validator(ns Namespace, key string) (Validator, bool) {
	return LookupValidator(ns, key)
}
