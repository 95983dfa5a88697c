package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/timzifer/ringd/telemetry"
)

type cachedValue struct {
	value string
	found bool
}

// nameValueCache caches the values of a single namespace for the own user.
// The whole mapping is dropped whenever the published version counter moves.
type nameValueCache struct {
	ns         Namespace
	resolver   Resolver
	properties Properties
	logger     zerolog.Logger
	collector  telemetry.Collector

	mu       sync.Mutex
	provider Provider
	values   map[string]cachedValue
	version  int64
}

func newNameValueCache(ns Namespace, resolver Resolver, properties Properties, logger zerolog.Logger, collector telemetry.Collector) *nameValueCache {
	return &nameValueCache{
		ns:         ns,
		resolver:   resolver,
		properties: properties,
		logger:     logger,
		collector:  collector,
		values:     make(map[string]cachedValue),
	}
}

func (c *nameValueCache) lazyProvider() (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider != nil {
		return c.provider, nil
	}
	if c.resolver == nil {
		return nil, errors.New("settings resolver not configured")
	}
	p, err := c.resolver(Authority)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("settings resolver returned no provider")
	}
	c.provider = p
	return p, nil
}

func (c *nameValueCache) currentVersion() int64 {
	if c.properties == nil {
		return 0
	}
	return c.properties.Int64(c.ns.VersionProperty(), 0)
}

func (c *nameValueCache) put(ctx context.Context, key, value string, userID int) bool {
	p, err := c.lazyProvider()
	if err == nil {
		args := CallArgs{Value: &value, UserID: &userID}
		_, err = p.Call(ctx, c.ns.PutCommand(), key, args)
	}
	if err != nil {
		c.collector.IncStoreError(c.ns.String(), "put")
		c.logger.Warn().Err(err).Str("key", key).Str("uri", c.ns.URI()).Msg("can't set key")
		return false
	}
	return true
}

func (c *nameValueCache) get(ctx context.Context, key string, userID int, self bool) (string, bool) {
	if self {
		newVersion := c.currentVersion()
		c.mu.Lock()
		if c.version != newVersion {
			c.values = make(map[string]cachedValue)
			c.version = newVersion
		}
		if cached, ok := c.values[key]; ok {
			c.mu.Unlock()
			c.collector.IncSettingsLookup(c.ns.String(), telemetry.LookupHit)
			return cached.value, cached.found
		}
		c.mu.Unlock()
		c.collector.IncSettingsLookup(c.ns.String(), telemetry.LookupMiss)
	} else {
		c.collector.IncSettingsLookup(c.ns.String(), telemetry.LookupUncached)
	}

	p, err := c.lazyProvider()
	if err != nil {
		c.collector.IncStoreError(c.ns.String(), "get")
		c.logger.Warn().Err(err).Str("key", key).Str("uri", c.ns.URI()).Msg("can't get key")
		return "", false
	}

	var args CallArgs
	if !self {
		args.UserID = &userID
	}
	reply, err := p.Call(ctx, c.ns.GetCommand(), key, args)
	if err != nil {
		c.collector.IncStoreError(c.ns.String(), "call")
		c.logger.Warn().Err(err).Str("key", key).Str("uri", c.ns.URI()).Msg("settings call failed, falling back to query")
	} else if reply != nil {
		if self {
			c.store(key, cachedValue{value: reply.Value, found: reply.Found})
		}
		return reply.Value, reply.Found
	}

	value, found, err := p.Query(ctx, c.ns.URI(), key)
	if err != nil {
		c.collector.IncStoreError(c.ns.String(), "query")
		c.logger.Warn().Err(err).Str("key", key).Str("uri", c.ns.URI()).Msg("can't get key")
		return "", false
	}
	if self {
		c.store(key, cachedValue{value: value, found: found})
	}
	return value, found
}

func (c *nameValueCache) store(key string, value cachedValue) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

func (c *nameValueCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
