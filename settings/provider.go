package settings

import (
	"context"
	"errors"
)

// ErrMovedKey is returned by stores and reported by the registry when a key is
// written through the namespace it moved away from.
var ErrMovedKey = errors.New("settings key moved to another namespace")

// CallArgs carries the optional arguments of a provider call.
type CallArgs struct {
	Value  *string
	UserID *int
}

// Reply is the result bundle of a handled provider call.
type Reply struct {
	Value string
	Found bool
}

// Provider is the backing settings store.
//
// Call returns a nil reply when the command is not handled so the caller can
// fall back to Query. Errors describe transport failures only; a missing key
// is reported through the Found flags.
type Provider interface {
	Call(ctx context.Context, command, key string, args CallArgs) (*Reply, error)
	Query(ctx context.Context, uri, key string) (string, bool, error)
}

// Resolver acquires the provider for an authority. It is invoked lazily on the
// first lookup and the result is kept for the lifetime of the cache.
type Resolver func(authority string) (Provider, error)

// Properties exposes the small integer properties that publish the per
// namespace version counters.
type Properties interface {
	Int64(name string, def int64) int64
}

// StaticResolver returns a resolver that always yields the given provider.
func StaticResolver(p Provider) Resolver {
	return func(string) (Provider, error) {
		if p == nil {
			return nil, errors.New("settings provider not configured")
		}
		return p, nil
	}
}
