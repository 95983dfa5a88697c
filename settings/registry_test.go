package settings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	values   map[string]string
	callOnly bool
	noCall   bool
	callErr  error
	queryErr error
	calls    []string
	queries  []string
	users    []*int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{values: make(map[string]string)}
}

func (p *fakeProvider) set(uri, key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[uri+"#"+key] = value
}

func (p *fakeProvider) Call(_ context.Context, command, key string, args CallArgs) (*Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, command+":"+key)
	p.users = append(p.users, args.UserID)
	if p.callErr != nil {
		return nil, p.callErr
	}
	for _, ns := range Namespaces() {
		switch command {
		case ns.GetCommand():
			if p.noCall {
				return nil, nil
			}
			value, ok := p.values[ns.URI()+"#"+key]
			return &Reply{Value: value, Found: ok}, nil
		case ns.PutCommand():
			if args.Value == nil {
				return nil, errors.New("missing value")
			}
			p.values[ns.URI()+"#"+key] = *args.Value
			return &Reply{Value: *args.Value, Found: true}, nil
		}
	}
	return nil, nil
}

func (p *fakeProvider) Query(_ context.Context, uri, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, uri+"#"+key)
	if p.queryErr != nil {
		return "", false, p.queryErr
	}
	value, ok := p.values[uri+"#"+key]
	return value, ok, nil
}

func (p *fakeProvider) roundTrips() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls) + len(p.queries)
}

type fakeProperties struct {
	mu     sync.Mutex
	values map[string]int64
}

func (f *fakeProperties) Int64(name string, def int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[name]; ok {
		return v
	}
	return def
}

func (f *fakeProperties) bump(ns Namespace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]int64)
	}
	f.values[ns.VersionProperty()]++
}

func newTestRegistry(t *testing.T, p *fakeProvider, props Properties, opts ...Option) *Registry {
	t.Helper()
	reg, err := NewRegistry(StaticResolver(p), props, opts...)
	require.NoError(t, err)
	return reg
}

func TestRegistryCachesOwnUserLookups(t *testing.T) {
	p := newFakeProvider()
	p.set(NamespaceSystem.URI(), KeyIncreasingRing, "1")
	reg := newTestRegistry(t, p, &fakeProperties{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		value, ok := reg.GetString(ctx, NamespaceSystem, KeyIncreasingRing)
		require.True(t, ok)
		require.Equal(t, "1", value)
	}
	require.Equal(t, 1, p.roundTrips())
	require.Equal(t, []string{"GET_system:increasing_ring"}, p.calls)
	require.Nil(t, p.users[0])
}

func TestRegistryCachesMissingValues(t *testing.T) {
	p := newFakeProvider()
	reg := newTestRegistry(t, p, &fakeProperties{})
	ctx := context.Background()

	_, ok := reg.GetString(ctx, NamespaceGlobal, KeyTheaterModeOn)
	require.False(t, ok)
	_, ok = reg.GetString(ctx, NamespaceGlobal, KeyTheaterModeOn)
	require.False(t, ok)
	require.Equal(t, 1, p.roundTrips())
}

func TestRegistryVersionChangeRequeriesOnce(t *testing.T) {
	p := newFakeProvider()
	p.set(NamespaceSystem.URI(), KeyVibrateWhenRinging, "0")
	props := &fakeProperties{}
	reg := newTestRegistry(t, p, props)
	ctx := context.Background()

	value, _ := reg.GetString(ctx, NamespaceSystem, KeyVibrateWhenRinging)
	require.Equal(t, "0", value)
	require.Equal(t, 1, p.roundTrips())

	p.set(NamespaceSystem.URI(), KeyVibrateWhenRinging, "1")
	value, _ = reg.GetString(ctx, NamespaceSystem, KeyVibrateWhenRinging)
	if value != "0" {
		t.Fatalf("expected stale cached value before version bump, got %q", value)
	}

	props.bump(NamespaceSystem)
	value, _ = reg.GetString(ctx, NamespaceSystem, KeyVibrateWhenRinging)
	require.Equal(t, "1", value)
	value, _ = reg.GetString(ctx, NamespaceSystem, KeyVibrateWhenRinging)
	require.Equal(t, "1", value)
	require.Equal(t, 2, p.roundTrips())
}

func TestRegistryVersionChangeOnlyAffectsOwnNamespace(t *testing.T) {
	p := newFakeProvider()
	p.set(NamespaceGlobal.URI(), KeyTheaterModeOn, "0")
	props := &fakeProperties{}
	reg := newTestRegistry(t, p, props)
	ctx := context.Background()

	reg.GetString(ctx, NamespaceGlobal, KeyTheaterModeOn)
	props.bump(NamespaceSystem)
	reg.GetString(ctx, NamespaceGlobal, KeyTheaterModeOn)
	require.Equal(t, 1, p.roundTrips())
}

func TestRegistryNeverCachesOtherUsers(t *testing.T) {
	p := newFakeProvider()
	p.set(NamespaceSecure.URI(), "lockscreen_visualizer", "1")
	reg := newTestRegistry(t, p, &fakeProperties{}, WithUserID(10))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		value, ok := reg.GetStringForUser(ctx, NamespaceSecure, "lockscreen_visualizer", 11)
		require.True(t, ok)
		require.Equal(t, "1", value)
	}
	require.Equal(t, 2, p.roundTrips())
	require.NotNil(t, p.users[0])
	require.Equal(t, 11, *p.users[0])
	require.Equal(t, 0, reg.caches[NamespaceSecure].size())
}

func TestRegistryFallsBackToQuery(t *testing.T) {
	p := newFakeProvider()
	p.noCall = true
	p.set(NamespaceSystem.URI(), KeyIncreasingRingRampUpTime, "30")
	reg := newTestRegistry(t, p, &fakeProperties{})
	ctx := context.Background()

	require.Equal(t, 30, reg.GetInt(ctx, NamespaceSystem, KeyIncreasingRingRampUpTime, 20))
	require.Equal(t, []string{"content://cmsettings/system#increasing_ring_ramp_up_time"}, p.queries)

	require.Equal(t, 30, reg.GetInt(ctx, NamespaceSystem, KeyIncreasingRingRampUpTime, 20))
	require.Len(t, p.queries, 1)
}

func TestRegistryCallErrorFallsBackToQuery(t *testing.T) {
	p := newFakeProvider()
	p.callErr = errors.New("binder died")
	p.set(NamespaceSystem.URI(), KeyIncreasingRing, "1")
	reg := newTestRegistry(t, p, &fakeProperties{})

	require.True(t, reg.GetBool(context.Background(), NamespaceSystem, KeyIncreasingRing, false))
	require.Len(t, p.queries, 1)
}

func TestRegistryQueryErrorIsNotCached(t *testing.T) {
	p := newFakeProvider()
	p.noCall = true
	p.queryErr = errors.New("store unavailable")
	p.set(NamespaceSystem.URI(), KeyIncreasingRing, "1")
	reg := newTestRegistry(t, p, &fakeProperties{})
	ctx := context.Background()

	_, ok := reg.GetString(ctx, NamespaceSystem, KeyIncreasingRing)
	require.False(t, ok)

	p.mu.Lock()
	p.queryErr = nil
	p.mu.Unlock()
	value, ok := reg.GetString(ctx, NamespaceSystem, KeyIncreasingRing)
	require.True(t, ok)
	require.Equal(t, "1", value)
}

func TestRegistryTypedGettersFallBackToDefault(t *testing.T) {
	p := newFakeProvider()
	p.set(NamespaceSystem.URI(), "status_bar_clock", "abc")
	p.set(NamespaceSystem.URI(), KeyIncreasingRingStartVolume, "loud")
	p.set(NamespaceSystem.URI(), "qs_quick_pulldown", "2")
	reg := newTestRegistry(t, p, &fakeProperties{})
	ctx := context.Background()

	require.Equal(t, 7, reg.GetInt(ctx, NamespaceSystem, "status_bar_clock", 7))
	require.Equal(t, 0.1, reg.GetFloat(ctx, NamespaceSystem, KeyIncreasingRingStartVolume, 0.1))
	require.Equal(t, 5, reg.GetInt(ctx, NamespaceSystem, "missing_key", 5))
	require.Equal(t, 2, reg.GetInt(ctx, NamespaceSystem, "qs_quick_pulldown", 0))
	require.True(t, reg.GetBool(ctx, NamespaceSystem, "qs_quick_pulldown", false))
	require.True(t, reg.GetBool(ctx, NamespaceSystem, "missing_key", true))
}

func TestRegistryPutForwardsToStore(t *testing.T) {
	p := newFakeProvider()
	reg := newTestRegistry(t, p, &fakeProperties{}, WithUserID(3))
	ctx := context.Background()

	require.True(t, reg.PutInt(ctx, NamespaceSystem, KeyIncreasingRingRampUpTime, 45))
	require.True(t, reg.PutFloat(ctx, NamespaceSystem, KeyIncreasingRingStartVolume, 0.25))
	require.Equal(t, []string{
		"PUT_system:increasing_ring_ramp_up_time",
		"PUT_system:increasing_ring_start_vol",
	}, p.calls)
	require.Equal(t, 3, *p.users[0])
	require.Equal(t, "45", p.values[NamespaceSystem.URI()+"#"+KeyIncreasingRingRampUpTime])
	require.Equal(t, "0.25", p.values[NamespaceSystem.URI()+"#"+KeyIncreasingRingStartVolume])
}

func TestRegistryPutFloatKeepsPrecision(t *testing.T) {
	p := newFakeProvider()
	reg := newTestRegistry(t, p, &fakeProperties{})
	ctx := context.Background()

	require.True(t, reg.PutFloat(ctx, NamespaceSystem, KeyIncreasingRingStartVolume, 0.123456789))
	require.Equal(t, "0.123456789", p.values[NamespaceSystem.URI()+"#"+KeyIncreasingRingStartVolume])
	require.Equal(t, 0.123456789, reg.GetFloat(ctx, NamespaceSystem, KeyIncreasingRingStartVolume, 0))
}

func TestRegistryPutReportsTransportFailure(t *testing.T) {
	p := newFakeProvider()
	p.callErr = errors.New("binder died")
	reg := newTestRegistry(t, p, &fakeProperties{})

	require.False(t, reg.PutString(context.Background(), NamespaceSystem, KeyIncreasingRing, "1"))
}

func TestRegistryRejectsWritesToMovedKeys(t *testing.T) {
	p := newFakeProvider()
	reg := newTestRegistry(t, p, &fakeProperties{})
	ctx := context.Background()

	require.False(t, reg.PutString(ctx, NamespaceSystem, KeyDevForceShowNavbar, "1"))
	require.False(t, reg.PutInt(ctx, NamespaceSecure, KeyDevForceShowNavbar, 1))
	require.Zero(t, p.roundTrips())

	require.True(t, reg.PutString(ctx, NamespaceGlobal, KeyDevForceShowNavbar, "1"))
	require.Equal(t, 1, p.roundTrips())
}

func TestRegistryRedirectsReadsOfMovedKeys(t *testing.T) {
	p := newFakeProvider()
	p.set(NamespaceGlobal.URI(), KeyDevForceShowNavbar, "1")
	reg := newTestRegistry(t, p, &fakeProperties{})

	value, ok := reg.GetString(context.Background(), NamespaceSystem, KeyDevForceShowNavbar)
	require.True(t, ok)
	require.Equal(t, "1", value)
	require.Equal(t, []string{"GET_global:dev_force_show_navbar"}, p.calls)
}

func TestRegistryResolvesProviderLazily(t *testing.T) {
	resolved := 0
	p := newFakeProvider()
	resolver := func(authority string) (Provider, error) {
		resolved++
		if authority != Authority {
			t.Fatalf("unexpected authority %q", authority)
		}
		return p, nil
	}
	reg, err := NewRegistry(resolver, nil)
	require.NoError(t, err)
	require.Zero(t, resolved)

	ctx := context.Background()
	reg.GetString(ctx, NamespaceSystem, "a")
	reg.GetString(ctx, NamespaceSystem, "b")
	require.Equal(t, 1, resolved)
}

func TestRegistryResolverFailureDegrades(t *testing.T) {
	reg, err := NewRegistry(func(string) (Provider, error) {
		return nil, errors.New("no provider")
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.Equal(t, 4, reg.GetInt(ctx, NamespaceSystem, KeyIncreasingRing, 4))
	require.False(t, reg.PutString(ctx, NamespaceSystem, KeyIncreasingRing, "1"))
}

func TestRegistryConcurrentLookups(t *testing.T) {
	p := newFakeProvider()
	p.set(NamespaceSystem.URI(), KeyIncreasingRing, "1")
	props := &fakeProperties{}
	reg := newTestRegistry(t, p, props)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				props.bump(NamespaceSystem)
			}
			if got := reg.GetInt(context.Background(), NamespaceSystem, KeyIncreasingRing, 0); got != 1 {
				t.Errorf("expected 1, got %d", got)
			}
		}(i)
	}
	wg.Wait()
}

func TestNewRegistryValidatesOptions(t *testing.T) {
	_, err := NewRegistry(nil, nil)
	require.Error(t, err)

	_, err = NewRegistry(StaticResolver(newFakeProvider()), nil, WithUserID(-1))
	require.Error(t, err)

	_, err = NewRegistry(StaticResolver(newFakeProvider()), nil, WithTelemetry(nil))
	require.Error(t, err)
}
