package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsdtool/wsdtool/internal/discovery"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

func scanner(addr string, xaddrs ...string) wsd.TargetService {
	return wsd.TargetService{
		EpRefAddr:   addr,
		Types:       wsd.NewStringSet(wsd.ScanDeviceType),
		Scopes:      wsd.NewStringSet("ldap:///ou=office"),
		XAddrs:      wsd.NewStringSet(xaddrs...),
		MetaVersion: 7,
	}
}

func printer(addr string, xaddrs ...string) wsd.TargetService {
	t := scanner(addr, xaddrs...)
	t.Types = wsd.NewStringSet(wsd.PrintDeviceType)
	return t
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := scanner("urn:uuid:a", "http://10.0.0.5/wsd", "http://[fe80::1]/wsd")

			require.NoError(t, store.Upsert(ctx, in))

			list, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)

			got := list[0]
			assert.True(t, got.Equal(in))
			assert.True(t, got.Types.Equal(in.Types))
			assert.True(t, got.Scopes.Equal(in.Scopes))
			assert.True(t, got.XAddrs.Equal(in.XAddrs))
			assert.Equal(t, in.MetaVersion, got.MetaVersion)
		})
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Upsert(ctx, scanner("urn:uuid:a", "http://old/")))

			fresh := scanner("urn:uuid:a", "http://new/")
			fresh.MetaVersion = 8
			require.NoError(t, store.Upsert(ctx, fresh))
			require.NoError(t, store.Upsert(ctx, scanner("urn:uuid:b", "http://b/")))

			list, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "urn:uuid:a", list[0].EpRefAddr)
			assert.True(t, list[0].XAddrs.Has("http://new/"))
			assert.Equal(t, 8, list[0].MetaVersion)

			require.NoError(t, store.Delete(ctx, "urn:uuid:a"))
			require.NoError(t, store.Delete(ctx, "urn:uuid:missing"))

			list, err = store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "urn:uuid:b", list[0].EpRefAddr)
		})
	}
}

type fakeProber struct {
	matches  wsd.TargetSet
	resolved map[string]wsd.TargetService
	probeErr error
}

func (p *fakeProber) Probe(ctx context.Context, timeout time.Duration, types wsd.StringSet) (wsd.TargetSet, error) {
	if p.probeErr != nil {
		return nil, p.probeErr
	}
	out := wsd.NewTargetSet()
	for _, t := range p.matches {
		if t.MatchesTypes(types) {
			out.Add(t)
		}
	}
	return out, nil
}

func (p *fakeProber) Resolve(ctx context.Context, target wsd.TargetService) (wsd.TargetService, bool, error) {
	if t, ok := p.resolved[target.EpRefAddr]; ok {
		return t, true, nil
	}
	return target, false, nil
}

type fakePinger struct {
	mu    sync.Mutex
	dead  map[string]bool
	calls []string
}

func (p *fakePinger) Ping(ctx context.Context, target wsd.TargetService) error {
	p.mu.Lock()
	p.calls = append(p.calls, target.EpRefAddr)
	p.mu.Unlock()
	if p.dead[target.EpRefAddr] {
		<-ctx.Done()
		return transport.ErrTimeout
	}
	return nil
}

func TestGetDevicesEvictsDeadTargets(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, scanner("urn:uuid:dead", "http://10.0.0.9/")))
	require.NoError(t, store.Upsert(ctx, scanner("urn:uuid:alive", "http://10.0.0.5/")))

	pinger := &fakePinger{dead: map[string]bool{"urn:uuid:dead": true}}
	m := NewManager(store, &fakeProber{}, pinger)
	m.LivenessTimeout = 20 * time.Millisecond

	got, err := m.GetDevices(ctx, Options{UseCache: true})
	require.NoError(t, err)

	_, ok := got.Get("urn:uuid:dead")
	assert.False(t, ok)
	_, ok = got.Get("urn:uuid:alive")
	assert.True(t, ok)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "urn:uuid:alive", list[0].EpRefAddr)
}

func TestGetDevicesUnionDiscoveredWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, scanner("urn:uuid:a", "http://old/")))
	require.NoError(t, store.Upsert(ctx, printer("urn:uuid:c", "http://c/")))

	prober := &fakeProber{
		matches: wsd.NewTargetSet(scanner("urn:uuid:a"), scanner("urn:uuid:b"), scanner("urn:uuid:unresolved")),
		resolved: map[string]wsd.TargetService{
			"urn:uuid:a": scanner("urn:uuid:a", "http://new/"),
			"urn:uuid:b": scanner("urn:uuid:b", "http://b/"),
		},
	}
	m := NewManager(store, prober, &fakePinger{})

	got, err := m.GetDevices(ctx, Options{UseCache: true, UseDiscovery: true, ProbeTimeout: time.Millisecond})
	require.NoError(t, err)

	assert.Len(t, got, 3)
	a, _ := got.Get("urn:uuid:a")
	assert.True(t, a.XAddrs.Has("http://new/"))
	assert.False(t, a.XAddrs.Has("http://old/"))
	_, ok := got.Get("urn:uuid:unresolved")
	assert.False(t, ok, "unresolved match must not be returned")

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for _, t2 := range list {
		assert.NotEqual(t, "urn:uuid:unresolved", t2.EpRefAddr)
	}
}

func TestGetDevicesTypeFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, printer("urn:uuid:p", "http://p/")))
	require.NoError(t, store.Upsert(ctx, scanner("urn:uuid:s", "http://s/")))

	m := NewManager(store, &fakeProber{}, &fakePinger{})
	got, err := m.GetDevices(ctx, Options{UseCache: true, Types: wsd.NewStringSet(wsd.PrintDeviceType)})
	require.NoError(t, err)

	require.Len(t, got, 1)
	_, ok := got.Get("urn:uuid:p")
	assert.True(t, ok)
}

func TestGetDevicesNetworkAbsence(t *testing.T) {
	m := NewManager(NewMemoryStore(), &fakeProber{probeErr: errors.New("no route")}, &fakePinger{})

	got, err := m.GetDevices(context.Background(), Options{UseCache: true, UseDiscovery: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

type failingStore struct {
	MemoryStore
}

func (s *failingStore) List(ctx context.Context) ([]wsd.TargetService, error) {
	return nil, errors.New("disk on fire")
}

func TestGetDevicesStoreErrorIsFatal(t *testing.T) {
	m := NewManager(&failingStore{}, &fakeProber{}, &fakePinger{})

	_, err := m.GetDevices(context.Background(), Options{UseCache: true})
	assert.Error(t, err)
}

func TestApplyAnnouncements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	prober := &fakeProber{resolved: map[string]wsd.TargetService{
		"urn:uuid:late": scanner("urn:uuid:late", "http://late/"),
	}}
	m := NewManager(store, prober, &fakePinger{})

	require.NoError(t, m.Apply(ctx, discovery.Announcement{Hello: true, Target: scanner("urn:uuid:a", "http://a/")}))
	require.NoError(t, m.Apply(ctx, discovery.Announcement{Hello: true, Target: scanner("urn:uuid:late")}))
	require.NoError(t, m.Apply(ctx, discovery.Announcement{Hello: true, Target: scanner("urn:uuid:ghost")}))

	targets, err := m.Targets(ctx)
	require.NoError(t, err)
	assert.Len(t, targets, 2)
	late, ok := targets.Get("urn:uuid:late")
	require.True(t, ok)
	assert.True(t, late.Usable())

	require.NoError(t, m.Apply(ctx, discovery.Announcement{Target: wsd.TargetService{EpRefAddr: "urn:uuid:a"}}))
	targets, err = m.Targets(ctx)
	require.NoError(t, err)
	_, ok = targets.Get("urn:uuid:a")
	assert.False(t, ok)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(CachePathEnvVar, "/tmp/custom.db")
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", p)

	t.Setenv(CachePathEnvVar, "")
	t.Setenv("HOME", "/home/tester")
	p, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", DefaultFileName), p)
}
