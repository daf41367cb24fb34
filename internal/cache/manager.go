package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wsdtool/wsdtool/internal/discovery"
	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

const (
	// DefaultLivenessTimeout bounds each liveness check
	DefaultLivenessTimeout = 3 * time.Second

	// DefaultConcurrency is the number of resolves or liveness checks in
	// flight at once
	DefaultConcurrency = 8
)

// Prober finds and resolves targets
type Prober interface {
	Probe(ctx context.Context, timeout time.Duration, types wsd.StringSet) (wsd.TargetSet, error)
	Resolve(ctx context.Context, target wsd.TargetService) (wsd.TargetService, bool, error)
}

// Pinger checks that a cached target still answers
type Pinger interface {
	Ping(ctx context.Context, target wsd.TargetService) error
}

// Options selects the sources used by GetDevices
type Options struct {
	UseCache     bool
	UseDiscovery bool
	ProbeTimeout time.Duration

	// Types restricts the result to targets carrying one of these types.
	// Empty means no restriction.
	Types wsd.StringSet
}

// Manager reconciles the persistent cache with live discovery
type Manager struct {
	store    Store
	prober   Prober
	liveness Pinger

	// LivenessTimeout bounds each cached target's liveness check
	LivenessTimeout time.Duration

	// Concurrency limits parallel resolves and liveness checks
	Concurrency int

	log *zap.Logger
}

// NewManager creates a manager over store
func NewManager(store Store, prober Prober, liveness Pinger) *Manager {
	return &Manager{
		store:           store,
		prober:          prober,
		liveness:        liveness,
		LivenessTimeout: DefaultLivenessTimeout,
		Concurrency:     DefaultConcurrency,
		log:             logging.Named("cache"),
	}
}

// GetDevices returns the union of the live cached targets and freshly
// discovered ones, discovered records winning. Cached targets that fail
// their liveness check are evicted; discovered targets are upserted.
//
// Network silence yields an empty or partial set. Only store failures and
// cancellation are returned as errors.
func (m *Manager) GetDevices(ctx context.Context, opts Options) (wsd.TargetSet, error) {
	discovered := wsd.NewTargetSet()
	if opts.UseDiscovery {
		var err error
		discovered, err = m.Discover(ctx, opts.ProbeTimeout, opts.Types)
		if err != nil {
			return nil, err
		}
	}

	cached := wsd.NewTargetSet()
	if opts.UseCache {
		var err error
		cached, err = m.liveTargets(ctx)
		if err != nil {
			return nil, err
		}

		for _, t := range discovered.Sorted() {
			if err := m.store.Upsert(ctx, t); err != nil {
				return nil, err
			}
		}
	}

	result := cached.Union(discovered).Filter(opts.Types)
	m.log.Info("Devices",
		zap.Int("cached", len(cached)),
		zap.Int("discovered", len(discovered)),
		zap.Int("result", len(result)))
	return result, nil
}

// Discover probes and resolves every match. Only targets that resolved
// with at least one transport address are returned.
func (m *Manager) Discover(ctx context.Context, timeout time.Duration, types wsd.StringSet) (wsd.TargetSet, error) {
	matches, err := m.prober.Probe(ctx, timeout, types)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.log.Warn("Probe failed", zap.Error(err))
		matches = wsd.NewTargetSet()
	}

	var (
		mu       sync.Mutex
		resolved = wsd.NewTargetSet()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency())
	for _, match := range matches.Sorted() {
		g.Go(func() error {
			t, ok, err := m.prober.Resolve(gctx, match)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.log.Debug("Resolve failed", zap.String("target", match.EpRefAddr), zap.Error(err))
				return nil
			}
			if !ok || !t.Usable() {
				m.log.Debug("Dropping unresolved match", zap.String("target", match.EpRefAddr))
				return nil
			}
			mu.Lock()
			resolved.Add(t)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return resolved, nil
}

// liveTargets lists the store and evicts every target that fails its
// liveness check.
func (m *Manager) liveTargets(ctx context.Context) (wsd.TargetSet, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		live = wsd.NewTargetSet()
		dead []string
	)

	var g errgroup.Group
	g.SetLimit(m.concurrency())
	for _, t := range all {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, m.livenessTimeout())
			err := m.liveness.Ping(pctx, t)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.log.Info("Evicting target", zap.String("target", t.EpRefAddr), zap.Error(err))
				dead = append(dead, t.EpRefAddr)
				return nil
			}
			live.Add(t)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, addr := range dead {
		if err := m.store.Delete(ctx, addr); err != nil {
			return nil, err
		}
	}
	return live, nil
}

// Remember stores t if it can be reached. Targets without transport
// addresses are ignored.
func (m *Manager) Remember(ctx context.Context, t wsd.TargetService) error {
	if !t.Usable() {
		return nil
	}
	return m.store.Upsert(ctx, t)
}

// Forget removes the target with epRefAddr
func (m *Manager) Forget(ctx context.Context, epRefAddr string) error {
	return m.store.Delete(ctx, epRefAddr)
}

// Targets returns the cached targets without checking them
func (m *Manager) Targets(ctx context.Context) (wsd.TargetSet, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return wsd.NewTargetSet(all...), nil
}

// Apply updates the cache from an announcement. A Hello without transport
// addresses is resolved first; a Bye removes the target.
func (m *Manager) Apply(ctx context.Context, a discovery.Announcement) error {
	if !a.Hello {
		if err := m.Forget(ctx, a.Target.EpRefAddr); err != nil {
			return fmt.Errorf("forget %s: %w", a.Target.EpRefAddr, err)
		}
		return nil
	}

	t := a.Target
	if !t.Usable() {
		resolved, ok, err := m.prober.Resolve(ctx, t)
		if err != nil {
			m.log.Debug("Resolve failed", zap.String("target", t.EpRefAddr), zap.Error(err))
			return nil
		}
		if !ok {
			return nil
		}
		t = resolved
	}
	if err := m.Remember(ctx, t); err != nil {
		return fmt.Errorf("remember %s: %w", t.EpRefAddr, err)
	}
	return nil
}

func (m *Manager) concurrency() int {
	if m.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return m.Concurrency
}

func (m *Manager) livenessTimeout() time.Duration {
	if m.LivenessTimeout <= 0 {
		return DefaultLivenessTimeout
	}
	return m.LivenessTimeout
}
