package soundsettings

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/beyproweb/beypro-notify/internal/errors"
	"github.com/beyproweb/beypro-notify/internal/events"
	"github.com/beyproweb/beypro-notify/internal/logging"
)

// Store persists the last-known-good settings snapshot per tenant, so a
// restart can serve stale-but-valid settings before the first fetch
// resolves. Implemented by the datastore package.
type Store interface {
	SaveSnapshot(tenant string, settings Settings) error
	LoadSnapshot(tenant string) (Settings, bool, error)
}

// Sync owns the current notification sound settings. It refreshes them on
// tenant changes, explicit local broadcasts, foreground transitions and
// socket reconnects, and pushes every change to registered consumers.
type Sync struct {
	fetcher Fetcher
	store   Store // optional
	logger  *slog.Logger

	mu       sync.RWMutex
	tenant   string
	current  *Settings
	onChange []func(Settings)

	// fetchSeq discards stale in-flight fetch responses. Concurrent
	// triggers are allowed; only the latest one may publish.
	fetchSeq atomic.Uint64
}

// NewSync creates a settings sync. store may be nil.
func NewSync(fetcher Fetcher, store Store) *Sync {
	return &Sync{
		fetcher: fetcher,
		store:   store,
		logger:  logging.ForService("soundsettings"),
	}
}

// OnChange registers a consumer called with every published settings value.
// Callbacks run on the publishing goroutine and must not block.
func (s *Sync) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Current returns the current settings value, if one has been published.
func (s *Sync) Current() (Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Settings{}, false
	}
	return s.current.Clone(), true
}

// Tenant returns the current tenant identity, empty when unknown.
func (s *Sync) Tenant() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenant
}

// SetTenant updates the tenant identity. A change clears the current
// settings (they belong to the previous tenant) and seeds from the
// persisted snapshot when one exists. Returns true when the identity
// actually changed.
func (s *Sync) SetTenant(tenant string) bool {
	s.mu.Lock()
	if s.tenant == tenant {
		s.mu.Unlock()
		return false
	}
	s.tenant = tenant
	s.current = nil
	s.mu.Unlock()

	if tenant == "" {
		s.logger.Info("tenant cleared, settings dropped")
		return true
	}

	if s.store != nil {
		snapshot, found, err := s.store.LoadSnapshot(tenant)
		if err != nil {
			s.logger.Warn("failed to load settings snapshot", "tenant", tenant, "error", err)
		} else if found {
			s.logger.Info("seeded settings from persisted snapshot", "tenant", tenant)
			s.publish(snapshot, false)
		}
	}
	return true
}

// Refresh fetches the settings for the current tenant and publishes the
// normalized result. It never returns an error: fetch failures keep the
// last-known-good value, or publish normalized defaults when nothing has
// been published yet. No-ops entirely when the tenant is unknown.
func (s *Sync) Refresh(ctx context.Context) {
	s.mu.RLock()
	tenant := s.tenant
	s.mu.RUnlock()

	if tenant == "" {
		s.logger.Debug("refresh skipped, tenant unknown")
		return
	}

	seq := s.fetchSeq.Add(1)

	raw, err := s.fetcher.Fetch(ctx, tenant)
	if err != nil {
		s.warnFetchFailed(err, tenant)
		s.mu.RLock()
		missing := s.current == nil
		s.mu.RUnlock()
		if missing {
			s.logger.Info("no settings present, applying normalized defaults", "tenant", tenant)
			s.publish(Normalize(nil), false)
		}
		return
	}

	if s.fetchSeq.Load() != seq {
		s.logger.Debug("discarding stale settings response", "tenant", tenant)
		return
	}

	s.publish(Normalize(raw), true)
	s.logger.Info("settings refreshed", "tenant", tenant)
}

// ApplyPayload normalizes and applies a settings payload pushed from
// another local component, without a network round trip.
func (s *Sync) ApplyPayload(raw map[string]any) {
	// A direct apply supersedes any fetch still in flight.
	s.fetchSeq.Add(1)
	s.publish(Normalize(raw), true)
	s.logger.Info("settings applied from local broadcast")
}

// AttachBus wires the sync to the local broadcast bus. Network-bound
// refreshes run on their own goroutine so bus dispatch never blocks.
func (s *Sync) AttachBus(bus *events.Bus) {
	bus.Subscribe("soundsettings", func(sig events.Signal) {
		switch sig.Kind {
		case events.KindSettingsUpdated:
			if sig.Payload != nil {
				s.ApplyPayload(sig.Payload)
				return
			}
			go s.Refresh(context.Background())
		case events.KindAppState:
			if sig.State == events.AppStateForeground && s.Tenant() != "" {
				go s.Refresh(context.Background())
			}
		case events.KindTenantChanged:
			if s.SetTenant(sig.Tenant) && sig.Tenant != "" {
				go s.Refresh(context.Background())
			}
		}
	})
}

func (s *Sync) publish(settings Settings, persist bool) {
	s.mu.Lock()
	value := settings.Clone()
	s.current = &value
	callbacks := make([]func(Settings), len(s.onChange))
	copy(callbacks, s.onChange)
	tenant := s.tenant
	s.mu.Unlock()

	if persist && s.store != nil && tenant != "" {
		if err := s.store.SaveSnapshot(tenant, settings); err != nil {
			s.logger.Warn("failed to persist settings snapshot", "tenant", tenant, "error", err)
		}
	}

	for _, fn := range callbacks {
		fn(settings.Clone())
	}
}

func (s *Sync) warnFetchFailed(err error, tenant string) {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		s.logger.Warn("settings fetch failed, keeping last known settings",
			append([]any{"tenant", tenant}, ee.LogAttrs()...)...)
		return
	}
	s.logger.Warn("settings fetch failed, keeping last known settings",
		"tenant", tenant, "error", err)
}
