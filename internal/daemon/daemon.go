// Package daemon wires the notification pipeline together and runs it
// until the context is cancelled: settings sync, event stream bridge,
// sound dispatcher, local broadcast surfaces, persistence and the
// diagnostics API.
package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/beyproweb/beypro-notify/internal/api"
	"github.com/beyproweb/beypro-notify/internal/audio"
	"github.com/beyproweb/beypro-notify/internal/conf"
	"github.com/beyproweb/beypro-notify/internal/datastore"
	"github.com/beyproweb/beypro-notify/internal/dispatcher"
	"github.com/beyproweb/beypro-notify/internal/events"
	"github.com/beyproweb/beypro-notify/internal/eventstream"
	"github.com/beyproweb/beypro-notify/internal/httpclient"
	"github.com/beyproweb/beypro-notify/internal/logging"
	"github.com/beyproweb/beypro-notify/internal/soundsettings"
	"github.com/beyproweb/beypro-notify/internal/telemetry"
)

const (
	fetchTimeout     = 30 * time.Second
	historyRetention = 30 * 24 * time.Hour
	pruneInterval    = time.Hour
)

// Run starts the daemon and blocks until ctx is cancelled. Optional
// pieces (database, audio device, diagnostics API) degrade with a warning
// instead of failing startup.
func Run(ctx context.Context, settings *conf.Settings) error {
	logger := logging.ForService("daemon")
	metrics := telemetry.NewMetrics()

	store := openStore(settings, logger)
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	engine, engineState := openEngine(settings, logger)
	defer engine.Close()

	resolver := audio.NewResolver(settings.Sound.AssetsDir)

	var recorder dispatcher.Recorder
	if store != nil {
		recorder = store
	}
	disp := dispatcher.New(engine, resolver, metrics, recorder)
	defer disp.Close()

	httpClient := httpclient.New(&httpclient.Config{
		DefaultTimeout: fetchTimeout,
		AuthToken:      settings.Backend.Token,
	})
	defer httpClient.Close()

	var snapshotStore soundsettings.Store
	if store != nil {
		snapshotStore = store
	}
	sync := soundsettings.NewSync(
		soundsettings.NewHTTPFetcher(settings.Backend.BaseURL, httpClient),
		snapshotStore,
	)
	sync.OnChange(disp.ApplySettings)

	bridgeCfg := eventstream.DefaultConfig()
	bridgeCfg.SocketURL = settings.Backend.EffectiveSocketURL()
	bridgeCfg.PollURL = settings.Backend.BaseURL + "/events/poll"
	bridgeCfg.Token = settings.Backend.Token
	bridgeCfg.ClientID = settings.Main.Name
	if settings.Backend.ReconnectAttempts > 0 {
		bridgeCfg.ReconnectAttempts = settings.Backend.ReconnectAttempts
	}
	if settings.Backend.ReconnectDelayMS > 0 {
		bridgeCfg.ReconnectDelay = time.Duration(settings.Backend.ReconnectDelayMS) * time.Millisecond
	}

	bridge := eventstream.NewBridge(bridgeCfg, httpClient)
	defer bridge.Close()

	bridge.Bind(disp.Bindings())
	bridge.OnConnect(func() {
		metrics.Reconnects.Inc()
		refreshCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		sync.Refresh(refreshCtx)
	})

	bus := events.NewBus()
	defer bus.Stop()
	sync.AttachBus(bus)
	bridge.AttachBus(bus)

	if settings.Signals.IPCSocket != "" {
		ipc := events.NewIPCListener(settings.Signals.IPCSocket, bus)
		if err := ipc.Start(); err != nil {
			logger.Warn("ipc listener unavailable", "socket", settings.Signals.IPCSocket, "error", err)
		} else {
			defer ipc.Close()
		}
	}
	if settings.Signals.OSSignals {
		stop := events.StartOSSignals(bus)
		defer stop()
	}

	if settings.Output.Listen != "" {
		server := api.New(bridge, sync, disp, store, metrics, engineState)
		go func() {
			if err := server.Start(settings.Output.Listen); err != nil {
				logger.Warn("diagnostics api failed", "addr", settings.Output.Listen, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	// Tenant identity from config starts the pipeline; later changes
	// arrive as TenantChanged signals on the bus.
	if tenant := settings.Backend.RestaurantID; tenant != "" {
		sync.SetTenant(tenant)
		bridge.SetTenant(tenant)
	} else {
		logger.Info("no tenant configured, waiting for tenant signal")
	}

	if store != nil {
		go pruneLoop(ctx, store)
	}

	logger.Info("notification daemon running",
		"backend", settings.Backend.BaseURL,
		"tenant", settings.Backend.RestaurantID)
	<-ctx.Done()
	logger.Info("notification daemon shutting down")
	return nil
}

func openStore(settings *conf.Settings, logger *slog.Logger) *datastore.Store {
	if settings.Output.DBPath == "" {
		return nil
	}
	store, err := datastore.Open(settings.Output.DBPath)
	if err != nil {
		logger.Warn("local database unavailable, snapshots and history disabled",
			"path", settings.Output.DBPath, "error", err)
		return nil
	}
	return store
}

// openEngine prepares the audio backend, degrading to silent playback
// when the platform context cannot be initialized. The returned state
// string is surfaced on the diagnostics API.
func openEngine(settings *conf.Settings, logger *slog.Logger) (audio.Engine, string) {
	if settings.Sound.Disabled {
		logger.Info("sound output disabled by configuration")
		return audio.NewNopEngine(), "disabled"
	}
	engine, err := audio.NewMalgoEngine()
	if err != nil {
		logger.Warn("audio context unavailable, running silent", "error", err)
		return audio.NewNopEngine(), "degraded"
	}
	return engine, "active"
}

func pruneLoop(ctx context.Context, store *datastore.Store) {
	// One prune at startup, then on the interval.
	startupCtx, cancel := context.WithTimeout(ctx, time.Minute)
	_, _ = store.PruneSoundEvents(startupCtx, historyRetention)
	cancel()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
			_, _ = store.PruneSoundEvents(pruneCtx, historyRetention)
			cancel()
		}
	}
}
