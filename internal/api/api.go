// Package api serves the daemon's local diagnostics HTTP interface:
// health and status endpoints, playback history, a test-sound trigger and
// the Prometheus scrape endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beyproweb/beypro-notify/internal/datastore"
	"github.com/beyproweb/beypro-notify/internal/dispatcher"
	"github.com/beyproweb/beypro-notify/internal/eventstream"
	"github.com/beyproweb/beypro-notify/internal/logging"
	"github.com/beyproweb/beypro-notify/internal/soundsettings"
	"github.com/beyproweb/beypro-notify/internal/telemetry"
)

// Server is the diagnostics HTTP server. Every dependency except the
// dispatcher is optional, absent ones degrade the related endpoints.
type Server struct {
	echo       *echo.Echo
	logger     *slog.Logger
	bridge     *eventstream.Bridge
	sync       *soundsettings.Sync
	dispatcher *dispatcher.Dispatcher
	store      *datastore.Store
	metrics    *telemetry.Metrics
	audioState string
}

// New wires the routes. audioState describes the playback engine
// (active, degraded, disabled). Call Start to begin serving.
func New(bridge *eventstream.Bridge, sync *soundsettings.Sync, d *dispatcher.Dispatcher, store *datastore.Store, metrics *telemetry.Metrics, audioState string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		logger:     logging.ForService("api"),
		bridge:     bridge,
		sync:       sync,
		dispatcher: d,
		store:      store,
		metrics:    metrics,
		audioState: audioState,
	}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/api/v1/status", s.handleStatus)
	e.GET("/api/v1/history", s.handleHistory)
	e.POST("/api/v1/test-sound", s.handleTestSound)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	}
	return s
}

// Start serves on addr until Shutdown is called. Blocks.
func (s *Server) Start(addr string) error {
	s.logger.Info("diagnostics api listening", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Tenant     string          `json:"tenant"`
	Connected  bool            `json:"connected"`
	Transport  string          `json:"transport"`
	Generation uint64          `json:"generation"`
	Audio      string          `json:"audio"`
	Settings   *statusSettings `json:"settings,omitempty"`
}

type statusSettings struct {
	Enabled      bool    `json:"enabled"`
	EnableSounds bool    `json:"enableSounds"`
	Volume       float64 `json:"volume"`
	DefaultSound string  `json:"defaultSound"`
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := statusResponse{
		Transport: string(eventstream.TransportNone),
		Audio:     s.audioState,
	}
	if s.bridge != nil {
		resp.Tenant = s.bridge.Tenant()
		resp.Connected = s.bridge.IsConnected()
		resp.Transport = string(s.bridge.CurrentTransport())
		resp.Generation = s.bridge.Generation()
	}
	if s.sync != nil {
		if settings, ok := s.sync.Current(); ok {
			resp.Settings = &statusSettings{
				Enabled:      settings.Enabled,
				EnableSounds: settings.EnableSounds,
				Volume:       settings.Volume,
				DefaultSound: settings.DefaultSound,
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type historyRow struct {
	Event  string    `json:"event"`
	Asset  string    `json:"asset"`
	Volume float64   `json:"volume"`
	At     time.Time `json:"at"`
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history store not configured")
	}

	rows, err := s.store.RecentSoundEvents(c.Request().Context(), 50)
	if err != nil {
		s.logger.Warn("failed to query sound history", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "history query failed")
	}

	out := make([]historyRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, historyRow{
			Event:  row.Event,
			Asset:  row.Asset,
			Volume: row.Volume,
			At:     row.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type testSoundRequest struct {
	Sound  string   `json:"sound"`
	Volume *float64 `json:"volume"`
}

func (s *Server) handleTestSound(c echo.Context) error {
	var req testSoundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Sound == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sound is required")
	}

	volume := soundsettings.DefaultVolume
	if s.sync != nil {
		if settings, ok := s.sync.Current(); ok {
			volume = settings.Volume
		}
	}
	if req.Volume != nil && *req.Volume >= 0 && *req.Volume <= 1 {
		volume = *req.Volume
	}

	if err := s.dispatcher.PlayAsset(req.Sound, volume); err != nil {
		s.logger.Warn("test sound failed", "sound", req.Sound, "error", err)
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"sound": req.Sound, "volume": volume})
}
