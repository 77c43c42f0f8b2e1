package process

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opunsoars/pitchly/internal/adapters/inbound/surface_http"
	"github.com/opunsoars/pitchly/internal/adapters/inbound/tracking_sqlite"
	"github.com/opunsoars/pitchly/internal/config"
	"github.com/opunsoars/pitchly/internal/core/pitchcontrol"
	"github.com/opunsoars/pitchly/internal/core/surfaces"
	"github.com/opunsoars/pitchly/internal/events"
	"github.com/opunsoars/pitchly/internal/fanout"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

// App holds the wired pitch control service.
type App struct {
	Store     *tracking_sqlite.Store
	Evaluator *pitchcontrol.Evaluator
	Service   *surfaces.Service
	Bus       *events.Bus
	Fanout    *fanout.Server
	Mux       *http.ServeMux
}

// Build wires store, evaluator, surface service, fanout and HTTP routes
// from cfg. The caller owns the returned App and must Close it.
func Build(cfg *config.Config) (*App, error) {
	params, err := config.LoadModelParams(cfg.ModelParamsPath)
	if err != nil {
		return nil, fmt.Errorf("model params: %w", err)
	}
	telemetry.Infof("Model params: %s", params)

	opts := []pitchcontrol.EvalOption{
		pitchcontrol.WithField(pitchcontrol.Field{Length: cfg.FieldLength, Width: cfg.FieldWidth}),
		pitchcontrol.WithCellsX(cfg.GridCellsX),
	}
	if cfg.EvalWorkers > 0 {
		opts = append(opts, pitchcontrol.WithWorkers(cfg.EvalWorkers))
	}
	evaluator, err := pitchcontrol.NewEvaluator(params, opts...)
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}
	grid := evaluator.Grid()
	telemetry.Infof("Grid %dx%d over %.0fx%.0f", len(grid.X), len(grid.Y), cfg.FieldLength, cfg.FieldWidth)

	store, err := tracking_sqlite.OpenStore(cfg.FramesDBPath)
	if err != nil {
		return nil, fmt.Errorf("frames store: %w", err)
	}

	bus := events.NewBus()
	svc := surfaces.NewService(store, evaluator, bus)
	fan := fanout.NewServer(bus)

	mux := http.NewServeMux()
	surface_http.NewHandler(svc).RegisterRoutes(mux)
	fan.RegisterRoutes(mux)

	return &App{
		Store:     store,
		Evaluator: evaluator,
		Service:   svc,
		Bus:       bus,
		Fanout:    fan,
		Mux:       mux,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Run boots the pitch control server and blocks until SIGINT/SIGTERM.
func Run() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting pitchly")

	app, err := Build(cfg)
	if err != nil {
		telemetry.Errorf("%v", err)
		os.Exit(1)
	}
	defer app.Close()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      app.Mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Errorf("HTTP server: %v", err)
			os.Exit(1)
		}
	}()
	telemetry.Infof("Surfaces on http://%s/surface  fanout on ws://%s/ws", addr, addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Playback ───────────────────────────────────────────────
	if cfg.PlaybackEnabled() {
		go func() {
			err := app.Service.Playback(ctx, cfg.PlaybackFrom, cfg.PlaybackTo, cfg.PlaybackFPS, cfg.PlaybackIndividual)
			if err != nil && !errors.Is(err, context.Canceled) {
				telemetry.Warnf("Playback: %v", err)
			}
		}()
	}

	// ── Shutdown ───────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	telemetry.Infof("Shutdown complete  frames=%d  rejected=%d  non_converged=%d  published=%d  p50=%s  p99=%s",
		telemetry.Metrics.FramesEvaluated.Value(),
		telemetry.Metrics.FramesRejected.Value(),
		telemetry.Metrics.NonConvergedCells.Value(),
		telemetry.Metrics.SurfacesPublished.Value(),
		telemetry.Metrics.FrameLatency.P50(),
		telemetry.Metrics.FrameLatency.P99(),
	)
}
