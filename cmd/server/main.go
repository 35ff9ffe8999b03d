package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Huddle/internal/adapters/http"
	wssignal "github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/engine/memengine"
	"github.com/dkeye/Huddle/internal/engine/msengine"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg *config.Config) {
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func startWorkers(ctx context.Context, cfg *config.Config) ([]engine.Worker, error) {
	switch cfg.Engine.Kind {
	case config.EngineMediasoup:
		return msengine.StartWorkers(ctx, msengine.Settings{
			WorkerBin:          cfg.Engine.WorkerBin,
			NumWorkers:         cfg.Engine.NumWorkers,
			ListenIP:           cfg.Engine.ListenIP,
			AnnouncedAddress:   cfg.Engine.AnnouncedAddress,
			MaxIncomingBitrate: cfg.Engine.MaxIncomingBitrate,
		})
	default:
		return memengine.NewWorkers(cfg.Engine.NumWorkers)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	workers, err := startWorkers(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start media workers: %w", err)
	}
	pool, err := engine.NewPool(workers...)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info().Str("engine", cfg.Engine.Kind).Int("workers", pool.Size()).Msg("media engine ready")

	rooms := app.NewRoomManager(pool, cfg.RouterReadyTimeout)
	defer rooms.Close()
	o := orch.New(app.NewRegistry(), rooms, app.SimplePolicy{})
	ctrl := wssignal.NewSignalWSController(o,
		wssignal.NewRoomRateLimiter(cfg.Signal.CreateRoomLimit, cfg.Signal.CreateRoomInterval),
		wssignal.Settings{
			SendBuffer: cfg.Signal.SendBuffer,
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
		})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, o, ctrl),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
