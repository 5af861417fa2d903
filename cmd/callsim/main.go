package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/callsim/internal/call"
	"github.com/gosuda/callsim/internal/call/backends"
	"github.com/gosuda/callsim/internal/config"
	"github.com/gosuda/callsim/internal/domain"
	"github.com/gosuda/callsim/internal/server"
	"github.com/gosuda/callsim/internal/store/postgres"
	redisstore "github.com/gosuda/callsim/internal/store/redis"
	"github.com/gosuda/callsim/internal/telemetry"
)

const telemetryFlushTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	level, parseErr := zerolog.ParseLevel(os.Getenv("CALLSIM_LOG_LEVEL"))
	if parseErr != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("CALLSIM_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	providers, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer flushCancel()
		if shutdownErr := providers.Shutdown(flushCtx); shutdownErr != nil {
			log.Warn().Err(shutdownErr).Msg("telemetry flush failed")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().Str("endpoint", cfg.Telemetry.Endpoint).Msg("exporting traces and metrics")
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL and bring the schema up to date.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if err = store.Migrate(ctx); err != nil {
		return err
	}

	health := map[string]server.Pinger{"postgres": store}

	var contexts domain.ContextStore
	switch cfg.Context.Backend {
	case config.ContextBackendMemory:
		log.Warn().Msg("session contexts are kept in memory; they are lost on restart and not shared between instances")
		contexts = call.NewMemoryContextStore(cfg.Context.TTL)
	default:
		client, clientErr := redisstore.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if clientErr != nil {
			return clientErr
		}
		defer client.Close()

		redisContexts := redisstore.NewContextStore(client, cfg.Context.TTL)
		health["redis"] = redisContexts
		contexts = redisContexts
	}

	// Collaborators.
	generator := backends.NewChatGenerator(cfg.Generator.APIKey, cfg.Generator.Model,
		backends.WithBaseURL(cfg.Generator.BaseURL),
		backends.WithSampling(cfg.Generator.Temperature, cfg.Generator.MaxTokens),
		backends.WithRequestsPerMinute(cfg.Generator.RequestsPerMinute),
	)
	synthesizer := backends.NewCoquiSynthesizer(cfg.Synthesizer.URL, cfg.Synthesizer.Model, cfg.Synthesizer.Vocoder, nil)
	if healthErr := synthesizer.Healthy(ctx); healthErr != nil {
		// Replies are still delivered as text while the TTS server is down.
		log.Warn().Err(healthErr).Str("url", cfg.Synthesizer.URL).Msg("tts server unreachable")
	}

	registry := call.NewRegistry()
	entities := call.NewEntityPipeline(backends.KeywordExtractor{}, store.Entities(), cfg.Extraction.Timeout)
	engine := call.NewEngine(
		contexts,
		store.Transcripts(),
		entities,
		generator,
		synthesizer,
		registry,
		call.Timeouts{Generate: cfg.Generator.Timeout, Synthesize: cfg.Synthesizer.Timeout},
		call.WithTracerProvider(providers.TracerProvider),
		call.WithMeterProvider(providers.MeterProvider),
	)
	orchestrator := call.NewOrchestrator(
		store.CallSessions(),
		store.Scenarios(),
		store.Entities(),
		store.Metrics(),
		contexts,
		registry,
		engine,
	)

	srv := server.New(ctx, cfg, server.Deps{
		Store:  store,
		Calls:  orchestrator,
		Lanes:  orchestrator,
		Health: health,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		errCh <- srv.Start(ctx)
	}()

	// Block until shutdown signal or listener failure.
	select {
	case <-ctx.Done():
	case startErr := <-errCh:
		if startErr != nil {
			return startErr
		}
	}
	// Live calls are hijacked connections that http.Server.Shutdown does not wait for.
	closed := orchestrator.Shutdown(context.Background(), "server shutting down")
	log.Info().Int("connected_sessions", closed).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDeadline)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
