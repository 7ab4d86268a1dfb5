package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"promptbank/internal/archive"
	"promptbank/internal/cache"
	"promptbank/internal/config"
	"promptbank/internal/controller"
	"promptbank/internal/database"
	"promptbank/internal/logging"
	"promptbank/internal/notify"
	"promptbank/internal/orchestrator"
	"promptbank/internal/processor"
	"promptbank/internal/prompt"
	"promptbank/internal/rabbitmq"
	"promptbank/internal/server"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// lockingCache is a cache that can also hold run locks
type lockingCache interface {
	cache.Cache
	cache.Locker
}

func main() {
	configPath := "config/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logFile, err := logging.Setup(cfg.Logging, cfg.AppName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logFile.Close()

	log.Info().Str("env", cfg.Env).Int("port", cfg.Port).Msg("Starting promptbank")

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}

	cacheBackend, err := openCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache")
	}

	var rabbit rabbitmq.Client
	emitter := notify.NewLogEmitter()
	if cfg.RabbitMQ.URL != "" {
		rabbit, err = rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
		}
		emitter = notify.NewRabbitEmitter(rabbit, cfg.RabbitMQ.Exchange)
	} else {
		log.Warn().Msg("No RabbitMQ URL configured, bulk operation events are only logged")
	}

	var archiver archive.Archiver
	if cfg.AWS.Bucket != "" {
		archiver, err = archive.NewS3Archiver(context.Background(), cfg.AWS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 archiver")
		}
		if err := archiver.TestConnection(context.Background()); err != nil {
			log.Warn().Err(err).Msg("S3 archive bucket not reachable, cleanup will keep operations it cannot archive")
		}
	}

	var statusCache *cache.StatusCache
	if cfg.Jobs.StatusCacheTTL > 0 {
		statusCache = cache.NewStatusCache(cacheBackend, cfg.Jobs.StatusCacheDuration())
	}

	mutator := prompt.NewMutator(db, prompt.NewValidator())
	registry := processor.NewRegistry(processor.DefaultHandlers(mutator)...)

	procOpts := []processor.Option{
		processor.WithRunLock(cache.NewRunLock(cacheBackend, cfg.Jobs.RunLockDuration())),
	}
	if statusCache != nil {
		procOpts = append(procOpts, processor.WithStatusCache(statusCache))
	}
	proc := processor.New(db, registry, emitter, procOpts...)

	scheduler := orchestrator.NewScheduler(proc, cfg.Jobs.QueueSize)

	bcOpts := []controller.Option{
		controller.WithScheduler(scheduler),
		controller.WithAutoStart(cfg.Jobs.AutoStart),
	}
	if archiver != nil {
		bcOpts = append(bcOpts, controller.WithArchiver(archiver))
	}
	if statusCache != nil {
		bcOpts = append(bcOpts, controller.WithStatusCache(statusCache))
	}
	bc := controller.NewBulkController(db, proc, bcOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)

	if cfg.Jobs.ResumeOnStart {
		if _, err := bc.ResumePending(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to resume pending bulk operations")
		}
	}

	srv := server.New(*cfg, controller.NewServer(db, cacheBackend, rabbit), bc)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Keep the application running until interrupted
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Scheduler did not stop cleanly")
	}
	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ client")
		}
	}
	if err := cacheBackend.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close cache")
	}
	if err := db.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}

	log.Info().Msg("Shutdown complete")
}

// openCache connects to Redis, or falls back to a process-local cache when
// no address is configured
func openCache(cfg config.RedisConfig) (lockingCache, error) {
	if cfg.Address == "" {
		log.Warn().Msg("No Redis address configured, using in-memory cache and run locks")
		return cache.NewMemoryCache(), nil
	}

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	return redisCache, nil
}
