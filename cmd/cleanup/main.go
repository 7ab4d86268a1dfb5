package main

import (
	"context"
	"fmt"
	"os"
	"promptbank/internal/archive"
	"promptbank/internal/cache"
	"promptbank/internal/config"
	"promptbank/internal/controller"
	"promptbank/internal/database"
	"promptbank/internal/logging"
	"strconv"

	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: cleanup <config_path> [days_old]")
		fmt.Println("Example: cleanup config/config.json 30")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	daysOld := cfg.Jobs.RetentionDays
	if len(os.Args) > 2 {
		daysOld, err = strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatal().Msgf("Invalid days_old value: %v", err)
		}
	}

	logFile, err := logging.Setup(cfg.Logging, cfg.AppName+"-cleanup")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logFile.Close()

	ctx := context.Background()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer db.Close(ctx)

	var opts []controller.Option
	if cfg.AWS.Bucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, cfg.AWS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 archiver")
		}
		opts = append(opts, controller.WithArchiver(archiver))
	}
	if cfg.Redis.Address != "" && cfg.Jobs.StatusCacheTTL > 0 {
		redisCache, err := cache.NewRedisCache(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisCache.Close()
		opts = append(opts, controller.WithStatusCache(cache.NewStatusCache(redisCache, cfg.Jobs.StatusCacheDuration())))
	}

	// cleanup never runs operations, so no runner is needed
	bc := controller.NewBulkController(db, nil, opts...)

	purged, err := bc.CleanupOperations(ctx, daysOld)
	if err != nil {
		log.Fatal().Err(err).Int("purged", purged).Msg("Cleanup failed")
	}

	fmt.Printf("Purged %d bulk operations older than %d days\n", purged, daysOld)
}
