package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/benchwatch-backend/internal/artifacts"
	"github.com/yungbote/benchwatch-backend/internal/config"
	"github.com/yungbote/benchwatch-backend/internal/data/cache"
	"github.com/yungbote/benchwatch-backend/internal/data/db"
	"github.com/yungbote/benchwatch-backend/internal/data/repos/registry"
	"github.com/yungbote/benchwatch-backend/internal/dataset"
	"github.com/yungbote/benchwatch-backend/internal/handlers"
	"github.com/yungbote/benchwatch-backend/internal/observability"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
	"github.com/yungbote/benchwatch-backend/internal/server"
	"github.com/yungbote/benchwatch-backend/internal/services"
)

const serviceName = "benchwatch"

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Could not load config", "error", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	// Tracing
	ctx := context.Background()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: logMode,
	})
	if otelShutdown != nil {
		defer func() { _ = otelShutdown(context.Background()) }()
	}

	// Database
	dbService, err := db.New(log, cfg.DB)
	if err != nil {
		log.Fatal("Could not init database", "error", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Fatal("Auto migration failed", "error", err)
	}
	theDB := dbService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	var versionRepo registry.ModelVersionRepo = registry.NewModelVersionRepo(theDB, log)
	fileRepo := registry.NewDatasetFileRepo(theDB, log)
	if cfg.RedisAddr != "" {
		rdb, rerr := cache.NewRedisClient(cfg.RedisAddr)
		if rerr != nil {
			log.Warn("Redis unavailable, version listings uncached", "error", rerr)
		} else {
			versionRepo = cache.NewVersionCache(log, rdb, versionRepo)
		}
	}

	// Artifact store
	var store artifacts.Store
	switch cfg.Artifacts.Backend {
	case "gcs":
		gcsStore, serr := artifacts.NewGCSStore(ctx, log, cfg.Artifacts.Bucket)
		if serr != nil {
			log.Fatal("Could not init GCS artifact store", "error", serr)
		}
		store = gcsStore
	default:
		localStore, serr := artifacts.NewLocalStore(log, cfg.Artifacts.Root)
		if serr != nil {
			log.Fatal("Could not init local artifact store", "error", serr)
		}
		store = localStore
	}

	// Services
	log.Info("Setting up services from main...")
	loaders := dataset.NewRegistry()
	trainerService := services.NewTrainerService(theDB, log, loaders, versionRepo, fileRepo, store, cfg.Training)
	detectorService := services.NewDetectorService(theDB, log, loaders, versionRepo, store)
	registryService := services.NewRegistryService(theDB, log, versionRepo, fileRepo)

	// Handlers
	modelsHandler := handlers.NewModelsHandler(log, trainerService, detectorService, registryService)

	router := server.NewRouter(server.RouterConfig{
		ServiceName:   serviceName,
		CORSOrigins:   cfg.Server.CORSOrigins,
		ModelsHandler: modelsHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting server", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
