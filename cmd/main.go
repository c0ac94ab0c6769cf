package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apodetl/internal/archive"
	"apodetl/internal/clients"
	"apodetl/internal/config"
	"apodetl/internal/handlers"
	"apodetl/internal/metrics"
	"apodetl/internal/middleware"
	"apodetl/internal/models"
	"apodetl/internal/pipeline"
	"apodetl/internal/repository"
	"apodetl/internal/service"
	"apodetl/internal/worker"
	"apodetl/pkg/database"
	"apodetl/pkg/logger"
	redispkg "apodetl/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	once := flag.Bool("once", false, "execute one manual run and exit")
	flag.Parse()

	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.Init(os.Stdout, cfg.LogLevel(), cfg.Log.Format)
	if envErr != nil {
		log.Info("No .env file found, using environment variables")
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Configuration rejected", "error", err)
		os.Exit(1)
	}

	log.Info("=== APOD ETL starting ===", "dag_id", pipeline.DAGID)

	if cfg.VerifyTargetDiffers() {
		log.Warn("Verification reads a different database than the one loaded",
			"load_db", cfg.DB.DBName, "verify_db", cfg.DB.VerifyDBName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConfig := database.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.DBName,
		SSLMode:  cfg.DB.SSLMode,
	}
	store := database.NewConnector(dbConfig)
	verifyFrom := store.ForDatabase(cfg.DB.VerifyDBName)

	if err := store.Do(ctx, database.Migrate); err != nil {
		log.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	var (
		redisClient *redis.Client
		cacheRepo   repository.CacheRepository
	)
	if cfg.Redis.Enabled {
		client, err := redispkg.Connect(ctx, redispkg.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("Redis unavailable, running without cache and run lock", "error", err)
		} else {
			redisClient = client
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient)
		}
	}

	nasaClient := clients.NewNASAClient(clients.NASAConfig{
		APIKey:  cfg.NASA.APIKey,
		APODURL: cfg.NASA.APODURL,
		Timeout: cfg.NASA.Timeout,
	})

	var svcOpts []service.ETLOption
	if cacheRepo != nil {
		svcOpts = append(svcOpts, service.WithCache(cacheRepo))
	}
	etl := service.NewETLService(nasaClient, store, verifyFrom, svcOpts...)

	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithHistory(pipeline.NewDBHistory(store)),
		pipeline.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	}
	if cacheRepo != nil {
		runnerOpts = append(runnerOpts, pipeline.WithLock(cacheRepo))
	}
	if cfg.Archive.Enabled {
		archiver, err := archive.NewMinio(archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			log.Warn("Archive disabled", "error", err)
		} else {
			runnerOpts = append(runnerOpts, pipeline.WithArchiver(archiver))
		}
	}

	runner := pipeline.NewRunner(etl, pipeline.Policy{
		Retries:    cfg.Tasks.Retries,
		RetryDelay: cfg.Tasks.RetryDelay,
	}, runnerOpts...)

	if *once {
		res, err := runner.Run(ctx, models.TriggerManual)
		if err != nil {
			log.Error("Run failed", "error", err)
			os.Exit(1)
		}
		log.Info("Run succeeded", "run_id", res.ID.String(), "inserted", res.Inserted)
		return
	}

	serve(ctx, cfg, store, runner, cacheRepo, redisClient)
}

func serve(ctx context.Context, cfg *config.Config, store *database.Connector, runner *pipeline.Runner,
	cacheRepo repository.CacheRepository, redisClient *redis.Client) {
	log := slog.Default()

	db, err := database.Connect(store.Config())
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	scheduler := worker.NewScheduler()
	if cfg.Workers.ETLEnabled {
		scheduler.AddWorker(worker.NewETLWorker(runner, cfg.Workers.ETLInterval))
		log.Info("ETL worker enabled", "interval", cfg.Workers.ETLInterval)
	}
	go scheduler.Start()
	defer scheduler.Stop()

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if !cfg.App.Debug {
		r.Use(middleware.RateLimiters(
			cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst,
			cfg.RateLimit.PerIPRequestsPerSecond, cfg.RateLimit.PerIPBurst,
		)...)
		log.Info("Rate limiting enabled",
			"rps", cfg.RateLimit.RequestsPerSecond, "burst", cfg.RateLimit.Burst,
			"per_ip_rps", cfg.RateLimit.PerIPRequestsPerSecond, "per_ip_burst", cfg.RateLimit.PerIPBurst)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlerOpts := []handlers.HandlerOption{
		handlers.WithBaseContext(ctx),
		handlers.WithSchedulerStatus(scheduler.IsRunning),
	}
	if cacheRepo != nil {
		handlerOpts = append(handlerOpts, handlers.WithCache(cacheRepo, func(ctx context.Context) (map[string]string, error) {
			return redispkg.GetStats(ctx, redisClient)
		}))
	}
	handlers.NewAPODHandler(db, runner, handlerOpts...).RegisterRoutes(r.Group("/api/v1"))

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr, "api", "/api/v1")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited properly")
}
