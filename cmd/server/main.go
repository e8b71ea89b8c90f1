/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), parse command-line flags
  2. Initialize SQLite store
  3. Choose collaborators: employee directory, face service, image store
  4. Connect Redis for the sweep lock when REDIS_ADDRESS is set
  5. Create service, scheduler, API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database, GCS and Redis clients

EXAMPLES:
  # Run with file database
  ./server -db="./data/attendance.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/imagestore"
	"github.com/warp/attendance-engine/store/sqlite"
	"github.com/warp/attendance-engine/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("component", "main")

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Employee directory
	var directory attendance.EmployeeDirectory = store
	if cfg.DirectoryURL != "" {
		directory = upstream.NewDirectoryClient(cfg.DirectoryURL, cfg.UpstreamTimeout)
		log.WithField("url", cfg.DirectoryURL).Info("using remote employee directory")
	}

	// Image store and reference photo source
	var (
		images     attendance.ImageStore
		references upstream.ReferenceFetcher
		routerOpts api.RouterOptions
	)
	switch cfg.ImageBackend {
	case config.ImageBackendGCS:
		gcs, err := imagestore.NewGCS(context.Background(), cfg.GCSBucket, cfg.GCSCredentialsJSON)
		if err != nil {
			log.Fatalf("Failed to initialize GCS: %v", err)
		}
		defer gcs.Close()
		images = gcs
		references = upstream.NewHTTPFetcher(cfg.UpstreamTimeout)
	default:
		local, err := imagestore.NewLocal(cfg.ImageDir, cfg.ImageBaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize image dir: %v", err)
		}
		images = local
		references = local
		routerOpts.ImageDir = local.Dir()
		routerOpts.ImagePrefix = cfg.ImageBaseURL
	}

	faces := upstream.NewFaceClient(cfg.FaceVerifyURL, cfg.FaceRecognizeURL, references, cfg.UpstreamTimeout)

	svc := attendance.NewService(store, attendance.Dependencies{
		Directory:        directory,
		Leaves:           store,
		Faces:            faces,
		Images:           images,
		Location:         cfg.Timezone,
		Timeout:          cfg.UpstreamTimeout,
		SweepConcurrency: cfg.SweepConcurrency,
		Logger:           logger,
	})

	// Scheduler
	scheduler := api.NewWeekendScheduler(svc, store, logger)
	scheduler.CheckInterval = cfg.SweepInterval
	scheduler.CronSchedule = cfg.SweepCron
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			config.LogError(logger, "main", "main", "redis ping", map[string]string{"addr": cfg.RedisAddress}, err)
			log.Warn("Redis unreachable, sweep lock falls back to in-process")
		} else {
			scheduler.Guard = api.NewRedisGuard(rdb, logger)
			log.WithField("addr", cfg.RedisAddress).Info("using Redis sweep lock")
		}
		cancel()
	}
	scheduler.Start()

	handler := api.NewHandler(svc, store, images, scheduler, logger)
	router := api.NewRouter(handler, routerOpts)

	// Create server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{"port": *port, "timezone": cfg.Timezone.String()}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
		return
	}

	log.Info("server stopped")
}
