package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/converter"
	"github.com/loiht2/getaround-pricing/backend/dashboard"
	"github.com/loiht2/getaround-pricing/backend/handlers"
	"github.com/loiht2/getaround-pricing/backend/k8s"
	"github.com/loiht2/getaround-pricing/backend/logging"
	"github.com/loiht2/getaround-pricing/backend/metrics"
	"github.com/loiht2/getaround-pricing/backend/middleware"
	"github.com/loiht2/getaround-pricing/backend/monitor"
	"github.com/loiht2/getaround-pricing/backend/registry"
	"github.com/loiht2/getaround-pricing/backend/repository"
	"github.com/loiht2/getaround-pricing/backend/serving"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file (optional, environment variables override it)")
	port := flag.String("port", "", "Server port (overrides config)")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port != "" {
		settings.Port = *port
	}

	logger := logging.Init(settings.Log.Level, settings.Log.Format)
	gin.SetMode(settings.GinMode)
	logger.Info("starting Getaround pricing backend", "model", settings.Model.URI)

	ref, err := registry.ParseReference(settings.Model.URI)
	if err != nil {
		logger.Error("invalid model reference", "error", err)
		os.Exit(1)
	}

	// Initialize configuration
	cfg, err := config.New(context.Background(), settings, logger)
	if err != nil {
		logger.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	defer cfg.Close()

	repo := repository.NewRepository(cfg.DB)
	reg := registry.New(repo, cfg.Blobs, cfg.Publisher, logger)
	m := metrics.NewRegistry()
	svc := serving.New(reg, ref, m, logger)

	// Keep the served artifact warm and follow "latest"
	watcher := monitor.NewModelWatcher(svc, settings.Model.WatchInterval, logger)
	watcher.Start()
	defer watcher.Stop()

	deps := handlers.Dependencies{
		Predictor: svc,
		Catalog:   reg,
		Runs:      repo,
		Jobs:      repo,
		Converter: converter.NewConverter(settings.Kubernetes.TrainerImage, settings.Kubernetes.EnvSecret),
		Metrics:   m.Handler(),
		Logger:    logger,
	}

	if cfg.K8sClient != nil {
		k8sClient := k8s.NewClient(cfg.K8sClient, logger)
		deps.Cluster = k8sClient

		jobMonitor := monitor.NewJobMonitor(repo, k8sClient, settings.Kubernetes.MonitorInterval, logger)
		jobMonitor.Start()
		defer jobMonitor.Stop()
	} else {
		logger.Info("kubernetes disabled, training run endpoints will return 503")
	}

	if url := settings.Dashboard.DataURL; url != "" {
		deps.Dashboard = handlers.NewDashboardLoader(func(ctx context.Context) ([]dashboard.Rental, error) {
			return dashboard.LoadRentals(ctx, url, cfg.Objects)
		})
		// Download in the background so the first request does not pay for it
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := deps.Dashboard.Analysis(ctx); err != nil {
				logger.Warn("failed to preload dashboard data", "url", url, "error", err)
				return
			}
			logger.Info("dashboard data loaded", "url", url)
		}()
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())

	// Enable CORS (must be first after recovery)
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Instrument(m))
	router.Use(middleware.Namespace(settings.Kubernetes.Namespace))

	handlers.NewHandler(deps).RegisterRoutes(router)

	// Create HTTP server with proper configuration
	srv := &http.Server{
		Addr:         ":" + settings.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("starting server", "port", settings.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with 10-second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped gracefully")
}
