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

	"github.com/frostdev-ops/pma-watch-bridge/internal/adapters/delivery"
	"github.com/frostdev-ops/pma-watch-bridge/internal/adapters/homeassistant"
	"github.com/frostdev-ops/pma-watch-bridge/internal/api"
	"github.com/frostdev-ops/pma-watch-bridge/internal/config"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/entities"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/icons"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/metrics"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/notifier"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/watches"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database"
	"github.com/frostdev-ops/pma-watch-bridge/pkg/logger"
	"github.com/frostdev-ops/pma-watch-bridge/pkg/version"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.WithField("version", version.GetFullVersion()).Info("Starting watch bridge")

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	// Run migrations
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB, cfg.Database.MigrationsPath); err != nil {
			log.Fatal("Failed to run migrations: ", err)
		}
	}

	// Create repositories
	repos := database.NewRepositories(db, log)

	collector := metrics.NewPrometheusCollector(&metrics.MetricsConfig{
		Enabled: cfg.Metrics.Enabled,
		Prefix:  cfg.Metrics.Prefix,
	})

	// Entity metadata
	haClient := homeassistant.NewRESTClient(
		cfg.HomeAssistant.URL,
		cfg.HomeAssistant.Token,
		config.Duration(cfg.HomeAssistant.RequestTimeout, 30*time.Second),
		log,
	)
	detailCache := entities.NewDetailCache(repos.EntityCache, haClient, log)
	resolver := entities.NewResolver(detailCache)

	refresher := entities.NewRefresher(cfg.Cache.RefreshSchedule, detailCache, repos.Watches, log)
	if err := refresher.Start(); err != nil {
		log.Fatal("Failed to start entity cache refresher: ", err)
	}
	defer refresher.Stop()

	iconResolver, err := icons.NewResolver(icons.Config{
		PublicURL: cfg.Icons.PublicURL,
		SourceURL: cfg.Icons.SourceURL,
		Directory: cfg.Icons.Directory,
		Tint:      cfg.Icons.Tint,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize icons: ", err)
	}

	// Delivery
	sender := delivery.NewShoutrrrSender(delivery.Config{
		DefaultURL: cfg.Delivery.DefaultURL,
		Channels:   cfg.Delivery.Channels,
		Timeout:    config.Duration(cfg.Delivery.Timeout, 15*time.Second),
	}, log)
	if err := sender.Validate(); err != nil {
		log.WithError(err).Warn("Some delivery URLs are invalid; notifications to them will fail")
	}

	engine := notifier.NewEngine(repos.Watches, detailCache, sender, notifier.Options{
		Brightness: notifier.BrightnessConfig{
			Enabled:       cfg.Notifications.Brightness.Enabled,
			MinPercent:    cfg.Notifications.Brightness.MinPercent,
			MinDeltaSteps: cfg.Notifications.Brightness.MinDeltaSteps,
		},
		Icons:   iconResolver,
		Metrics: collector,
	}, log)

	// Event session
	session := homeassistant.NewSession(homeassistant.SessionConfig{
		URL:              cfg.HomeAssistant.URL,
		Token:            cfg.HomeAssistant.Token,
		PreferFiltered:   cfg.HomeAssistant.PreferFiltered,
		SubscribeTimeout: config.Duration(cfg.HomeAssistant.SubscribeTimeout, 10*time.Second),
		PingInterval:     config.Duration(cfg.HomeAssistant.PingInterval, 30*time.Second),
	}, repos.Watches, engine, collector, log)

	supervisor := homeassistant.NewSupervisor(session, homeassistant.Backoff{
		Min: config.Duration(cfg.HomeAssistant.ReconnectMin, time.Second),
		Max: config.Duration(cfg.HomeAssistant.ReconnectMax, time.Minute),
	}, collector, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		supervisor.Run(ctx)
	}()

	// Health checks
	health := metrics.NewHealthChecker()
	health.Register("database", func(ctx context.Context) metrics.HealthStatus {
		if err := db.PingContext(ctx); err != nil {
			return metrics.HealthStatus{Status: metrics.StatusUnhealthy, Message: err.Error()}
		}
		return metrics.HealthStatus{Status: metrics.StatusHealthy, Message: "ok"}
	})
	health.Register("home_assistant", func(ctx context.Context) metrics.HealthStatus {
		state := session.State()
		status := metrics.StatusDegraded
		if state == homeassistant.StateStreaming {
			status = metrics.StatusHealthy
		}
		return metrics.HealthStatus{Status: status, Message: state.String()}
	})

	var srv *http.Server
	if cfg.Server.Enabled {
		watchService := watches.NewService(repos.Watches, detailCache, resolver, log)
		router := api.NewRouter(cfg, api.Dependencies{
			Watches: watchService,
			Health:  health,
			Metrics: collector,
		}, log)

		srv = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Infof("Starting HTTP API on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("Failed to start server: ", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server forced to shutdown")
		}
	}

	select {
	case <-sessionDone:
	case <-shutdownCtx.Done():
		log.Warn("Home Assistant session did not stop in time")
	}

	log.Info("Bridge exited")
}
