package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"transit-pass-api/internal/cache"
	"transit-pass-api/internal/config"
	"transit-pass-api/internal/database"
	"transit-pass-api/internal/events"
	"transit-pass-api/internal/features"
	"transit-pass-api/internal/fleet"
	"transit-pass-api/internal/handler"
	"transit-pass-api/internal/logging"
	"transit-pass-api/internal/middleware"
	"transit-pass-api/internal/scheduler"
	"transit-pass-api/internal/seed"
	"transit-pass-api/internal/service"
	"transit-pass-api/internal/store"
	"transit-pass-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "Optional config file (yaml, json or toml)")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	flags := features.NewManager()
	features.Defaults(flags, cfg.Features.SingleActiveSubscription, cfg.Features.CascadeClientDelete, cfg.Events.Enabled)

	storeOpts := []store.Option{
		store.WithSingleActiveSubscription(func() bool { return flags.IsEnabled(features.SingleActiveSubscription) }),
	}

	var db *database.DB
	if cfg.Database.Path != "" {
		db, err = database.NewDB(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.Close()
		storeOpts = append(storeOpts, store.WithPersister(db))
	}

	st := store.New(storeOpts...)
	if err := loadData(ctx, cfg, db, st, logger); err != nil {
		return err
	}

	eventManager := events.NewManager(func() bool { return flags.IsEnabled(features.EventHooks) }, logger.Named("events"))

	var forwarder *events.AMQPForwarder
	defer func() {
		if forwarder != nil {
			forwarder.CloseAfter(eventManager)
			return
		}
		eventManager.Shutdown()
	}()

	if cfg.Events.AMQPURL != "" {
		fwd, err := events.NewAMQPForwarder(cfg.Events.AMQPURL, cfg.Events.Exchange, logger.Named("amqp"))
		if err != nil {
			// Forwarding is optional; local hooks keep working without the broker.
			logger.Warn("event forwarding disabled", zap.Error(err))
		} else {
			fwd.Attach(eventManager)
			forwarder = fwd
		}
	}

	fleetCache, closeCache := newFleetCache(ctx, cfg, logger)
	defer closeCache()

	svc := service.NewService(st,
		service.WithEvents(eventManager),
		service.WithFeatures(flags),
		service.WithFleet(fleet.NewFeed(fleetCache, time.Duration(cfg.Cache.FleetTTL)*time.Second)),
		service.WithLogger(logger.Named("service")),
	)

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(svc, cfg.Scheduler.ExpirySchedule, logger.Named("scheduler"))
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() { <-sched.Stop().Done() }()
	}

	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Logger:      logger.Named("http"),
	})

	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.RequestLogger(logger.Named("access")))
	r.Use(middleware.MetricsMiddleware())

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseOrigins(cfg.Security.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				logger.Error("health check failed", zap.Error(err))
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	h.Routes(r)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		protocol := "HTTP"
		if cfg.Server.EnableTLS {
			protocol = "HTTPS"
		}
		logger.Info("starting server",
			zap.String("protocol", protocol),
			zap.String("addr", addr),
			zap.String("database", cfg.Database.Path),
			zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		)

		var err error
		if cfg.Server.EnableTLS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-sigint:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// loadData fills the store from the database, seeding an empty database with the
// sample dataset when asked to. Without a database only the seed applies.
func loadData(ctx context.Context, cfg *config.Config, db *database.DB, st *store.Store, logger *zap.Logger) error {
	if db == nil {
		if cfg.Database.SeedData {
			logger.Info("seeding in-memory store")
			return st.Import(seed.Dataset(time.Now().UTC()))
		}
		return nil
	}

	empty, err := db.Empty(ctx)
	if err != nil {
		return fmt.Errorf("inspect database: %w", err)
	}
	if empty && cfg.Database.SeedData {
		logger.Info("seeding empty database", zap.String("path", cfg.Database.Path))
		if err := db.SaveDataset(ctx, seed.Dataset(time.Now().UTC())); err != nil {
			return fmt.Errorf("seed database: %w", err)
		}
	}

	data, err := db.Load(ctx)
	if err != nil {
		return fmt.Errorf("load database: %w", err)
	}
	if err := st.Import(data); err != nil {
		return fmt.Errorf("import data: %w", err)
	}
	logger.Info("store loaded",
		zap.Int("clients", len(data.Clients)),
		zap.Int("plans", len(data.Plans)),
		zap.Int("subscriptions", len(data.Subscriptions)),
		zap.Int("trips", len(data.Trips)),
	)
	return nil
}

// newFleetCache connects to Redis when configured and falls back to the in-process cache.
func newFleetCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, func()) {
	if cfg.Cache.RedisAddr == "" {
		return cache.NewInMemoryCache(), func() {}
	}

	rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, "transit:")
	if err != nil {
		logger.Warn("redis unavailable, using in-memory fleet cache", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		return cache.NewInMemoryCache(), func() {}
	}
	return rc, func() {
		if err := rc.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
}

func parseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
