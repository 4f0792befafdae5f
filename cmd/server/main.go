package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
	"pharmapos/backend/internal/httpapi"
	"pharmapos/backend/internal/observability"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
	"pharmapos/backend/internal/store/sqlstore"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logger configuration: %v\n", err)
		os.Exit(1)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tp, shutdownTracing, err := observability.SetupTracing(ctx, cfg.Otel)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}
	shutdownLogging, err := observability.SetupLogging(ctx, cfg.Otel)
	if err != nil {
		logger.Fatal("log export setup failed", zap.Error(err))
	}
	shutdownTelemetry := observability.JoinShutdown(shutdownTracing, shutdownLogging)
	if cfg.Otel.Endpoint != "" {
		logger = observability.WithOtelBridge(cfg.Otel.ServiceName, logger.Level())
		logger.Info("telemetry: otlp", zap.String("endpoint", cfg.Otel.Endpoint))
	}
	defer func() { _ = logger.Sync() }()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository unavailable", zap.Error(err))
	}
	closers := []func() error{closeRepo}

	opts := []service.Option{
		service.WithLogger(logger.Named("service")),
		service.WithConflictRetries(cfg.Engine.ConflictRetries),
	}
	if tp != nil {
		opts = append(opts, service.WithTracer(tp.Tracer("pharmapos/backend/internal/service")))
	}

	codes, closeCodes := openBarcodeCache(ctx, cfg, logger)
	opts = append(opts, service.WithBarcodeCache(codes))
	closers = append(closers, closeCodes)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Otel.ServiceName,
		}, otel.GetTracerProvider())
		if err != nil {
			logger.Fatal("kafka publisher setup failed", zap.Error(err))
		}
		opts = append(opts, service.WithPublisher(publisher))
		closers = append(closers, publisher.Close)
		logger.Info("events: kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		logger.Info("events: noop")
	}

	svc := service.New(repo, opts...)
	auth := httpapi.NewAuthenticator(cfg.Auth.Secret, 8*time.Hour)
	api := httpapi.New(svc, auth, cfg.Server.AllowedOrigin, logger.Named("http"))

	if cfg.Database.URL == "" && cfg.Engine.SeedDemoData && !cfg.IsProduction() {
		logDemoToken(auth, logger)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("pharmacy POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openRepository picks SQL storage when DATABASE_URL is set and the in-memory
// store otherwise. A configured but unreachable database is fatal.
// openBarcodeCache prefers redis and falls back to an in-process cache when
// redis is not configured or not reachable.
func openBarcodeCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.BarcodeCache, func() error) {
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisBarcodeCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		err := redisCache.Ping(ctx)
		if err == nil {
			logger.Info("barcode cache: redis", zap.String("addr", cfg.Redis.Addr))
			return redisCache, redisCache.Close
		}
		logger.Warn("redis unavailable, using in-process barcode cache", zap.Error(err))
		_ = redisCache.Close()
	}
	logger.Info("barcode cache: memory", zap.Duration("ttl", cfg.Redis.TTL))
	return cache.NewMemoryBarcodeCache(cfg.Redis.TTL), func() error { return nil }
}

func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, func() error, error) {
	if cfg.Database.URL == "" {
		logger.Info("repository: in-memory", zap.Bool("demo_data", cfg.Engine.SeedDemoData))
		if cfg.Engine.SeedDemoData {
			return memory.NewSeeded(), func() error { return nil }, nil
		}
		return memory.New(), func() error { return nil }, nil
	}

	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlstore.Open(ctx, dialect, cfg.Database.URL, sqlstore.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Migrate:      true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s unavailable and DATABASE_URL is set; refusing to fall back to memory: %w", dialect, err)
	}
	logger.Info("repository: sql", zap.String("dialect", string(dialect)))
	return db, db.Close, nil
}

func logDemoToken(auth *httpapi.Authenticator, logger *zap.Logger) {
	token, expiresAt, err := auth.Sign(domain.Actor{
		UserID:     "demo-pharmacist",
		PharmacyID: memory.DemoPharmacyID,
		Role:       domain.RolePharmacist,
	})
	if err != nil {
		logger.Warn("demo token not issued", zap.Error(err))
		return
	}
	logger.Info("demo pharmacist token",
		zap.String("pharmacy_id", memory.DemoPharmacyID),
		zap.Time("expires_at", expiresAt),
		zap.String("token", token),
	)
}

var placeholderSecrets = []string{"change-me", "changeme", "dev-change-me", "secret"}

func validateSecurityConfig(cfg config.Config) error {
	secret := cfg.Auth.Secret
	if len(secret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	lowered := strings.ToLower(secret)
	for _, placeholder := range placeholderSecrets {
		if strings.HasPrefix(lowered, placeholder) {
			return fmt.Errorf("AUTH_SECRET looks like a placeholder")
		}
	}
	if cfg.Database.URL != "" {
		if _, err := sqlstore.ParseDialect(cfg.Database.Driver); err != nil {
			return err
		}
	}
	return nil
}
