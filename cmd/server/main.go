package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appinvoicing "github.com/billcraft/backend/internal/application/invoicing"
	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/infrastructure/cache"
	"github.com/billcraft/backend/internal/infrastructure/config"
	"github.com/billcraft/backend/internal/infrastructure/directory"
	"github.com/billcraft/backend/internal/infrastructure/logger"
	"github.com/billcraft/backend/internal/infrastructure/notification"
	"github.com/billcraft/backend/internal/infrastructure/outbox"
	"github.com/billcraft/backend/internal/infrastructure/persistence"
	"github.com/billcraft/backend/internal/infrastructure/scheduler"
	"github.com/billcraft/backend/internal/infrastructure/tax"
	"github.com/billcraft/backend/internal/infrastructure/telemetry"
	"github.com/billcraft/backend/internal/interfaces/http/handler"
	"github.com/billcraft/backend/internal/interfaces/http/middleware"
	"github.com/billcraft/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting billcraft backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Database
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.Enabled {
		if err := telemetry.EnableQueryTracing(db.DB, cfg.Database.DBName); err != nil {
			log.Fatal("Failed to enable query tracing", zap.Error(err))
		}
	}
	log.Info("Database connected")

	// Repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	reminderRepo := persistence.NewGormReminderStateRepository(db.DB)
	outboxRepo := persistence.NewGormOutboxRepository(db.DB)
	commandIdempotency := persistence.NewGormIdempotencyStore(db.DB)

	// Reminder dedup keys are short lived and high volume, so they go to
	// Redis, with the in-process store covering development setups.
	reminderIdempotency, err := cache.NewIdempotencyStoreFactory(
		cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create reminder idempotency store", zap.Error(err))
	}

	// Snapshot sources
	customers := directory.NewStaticCustomerDirectory()
	paymentMethods := directory.NewStaticPaymentMethods(defaultPaymentSnapshot(cfg))
	legalEntities := directory.NewStaticLegalEntities(defaultIssuerSnapshot(cfg))
	policies := directory.NewStaticPolicyProvider()

	clock := shared.SystemClock{}
	taxEngine := tax.NewStaticEngine(tax.DEStandardVAT)
	notifier := notification.NewOutboxNotification(outboxRepo, clock, log)

	// Application services
	invoiceService := appinvoicing.NewInvoiceService(
		invoiceRepo, reminderRepo, outboxRepo, commandIdempotency,
		taxEngine, customers, paymentMethods, legalEntities,
		notifier, policies, clock, log,
	)
	hostname, _ := os.Hostname()
	reminderService := appinvoicing.NewReminderService(
		invoiceRepo, reminderRepo, outboxRepo, reminderIdempotency,
		notifier, policies, clock, log,
		appinvoicing.ReminderConfig{
			LockTTL:    cfg.Reminder.LockTTL,
			BatchLimit: cfg.Reminder.BatchLimit,
		},
		hostname,
	)

	// Background workers
	if cfg.Reminder.Enabled {
		reminderScheduler := scheduler.NewReminderScheduler(
			scheduler.ReminderSchedulerConfig{PollInterval: cfg.Reminder.PollInterval},
			reminderService,
			reminderRepo,
			log,
		)
		if err := reminderScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start reminder scheduler", zap.Error(err))
		}
		defer stopComponent(reminderScheduler.Stop, "reminder scheduler", log)
	}

	if cfg.Outbox.RelayEnabled {
		relay := outbox.NewRelay(
			outboxRepo,
			outbox.NewLoggingPublisher(log),
			outbox.RelayConfig{
				BatchSize:    cfg.Outbox.BatchSize,
				PollInterval: cfg.Outbox.PollInterval,
				MaxRetries:   cfg.Outbox.MaxRetries,
			},
			clock,
			log,
		)
		if err := relay.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox relay", zap.Error(err))
		}
		defer stopComponent(relay.Stop, "outbox relay", log)
	}

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxy configuration", zap.Error(err))
		}
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.CORS(corsCfg),
		middleware.BodySizeLimit(cfg.HTTP.MaxBodySize),
		middleware.Identity(middleware.DefaultIdentityConfig()),
	)

	handler.NewSystemHandler(db, version).RegisterRoutes(engine)
	router.NewRouter(engine).
		Register(handler.NewInvoiceHandler(invoiceService, reminderService)).
		Setup()

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	log.Info("Server stopped")
}

// stopComponent stops a background component with a bounded wait
func stopComponent(stop func(context.Context) error, name string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		log.Error("Failed to stop "+name, zap.Error(err))
	}
}

// defaultIssuerSnapshot builds the configured default issuing entity, nil
// when unconfigured
func defaultIssuerSnapshot(cfg *config.Config) *invoicing.IssuerSnapshot {
	if cfg.Invoicing.IssuerLegalName == "" {
		return nil
	}
	return &invoicing.IssuerSnapshot{
		LegalName:    cfg.Invoicing.IssuerLegalName,
		AddressLine1: cfg.Invoicing.IssuerAddressLine1,
		PostalCode:   cfg.Invoicing.IssuerPostalCode,
		City:         cfg.Invoicing.IssuerCity,
		Country:      cfg.Invoicing.IssuerCountry,
		VATNumber:    cfg.Invoicing.IssuerVATNumber,
	}
}

// defaultPaymentSnapshot builds the configured default payment instructions,
// nil when unconfigured
func defaultPaymentSnapshot(cfg *config.Config) *invoicing.PaymentSnapshot {
	if cfg.Invoicing.PaymentMethodKind == "" {
		return nil
	}
	return &invoicing.PaymentSnapshot{
		MethodKind:    cfg.Invoicing.PaymentMethodKind,
		AccountHolder: cfg.Invoicing.PaymentHolder,
		IBAN:          cfg.Invoicing.PaymentIBAN,
		BIC:           cfg.Invoicing.PaymentBIC,
	}
}
