// Package app provides the dependency injection container assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/allisson/escrowd/internal/backoff"
	"github.com/allisson/escrowd/internal/clock"
	"github.com/allisson/escrowd/internal/config"
	"github.com/allisson/escrowd/internal/database"
	"github.com/allisson/escrowd/internal/escrow"
	appHTTP "github.com/allisson/escrowd/internal/http"
	jobHTTP "github.com/allisson/escrowd/internal/job/http"
	jobRepository "github.com/allisson/escrowd/internal/job/repository"
	jobUsecase "github.com/allisson/escrowd/internal/job/usecase"
	"github.com/allisson/escrowd/internal/metrics"
	"github.com/allisson/escrowd/internal/signing"
	webhookHTTP "github.com/allisson/escrowd/internal/webhook/http"
	webhookRepository "github.com/allisson/escrowd/internal/webhook/repository"
	webhookService "github.com/allisson/escrowd/internal/webhook/service"
	webhookUsecase "github.com/allisson/escrowd/internal/webhook/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	signer          signing.Signer
	gateway         escrow.Gateway

	// Repositories
	jobRepo      jobUsecase.JobRepository
	webhookRepo  webhookUsecase.WebhookRepository
	incomingRepo webhookUsecase.IncomingWebhookRepository

	// Use cases
	jobUseCase       jobUsecase.JobUseCase
	lifecycleUseCase jobUsecase.LifecycleUseCase
	deliveryUseCase  webhookUsecase.DeliveryUseCase
	incomingUseCase  webhookUsecase.IncomingUseCase

	// Servers
	httpServer    *appHTTP.Server
	metricsServer *appHTTP.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	signerInit          sync.Once
	gatewayInit         sync.Once
	jobRepoInit         sync.Once
	webhookRepoInit     sync.Once
	incomingRepoInit    sync.Once
	jobUseCaseInit      sync.Once
	lifecycleInit       sync.Once
	deliveryInit        sync.Once
	incomingInit        sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(database.Config{
			Driver:             c.config.DBDriver,
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			c.initErrors["db"] = fmt.Errorf("failed to connect to database: %w", err)
			return
		}
		c.db = db
	})
	if err, exists := c.initErrors["db"]; exists {
		return nil, err
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["txManager"] = fmt.Errorf("failed to get database for tx manager: %w", err)
			return
		}
		c.txManager = database.NewTxManager(db)
	})
	if err, exists := c.initErrors["txManager"]; exists {
		return nil, err
	}
	return c.txManager, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		c.metricsProvider = provider
	})
	if err, exists := c.initErrors["metricsProvider"]; exists {
		return nil, err
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. A no-op implementation
// is returned when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["businessMetrics"] = err
			return
		}
		if provider == nil {
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		bm, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["businessMetrics"] = fmt.Errorf("failed to create business metrics: %w", err)
			return
		}
		c.businessMetrics = bm
	})
	if err, exists := c.initErrors["businessMetrics"]; exists {
		return nil, err
	}
	return c.businessMetrics, nil
}

// Signer returns the webhook signer, or nil when no signing key is configured.
// The key may be decrypted through a KMS keeper, which requires a context.
func (c *Container) Signer(ctx context.Context) (signing.Signer, error) {
	c.signerInit.Do(func() {
		key, err := signing.LoadKey(ctx, signing.KeyConfig{
			PlainKey:     c.config.WebhookSigningKey,
			KMSURI:       c.config.WebhookSigningKeyKMSURI,
			EncryptedKey: c.config.WebhookSigningKeyEncrypted,
		})
		if err != nil {
			c.initErrors["signer"] = fmt.Errorf("failed to load webhook signing key: %w", err)
			return
		}
		if len(key) == 0 {
			return
		}
		c.signer = signing.NewSigner(key)
	})
	if err, exists := c.initErrors["signer"]; exists {
		return nil, err
	}
	return c.signer, nil
}

// EscrowGateway returns the escrow gateway client.
func (c *Container) EscrowGateway() escrow.Gateway {
	c.gatewayInit.Do(func() {
		c.gateway = escrow.NewHTTPGateway(c.config.EscrowGatewayURL, c.config.EscrowGatewayTimeout)
	})
	return c.gateway
}

// JobRepository returns the job repository for the configured database driver.
func (c *Container) JobRepository() (jobUsecase.JobRepository, error) {
	c.jobRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["jobRepo"] = fmt.Errorf("failed to get database for job repository: %w", err)
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.jobRepo = jobRepository.NewMySQLJobRepository(db)
		case "postgres":
			c.jobRepo = jobRepository.NewPostgreSQLJobRepository(db)
		default:
			c.initErrors["jobRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if err, exists := c.initErrors["jobRepo"]; exists {
		return nil, err
	}
	return c.jobRepo, nil
}

// WebhookRepository returns the outbound webhook repository for the configured driver.
func (c *Container) WebhookRepository() (webhookUsecase.WebhookRepository, error) {
	c.webhookRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["webhookRepo"] = fmt.Errorf("failed to get database for webhook repository: %w", err)
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.webhookRepo = webhookRepository.NewMySQLWebhookRepository(db)
		case "postgres":
			c.webhookRepo = webhookRepository.NewPostgreSQLWebhookRepository(db)
		default:
			c.initErrors["webhookRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if err, exists := c.initErrors["webhookRepo"]; exists {
		return nil, err
	}
	return c.webhookRepo, nil
}

// IncomingWebhookRepository returns the inbound webhook repository for the configured driver.
func (c *Container) IncomingWebhookRepository() (webhookUsecase.IncomingWebhookRepository, error) {
	c.incomingRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["incomingRepo"] = fmt.Errorf("failed to get database for incoming webhook repository: %w", err)
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.incomingRepo = webhookRepository.NewMySQLIncomingWebhookRepository(db)
		case "postgres":
			c.incomingRepo = webhookRepository.NewPostgreSQLIncomingWebhookRepository(db)
		default:
			c.initErrors["incomingRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if err, exists := c.initErrors["incomingRepo"]; exists {
		return nil, err
	}
	return c.incomingRepo, nil
}

// JobUseCase returns the job management use case, decorated with metrics.
func (c *Container) JobUseCase() (jobUsecase.JobUseCase, error) {
	c.jobUseCaseInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["jobUseCase"] = err
			return
		}
		jobRepo, err := c.JobRepository()
		if err != nil {
			c.initErrors["jobUseCase"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["jobUseCase"] = err
			return
		}

		useCase := jobUsecase.NewJobUseCase(txManager, jobRepo, clock.NewReal())
		c.jobUseCase = jobUsecase.NewJobUseCaseWithMetrics(useCase, businessMetrics)
	})
	if err, exists := c.initErrors["jobUseCase"]; exists {
		return nil, err
	}
	return c.jobUseCase, nil
}

// LifecycleUseCase returns the lifecycle worker use case.
func (c *Container) LifecycleUseCase(ctx context.Context) (jobUsecase.LifecycleUseCase, error) {
	c.lifecycleInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["lifecycleUseCase"] = err
			return
		}
		jobRepo, err := c.JobRepository()
		if err != nil {
			c.initErrors["lifecycleUseCase"] = err
			return
		}
		webhookRepo, err := c.WebhookRepository()
		if err != nil {
			c.initErrors["lifecycleUseCase"] = err
			return
		}
		signer, err := c.Signer(ctx)
		if err != nil {
			c.initErrors["lifecycleUseCase"] = err
			return
		}

		lifecycleConfig := jobUsecase.LifecycleConfig{
			Interval:      c.config.WorkerInterval,
			BatchSize:     c.config.WorkerBatchSize,
			MaxRetryCount: c.config.WorkerMaxRetryCount,
			Concurrency:   c.config.WorkerConcurrency,
			SignWebhooks:  signer != nil,
		}

		c.lifecycleUseCase = jobUsecase.NewLifecycleUseCase(
			lifecycleConfig,
			txManager,
			jobRepo,
			webhookRepo,
			c.EscrowGateway(),
			backoff.NewExponential(c.config.WorkerBackoffInterval),
			clock.NewReal(),
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["lifecycleUseCase"]; exists {
		return nil, err
	}
	return c.lifecycleUseCase, nil
}

// DeliveryUseCase returns the webhook delivery worker use case, decorated with metrics.
func (c *Container) DeliveryUseCase(ctx context.Context) (webhookUsecase.DeliveryUseCase, error) {
	c.deliveryInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["deliveryUseCase"] = err
			return
		}
		webhookRepo, err := c.WebhookRepository()
		if err != nil {
			c.initErrors["deliveryUseCase"] = err
			return
		}
		signer, err := c.Signer(ctx)
		if err != nil {
			c.initErrors["deliveryUseCase"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["deliveryUseCase"] = err
			return
		}

		sender := webhookService.NewHTTPSender(c.EscrowGateway(), signer, c.config.WebhookDeliveryTimeout)

		deliveryConfig := webhookUsecase.DeliveryConfig{
			Interval:      c.config.WorkerInterval,
			BatchSize:     c.config.WorkerBatchSize,
			MaxRetryCount: c.config.WorkerMaxRetryCount,
		}

		useCase := webhookUsecase.NewDeliveryUseCase(
			deliveryConfig,
			txManager,
			webhookRepo,
			sender,
			backoff.NewExponential(c.config.WorkerBackoffInterval),
			clock.NewReal(),
			c.Logger(),
		)
		c.deliveryUseCase = webhookUsecase.NewDeliveryUseCaseWithMetrics(useCase, businessMetrics)
	})
	if err, exists := c.initErrors["deliveryUseCase"]; exists {
		return nil, err
	}
	return c.deliveryUseCase, nil
}

// IncomingUseCase returns the inbound webhook use case, decorated with metrics.
func (c *Container) IncomingUseCase() (webhookUsecase.IncomingUseCase, error) {
	c.incomingInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["incomingUseCase"] = err
			return
		}
		incomingRepo, err := c.IncomingWebhookRepository()
		if err != nil {
			c.initErrors["incomingUseCase"] = err
			return
		}
		jobRepo, err := c.JobRepository()
		if err != nil {
			c.initErrors["incomingUseCase"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["incomingUseCase"] = err
			return
		}

		incomingConfig := webhookUsecase.IncomingConfig{
			Interval:      c.config.WorkerInterval,
			BatchSize:     c.config.WorkerBatchSize,
			MaxRetryCount: c.config.WorkerMaxRetryCount,
		}

		useCase := webhookUsecase.NewIncomingUseCase(
			incomingConfig,
			txManager,
			incomingRepo,
			jobRepo,
			backoff.NewExponential(c.config.WorkerBackoffInterval),
			clock.NewReal(),
			c.Logger(),
		)
		c.incomingUseCase = webhookUsecase.NewIncomingUseCaseWithMetrics(useCase, businessMetrics)
	})
	if err, exists := c.initErrors["incomingUseCase"]; exists {
		return nil, err
	}
	return c.incomingUseCase, nil
}

// HTTPServer returns the API HTTP server with all handlers wired.
func (c *Container) HTTPServer(ctx context.Context) (*appHTTP.Server, error) {
	c.httpServerInit.Do(func() {
		logger := c.Logger()

		db, err := c.DB()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		jobUseCase, err := c.JobUseCase()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		incomingUseCase, err := c.IncomingUseCase()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		signer, err := c.Signer(ctx)
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		metricsProvider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}

		serverConfig := appHTTP.ServerConfig{
			Host:                           c.config.ServerHost,
			Port:                           c.config.ServerPort,
			APIKeyHash:                     c.config.APIKeyHash,
			RateLimitWebhookEnabled:        c.config.RateLimitWebhookEnabled,
			RateLimitWebhookRequestsPerSec: c.config.RateLimitWebhookRequestsPerSec,
			RateLimitWebhookBurst:          c.config.RateLimitWebhookBurst,
			CORSEnabled:                    c.config.CORSEnabled,
			CORSAllowOrigins:               c.config.CORSAllowOrigins,
		}

		jobHandler := jobHTTP.NewJobHandler(jobUseCase, logger)
		webhookHandler := webhookHTTP.NewWebhookHandler(incomingUseCase, signer, logger)

		var httpMetricsMiddleware gin.HandlerFunc
		if metricsProvider != nil {
			httpMetricsMiddleware = metrics.HTTPMetricsMiddleware(
				metricsProvider.MeterProvider(),
				c.config.MetricsNamespace,
			)
		}

		c.httpServer = appHTTP.NewServer(
			serverConfig,
			logger,
			db,
			jobHandler,
			webhookHandler,
			httpMetricsMiddleware,
		)
	})
	if err, exists := c.initErrors["httpServer"]; exists {
		return nil, err
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*appHTTP.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		if provider == nil {
			return
		}
		c.metricsServer = appHTTP.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if err, exists := c.initErrors["metricsServer"]; exists {
		return nil, err
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}
