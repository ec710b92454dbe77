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

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/seaside-charters/api/internal/calendar"
	"github.com/seaside-charters/api/internal/handlers"
	"github.com/seaside-charters/api/internal/jobs"
	"github.com/seaside-charters/api/internal/leads"
	"github.com/seaside-charters/api/internal/notifications"
	"github.com/seaside-charters/api/internal/payments"
	"github.com/seaside-charters/api/internal/platform/config"
	"github.com/seaside-charters/api/internal/platform/idempotency"
	"github.com/seaside-charters/api/internal/platform/intentstore"
	"github.com/seaside-charters/api/internal/platform/observability"
	"github.com/seaside-charters/api/internal/platform/secrets"
	"github.com/seaside-charters/api/internal/repositories"
	"github.com/seaside-charters/api/internal/repositories/postgres"
	"github.com/seaside-charters/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Database.DSN", "PSP.StripeAPIKey", "PSP.StripeWebhookSecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	events := observability.NewEventLogger(logger.Named("booking"))
	metrics := observability.BookingMetrics{}

	db, err := postgres.Open(ctx, cfg.Database.DSN, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("postgres close error", zap.Error(err))
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}()

	intents, err := intentstore.NewRedisStore(redisClient, cfg.Redis.IntentKeyPrefix)
	if err != nil {
		logger.Fatal("failed to initialise intent store", zap.Error(err))
	}
	idempotencyStore, err := idempotency.NewRedisStore(redisClient)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}

	catalogRepo := postgres.NewCatalogRepository(db)
	customerRepo := postgres.NewCustomerRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	operatorRepo := postgres.NewOperatorRepository(db)

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "postgres", Check: db.PingContext},
		{Name: "redis", Check: intents.Ping},
	})
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		Logger:        payments.StripeLogger(observability.NewEventLogger(logger.Named("stripe"))),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	engine, err := services.NewPricingEngine(services.PricingEngineConfig{
		ProcessingFeePercent:  cfg.Pricing.ProcessingFeePercent,
		MiamiRegistrationFee:  cfg.Pricing.MiamiRegistrationFee,
		MiamiYachtLengthLimit: cfg.Pricing.MiamiYachtLengthLimit,
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	var mailer services.Mailer
	if strings.TrimSpace(cfg.Email.SendGridAPIKey) != "" {
		sendgridMailer, err := notifications.NewSendGridMailer(notifications.SendGridConfig{
			APIKey:          cfg.Email.SendGridAPIKey,
			FromAddress:     cfg.Email.FromAddress,
			FromName:        cfg.Email.FromName,
			AlertRecipients: cfg.Email.AlertRecipients,
			Logger:          observability.NewEventLogger(logger.Named("email")),
		})
		if err != nil {
			logger.Fatal("failed to initialise mailer", zap.Error(err))
		}
		mailer = sendgridMailer
	} else {
		logger.Warn("email disabled: sendgrid api key not configured")
	}

	var calendarSync services.CalendarSync
	if strings.TrimSpace(cfg.Calendar.ClientID) != "" {
		googleCalendar, err := calendar.NewGoogleCalendar(calendar.Config{
			ClientID:          cfg.Calendar.ClientID,
			ClientSecret:      cfg.Calendar.ClientSecret,
			TokenURL:          cfg.Calendar.TokenURL,
			DefaultCalendarID: cfg.Calendar.DefaultCalendarID,
			Operators:         operatorRepo,
			Logger:            observability.NewEventLogger(logger.Named("calendar")),
		})
		if err != nil {
			logger.Fatal("failed to initialise calendar sync", zap.Error(err))
		}
		calendarSync = googleCalendar
	} else {
		logger.Warn("calendar sync disabled: oauth client not configured")
	}

	var leadCapturer services.LeadCapturer
	if strings.TrimSpace(cfg.Leads.WebhookURL) != "" {
		client, err := leads.NewWebhookClient(cfg.Leads.WebhookURL, leads.WithTimeout(cfg.Leads.Timeout))
		if err != nil {
			logger.Fatal("failed to initialise crm lead client", zap.Error(err))
		}
		leadCapturer = client
	}

	var publisher services.BookingEventPublisher
	if cfg.Jobs.ProjectID != "" && cfg.Jobs.BookingConfirmedTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Jobs.ProjectID, pubsubClientOptions(envValues)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(cfg.Jobs.BookingConfirmedTopic)
		defer topic.Stop()
		bookingPublisher, err := jobs.NewPubSubBookingPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise booking publisher", zap.Error(err))
		}
		publisher = bookingPublisher
	}

	bookingService, err := services.NewBookingService(services.BookingServiceDeps{
		Catalog:        catalogRepo,
		Engine:         engine,
		DeliveryCharge: cfg.Pricing.DeliveryCharge,
		Logger:         events,
	})
	if err != nil {
		logger.Fatal("failed to initialise booking service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Catalog:        catalogRepo,
		Engine:         engine,
		Intents:        intents,
		Gateway:        stripeProvider,
		Leads:          leadCapturer,
		Metrics:        metrics,
		DeliveryCharge: cfg.Pricing.DeliveryCharge,
		IntentTTL:      cfg.Redis.IntentTTL,
		SuccessURL:     cfg.PSP.SuccessURL,
		CancelURL:      cfg.PSP.CancelURL,
		Logger:         events,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	inquiryService, err := services.NewInquiryService(services.InquiryServiceDeps{
		Catalog:        catalogRepo,
		Customers:      customerRepo,
		Bookings:       bookingRepo,
		Engine:         engine,
		Mailer:         mailer,
		Leads:          leadCapturer,
		Metrics:        metrics,
		DeliveryCharge: cfg.Pricing.DeliveryCharge,
		Logger:         events,
	})
	if err != nil {
		logger.Fatal("failed to initialise inquiry service", zap.Error(err))
	}

	finalizerService, err := services.NewFinalizerService(services.FinalizerServiceDeps{
		Verifier:       stripeProvider,
		Intents:        intents,
		Catalog:        catalogRepo,
		Customers:      customerRepo,
		Bookings:       bookingRepo,
		Engine:         engine,
		Mailer:         mailer,
		Calendar:       calendarSync,
		Publisher:      publisher,
		Metrics:        metrics,
		DeliveryCharge: cfg.Pricing.DeliveryCharge,
		IntentTTL:      cfg.Redis.IntentTTL,
		Logger:         events,
	})
	if err != nil {
		logger.Fatal("failed to initialise finalizer service", zap.Error(err))
	}

	projectID := strings.TrimSpace(cfg.Secrets.DefaultProject)
	if projectID == "" {
		projectID = cfg.Jobs.ProjectID
	}

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	bookingHandlers := handlers.NewBookingHandlers(bookingService, checkoutService, inquiryService,
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
	)
	webhookHandlers := handlers.NewPaymentWebhookHandlers(finalizerService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthRepository(healthRepo),
		handlers.WithHealthStartedAt(startedAt),
		handlers.WithHealthVersion(strings.TrimSpace(envValues["API_BUILD_VERSION"])),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(observability.MetricsHandler()),
		handlers.WithBookingRoutes(bookingHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("booking api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECRETS_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	fallbackPath := lookup("API_SECRETS_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project := lookup("API_SECRETS_DEFAULT_PROJECT"); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if credentialsFile := lookup("API_GOOGLE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func pubsubClientOptions(env map[string]string) []option.ClientOption {
	if credentialsFile := strings.TrimSpace(env["API_GOOGLE_CREDENTIALS_FILE"]); credentialsFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
	}
	return nil
}
