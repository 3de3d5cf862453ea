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

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/di"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/handlers"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/auth"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/config"
	pfirestore "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/firestore"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/idempotency"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/jobs"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/observability"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/secrets"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
	firestoreRepo "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories/firestore"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories/memory"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories/postgres"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

const (
	redisNoncePrefix       = "freshfood:hmac-nonce:"
	redisIdempotencyPrefix = "freshfood:idempotency:"
	firebaseVerifyTimeout  = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	level, _ := config.Lookup("API_LOG_LEVEL")
	baseLogger, err := observability.NewLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	build := buildInfo(cfg, startedAt)
	checks := make([]repositories.DependencyCheck, 0, 5)

	var (
		firestoreProvider *pfirestore.Provider
		firestoreClient   *firestore.Client
	)
	if cfg.Store.Driver == config.StoreFirestore {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		firestoreClient, err = firestoreProvider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		checks = append(checks, firestoreCheck(firestoreClient))
	}

	registry, err := newRegistry(ctx, logger, cfg, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	checks = append(checks, repositories.DependencyCheck{
		Name:  cfg.Store.Driver,
		Check: registry.Ping,
	})

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		checks = append(checks, repositories.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	events, closeEvents, err := newEventPublisher(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer closeEvents()
	if cfg.Notifications.Transport == config.NotificationsKafka {
		checks = append(checks, kafkaCheck(cfg.Notifications.KafkaBrokers))
	}

	if secretProject(cfg) != "" {
		checks = append(checks, secretManagerCheck(fetcher))
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithLogger(logger),
		di.WithBuildInfo(build),
		di.WithHealthRepository(healthRepo),
	}
	if events != nil {
		containerOpts = append(containerOpts, di.WithEventPublisher(events))
	}
	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()
	svc := container.Services
	logger.Info("payment providers registered", zap.Any("methods", container.Payments.Methods()))

	idempotencyStore, err := newIdempotencyStore(redisClient, firestoreClient)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	authLogger := observability.ServiceLogger(logger, "auth")
	var verifier auth.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, firebaseVerifyTimeout)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		verifier = firebaseVerifier
	} else {
		logger.Warn("auth: firebase project not configured; buyer routes will reject requests")
	}
	authenticator := auth.NewAuthenticator(verifier, auth.WithAuthLogger(authLogger))

	hmacMiddleware, err := buildHMACMiddleware(cfg, redisClient, authLogger)
	if err != nil {
		logger.Fatal("failed to initialise hmac validator", zap.Error(err))
	}
	oidcMiddleware := buildOIDCMiddleware(logger, cfg, authLogger)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(build),
			handlers.WithHealthSystemService(svc.System),
		)),
		handlers.WithBuyerRoutes(
			handlers.NewCheckoutHandlers(authenticator, svc.Orders, handlers.WithCheckoutIdempotency(idempotencyMiddleware)).Routes,
			handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Loyalty).Routes,
		),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(svc.Orders, svc.Inventory, svc.Promotions).Routes),
		handlers.WithAdminMiddlewares(hmacMiddleware, observability.ActorLoggerMiddleware),
		handlers.WithInternalRoutes(handlers.NewInternalHandlers(svc.Orders).Routes),
		handlers.WithInternalMiddlewares(oidcMiddleware, observability.ActorLoggerMiddleware),
	}
	if svc.Callbacks != nil {
		gateway := handlers.NewGatewayHandlers(svc.Callbacks,
			handlers.WithGatewayRateLimit(cfg.RateLimits.CallbackPerSecond, cfg.RateLimits.CallbackBurst),
			handlers.WithGatewayLogger(logger.Named("gateway")),
		)
		opts = append(opts, handlers.WithPaymentRoutes(gateway.Routes))
	} else {
		logger.Warn("vnpay not configured; gateway callback routes disabled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	group.Go(func() error {
		serverLogger.Info("order settlement api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return idempotency.RunJanitor(groupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval,
			cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api stopped with error", zap.Error(err))
	}
}

func buildInfo(cfg config.Config, started time.Time) services.BuildInfo {
	version, _ := config.Lookup("API_BUILD_VERSION")
	if version = strings.TrimSpace(version); version == "" {
		version = "dev"
	}
	commit, _ := config.Lookup("API_BUILD_COMMIT_SHA")
	if commit = strings.TrimSpace(commit); commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newRegistry(ctx context.Context, logger *zap.Logger, cfg config.Config, provider *pfirestore.Provider) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case config.StoreFirestore:
		reg, err := firestoreRepo.NewRegistry(provider, time.Now)
		if err != nil {
			return nil, err
		}
		return reg, nil
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{DSN: cfg.Store.PostgresDSN})
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		reg, err := postgres.NewRegistry(pool, time.Now)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return reg, nil
	case config.StoreMemory:
		logger.Warn("store: using in-memory ledgers; data is lost on restart")
		return memory.NewRegistry(memory.NewStore(), time.Now), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (di.EventPublisher, func(), error) {
	noop := func() {}
	switch cfg.Notifications.Transport {
	case config.NotificationsPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, noop, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Notifications.PubSubTopic)
		publisher, err := jobs.NewPubSubEventPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return publisher, func() {
			topic.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}, nil
	case config.NotificationsKafka:
		publisher, err := jobs.NewKafkaEventPublisher(jobs.KafkaConfig{
			Brokers:     cfg.Notifications.KafkaBrokers,
			Topic:       cfg.Notifications.KafkaTopic,
			ErrorLogger: observability.NewPrintfAdapter(logger.Named("kafka")),
		})
		if err != nil {
			return nil, noop, err
		}
		return publisher, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka close error", zap.Error(err))
			}
		}, nil
	default:
		return nil, noop, nil
	}
}

func newIdempotencyStore(redisClient *redis.Client, firestoreClient *firestore.Client) (idempotency.Store, error) {
	switch {
	case redisClient != nil:
		store, err := idempotency.NewRedisStore(redisClient, redisIdempotencyPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	case firestoreClient != nil:
		return idempotency.NewFirestoreStore(firestoreClient), nil
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

func buildHMACMiddleware(cfg config.Config, redisClient *redis.Client, logger auth.EventLogger) (func(http.Handler) http.Handler, error) {
	values := cfg.SecretValues()
	provider := auth.SecretProviderFunc(func(_ context.Context, name string) (string, error) {
		if secret := values[name]; secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("auth: hmac secret %q not configured", name)
	})

	var nonces auth.NonceStore = auth.NewInMemoryNonceStore()
	if redisClient != nil {
		store, err := auth.NewRedisNonceStore(redisClient, redisNoncePrefix)
		if err != nil {
			return nil, err
		}
		nonces = store
	}

	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(logger),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC(cfg.Security.HMAC.SecretName), nil
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, events auth.EventLogger) func(http.Handler) http.Handler {
	jwksURL := strings.TrimSpace(cfg.Security.OIDC.JWKSURL)
	if jwksURL == "" {
		jwksURL = auth.GoogleJWKSURL
	}
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	validator := auth.NewOIDCValidator(auth.NewJWKSCache(jwksURL), auth.WithOIDCLogger(events))
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func secretProject(cfg config.Config) string {
	if project, _ := config.Lookup("API_SECRET_PROJECT_ID"); strings.TrimSpace(project) != "" {
		return strings.TrimSpace(project)
	}
	return traceProjectID(cfg)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		value, _ := config.Lookup(key)
		return strings.TrimSpace(value)
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentials := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve outside local development.
func requiredSecretNames() []string {
	environment, _ := config.Lookup("API_SECURITY_ENVIRONMENT")
	environment = strings.ToLower(strings.TrimSpace(environment))
	if environment == "" || environment == "local" {
		return nil
	}
	required := []string{"Security.HMAC.AdminSecret"}
	if tmn, _ := config.Lookup("API_PSP_VNPAY_TMN_CODE"); strings.TrimSpace(tmn) != "" {
		required = append(required, "PSP.VNPayHashSecret")
	}
	if id, _ := config.Lookup("API_PSP_PAYPAL_CLIENT_ID"); strings.TrimSpace(id) != "" {
		required = append(required, "PSP.PayPalSecret")
	}
	return required
}

func firestoreCheck(client *firestore.Client) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			iter := client.Collections(ctx)
			_, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	}
}

func kafkaCheck(brokers []string) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "kafka",
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			var lastErr error
			for _, broker := range brokers {
				conn, err := kafka.DialContext(ctx, "tcp", strings.TrimSpace(broker))
				if err != nil {
					lastErr = err
					continue
				}
				return conn.Close()
			}
			if lastErr == nil {
				lastErr = errors.New("no kafka brokers configured")
			}
			return lastErr
		},
	}
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const secretHealthReference = "secret://system-healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			// A missing probe secret still proves the API answered.
			if st, ok := status.FromError(errors.Unwrap(err)); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}
