package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/purchase-gateway/internal/adapters/database"
	"github.com/kevin07696/purchase-gateway/internal/adapters/kafka"
	"github.com/kevin07696/purchase-gateway/internal/adapters/memory"
	"github.com/kevin07696/purchase-gateway/internal/adapters/mgpg"
	"github.com/kevin07696/purchase-gateway/internal/adapters/postgres"
	"github.com/kevin07696/purchase-gateway/internal/adapters/redis"
	"github.com/kevin07696/purchase-gateway/internal/adapters/upstream"
	"github.com/kevin07696/purchase-gateway/internal/auth"
	"github.com/kevin07696/purchase-gateway/internal/config"
	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	mgpgHandler "github.com/kevin07696/purchase-gateway/internal/handlers/mgpg"
	purchaseHandler "github.com/kevin07696/purchase-gateway/internal/handlers/purchase"
	"github.com/kevin07696/purchase-gateway/internal/services/bridge"
	"github.com/kevin07696/purchase-gateway/internal/services/cascade"
	"github.com/kevin07696/purchase-gateway/internal/services/events"
	"github.com/kevin07696/purchase-gateway/internal/services/fraud"
	"github.com/kevin07696/purchase-gateway/internal/services/postback"
	"github.com/kevin07696/purchase-gateway/internal/services/purchase"
	"github.com/kevin07696/purchase-gateway/pkg/httpclient"
	"github.com/kevin07696/purchase-gateway/pkg/middleware"
	"github.com/kevin07696/purchase-gateway/pkg/observability"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
	"github.com/kevin07696/purchase-gateway/pkg/shutdown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting purchase gateway",
		zap.String("environment", cfg.Server.Environment),
		zap.Bool("mgpg_enabled", cfg.Features.MGPGEnabled),
		zap.Bool("common_fraud_service", cfg.Features.UseCommonFraudService),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopper := shutdown.NewManager(logger, 30*time.Second)
	if err := run(ctx, cfg, stopper, logger); err != nil {
		stopper.Shutdown()
		logger.Fatal("Failed to start purchase gateway", zap.Error(err))
	}
	stopper.WaitForSignal(ctx)
}

// run wires every component and starts the servers. Components register
// with stopper in start order; they are stopped in reverse.
func run(ctx context.Context, cfg *config.Config, stopper *shutdown.Manager, logger *zap.Logger) error {
	timeouts := resilience.DefaultTimeoutConfig()
	health := map[string]observability.Pinger{}

	store, err := initStorage(ctx, cfg, stopper, health, logger)
	if err != nil {
		return err
	}

	var publisher ports.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		p := kafka.NewPublisher(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, logger)
		stopper.RegisterCloser("kafka_publisher", p)
		publisher = p
	} else {
		logger.Warn("No Kafka brokers configured, BI events are disabled")
	}
	emitter := events.NewEmitter(publisher, timeouts, logger)
	stopper.RegisterNoErr("bi_emitter", emitter.Wait)

	secretManager, err := initSecretManager(ctx, cfg.Secrets, logger)
	if err != nil {
		return err
	}
	if closer, ok := secretManager.(interface{ Close() error }); ok {
		stopper.RegisterCloser("secrets", closer)
	}
	keyring := auth.NewKeyring(secretManager, cfg.Secrets.KeyPrefix, cfg.Secrets.CurrentKeyID)
	if _, _, err := keyring.Current(ctx); err != nil {
		return fmt.Errorf("load resume token key %s: %w", cfg.Secrets.CurrentKeyID, err)
	}
	tokens := auth.NewResumeTokens(keyring, cfg.Token.Issuer, cfg.Token.TTL)

	cascadeCfg, err := config.LoadCascadeConfig(cfg.Cascade.RulesPath)
	if err != nil {
		return err
	}

	breaker := upstream.DefaultBreakerConfig()
	transport := httpclient.NewTransport(httpclient.UpstreamConfig())
	newClient := func(name, baseURL string) *upstream.Client {
		return upstream.NewClient(name, baseURL, cfg.Upstream.Timeout, breaker, logger).WithTransport(transport)
	}

	sites := upstream.NewSiteCache(
		upstream.NewSiteClient(newClient("config_service", cfg.Upstream.ConfigServiceURL)),
		cfg.Upstream.SiteCacheTTL,
		cfg.Upstream.SiteCacheSize,
		logger,
	)
	fraudEngine := fraud.NewEngine(
		fraud.Config{UseCommonFraudService: cfg.Features.UseCommonFraudService},
		upstream.NewFraudClient(newClient("fraud", cfg.Upstream.FraudURL)),
		upstream.NewLegacyFraudClient(newClient("legacy_fraud", cfg.Upstream.LegacyFraudURL)),
		upstream.NewMemberClient(newClient("member_profile", cfg.Upstream.MemberProfileURL)),
		upstream.NewTemplateClient(newClient("payment_templates", cfg.Upstream.TemplateURL)),
		logger,
	)
	cascades := cascade.NewEngine(cascadeCfg, domain.DefaultBillerDirectory(), logger)
	reconciler := postback.NewReconciler(store.sessions, store.locker, emitter, logger)

	purchaseSvc := purchase.NewService(
		purchase.Config{
			SessionTTL:      cfg.Session.TTL,
			Timeouts:        timeouts,
			CallbackBaseURL: cfg.Token.CallbackBaseURL,
		},
		sites,
		fraudEngine,
		cascades,
		upstream.NewTransactionClient(newClient("transactions", cfg.Upstream.TransactionURL)),
		store.sessions,
		store.locker,
		reconciler,
		emitter,
		logger,
	)

	mux := http.NewServeMux()
	if cfg.Upstream.CallbackSecret == "" {
		logger.Warn("CALLBACK_SIGNING_SECRET not set, biller postbacks will be rejected")
	}
	purchaseHandler.NewHandler(purchaseSvc, cfg.Upstream.CallbackSecret, logger).Register(mux, observability.HTTPMiddleware)

	if cfg.Features.MGPGEnabled {
		relay := bridge.NewPostbackRelay(
			httpclient.New(httpclient.RelayConfig(), cfg.Upstream.PostbackRelayWait),
			cfg.Upstream.PostbackSecret,
			nil,
			0,
			logger,
		)
		bridgeSvc := bridge.NewService(
			bridge.Config{
				CallbackBaseURL: cfg.Token.CallbackBaseURL,
				IdentityTTL:     cfg.Token.TTL,
				Timeouts:        timeouts,
			},
			sites,
			mgpg.NewClient(newClient("mgpg", cfg.Upstream.MGPGURL)),
			mgpg.NewTranslator(),
			tokens,
			store.identities,
			relay,
			logger,
		)
		mgpgHandler.NewHandler(bridgeSvc, logger).Register(mux, observability.HTTPMiddleware)
		logger.Info("MGPG bridge enabled", zap.String("mgpg_url", cfg.Upstream.MGPGURL))
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Server.RateLimitRPS,
		Burst:             cfg.Server.RateLimitBurst,
		TrustProxy:        cfg.Server.TrustProxy,
	}, logger)
	stopper.RegisterNoErr("rate_limiter", limiter.Shutdown)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID(cfg.Server.TrustProxy),
			middleware.Recovery(logger),
			middleware.Logging(logger),
			middleware.SecurityHeaders(cfg.IsProduction()),
			limiter.Middleware,
			middleware.Timeout(timeouts, logger),
		),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      timeouts.HTTPHandler + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stopper.Shutdown()
			os.Exit(1)
		}
	}()
	stopper.Register("http_server", server.Shutdown)

	metrics := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), observability.NewHealthChecker(health), logger)
	stopper.Register("metrics_server", metrics.Shutdown)
	logger.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))

	return nil
}

// storage holds the session stores chosen by configuration
type storage struct {
	sessions   ports.SessionRepository
	locker     ports.SessionLocker
	identities ports.ChargeIdentityStore
}

// initStorage connects Postgres and Redis when configured and falls back to
// in-memory stores otherwise
func initStorage(ctx context.Context, cfg *config.Config, stopper *shutdown.Manager, health map[string]observability.Pinger, logger *zap.Logger) (*storage, error) {
	st := &storage{
		sessions:   memory.NewSessionRepository(),
		locker:     memory.NewLocker(),
		identities: memory.NewChargeIdentityStore(),
	}

	if cfg.Database.URL != "" {
		dbCfg := database.DefaultPostgreSQLConfig(cfg.Database.URL)
		dbCfg.MaxConns = cfg.Database.MaxConns
		dbCfg.MinConns = cfg.Database.MinConns

		db, err := database.NewPostgreSQLAdapter(ctx, dbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		stopper.RegisterNoErr("postgres", db.Close)

		if err := postgres.Migrate(ctx, db.Pool()); err != nil {
			return nil, fmt.Errorf("migrate session schema: %w", err)
		}
		repo := postgres.NewSessionRepository(db, logger)
		db.StartPoolMonitoring(ctx, 30*time.Second)
		health["postgres"] = observability.PingFunc(db.HealthCheck)
		st.sessions = repo
	} else {
		logger.Warn("No DATABASE_URL configured, sessions are kept in memory")
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		stopper.RegisterCloser("redis", client)

		st.locker = redis.NewSessionLocker(client, cfg.Redis.LockTTL, logger)
		st.identities = redis.NewChargeIdentityStore(client)
		health["redis"] = observability.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	} else {
		logger.Warn("No REDIS_ADDR configured, session locks are process-local")
	}

	return st, nil
}

// initLogger builds a production logger in production and a development
// logger everywhere else
func initLogger(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Logger.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() && !cfg.Logger.Development {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
