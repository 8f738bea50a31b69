package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/bipbip/bips-backend/internal/config"
	"github.com/bipbip/bips-backend/internal/database"
	"github.com/bipbip/bips-backend/internal/handlers"
	"github.com/bipbip/bips-backend/internal/metrics"
	"github.com/bipbip/bips-backend/internal/middleware"
	"github.com/bipbip/bips-backend/internal/routes"
	"github.com/bipbip/bips-backend/internal/services"
	"github.com/bipbip/bips-backend/pkg/clientip"
	"github.com/bipbip/bips-backend/pkg/geo"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	health := map[string]handlers.HealthCheck{}

	// Redis backs the rate limiter and, by default, the registry and push relay
	logger.Info("connecting to Redis")
	rdb, err := database.ConnectRedis(ctx, cfg.RedisURI)
	if err != nil {
		return err
	}
	defer rdb.Close()
	health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	var mongoDB *mongo.Database
	if cfg.BipStore == config.StoreMongo || cfg.ConnectionStore == config.StoreMongo {
		logger.Info("connecting to MongoDB")
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer database.DisconnectMongo(client)
		mongoDB = db
		health["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	}

	var pg *sql.DB
	if cfg.BipStore == config.StorePostgres {
		logger.Info("connecting to PostgreSQL")
		pg, err = database.ConnectPostgres(ctx, cfg.PostgresURI)
		if err != nil {
			return err
		}
		defer pg.Close()
		health["postgres"] = pg.PingContext
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bipStore, err := newBipStore(ctx, cfg, mongoDB, pg, logger)
	if err != nil {
		return err
	}
	services.StartBipRetention(ctx, bipStore, cfg.Retention, cfg.RetentionInterval, logger)

	var connStore services.ConnectionStore = services.NewRedisConnectionStore(rdb)
	if cfg.ConnectionStore == config.StoreMongo {
		connStore = services.NewMongoConnectionStore(mongoDB)
	}

	ledger := services.NewBipLedger(bipStore, geo.NewMatcher(cfg.ProximityMeters), logger, m)
	registry := services.NewConnectionRegistry(connStore, logger)

	pusher, attacher, closeTransport := newPushTransport(ctx, cfg, rdb, logger)
	defer closeTransport()

	var notifier handlers.Notifier
	if cfg.Realtime {
		notifier = services.NewDispatcher(registry, pusher, services.DispatcherOptions{
			Concurrency: cfg.FanoutConcurrency,
			SendTimeout: cfg.PushTimeout,
			OnGone:      goneHandler(ctx, cfg, registry, logger, m),
		}, logger, m)
	}

	trusted, err := clientip.ParseTrusted(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// proxy headers only count when the peer is a configured proxy
	r.Use(clientip.RealIP(trusted))
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	if cfg.IsProduction() {
		limiter := middleware.NewIPRateLimiter(5, 20)
		limiter.StartCleanup(ctx, 5*time.Minute)
		for _, mw := range middleware.ProductionSecurity(limiter) {
			r.Use(mw)
		}
		logger.Info("production security enabled")
	}

	h := routes.Handlers{
		Bips:        handlers.NewBipHandler(ledger, notifier, cfg.RequestTimeout, logger),
		Connections: handlers.NewConnectionHandler(registry, logger),
		Health:      handlers.Health(health, logger),
		CreateLimit: middleware.NewWindowLimiter(rdb, "create", cfg.CreateRateLimit, cfg.CreateRateWindow, logger).Middleware,
		Gatherer:    reg,
	}
	if cfg.Realtime && attacher != nil {
		h.Socket = handlers.NewBipSocketHandler(attacher, registry, logger)
	}
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bips backend running",
			zap.String("port", cfg.Port),
			zap.String("bip_store", cfg.BipStore),
			zap.String("connection_store", cfg.ConnectionStore),
			zap.String("push_transport", cfg.PushTransport),
			zap.Bool("realtime", cfg.Realtime),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newBipStore(ctx context.Context, cfg *config.Config, mongoDB *mongo.Database, pg *sql.DB, logger *zap.Logger) (services.BipStore, error) {
	if cfg.BipStore == config.StorePostgres {
		return services.NewPostgresBipStore(pg), nil
	}
	store := services.NewMongoBipStore(mongoDB)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("failed to ensure bip indexes", zap.Error(err))
	}
	return store, nil
}

// newPushTransport returns the pusher used by fan-out and, when this process
// owns sockets, the attacher for the WebSocket endpoint.
func newPushTransport(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (services.Pusher, services.SocketAttacher, func()) {
	switch cfg.PushTransport {
	case config.TransportGateway:
		client := &http.Client{Timeout: cfg.PushTimeout}
		return services.NewGatewayPusher(cfg.GatewayEndpoint, client), nil, func() {}
	case config.TransportLocal:
		hub := services.NewHub()
		return hub, hub, func() {}
	default:
		relay := services.NewRedisRelay(ctx, rdb, services.NewHub(), logger)
		go relay.Run(ctx)
		return relay, relay, func() { _ = relay.Close() }
	}
}

func goneHandler(ctx context.Context, cfg *config.Config, registry *services.ConnectionRegistry, logger *zap.Logger, m *metrics.Metrics) services.GoneHandler {
	switch cfg.GonePolicy {
	case config.GoneIgnore:
		return services.IgnoreGone(logger)
	case config.GoneSync:
		return services.UnregisterOnGone(registry, logger, m)
	default:
		reaper := services.NewGoneReaper(registry, cfg.ReapInterval, logger, m)
		go reaper.Run(ctx)
		return reaper.Handler()
	}
}
