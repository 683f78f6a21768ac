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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fjod/corc-store/internal/auth"
	"github.com/fjod/corc-store/internal/catalog"
	"github.com/fjod/corc-store/internal/config"
	"github.com/fjod/corc-store/internal/docstore"
	"github.com/fjod/corc-store/internal/events"
	apihttp "github.com/fjod/corc-store/internal/http"
	"github.com/fjod/corc-store/internal/metrics"
	"github.com/fjod/corc-store/internal/persist"
	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/fjod/corc-store/internal/store"
	"github.com/fjod/corc-store/internal/toast"
	"github.com/fjod/corc-store/pkg/circuitbreaker"
	"github.com/fjod/corc-store/pkg/logger"
)

// closers run in reverse order on shutdown.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init("storefront", cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup closers
	if err := run(ctx, cfg, log, &cleanup); err != nil {
		log.Error().Err(err).Msg("storefront failed")
		cleanup.run()
		os.Exit(1)
	}
	cleanup.run()
	log.Info().Msg("storefront stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, cleanup *closers) error {
	device, err := openDevice(ctx, cfg.Snapshot, log, cleanup)
	if err != nil {
		return err
	}

	backend, accounts, err := openBackend(ctx, cfg, device, log, cleanup)
	if err != nil {
		return err
	}
	log.Info().Str("backend", backend.Name()).Str("snapshot", cfg.Snapshot.Driver).Msg("persistence ready")

	authSvc := auth.NewService(accounts, auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		auth.Options{AdminEmail: cfg.Auth.AdminEmail}, log.With().Str("component", "auth").Logger())
	if cfg.Auth.AdminPassword != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("failed to provision admin account: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	toasts := toast.NewBus(cfg.ToastTTL)
	cleanup.add(toasts.Close)

	outbox := openOutbox(cfg, device, log)
	publisher := openPublisher(cfg.Kafka, log, cleanup)
	pollCtx, stopPoller := context.WithCancel(ctx)
	cleanup.add(stopPoller)
	go events.NewPoller(outbox, publisher, cfg.Kafka.PollInterval, log.With().Str("component", "outbox").Logger()).Run(pollCtx)

	svc, err := store.New(store.Options{
		Backend: backend,
		Device:  device,
		Auth:    authSvc,
		Source:  catalog.NewMockAPI(mockDelays(cfg.Catalog.MockDelay)),
		Toasts:  toasts,
		Outbox:  outbox,
		Metrics: m,
		Logger:  log.With().Str("component", "store").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	cleanup.add(svc.Close)
	go func() {
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("snapshot merge loop stopped")
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start store: %w", err)
	}
	go func() {
		if _, err := svc.EnsureCatalog(ctx); err != nil {
			log.Warn().Err(err).Msg("initial catalog fetch failed")
		}
	}()

	router := apihttp.NewRouter(
		apihttp.NewHandler(svc, cfg.HTTP.RequestTimeout, log.With().Str("component", "http").Logger()),
		apihttp.RouterConfig{
			Service:        "storefront",
			RequestTimeout: cfg.HTTP.RequestTimeout,
			Metrics:        m,
			Gatherer:       reg,
			Logger:         log,
		},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Msg("storefront listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func openDevice(ctx context.Context, cfg config.SnapshotConfig, log zerolog.Logger, cleanup *closers) (snapshot.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := snapshot.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite snapshot store: %w", err)
		}
		cleanup.add(func() {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close sqlite")
			}
		})
		return s, nil
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cleanup.add(func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis ping succeeded")
		return snapshot.NewRedisStore(client, cfg.RedisPrefix), nil
	default:
		return snapshot.NewMemoryStore(), nil
	}
}

func openBackend(ctx context.Context, cfg *config.Config, device snapshot.Store, log zerolog.Logger, cleanup *closers) (persist.Backend, auth.AccountStore, error) {
	plog := log.With().Str("component", "persist").Logger()
	switch cfg.Backend {
	case config.BackendMemory:
		return persist.NewInMemory(), auth.NewSnapshotAccounts(snapshot.NewMemoryStore(), log), nil
	case config.BackendLocal:
		return persist.NewLocal(device, plog), auth.NewSnapshotAccounts(device, log), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.Timeout)
	defer cancel()
	db, err := docstore.ConnectMongoDB(connectCtx, cfg.Mongo.URI, cfg.Mongo.DBName, cfg.Mongo.Direct)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	mongoStore := docstore.NewMongoStore(db, log.With().Str("component", "docstore").Logger())
	cleanup.add(func() { disconnect(mongoStore, log) })

	if err := mongoStore.CreateIndexes(connectCtx, remoteCollections()...); err != nil {
		return nil, nil, err
	}
	log.Info().Str("db", cfg.Mongo.DBName).Msg("connected to MongoDB")

	settings := circuitbreaker.DefaultSettings("mongo")
	settings.FailureThreshold = cfg.Breaker.MaxFailures
	settings.Timeout = cfg.Breaker.OpenTimeout
	settings.IsSuccessful = docstore.IsAnswer
	guarded := docstore.WithBreaker(mongoStore, circuitbreaker.New(settings, log))

	return persist.NewRemote(guarded, plog), auth.NewDocAccounts(guarded), nil
}

// disconnect stops the store's subscriptions and closes its client.
func disconnect(s interface{ Close(context.Context) error }, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to disconnect from MongoDB")
	}
}

func remoteCollections() []string {
	names := []string{"accounts", string(persist.Products), string(persist.Reviews)}
	for _, c := range persist.OwnedCollections() {
		names = append(names, string(c))
	}
	return names
}

func openOutbox(cfg *config.Config, device snapshot.Store, log zerolog.Logger) events.Outbox {
	if cfg.Backend == config.BackendMemory {
		return events.NewMemoryOutbox()
	}
	return events.NewSnapshotOutbox(device, log.With().Str("component", "outbox").Logger())
}

func openPublisher(cfg config.KafkaConfig, log zerolog.Logger, cleanup *closers) events.Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info().Msg("no kafka brokers configured, order events are dropped")
		return events.Nop{}
	}
	p := events.NewKafkaPublisher(cfg.Topic, cfg.Brokers...)
	cleanup.add(func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close kafka writer")
		}
	})
	return p
}

// mockDelays scales the mock API latencies from the products delay.
func mockDelays(base time.Duration) catalog.Delays {
	return catalog.Delays{
		Products: base,
		Product:  base * 2 / 3,
		Login:    base * 4 / 3,
	}
}
