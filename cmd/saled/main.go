package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/salemap/saled/internal/api"
	"github.com/salemap/saled/internal/config"
	"github.com/salemap/saled/internal/geocache"
	"github.com/salemap/saled/internal/geocode"
	"github.com/salemap/saled/internal/jobs"
	"github.com/salemap/saled/internal/maptiler"
	"github.com/salemap/saled/internal/publisher"
	"github.com/salemap/saled/internal/rabbitmq"
	"github.com/salemap/saled/internal/rate"
	"github.com/salemap/saled/internal/store"
	"github.com/salemap/saled/internal/trigger"
	"github.com/salemap/saled/pkg/logger"
	"github.com/salemap/saled/pkg/model"
	"github.com/salemap/saled/pkg/secrets"
	"github.com/salemap/saled/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [saled]...")

	// --- Sale store (Postgres, or in-memory for local runs) ---
	var (
		st   store.SaleStore
		pgSt *store.PGStore
	)
	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		var err error
		pgSt, err = store.NewPG(ctx, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, logger.Named("store"))
		if err != nil {
			logg.Fatalw("failed to init store", "error", err)
		}
		if err := pgSt.Migrate(ctx); err != nil {
			logg.Fatalw("failed to apply schema", "error", err)
		}
		st = pgSt
	} else {
		logg.Warn("DATABASE_URL not configured; using in-memory sale store")
		st = store.NewMemory()
	}

	// --- Geocode cache ---
	var (
		cache geocode.Cache
		rdb   *redis.Client
	)
	switch {
	case cfg.GeocacheBackend == config.GeocacheBackendRedis && cfg.RedisAddr != "":
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		cache = geocache.NewRedisCache(rdb)
	case cfg.GeocacheBackend == config.GeocacheBackendPostgres && pgSt != nil:
		cache = geocache.NewPGCache(pgSt.Pool())
	default:
		logg.Warnw("geocache backend unavailable; using in-memory cache", "backend", cfg.GeocacheBackend)
		cache = geocache.NewMemory()
	}

	// --- Geocoder API key (Secrets Manager or static) ---
	stopCleaner := make(chan struct{})
	var keys maptiler.KeySource = secrets.StaticKey(cfg.MapTilerKey)
	if cfg.MapTilerSecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		keyCache := secrets.NewCache[string](cfg.SecretCacheTTL)
		go keyCache.StartCleaner(cfg.CleanupFreq, stopCleaner)
		keys = secrets.NewSecretKey(awsProvider, keyCache, cfg.MapTilerSecretName, cfg.MapTilerSecretField)
	} else if cfg.MapTilerKey == "" {
		logg.Warn("MAPTILER_KEY not configured; geocoding disabled")
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.GeocoderRPS,
		Burst:             cfg.GeocoderBurst,
	})

	// --- Geocoder + resolver ---
	geocoder := maptiler.NewClient(logger.Named("maptiler"), maptiler.Config{
		BaseURL:  cfg.MapTilerBaseURL,
		Timeout:  cfg.GeocoderTimeout,
		RetryMax: cfg.GeocoderRetryMax,
	}, keys, rateMgr)
	resolver := geocode.NewResolver(logger.Named("geocode"), cache, geocoder)

	// --- NATS publisher (optional) ---
	var (
		nc              *nats.Conn
		pub             *publisher.Publisher
		reconcileEvents jobs.EventPublisher
		triggerEvents   trigger.EventPublisher
	)
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err = publisher.New(nc, cfg.ServiceName, logger.Named("publisher"))
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		if err := pub.EnsureStream(cfg.EventStream, "evt.sale.>"); err != nil {
			logg.Fatalw("failed to ensure event stream", "error", err, "stream", cfg.EventStream)
		}
		reconcileEvents = pub
		triggerEvents = pub
	} else {
		logg.Warn("NATS_URL not configured; sale events disabled")
	}

	// --- Creation trigger ---
	trig := trigger.NewCreationTrigger(logger.Named("trigger"), resolver, st, triggerEvents)

	var (
		notifier api.CreationNotifier = trig
		consumer *rabbitmq.Consumer
		producer *rabbitmq.Producer
	)
	if cfg.RabbitMQURL != "" {
		var err error
		consumer, err = rabbitmq.NewConsumer(cfg.RabbitMQURL, cfg.SaleCreatedQueue,
			func(ctx context.Context, evt model.SaleCreated) error {
				_, err := trig.Handle(ctx, evt)
				return err
			}, logger.Named("rabbitmq"))
		if err != nil {
			logg.Fatalw("failed to init rabbitmq consumer", "error", err)
		}
		if err := consumer.Start(ctx); err != nil {
			logg.Fatalw("failed to start rabbitmq consumer", "error", err)
		}
		producer, err = rabbitmq.NewProducer(cfg.RabbitMQURL, cfg.SaleCreatedQueue, logger.Named("rabbitmq"))
		if err != nil {
			logg.Fatalw("failed to init rabbitmq producer", "error", err)
		}
		notifier = producer
	} else {
		logg.Warn("RABBITMQ_URL not configured; creation trigger runs inline")
	}

	// --- Status reconciler ---
	committer := jobs.NewBatchCommitter(logger.Named("batch"), st)
	reconciler := jobs.NewStatusReconciler(
		logger.Named("reconciler"),
		st,
		committer,
		reconcileEvents,
		cfg.ReconcileInterval,
		cfg.ReconcileChunkSize,
	)
	if cfg.ReconcileOnStart {
		if report, err := reconciler.Trigger(ctx); err != nil {
			logg.Warnw("initial reconcile failed", "error", err)
		} else {
			logg.Infow("initial reconcile complete", "scanned", report.Scanned, "committed", report.Committed)
		}
	}
	go reconciler.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	saleHandler := api.NewSaleHandler(logger.Named("api"), st, notifier)
	geocodeHandler := api.NewGeocodeHandler(logger.Named("api"), resolver)
	jobsHandler := api.NewJobsHandler(logger.Named("api"), reconciler)

	api.RegisterRoutes(app, nc, st, saleHandler, geocodeHandler, jobsHandler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[saled] running",
		"env", cfg.Env,
		"nats", cfg.NATSURL != "",
		"rabbitmq", utils.MaskDSN(cfg.RabbitMQURL),
		"geocache", cfg.GeocacheBackend,
		"reconcile_interval", cfg.ReconcileInterval)

	<-ctx.Done()
	logg.Info("shutting down [saled]...")

	close(stopCleaner)
	reconciler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logg.Warnw("rabbitmq.consumer_close_failed", "error", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logg.Warnw("rabbitmq.producer_close_failed", "error", err)
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logg.Warnw("redis.close_failed", "error", err, "addr", cfg.RedisAddr)
		}
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
