package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/harborcrm/aster/config"
	"github.com/harborcrm/aster/internal/database"
	appmiddleware "github.com/harborcrm/aster/internal/middleware"
	"github.com/harborcrm/aster/internal/redis"
	"github.com/harborcrm/aster/internal/repositories/account"
	"github.com/harborcrm/aster/internal/repositories/activity"
	"github.com/harborcrm/aster/internal/repositories/candidate"
	"github.com/harborcrm/aster/internal/repositories/contact"
	"github.com/harborcrm/aster/internal/repositories/workspace"
	"github.com/harborcrm/aster/internal/startup"
	"github.com/harborcrm/aster/internal/tracing"
	"github.com/harborcrm/aster/internal/tracing/exporters"
	"github.com/harborcrm/aster/pkg/detection"
	"github.com/harborcrm/aster/pkg/events"
	"github.com/harborcrm/aster/pkg/kafka"
	"github.com/harborcrm/aster/pkg/merging"
	"github.com/harborcrm/aster/pkg/routes/duplicate"
	"github.com/harborcrm/aster/pkg/routes/health"
	"github.com/harborcrm/aster/pkg/scoring"
)

type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string                 { return d.name }
func (d *dependency) DependsOn() []string             { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func main() {
	godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	var (
		db          *sqlx.DB
		dbInstance  database.DB
		redisClient *redis.Client
		producer    *kafka.Producer
		traceProv   *sdktrace.TracerProvider
		server      *echo.Echo
		checker     *health.Checker
	)

	boot := startup.NewStartup(logger, 5)

	boot.AddDependency(&dependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			dsn := fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
				cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
			)
			conn, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
			if err != nil {
				return err
			}
			conn.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			conn.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			conn.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			db = conn
			dbInstance = database.NewDatabaseInstance(conn, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	boot.AddDependency(&dependency{
		name:      "migrations",
		dependsOn: []string{"postgres"},
		start: func(ctx context.Context) error {
			driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
			if err != nil {
				return err
			}
			svc := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
			})
			return svc.Migrate(cfg.DatabaseName, driver)
		},
	})

	if cfg.RedisEnabled {
		boot.AddDependency(&dependency{
			name: "redis",
			start: func(ctx context.Context) error {
				client, err := redis.NewClient(redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				redisClient = client
				return nil
			},
			stop: func(ctx context.Context) error {
				return redisClient.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		boot.AddDependency(&dependency{
			name: "kafka",
			start: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			stop: func(ctx context.Context) error {
				return producer.Close()
			},
		})
	}

	if cfg.TracingEnabled {
		boot.AddDependency(&dependency{
			name: "tracing",
			start: func(ctx context.Context) error {
				exporter, err := exporters.New(ctx, cfg.TracingExporter, cfg.TracingEndpoint)
				if err != nil {
					return err
				}

				res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceName(cfg.AppName),
					semconv.ServiceVersion(cfg.Version),
				))
				if err != nil {
					return err
				}

				traceProv = sdktrace.NewTracerProvider(
					sdktrace.WithBatcher(exporter),
					sdktrace.WithResource(res),
					sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.TracingSampleRatio)),
				)
				otel.SetTracerProvider(traceProv)
				tracing.SetTracer(traceProv.Tracer(cfg.AppName))
				return nil
			},
			stop: func(ctx context.Context) error {
				return traceProv.Shutdown(ctx)
			},
		})
	}

	httpDeps := []string{"postgres", "migrations"}
	if cfg.RedisEnabled {
		httpDeps = append(httpDeps, "redis")
	}
	if cfg.KafkaEnabled {
		httpDeps = append(httpDeps, "kafka")
	}

	boot.AddDependency(&dependency{
		name:      "http",
		dependsOn: httpDeps,
		start: func(ctx context.Context) error {
			server, checker = buildServer(cfg, logger, db, dbInstance, redisClient, producer)

			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				if err := server.Start(addr); err != nil {
					logger.WithError(err).Info("HTTP server stopped")
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error {
			checker.SetReady(false)
			return server.Shutdown(ctx)
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	checker.SetReady(true)
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	<-ctx.Done()
	logger.Info("Shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := boot.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func buildServer(
	cfg config.Config,
	logger ectologger.Logger,
	db *sqlx.DB,
	dbInstance database.DB,
	redisClient *redis.Client,
	producer *kafka.Producer,
) (*echo.Echo, *health.Checker) {
	candidateRepo := candidate.NewRepository(dbInstance, logger)
	accountRepo := account.NewRepository(dbInstance, logger)
	contactRepo := contact.NewRepository(dbInstance, logger)
	activityRepo := activity.NewRepository(dbInstance, logger)
	workspaceRepo := workspace.NewRepository(dbInstance, logger)

	var emitter *events.Emitter
	if producer != nil {
		emitter = events.NewEmitter(producer, logger)
	}

	scorer := scoring.NewSimilarityScorer()

	var locker detection.Locker
	if redisClient != nil {
		locker = detection.NewRedisLocker(redis.NewLocker(redisClient, "aster:"))
	} else {
		locker = detection.NewLocalLocker()
	}

	var detectEmitter detection.Emitter
	var mergeEmitter merging.Emitter
	var resolveEmitter duplicate.Emitter
	if emitter != nil {
		detectEmitter = emitter
		mergeEmitter = emitter
		resolveEmitter = emitter
	}

	detector := detection.NewDriver(logger, scorer, accountRepo, contactRepo, candidateRepo, locker, detectEmitter, detection.Config{
		Threshold:           cfg.DetectionThreshold,
		ChunkSize:           cfg.DetectionChunkSize,
		LockTTL:             cfg.DetectionLockTTL,
		RescanResolvedPairs: cfg.RescanResolvedPairs,
	})
	merger := merging.NewExecutor(logger, candidateRepo, accountRepo, contactRepo, activityRepo, mergeEmitter)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.HTTPErrorHandler = appmiddleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(appmiddleware.Context())
	e.Use(appmiddleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	checker := health.NewChecker(db, redisPinger, cfg.Version)
	checker.RegisterRoutes(e)

	handler := duplicate.NewHandler(candidateRepo, accountRepo, contactRepo, workspaceRepo, detector, merger, resolveEmitter, logger)
	handler.Register(e.Group("/api/v1/duplicates"))

	return e, checker
}
