package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timekeeping/apperror"
	"timekeeping/attendance"
	"timekeeping/config"
	"timekeeping/correction"
	"timekeeping/database"
	"timekeeping/events"
	"timekeeping/geo"
	"timekeeping/handlers"
	"timekeeping/jobs"
	"timekeeping/lock"
	"timekeeping/middleware"
	"timekeeping/rbac"
	"timekeeping/shift"
	"timekeeping/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	_ "time/tzdata"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	middleware.SetJWTSecret(cfg.JWTSecret)

	db, err := database.Init(cfg.DatabaseURL, cfg.Development)
	if err != nil {
		logger.Fatal("initialize database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("database handle", zap.Error(err))
	}
	checks := map[string]handlers.Pinger{"database": sqlDB}

	// Without redis, locks are per process and shifts are read uncached.
	var rdb redis.Cmdable
	locker := lock.NewLocal()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		rdb = client
		locker = lock.NewRedis(client, cfg.LockTTL, logger)
		checks["redis"] = redisPinger{client}
		logger.Info("redis enabled", zap.String("addr", cfg.RedisAddr))
	}

	var emitter events.Emitter = events.NewLogEmitter(logger)
	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewKafkaWriter(cfg.KafkaBrokers)
		defer writer.Close()
		emitter = events.NewKafkaEmitter(writer, cfg.KafkaNotificationTopic, cfg.KafkaActivityTopic, logger)
		logger.Info("kafka events enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	evidence := storage.NewUnavailable()
	if cfg.OSS.Enabled() {
		store, err := storage.NewOSSStore(storage.OSSConfig{
			Endpoint:  cfg.OSS.Endpoint,
			AccessKey: cfg.OSS.AccessKey,
			SecretKey: cfg.OSS.SecretKey,
			Bucket:    cfg.OSS.Bucket,
		}, logger)
		if err != nil {
			logger.Warn("evidence store disabled", zap.Error(err))
		} else {
			evidence = store
		}
	}

	var geocoder geo.Geocoder
	if cfg.GeocoderURL != "" {
		geocoder = geo.NewNominatimClient(cfg.GeocoderURL, cfg.GeocoderTimeout)
	}

	enforcer, err := rbac.NewEnforcer()
	if err != nil {
		logger.Fatal("load rbac model", zap.Error(err))
	}

	shifts := shift.NewProvider(shift.NewRepository(db), rdb, cfg.ShiftCacheTTL, logger)
	aggregator := attendance.NewAggregator(shifts, logger)
	sessions := attendance.NewRepository(db)
	validate := apperror.NewValidator()

	attendanceSvc := attendance.NewService(attendance.Deps{
		Repo:       sessions,
		Aggregator: aggregator,
		Shifts:     shifts,
		Resolver:   geo.NewResolver(geocoder, cfg.DefaultTimezone, logger),
		Locker:     locker,
		Evidence:   evidence,
		Emitter:    emitter,
		Logger:     logger,
	}, attendance.Options{
		Lookback:       cfg.SessionLookback,
		EvidencePrefix: cfg.OSS.Prefix,
	})

	correctionSvc := correction.NewService(correction.Deps{
		Repo:       correction.NewRepository(db),
		Aggregator: aggregator,
		Shifts:     shifts,
		Authorizer: enforcer,
		Locker:     locker,
		Emitter:    emitter,
		Validator:  validate,
		Logger:     logger,
	}, correction.Options{DefaultTimezone: cfg.DefaultTimezone})

	scheduler := jobs.NewScheduler(logger)
	sweeper := jobs.NewStaleSessionSweeper(sessions, emitter, cfg.SessionLookback, logger)
	if _, err := sweeper.Schedule(scheduler, cfg.StaleSessionCron); err != nil {
		logger.Fatal("schedule stale session sweep", zap.String("schedule", cfg.StaleSessionCron), zap.Error(err))
	}
	scheduler.Start()

	router := handlers.NewRouter(handlers.RouterConfig{
		Attendance:   handlers.NewAttendanceHandler(attendanceSvc, validate),
		Corrections:  handlers.NewCorrectionHandler(correctionSvc),
		Health:       handlers.NewHealthHandler(checks),
		Authorizer:   enforcer,
		Logger:       logger,
		CaptureRate:  rate.Limit(cfg.CaptureRateLimit),
		CaptureBurst: cfg.CaptureRateBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	<-scheduler.Stop().Done()
}

func newLogger(cfg *config.Config) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger.Named("timekeeping")
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
