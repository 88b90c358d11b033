package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/kyc-voice/internal/auth"
	"github.com/example/kyc-voice/internal/config"
	"github.com/example/kyc-voice/internal/grpchealth"
	"github.com/example/kyc-voice/internal/handlers"
	"github.com/example/kyc-voice/internal/idfy"
	"github.com/example/kyc-voice/internal/imageprocessor"
	"github.com/example/kyc-voice/internal/imageprocessor/opencv"
	"github.com/example/kyc-voice/internal/logging"
	"github.com/example/kyc-voice/internal/metrics"
	"github.com/example/kyc-voice/internal/repository"
	"github.com/example/kyc-voice/internal/sessionlock"
	"github.com/example/kyc-voice/internal/storage"
	"github.com/example/kyc-voice/internal/tts"
	"github.com/example/kyc-voice/internal/usecase"
)

func main() {
	cfg, loadedDotEnv := config.Load()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	if loadedDotEnv {
		logger.Info("loaded configuration from .env")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewKYCRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)

	var locker sessionlock.Locker = sessionlock.Noop{}
	if redisClient != nil {
		defer redisClient.Close()
		locker = sessionlock.NewRedisLocker(redisClient, sessionlock.DefaultTTL, logger)
	}

	var extractor imageprocessor.FaceExtractor = imageprocessor.Unavailable{}
	if faceExtractor, err := opencv.NewExtractor(cfg.CascadePath, logger); err != nil {
		logger.Warn("face extraction disabled", zap.Error(err))
	} else {
		defer faceExtractor.Close()
		extractor = faceExtractor
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	vendorHTTP := &http.Client{Timeout: cfg.ClientTimeout}
	verifier := idfy.NewClient(idfy.Config{
		BaseURL:      cfg.IDfy.BaseURL,
		APIKey:       cfg.IDfy.APIKey,
		AccountID:    cfg.IDfy.AccountID,
		GroupID:      cfg.IDfy.KYCGroupID,
		ProxyGroupID: cfg.IDfy.GroupID,
		PollDelay:    cfg.IDfy.PollDelay,
		RetryDelay:   cfg.IDfy.RetryDelay,
	}, vendorHTTP, logger, m)
	synthesizer := tts.NewSynthesizer(tts.Config{
		BaseURL: cfg.Cartesia.BaseURL,
		APIKey:  cfg.Cartesia.APIKey,
		VoiceID: cfg.Cartesia.VoiceID,
		Version: cfg.Cartesia.Version,
	}, vendorHTTP, logger, m)
	objects := storage.NewGateway(storage.Config{
		Endpoint:        cfg.Storage.StorageEndpoint(),
		APIKey:          cfg.Storage.APIKey,
		DocumentBucket:  cfg.Storage.DocumentBucket,
		RecordingBucket: cfg.Storage.RecordingBucket,
		Timeout:         cfg.ClientTimeout,
	}, logger)

	uc := usecase.NewKYCUseCase(repo, objects, verifier, extractor, locker, m, logger)

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	handlers.RegisterRoutes(r, uc, synthesizer, verifier, handlers.Options{
		MaxUploadSize: cfg.MaxUploadBytes,
		OperatorGuard: auth.OperatorGuard(cfg.JWTSecret, cfg.JWTAudience),
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	checks := map[string]grpchealth.Check{"database": repo.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	healthServer := grpchealth.NewServer(checks, 10*time.Second, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		defer stop()
		logger.Info("KYC API listening", zap.String("addr", cfg.HTTPAddr))
		return serveHTTPServerWithOptions(server, 15*time.Second, logger, nil, shutdownSignals(groupCtx))
	})
	group.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return err
		}
		return healthServer.Run(groupCtx, lis)
	})

	if err := group.Wait(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

// initRedis returns nil when no address is configured. An unreachable Redis
// is not fatal: the step lock lets requests through while it is down.
func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	if addr == "" {
		zapLogger.Info("REDIS_ADDR not set, session step lock disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Warn("redis ping failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

// shutdownSignals delivers the first SIGINT/SIGTERM, or a synthetic SIGTERM
// once ctx is done.
func shutdownSignals(ctx context.Context) <-chan os.Signal {
	out := make(chan os.Signal, 1)
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(osSignals)
		select {
		case sig := <-osSignals:
			out <- sig
		case <-ctx.Done():
			out <- syscall.SIGTERM
		}
	}()
	return out
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
