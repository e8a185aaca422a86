package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dropmail/backend/internal/auth"
	"dropmail/backend/internal/config"
	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/health"
	"dropmail/backend/internal/logger"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/pipeline"
	"dropmail/backend/internal/relay"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/smtp"
	"dropmail/backend/internal/storage/filesystem"
	"dropmail/backend/internal/storage/memory"
	"dropmail/backend/internal/storage/redis"
	sqlstore "dropmail/backend/internal/storage/sql"
	"dropmail/backend/internal/sweeper"
	httptransport "dropmail/backend/internal/transport/http"
	"dropmail/backend/internal/websocket"
)

// main 启动同时包含 HTTP API、SMTP 接收与过期清扫的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting dropmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Strings("domains", cfg.Mail.Domains),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	// 初始化元数据存储
	store, err := newStore(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}

	// 原始邮件落盘存储
	blobs, err := filesystem.NewStore(cfg.Storage.BlobPath)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize blob storage: %v", err))
	}
	log.Info("blob storage initialized", zap.String("path", cfg.Storage.BlobPath))

	metrics := monitoring.NewMetrics()
	healthChecker := health.NewChecker(store, cfg.Storage.BlobPath, log)

	// 出站投递后端
	outbound, err := newRelay(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize relay: %v", err))
	}
	log.Info("outbound relay initialized", zap.String("provider", outbound.Name()))

	// 业务服务
	addressService := service.NewAddressService(store, blobs, cfg, log)
	proxyService := service.NewProxyService(store, log)
	emailService := service.NewEmailService(store, blobs, log)
	sendService := service.NewSendService(addressService, outbound, cfg, log)
	tokenManager := auth.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)

	// WebSocket Hub:收到新邮件时推送通知
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, tokenManager, addressService, log)

	// 入站投递管线
	mailPipeline := pipeline.New(
		addressService,
		proxyService,
		emailService,
		blobs,
		outbound,
		metrics,
		wsHub,
		log,
	)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AddressService: addressService,
		EmailService:   emailService,
		SendService:    sendService,
		TokenManager:   tokenManager,
		WebSocketHub:   wsHub,
		HealthChecker:  healthChecker,
		Metrics:        metrics,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SMTP 接收服务器
	filter := smtp.NewFilter(addressService, proxyService, cfg.Mail.Domains)
	limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.RatePerSecond, cfg.SMTP.RateBurst)
	smtpBackend := smtp.NewBackend(filter, mailPipeline, limiter, metrics, log, cfg.SMTP.MaxMessageSize)

	smtpServer := gosmtp.NewServer(smtpBackend)
	smtpServer.Addr = cfg.SMTP.BindAddr
	smtpServer.Domain = cfg.SMTP.Domain
	smtpServer.ReadTimeout = cfg.SMTP.ReadTimeout
	smtpServer.WriteTimeout = cfg.SMTP.WriteTimeout
	smtpServer.MaxMessageBytes = cfg.SMTP.MaxMessageSize
	smtpServer.MaxRecipients = 50

	// 过期清扫器
	sweep := sweeper.NewSweeper(addressService, store, cfg.Sweep.Interval, metrics, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting retention sweeper", zap.Duration("interval", cfg.Sweep.Interval))
		sweep.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		if closer, ok := store.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Warn("store close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// newStore 根据配置选择元数据存储后端
func newStore(cfg *config.Config, log *zap.Logger) (domain.Store, error) {
	switch cfg.Storage.Backend {
	case "sql":
		store, err := sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			return nil, err
		}
		log.Info("using SQL storage", zap.String("driver", cfg.Database.Type))
		return store, nil
	case "redis":
		store, err := redis.NewStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		log.Info("using Redis storage", zap.String("address", cfg.Redis.Address))
		return store, nil
	default:
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}
}

// newRelay 根据配置选择出站投递实现
func newRelay(cfg *config.Config, log *zap.Logger) (relay.Relay, error) {
	switch cfg.Relay.Provider {
	case "ses":
		return relay.NewSESRelay(context.Background(), relay.SESConfig{
			Region:     cfg.Relay.Region,
			MaxRetries: cfg.Relay.MaxRetries,
			RetryDelay: cfg.Relay.RetryDelay,
		}, log)
	default:
		return relay.NewStdoutRelay(), nil
	}
}
