package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"dropmail/backend/internal/config"
	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/logger"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/storage/filesystem"
	"dropmail/backend/internal/storage/memory"
	"dropmail/backend/internal/storage/redis"
	sqlstore "dropmail/backend/internal/storage/sql"
	"dropmail/backend/internal/sweeper"
)

// main 执行一轮过期地址清扫后退出。
//
// 用于不常驻 sweeper 的部署(比如由 cron 或定时任务触发)。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if closer, ok := store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}()

	blobs, err := filesystem.NewStore(cfg.Storage.BlobPath)
	if err != nil {
		log.Fatal("failed to initialize blob storage", zap.Error(err))
	}

	metrics := monitoring.NewMetrics()
	addresses := service.NewAddressService(store, blobs, cfg, log)
	sweep := sweeper.NewSweeper(addresses, store, cfg.Sweep.Interval, metrics, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := sweep.Sweep(ctx, time.Now().UTC())
	if err != nil {
		log.Error("sweep failed", zap.Error(err))
		os.Exit(1)
	}

	log.Info("sweep finished",
		zap.Int("addresses", result.Addresses),
		zap.Int("emails", result.Emails),
		zap.Int("proxies", result.Proxies),
		zap.Int("failures", result.Failures),
	)
	if result.Failures > 0 {
		os.Exit(1)
	}
}

// newStore 根据配置选择元数据存储后端
func newStore(cfg *config.Config) (domain.Store, error) {
	switch cfg.Storage.Backend {
	case "sql":
		return sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
	case "redis":
		return redis.NewStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	default:
		return memory.NewStore(), nil
	}
}
