package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/pool"
	"dropmail/backend/internal/service"
)

// reclaimWorkers 限制一轮清扫内并发回收的地址数。
const reclaimWorkers = 4

// Sweeper 周期性回收过期地址及其全部关联数据。
//
// 过期地址对外表现为不存在,实际清理由这里异步完成,
// 所以清扫晚一点不影响正确性,只影响存储占用。
type Sweeper struct {
	addresses *service.AddressService
	store     domain.Store
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	interval  time.Duration
}

// NewSweeper 创建清扫器。
func NewSweeper(addresses *service.AddressService, store domain.Store, interval time.Duration, metrics *monitoring.Metrics, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		addresses: addresses,
		store:     store,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
	}
}

// Result 汇总一轮清扫的结果。
type Result struct {
	Addresses int
	Emails    int
	Proxies   int
	Failures  int
}

// Run 按固定间隔执行清扫，直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, time.Now().UTC()); err != nil {
				s.logger.Error("sweep pass failed", zap.Error(err))
			}
		}
	}
}

// Sweep 执行一轮清扫,删除 asOf 时刻已过期的地址。
//
// 先把过期地址全部取出再交给协程池处理:级联删除移动存储
// 分页的偏移,边翻页边删会漏掉后面的记录。单个地址失败只
// 记数,不影响其余地址。
func (s *Sweeper) Sweep(ctx context.Context, asOf time.Time) (Result, error) {
	start := time.Now()
	var result Result

	var expired []string
	for addr, err := range s.addresses.ListExpired(asOf) {
		if err != nil {
			return result, err
		}
		expired = append(expired, addr.Address)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	var mu sync.Mutex
	workers := pool.NewWorkerPool(reclaimWorkers, len(expired))
	workers.Start(ctx)
	for _, address := range expired {
		address := address
		workers.Submit(func() {
			if err := ctx.Err(); err != nil {
				return
			}
			if err := s.reclaim(address, asOf, &result, &mu); err != nil {
				mu.Lock()
				result.Failures++
				mu.Unlock()
				s.metrics.SweepFailures.Inc()
				s.logger.Error("failed to reclaim expired address",
					zap.String("address", address),
					zap.Error(err),
				)
			}
		})
	}
	workers.Stop()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if result.Addresses > 0 || result.Failures > 0 {
		s.logger.Info("sweep pass completed",
			zap.Int("addresses", result.Addresses),
			zap.Int("emails", result.Emails),
			zap.Int("proxies", result.Proxies),
			zap.Int("failures", result.Failures),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return result, nil
}

// reclaim 级联删除单个过期地址。删除前重新确认过期,
// 避免覆盖快照之后发生的续期。
func (s *Sweeper) reclaim(address string, asOf time.Time, result *Result, mu *sync.Mutex) error {
	addr, err := s.store.GetAddress(address)
	if errors.Is(err, domain.ErrAddressNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !addr.Expired(asOf) {
		return nil
	}

	emails, err := s.store.ListEmails(address)
	if err != nil {
		return err
	}
	proxies, err := s.store.ListProxiesByParent(address)
	if err != nil {
		return err
	}

	if err := s.addresses.Remove(address); err != nil {
		return err
	}

	mu.Lock()
	result.Addresses++
	result.Emails += len(emails)
	result.Proxies += len(proxies)
	mu.Unlock()
	s.metrics.SweepAddresses.Inc()
	s.metrics.SweepEmails.Add(float64(len(emails)))
	s.metrics.SweepProxies.Add(float64(len(proxies)))
	s.metrics.AddressesDeleted.Inc()
	return nil
}
