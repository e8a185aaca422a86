package health

import (
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
)

// healthReporter 由支持连接探活的存储后端实现(SQL、Redis)。
// 内存后端没有外部依赖,不实现该接口。
type healthReporter interface {
	Health() error
}

// Checker 健康检查器
type Checker struct {
	health   healthcheck.Handler
	store    domain.Store
	blobPath string
	logger   *zap.Logger
}

// NewChecker 创建健康检查器
func NewChecker(store domain.Store, blobPath string, logger *zap.Logger) *Checker {
	c := &Checker{
		health:   healthcheck.NewHandler(),
		store:    store,
		blobPath: blobPath,
		logger:   logger,
	}
	c.addChecks()
	return c
}

// addChecks 添加健康检查
func (c *Checker) addChecks() {
	// 存储后端连接检查
	if reporter, ok := c.store.(healthReporter); ok {
		c.health.AddReadinessCheck("store", reporter.Health)
	}

	// 原始邮件目录可访问性检查
	c.health.AddReadinessCheck("blob-store", func() error {
		_, err := os.Stat(c.blobPath)
		return err
	})

	// 进程存活检查
	c.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
}

// Handler 返回健康检查处理器(/live 和 /ready)
func (c *Checker) Handler() http.Handler {
	return c.health
}

// Snapshot 返回当前各项检查的结果摘要
func (c *Checker) Snapshot() map[string]string {
	results := make(map[string]string)

	if reporter, ok := c.store.(healthReporter); ok {
		if err := reporter.Health(); err != nil {
			results["store"] = "ERROR: " + err.Error()
		} else {
			results["store"] = "OK"
		}
	} else {
		results["store"] = "OK"
	}

	if _, err := os.Stat(c.blobPath); err != nil {
		results["blob-store"] = "ERROR: " + err.Error()
	} else {
		results["blob-store"] = "OK"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results
}
