package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
)

// ProxyService 封装回复代理地址的业务操作。
//
// 代理地址把外部发件人和一次性地址的映射固化成一个可路由的
// 地址,格式为 "<uuid>+<外部发件人本地部分>@<一次性地址域名>"。
// 所有者回信到代理地址时,系统以一次性地址的身份转发给外部
// 发件人,真实邮箱不会暴露。
type ProxyService struct {
	store  domain.Store
	logger *zap.Logger
}

// NewProxyService 创建代理地址业务服务。
func NewProxyService(store domain.Store, logger *zap.Logger) *ProxyService {
	return &ProxyService{store: store, logger: logger}
}

// ResolveOrCreate 查询或创建 (一次性地址, 外部地址) 的代理映射。
//
// 并发调用同一映射对时只会持久化一条记录,后到者拿到先到者
// 创建的代理地址。返回的 created 标记本次调用是否真正创建。
func (s *ProxyService) ResolveOrCreate(parent *domain.Address, actualAddress string) (*domain.ProxyAddress, bool, error) {
	actualAddress = domain.ExtractAddress(actualAddress)

	proxy := &domain.ProxyAddress{
		ProxyAddress: strings.ToLower(fmt.Sprintf("%s+%s@%s",
			uuid.NewString(),
			addressLocalPart(actualAddress),
			parent.AddressDomain(),
		)),
		ActualAddress:     actualAddress,
		DisposableAddress: strings.ToLower(parent.Address),
		CreatedAt:         time.Now().UTC(),
	}

	created, err := s.store.CreateProxyAddress(proxy)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("proxy mapping created",
			zap.String("proxy", proxy.ProxyAddress),
			zap.String("disposable", proxy.DisposableAddress),
		)
	}
	return proxy, created, nil
}

// Resolve 根据代理地址查询映射。
func (s *ProxyService) Resolve(proxyAddress string) (*domain.ProxyAddress, error) {
	return s.store.GetProxyAddress(strings.ToLower(proxyAddress))
}

// DeleteByParent 删除一次性地址名下的全部代理映射。
func (s *ProxyService) DeleteByParent(disposableAddress string) error {
	return s.store.DeleteProxiesByParent(disposableAddress)
}
