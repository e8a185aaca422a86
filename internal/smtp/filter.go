package smtp

import (
	"errors"
	"strings"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/service"
)

var (
	// ErrDomainNotManaged 收件人域名不归本服务器管理。
	ErrDomainNotManaged = errors.New("domain not managed by this server")
	// ErrRecipientUnknown 收件人既不是有效的一次性地址也不是代理地址。
	ErrRecipientUnknown = errors.New("recipient unknown")
)

// 收件人类型
const (
	KindDisposable = "disposable"
	KindProxy      = "proxy"
)

// Filter 收件人级别的接收过滤。
//
// 每个 RCPT 独立判定:域名必须在管理列表中,地址必须是
// 当前有效的一次性地址或已登记的代理地址。过期地址等同于
// 不存在——判定实时查询注册表,不走任何缓存。
type Filter struct {
	addresses *service.AddressService
	proxies   *service.ProxyService
	domainSet map[string]struct{}
}

// NewFilter 创建收件过滤器。
func NewFilter(addresses *service.AddressService, proxies *service.ProxyService, domains []string) *Filter {
	domainSet := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		domainSet[strings.ToLower(d)] = struct{}{}
	}
	return &Filter{
		addresses: addresses,
		proxies:   proxies,
		domainSet: domainSet,
	}
}

// Check 判定一个收件人。
//
// 返回收件人类型(KindDisposable 或 KindProxy);拒绝时返回
// ErrDomainNotManaged、ErrRecipientUnknown 或底层存储错误。
func (f *Filter) Check(recipient string) (string, error) {
	addr := domain.ExtractAddress(recipient)

	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", ErrRecipientUnknown
	}
	if _, ok := f.domainSet[addr[at+1:]]; !ok {
		return "", ErrDomainNotManaged
	}

	_, err := f.addresses.Get(addr)
	if err == nil {
		return KindDisposable, nil
	}
	if !errors.Is(err, domain.ErrAddressNotFound) {
		return "", err
	}

	_, err = f.proxies.Resolve(addr)
	if err == nil {
		return KindProxy, nil
	}
	if !errors.Is(err, domain.ErrProxyNotFound) {
		return "", err
	}

	return "", ErrRecipientUnknown
}
