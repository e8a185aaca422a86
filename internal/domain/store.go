package domain

import "time"

// Store 聚合所有存储接口
type Store interface {
	// ========== Address Registry ==========
	CreateAddress(addr *Address) error // 已存在时返回 ErrAddressTaken
	GetAddress(address string) (*Address, error)
	ListAddressesByOwner(ownerToken string, asOf time.Time) ([]Address, error)
	UpdateAddress(addr *Address) error
	ListExpiredAddresses(asOf time.Time, offset, limit int) ([]Address, error)
	DeleteAddress(address string) error // 幂等，不存在不报错

	// ========== Reply-Proxy Registry ==========
	CreateProxyAddress(proxy *ProxyAddress) (created bool, err error) // 按 (disposable, actual) 去重
	GetProxyAddress(proxyAddress string) (*ProxyAddress, error)
	FindProxyByPair(disposableAddress, actualAddress string) (*ProxyAddress, error)
	ListProxiesByParent(disposableAddress string) ([]ProxyAddress, error)
	DeleteProxiesByParent(disposableAddress string) error

	// ========== Mailbox Store ==========
	SaveEmail(email *Email) error                   // 重复主键返回 ErrMessageExists
	ListEmails(destination string) ([]Email, error) // 按 ReceivedAt 升序
	GetEmail(destination, messageID string) (*Email, error)
	MarkEmailRead(destination, messageID string) error
	DeleteEmail(destination, messageID string) error
}
