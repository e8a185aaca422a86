package storage

import (
	"time"

	"dropmail/backend/internal/domain"
)

// AddressRepository 定义一次性地址的数据存取操作。
type AddressRepository interface {
	CreateAddress(addr *domain.Address) error
	GetAddress(address string) (*domain.Address, error)
	ListAddressesByOwner(ownerToken string, asOf time.Time) ([]domain.Address, error)
	UpdateAddress(addr *domain.Address) error
	ListExpiredAddresses(asOf time.Time, offset, limit int) ([]domain.Address, error)
	DeleteAddress(address string) error
}

// ProxyRepository 定义回信代理映射的数据存取操作。
type ProxyRepository interface {
	CreateProxyAddress(proxy *domain.ProxyAddress) (created bool, err error)
	GetProxyAddress(proxyAddress string) (*domain.ProxyAddress, error)
	FindProxyByPair(disposableAddress, actualAddress string) (*domain.ProxyAddress, error)
	ListProxiesByParent(disposableAddress string) ([]domain.ProxyAddress, error)
	DeleteProxiesByParent(disposableAddress string) error
}

// EmailRepository 定义邮件元数据的数据存取操作。
type EmailRepository interface {
	SaveEmail(email *domain.Email) error
	ListEmails(destination string) ([]domain.Email, error)
	GetEmail(destination, messageID string) (*domain.Email, error)
	MarkEmailRead(destination, messageID string) error
	DeleteEmail(destination, messageID string) error
}

// BlobStore 定义原始邮件内容的存取操作。
//
// 元数据行中的 RawRef 即 SaveRaw 返回的引用。
type BlobStore interface {
	SaveRaw(destination, messageID string, raw []byte) (string, error)
	GetRaw(destination, messageID string) ([]byte, error)
	DeleteRaw(destination, messageID string) error
	DeleteAllRaw(destination string) error
}

// Store 聚合接口，等价于 domain.Store。
type Store = domain.Store
