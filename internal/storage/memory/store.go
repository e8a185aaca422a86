package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"dropmail/backend/internal/domain"
)

// Store 使用内存保存地址、代理映射与邮件元数据，主要用于开发验证。
//
// 所有写操作在互斥锁内完成，CreateProxyAddress 的 insert-if-absent
// 语义因此天然满足并发安全要求。
type Store struct {
	mu        sync.RWMutex
	addresses map[string]*domain.Address          // address -> record
	proxies   map[string]*domain.ProxyAddress     // proxyAddress -> record
	byPair    map[string]string                   // "disposable|actual" -> proxyAddress
	emails    map[string]map[string]*domain.Email // destination -> messageID -> email
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		addresses: make(map[string]*domain.Address),
		proxies:   make(map[string]*domain.ProxyAddress),
		byPair:    make(map[string]string),
		emails:    make(map[string]map[string]*domain.Email),
	}
}

func pairKey(disposable, actual string) string {
	return strings.ToLower(disposable) + "|" + strings.ToLower(actual)
}

// ========== Address Registry ==========

// CreateAddress 保存新地址，已存在时返回 ErrAddressTaken。
func (s *Store) CreateAddress(addr *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(addr.Address)
	if _, ok := s.addresses[key]; ok {
		return domain.ErrAddressTaken
	}
	clone := *addr
	s.addresses[key] = &clone
	return nil
}

// GetAddress 按地址查询，不存在返回 ErrAddressNotFound。
func (s *Store) GetAddress(address string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.addresses[strings.ToLower(address)]
	if !ok {
		return nil, domain.ErrAddressNotFound
	}
	clone := *addr
	return &clone, nil
}

// ListAddressesByOwner 返回某个所有者的全部未过期地址。
func (s *Store) ListAddressesByOwner(ownerToken string, asOf time.Time) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Address, 0)
	for _, addr := range s.addresses {
		if addr.OwnerToken == ownerToken && !addr.Expired(asOf) {
			result = append(result, *addr)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateAddress 更新已存在的地址记录。
func (s *Store) UpdateAddress(addr *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(addr.Address)
	if _, ok := s.addresses[key]; !ok {
		return domain.ErrAddressNotFound
	}
	clone := *addr
	s.addresses[key] = &clone
	return nil
}

// ListExpiredAddresses 分页返回 expiresAt <= asOf 的地址。
//
// 结果按地址排序，offset/limit 用于惰性遍历大结果集。
func (s *Store) ListExpiredAddresses(asOf time.Time, offset, limit int) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expired := make([]domain.Address, 0)
	for _, addr := range s.addresses {
		if addr.Expired(asOf) {
			expired = append(expired, *addr)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].Address < expired[j].Address
	})

	if offset >= len(expired) {
		return []domain.Address{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(expired) {
		end = len(expired)
	}
	return expired[offset:end], nil
}

// DeleteAddress 删除地址，幂等。
func (s *Store) DeleteAddress(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.addresses, strings.ToLower(address))
	return nil
}

// ========== Reply-Proxy Registry ==========

// CreateProxyAddress 按 (disposable, actual) 对去重插入。
//
// 已存在该映射对时不做任何修改，返回 created=false。
func (s *Store) CreateProxyAddress(proxy *domain.ProxyAddress) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(proxy.DisposableAddress, proxy.ActualAddress)
	if existing, ok := s.byPair[key]; ok {
		// 将已有的代理地址回写给调用方
		proxy.ProxyAddress = existing
		return false, nil
	}

	clone := *proxy
	s.proxies[strings.ToLower(proxy.ProxyAddress)] = &clone
	s.byPair[key] = proxy.ProxyAddress
	return true, nil
}

// GetProxyAddress 按代理地址查询。
func (s *Store) GetProxyAddress(proxyAddress string) (*domain.ProxyAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proxy, ok := s.proxies[strings.ToLower(proxyAddress)]
	if !ok {
		return nil, domain.ErrProxyNotFound
	}
	clone := *proxy
	return &clone, nil
}

// FindProxyByPair 按映射对查询。
func (s *Store) FindProxyByPair(disposableAddress, actualAddress string) (*domain.ProxyAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proxyAddr, ok := s.byPair[pairKey(disposableAddress, actualAddress)]
	if !ok {
		return nil, domain.ErrProxyNotFound
	}
	clone := *s.proxies[strings.ToLower(proxyAddr)]
	return &clone, nil
}

// ListProxiesByParent 返回某个一次性地址的全部代理映射。
func (s *Store) ListProxiesByParent(disposableAddress string) ([]domain.ProxyAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	disposableAddress = strings.ToLower(disposableAddress)
	result := make([]domain.ProxyAddress, 0)
	for _, proxy := range s.proxies {
		if strings.ToLower(proxy.DisposableAddress) == disposableAddress {
			result = append(result, *proxy)
		}
	}
	return result, nil
}

// DeleteProxiesByParent 级联删除某个一次性地址的全部代理映射，幂等。
func (s *Store) DeleteProxiesByParent(disposableAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	disposableAddress = strings.ToLower(disposableAddress)
	for key, proxy := range s.proxies {
		if strings.ToLower(proxy.DisposableAddress) == disposableAddress {
			delete(s.byPair, pairKey(proxy.DisposableAddress, proxy.ActualAddress))
			delete(s.proxies, key)
		}
	}
	return nil
}

// ========== Mailbox Store ==========

// SaveEmail 保存邮件元数据，重复主键返回 ErrMessageExists。
func (s *Store) SaveEmail(email *domain.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := strings.ToLower(email.Destination)
	if _, ok := s.emails[dest]; !ok {
		s.emails[dest] = make(map[string]*domain.Email)
	}
	if _, ok := s.emails[dest][email.MessageID]; ok {
		return domain.ErrMessageExists
	}
	clone := *email
	s.emails[dest][email.MessageID] = &clone
	return nil
}

// ListEmails 返回某个地址下的全部邮件，按 ReceivedAt 升序。
func (s *Store) ListEmails(destination string) ([]domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgMap := s.emails[strings.ToLower(destination)]
	result := make([]domain.Email, 0, len(msgMap))
	for _, email := range msgMap {
		result = append(result, *email)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result, nil
}

// GetEmail 获取单封邮件的元数据。
func (s *Store) GetEmail(destination, messageID string) (*domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.emails[strings.ToLower(destination)][messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	clone := *email
	return &clone, nil
}

// MarkEmailRead 将 IsNew 置为 false。
func (s *Store) MarkEmailRead(destination, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.emails[strings.ToLower(destination)][messageID]
	if !ok {
		return domain.ErrMessageNotFound
	}
	email.IsNew = false
	return nil
}

// DeleteEmail 删除单封邮件的元数据，幂等。
func (s *Store) DeleteEmail(destination, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := strings.ToLower(destination)
	if msgMap, ok := s.emails[dest]; ok {
		delete(msgMap, messageID)
		if len(msgMap) == 0 {
			delete(s.emails, dest)
		}
	}
	return nil
}
