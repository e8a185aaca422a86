package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dropmail/backend/internal/domain"
)

// Store Redis 存储实现。
//
// 地址与邮件记录以 JSON 存放,过期判定基于记录内的 expires_at
// 字段而不是 Redis 键过期:清扫器需要先级联删除邮件与代理映射,
// 不能让 Redis 抢先淘汰地址键。
type Store struct {
	client *redis.Client
	ctx    context.Context
}

// NewStore 创建 Redis 存储实例
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Health 检查 Redis 健康状态
func (s *Store) Health() error {
	return s.client.Ping(s.ctx).Err()
}

func addressKey(address string) string {
	return fmt.Sprintf("address:%s", strings.ToLower(address))
}

func ownerKey(ownerToken string) string {
	return fmt.Sprintf("owner:%s", ownerToken)
}

func proxyKey(proxyAddress string) string {
	return fmt.Sprintf("proxy:%s", strings.ToLower(proxyAddress))
}

func proxyPairKey(disposable, actual string) string {
	return fmt.Sprintf("proxypair:%s|%s", strings.ToLower(disposable), strings.ToLower(actual))
}

func proxyParentKey(disposable string) string {
	return fmt.Sprintf("proxies:%s", strings.ToLower(disposable))
}

func emailKey(destination, messageID string) string {
	return fmt.Sprintf("email:%s:%s", strings.ToLower(destination), messageID)
}

func emailIndexKey(destination string) string {
	return fmt.Sprintf("emails:%s", strings.ToLower(destination))
}

// expiryIndexKey 全局过期索引(ZSET, score = expires_at unix 秒)
const expiryIndexKey = "addresses:expiry"

// ========== 地址存储 ==========

// CreateAddress 创建新地址，键已存在时返回 ErrAddressTaken
func (s *Store) CreateAddress(addr *domain.Address) error {
	data, err := json.Marshal(addr)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(s.ctx, addressKey(addr.Address), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAddressTaken
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(s.ctx, ownerKey(addr.OwnerToken), strings.ToLower(addr.Address))
	pipe.ZAdd(s.ctx, expiryIndexKey, redis.Z{
		Score:  float64(addr.ExpiresAt.Unix()),
		Member: strings.ToLower(addr.Address),
	})
	_, err = pipe.Exec(s.ctx)
	return err
}

// GetAddress 根据地址获取记录
func (s *Store) GetAddress(address string) (*domain.Address, error) {
	data, err := s.client.Get(s.ctx, addressKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}

	var addr domain.Address
	if err := json.Unmarshal([]byte(data), &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

// ListAddressesByOwner 获取所有者名下全部未过期地址
func (s *Store) ListAddressesByOwner(ownerToken string, asOf time.Time) ([]domain.Address, error) {
	members, err := s.client.SMembers(s.ctx, ownerKey(ownerToken)).Result()
	if err != nil {
		return nil, err
	}

	result := make([]domain.Address, 0, len(members))
	for _, member := range members {
		addr, err := s.GetAddress(member)
		if errors.Is(err, domain.ErrAddressNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !addr.Expired(asOf) {
			result = append(result, *addr)
		}
	}
	return result, nil
}

// UpdateAddress 更新已存在的地址记录
func (s *Store) UpdateAddress(addr *domain.Address) error {
	data, err := json.Marshal(addr)
	if err != nil {
		return err
	}

	ok, err := s.client.SetXX(s.ctx, addressKey(addr.Address), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAddressNotFound
	}

	// 续期后同步过期索引
	return s.client.ZAdd(s.ctx, expiryIndexKey, redis.Z{
		Score:  float64(addr.ExpiresAt.Unix()),
		Member: strings.ToLower(addr.Address),
	}).Err()
}

// ListExpiredAddresses 基于过期索引分页返回已过期地址
func (s *Store) ListExpiredAddresses(asOf time.Time, offset, limit int) ([]domain.Address, error) {
	members, err := s.client.ZRangeByScore(s.ctx, expiryIndexKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", asOf.Unix()),
		Offset: int64(offset),
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	result := make([]domain.Address, 0, len(members))
	for _, member := range members {
		addr, err := s.GetAddress(member)
		if errors.Is(err, domain.ErrAddressNotFound) {
			// 索引残留,只清索引项
			s.client.ZRem(s.ctx, expiryIndexKey, member)
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *addr)
	}
	return result, nil
}

// DeleteAddress 删除地址记录及其索引项，幂等
func (s *Store) DeleteAddress(address string) error {
	addr, err := s.GetAddress(address)
	if errors.Is(err, domain.ErrAddressNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(s.ctx, addressKey(address))
	pipe.SRem(s.ctx, ownerKey(addr.OwnerToken), strings.ToLower(address))
	pipe.ZRem(s.ctx, expiryIndexKey, strings.ToLower(address))
	_, err = pipe.Exec(s.ctx)
	return err
}

// ========== 代理映射存储 ==========

// CreateProxyAddress 按映射对去重插入。
//
// SETNX 在映射对键上仲裁并发:未抢到的调用方查回已有代理地址。
func (s *Store) CreateProxyAddress(proxy *domain.ProxyAddress) (bool, error) {
	pairKey := proxyPairKey(proxy.DisposableAddress, proxy.ActualAddress)

	ok, err := s.client.SetNX(s.ctx, pairKey, strings.ToLower(proxy.ProxyAddress), 0).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		existing, err := s.FindProxyByPair(proxy.DisposableAddress, proxy.ActualAddress)
		if err != nil {
			return false, err
		}
		*proxy = *existing
		return false, nil
	}

	data, err := json.Marshal(proxy)
	if err != nil {
		return false, err
	}

	pipe := s.client.Pipeline()
	pipe.Set(s.ctx, proxyKey(proxy.ProxyAddress), data, 0)
	pipe.SAdd(s.ctx, proxyParentKey(proxy.DisposableAddress), strings.ToLower(proxy.ProxyAddress))
	if _, err := pipe.Exec(s.ctx); err != nil {
		return false, err
	}
	return true, nil
}

// GetProxyAddress 根据代理地址获取映射
func (s *Store) GetProxyAddress(proxyAddress string) (*domain.ProxyAddress, error) {
	data, err := s.client.Get(s.ctx, proxyKey(proxyAddress)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrProxyNotFound
	}
	if err != nil {
		return nil, err
	}

	var proxy domain.ProxyAddress
	if err := json.Unmarshal([]byte(data), &proxy); err != nil {
		return nil, err
	}
	return &proxy, nil
}

// FindProxyByPair 根据映射对获取代理地址
func (s *Store) FindProxyByPair(disposableAddress, actualAddress string) (*domain.ProxyAddress, error) {
	proxyAddr, err := s.client.Get(s.ctx, proxyPairKey(disposableAddress, actualAddress)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrProxyNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetProxyAddress(proxyAddr)
}

// ListProxiesByParent 获取一次性地址名下全部代理映射
func (s *Store) ListProxiesByParent(disposableAddress string) ([]domain.ProxyAddress, error) {
	members, err := s.client.SMembers(s.ctx, proxyParentKey(disposableAddress)).Result()
	if err != nil {
		return nil, err
	}

	result := make([]domain.ProxyAddress, 0, len(members))
	for _, member := range members {
		proxy, err := s.GetProxyAddress(member)
		if errors.Is(err, domain.ErrProxyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *proxy)
	}
	return result, nil
}

// DeleteProxiesByParent 级联删除一次性地址名下全部代理映射，幂等
func (s *Store) DeleteProxiesByParent(disposableAddress string) error {
	proxies, err := s.ListProxiesByParent(disposableAddress)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for _, proxy := range proxies {
		pipe.Del(s.ctx, proxyKey(proxy.ProxyAddress))
		pipe.Del(s.ctx, proxyPairKey(proxy.DisposableAddress, proxy.ActualAddress))
	}
	pipe.Del(s.ctx, proxyParentKey(disposableAddress))
	_, err = pipe.Exec(s.ctx)
	return err
}

// ========== 邮件元数据存储 ==========

// SaveEmail 保存邮件元数据，重复投递返回 ErrMessageExists
func (s *Store) SaveEmail(email *domain.Email) error {
	data, err := json.Marshal(email)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(s.ctx, emailKey(email.Destination, email.MessageID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrMessageExists
	}

	return s.client.ZAdd(s.ctx, emailIndexKey(email.Destination), redis.Z{
		Score:  float64(email.ReceivedAt.UnixNano()),
		Member: email.MessageID,
	}).Err()
}

// ListEmails 返回地址名下全部邮件，按接收时间升序
func (s *Store) ListEmails(destination string) ([]domain.Email, error) {
	messageIDs, err := s.client.ZRange(s.ctx, emailIndexKey(destination), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]domain.Email, 0, len(messageIDs))
	for _, messageID := range messageIDs {
		email, err := s.GetEmail(destination, messageID)
		if errors.Is(err, domain.ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *email)
	}
	return result, nil
}

// GetEmail 获取单封邮件的元数据
func (s *Store) GetEmail(destination, messageID string) (*domain.Email, error) {
	data, err := s.client.Get(s.ctx, emailKey(destination, messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	var email domain.Email
	if err := json.Unmarshal([]byte(data), &email); err != nil {
		return nil, err
	}
	return &email, nil
}

// MarkEmailRead 将邮件标记为已读
func (s *Store) MarkEmailRead(destination, messageID string) error {
	email, err := s.GetEmail(destination, messageID)
	if err != nil {
		return err
	}
	if !email.IsNew {
		return nil
	}
	email.IsNew = false

	data, err := json.Marshal(email)
	if err != nil {
		return err
	}
	return s.client.Set(s.ctx, emailKey(destination, messageID), data, 0).Err()
}

// DeleteEmail 删除单封邮件的元数据，幂等
func (s *Store) DeleteEmail(destination, messageID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(s.ctx, emailKey(destination, messageID))
	pipe.ZRem(s.ctx, emailIndexKey(destination), messageID)
	_, err := pipe.Exec(s.ctx)
	return err
}
