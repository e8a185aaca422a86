package service

import (
	"errors"
	"fmt"
	"iter"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"dropmail/backend/internal/config"
	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage"
)

// ErrAddressExhausted 随机地址多次碰撞仍未分配成功。
var ErrAddressExhausted = errors.New("could not allocate a free address")

// maxGenerateAttempts 随机地址生成的最大碰撞重试次数
const maxGenerateAttempts = 10

// AddressService 封装一次性地址的业务操作。
type AddressService struct {
	store     domain.Store
	blobs     storage.BlobStore
	cfg       *config.Config
	domainSet map[string]struct{}
	random    *rand.Rand
	randomMu  sync.Mutex
	validator *domain.EmailValidator
	logger    *zap.Logger
}

// NewAddressService 创建地址业务服务。
func NewAddressService(store domain.Store, blobs storage.BlobStore, cfg *config.Config, logger *zap.Logger) *AddressService {
	domainSet := make(map[string]struct{}, len(cfg.Mail.Domains))
	for _, d := range cfg.Mail.Domains {
		domainSet[d] = struct{}{}
	}

	return &AddressService{
		store:     store,
		blobs:     blobs,
		cfg:       cfg,
		domainSet: domainSet,
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
		validator: domain.NewEmailValidator(),
		logger:    logger,
	}
}

// CreateAddressInput 定义创建地址所需的输入。
type CreateAddressInput struct {
	OwnerToken       string
	RedirectEmail    string // 所有者的真实邮箱，转发目标
	RequestedAddress string // 空或 "random" 表示随机生成
}

// Create 创建新的一次性地址。
//
// 指定地址已被其他所有者占用时回退为随机地址(而不是报错);
// 指定地址属于当前所有者时续期后直接返回。
func (s *AddressService) Create(input CreateAddressInput) (*domain.Address, []domain.Address, error) {
	now := time.Now().UTC()
	requested := strings.ToLower(strings.TrimSpace(input.RequestedAddress))
	if requested == "random" {
		requested = ""
	}

	if requested != "" {
		if err := s.validator.ValidateEmail(requested); err != nil {
			return nil, nil, err
		}
		if _, ok := s.domainSet[addressDomain(requested)]; !ok {
			return nil, nil, domain.ErrDomainNotAllowed
		}

		existing, err := s.store.GetAddress(requested)
		switch {
		case err == nil:
			if existing.OwnerToken == input.OwnerToken {
				// 已归属当前所有者:续期后返回。过期时间只会推后,
				// 已经延长过的地址不会被拉回默认 TTL
				if renewed := now.Add(s.cfg.Mail.DefaultTTL); renewed.After(existing.ExpiresAt) {
					existing.ExpiresAt = renewed
					if err := s.store.UpdateAddress(existing); err != nil {
						return nil, nil, err
					}
				}
				all, err := s.store.ListAddressesByOwner(input.OwnerToken, now)
				return existing, all, err
			}
			// 被其他所有者占用,退回随机地址
			requested = ""
		case errors.Is(err, domain.ErrAddressNotFound):
		default:
			return nil, nil, err
		}
	}

	addr := &domain.Address{
		OwnerToken:    input.OwnerToken,
		RedirectEmail: strings.ToLower(strings.TrimSpace(input.RedirectEmail)),
		Redirect:      true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.Mail.DefaultTTL),
	}

	if requested != "" {
		addr.Address = requested
		err := s.store.CreateAddress(addr)
		if err == nil {
			all, listErr := s.store.ListAddressesByOwner(input.OwnerToken, now)
			return addr, all, listErr
		}
		if !errors.Is(err, domain.ErrAddressTaken) {
			return nil, nil, err
		}
		// 创建竞争失败,同样退回随机地址
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		addr.Address = s.randomAddress()
		err := s.store.CreateAddress(addr)
		if err == nil {
			s.logger.Info("address created",
				zap.String("address", addr.Address),
				zap.Time("expires_at", addr.ExpiresAt),
			)
			all, listErr := s.store.ListAddressesByOwner(input.OwnerToken, now)
			return addr, all, listErr
		}
		if !errors.Is(err, domain.ErrAddressTaken) {
			return nil, nil, err
		}
	}

	return nil, nil, ErrAddressExhausted
}

// Get 获取未过期的地址记录，过期视为不存在。
func (s *AddressService) Get(address string) (*domain.Address, error) {
	addr, err := s.store.GetAddress(address)
	if err != nil {
		return nil, err
	}
	if addr.Expired(time.Now().UTC()) {
		return nil, domain.ErrAddressNotFound
	}
	return addr, nil
}

// GetOwned 获取地址并校验所有权。
func (s *AddressService) GetOwned(ownerToken, address string) (*domain.Address, error) {
	addr, err := s.Get(address)
	if err != nil {
		return nil, err
	}
	if addr.OwnerToken != ownerToken {
		return nil, domain.ErrNotOwner
	}
	return addr, nil
}

// List 返回所有者名下全部未过期地址。
func (s *AddressService) List(ownerToken string) ([]domain.Address, error) {
	return s.store.ListAddressesByOwner(ownerToken, time.Now().UTC())
}

// UpdateSettingsInput 定义地址设置变更的输入。
type UpdateSettingsInput struct {
	ExtendTTLBy time.Duration // >0 时续期
	Redirect    *bool         // 非 nil 时切换转发开关
	Delete      bool          // 删除地址及其全部数据
}

// UpdateSettings 变更地址设置。续期只会推后过期时间，不会提前。
func (s *AddressService) UpdateSettings(ownerToken, address string, input UpdateSettingsInput) (*domain.Address, error) {
	addr, err := s.GetOwned(ownerToken, address)
	if err != nil {
		return nil, err
	}

	if input.Delete {
		if err := s.Remove(addr.Address); err != nil {
			return nil, err
		}
		return nil, nil
	}

	now := time.Now().UTC()
	if input.ExtendTTLBy > 0 {
		newExpiry := now.Add(input.ExtendTTLBy)
		if ceiling := now.Add(s.cfg.Mail.MaxTTL); newExpiry.After(ceiling) {
			newExpiry = ceiling
		}
		if newExpiry.After(addr.ExpiresAt) {
			addr.ExpiresAt = newExpiry
		}
	}
	if input.Redirect != nil {
		addr.Redirect = *input.Redirect
	}

	if err := s.store.UpdateAddress(addr); err != nil {
		return nil, err
	}
	return addr, nil
}

// Remove 级联删除地址及其全部数据。
//
// 顺序固定:先邮件(元数据+原文),再代理映射,最后地址记录。
// 中途失败后重跑可以从头继续,每一步都幂等。
func (s *AddressService) Remove(address string) error {
	emails, err := s.store.ListEmails(address)
	if err != nil {
		return err
	}
	for _, email := range emails {
		if err := s.store.DeleteEmail(email.Destination, email.MessageID); err != nil {
			return err
		}
	}
	if err := s.blobs.DeleteAllRaw(address); err != nil {
		return err
	}
	// 转发失败时代理回信的原文留在代理地址名下,一并清理
	proxies, err := s.store.ListProxiesByParent(address)
	if err != nil {
		return err
	}
	for _, proxy := range proxies {
		if err := s.blobs.DeleteAllRaw(proxy.ProxyAddress); err != nil {
			return err
		}
	}
	if err := s.store.DeleteProxiesByParent(address); err != nil {
		return err
	}
	return s.store.DeleteAddress(address)
}

// ListExpired 惰性遍历在 asOf 时刻已过期的地址。
//
// 按页从存储拉取,调用方可以随时中断;重新调用得到一个全新的
// 遍历。遍历期间出错时以非空 error 产出一次后结束。
func (s *AddressService) ListExpired(asOf time.Time) iter.Seq2[domain.Address, error] {
	pageSize := s.cfg.Sweep.PageSize
	return func(yield func(domain.Address, error) bool) {
		offset := 0
		for {
			page, err := s.store.ListExpiredAddresses(asOf, offset, pageSize)
			if err != nil {
				yield(domain.Address{}, err)
				return
			}
			for _, addr := range page {
				if !yield(addr, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			offset += len(page)
		}
	}
}

// randomAddress 生成 Surname.Firstname.NN@domain 形式的随机地址
func (s *AddressService) randomAddress() string {
	s.randomMu.Lock()
	defer s.randomMu.Unlock()

	d := s.cfg.Mail.Domains[s.random.Intn(len(s.cfg.Mail.Domains))]
	return strings.ToLower(fmt.Sprintf("%s@%s", randomLocalPart(s.random), d))
}

// addressDomain 返回 @ 后面的域名部分
func addressDomain(address string) string {
	if i := strings.Index(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return ""
}

// addressLocalPart 返回 @ 前面的本地部分
func addressLocalPart(address string) string {
	if i := strings.Index(address, "@"); i >= 0 {
		return address[:i]
	}
	return address
}
