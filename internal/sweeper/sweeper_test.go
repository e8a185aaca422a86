package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dropmail/backend/internal/config"
	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/pipeline"
	"dropmail/backend/internal/relay"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/storage/filesystem"
	"dropmail/backend/internal/storage/memory"
)

// noopRelay 丢弃所有出站邮件
type noopRelay struct{}

func (noopRelay) Send(ctx context.Context, msg *relay.Message) error { return nil }

func (noopRelay) Name() string { return "noop" }

var testMetrics = monitoring.NewMetrics()

type sweepEnv struct {
	sweeper   *Sweeper
	addresses *service.AddressService
	store     *memory.Store
	blobs     *filesystem.Store
}

func newSweepEnv(t *testing.T) *sweepEnv {
	t.Helper()

	cfg := &config.Config{
		Mail: config.MailConfig{
			Domains:    []string{"drop.example"},
			DefaultTTL: time.Hour,
			MaxTTL:     72 * time.Hour,
		},
		Sweep: config.SweepConfig{
			Interval: time.Minute,
			PageSize: 2,
		},
	}

	store := memory.NewStore()
	blobs, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)
	addresses := service.NewAddressService(store, blobs, cfg, zap.NewNop())

	return &sweepEnv{
		sweeper:   NewSweeper(addresses, store, cfg.Sweep.Interval, testMetrics, zap.NewNop()),
		addresses: addresses,
		store:     store,
		blobs:     blobs,
	}
}

// seedAddress 直接写入一个指定过期时间的地址
func (e *sweepEnv) seedAddress(t *testing.T, address string, expiresAt time.Time) {
	t.Helper()
	now := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, e.store.CreateAddress(&domain.Address{
		Address:    address,
		OwnerToken: "owner-1",
		Redirect:   true,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}))
}

func TestSweepReclaimsExpiredCascade(t *testing.T) {
	env := newSweepEnv(t)
	now := time.Now().UTC()

	env.seedAddress(t, "gone.box.10@drop.example", now.Add(-time.Minute))

	rawRef, err := env.blobs.SaveRaw("gone.box.10@drop.example", "msg-1", []byte("Subject: x\r\n\r\nbody"))
	require.NoError(t, err)
	require.NoError(t, env.store.SaveEmail(&domain.Email{
		Destination: "gone.box.10@drop.example",
		MessageID:   "msg-1",
		Source:      "sender@remote.example",
		Subject:     "x",
		ReceivedAt:  now.Add(-time.Minute),
		IsNew:       true,
		RawRef:      rawRef,
	}))

	proxy := &domain.ProxyAddress{
		ProxyAddress:      "abc+sender@drop.example",
		ActualAddress:     "sender@remote.example",
		DisposableAddress: "gone.box.10@drop.example",
		CreatedAt:         now.Add(-time.Minute),
	}
	created, err := env.store.CreateProxyAddress(proxy)
	require.NoError(t, err)
	require.True(t, created)

	result, err := env.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Addresses)
	assert.Equal(t, 1, result.Emails)
	assert.Equal(t, 1, result.Proxies)
	assert.Equal(t, 0, result.Failures)

	_, err = env.store.GetAddress("gone.box.10@drop.example")
	assert.ErrorIs(t, err, domain.ErrAddressNotFound)
	_, err = env.store.GetProxyAddress("abc+sender@drop.example")
	assert.ErrorIs(t, err, domain.ErrProxyNotFound)
	emails, err := env.store.ListEmails("gone.box.10@drop.example")
	require.NoError(t, err)
	assert.Empty(t, emails)
	_, err = env.blobs.GetRaw("gone.box.10@drop.example", "msg-1")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestSweepKeepsLiveAddresses(t *testing.T) {
	env := newSweepEnv(t)
	now := time.Now().UTC()

	env.seedAddress(t, "old.box.11@drop.example", now.Add(-time.Minute))
	env.seedAddress(t, "live.box.12@drop.example", now.Add(time.Hour))

	result, err := env.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Addresses)

	_, err = env.store.GetAddress("live.box.12@drop.example")
	assert.NoError(t, err)
}

func TestSweepHandlesMultiplePages(t *testing.T) {
	env := newSweepEnv(t)
	now := time.Now().UTC()

	// PageSize 2,7 个过期地址需要跨页快照
	for i := 0; i < 7; i++ {
		env.seedAddress(t, addressWithIndex(i), now.Add(-time.Minute))
	}

	result, err := env.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 7, result.Addresses)

	for i := 0; i < 7; i++ {
		_, err := env.store.GetAddress(addressWithIndex(i))
		assert.ErrorIs(t, err, domain.ErrAddressNotFound)
	}
}

func TestSweepSecondPassIsNoop(t *testing.T) {
	env := newSweepEnv(t)
	now := time.Now().UTC()

	env.seedAddress(t, "gone.box.13@drop.example", now.Add(-time.Minute))

	first, err := env.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Addresses)

	second, err := env.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Addresses)
	assert.Equal(t, 0, second.Failures)
}

func TestSweepSkipsRenewedAddress(t *testing.T) {
	env := newSweepEnv(t)
	now := time.Now().UTC()

	env.seedAddress(t, "renew.box.14@drop.example", now.Add(-time.Minute))

	// 快照后、删除前续期:asOf 之后的 Sweep 重新确认时放行
	addr, err := env.store.GetAddress("renew.box.14@drop.example")
	require.NoError(t, err)
	addr.ExpiresAt = now.Add(time.Hour)
	require.NoError(t, env.store.UpdateAddress(addr))

	result, err := env.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Addresses)
	assert.Equal(t, 0, result.Failures)

	_, err = env.store.GetAddress("renew.box.14@drop.example")
	assert.NoError(t, err)
}

func TestSweepCancelledContext(t *testing.T) {
	env := newSweepEnv(t)
	now := time.Now().UTC()

	env.seedAddress(t, "gone.box.15@drop.example", now.Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.sweeper.Sweep(ctx, now)
	assert.ErrorIs(t, err, context.Canceled)
}

// 完整生命周期:创建 → 收信 → 续期 → 清扫放行 → 过期后清扫回收
func TestSweepAddressLifecycle(t *testing.T) {
	env := newSweepEnv(t)
	now := time.Now().UTC()

	addr, _, err := env.addresses.Create(service.CreateAddressInput{OwnerToken: "owner-1"})
	require.NoError(t, err)

	emails := service.NewEmailService(env.store, env.blobs, zap.NewNop())
	proxies := service.NewProxyService(env.store, zap.NewNop())
	p := pipeline.New(env.addresses, proxies, emails, env.blobs, noopRelay{}, testMetrics, nil, zap.NewNop())

	require.NoError(t, p.Process(context.Background(), pipeline.Inbound{
		MessageID:  "msg-life",
		From:       "sender@remote.example",
		To:         addr.Address,
		Subject:    "hello",
		ReceivedAt: now,
		Raw:        []byte("Subject: hello\r\n\r\nbody"),
	}))

	// 续期到默认 TTL 之外
	_, err = env.addresses.UpdateSettings("owner-1", addr.Address, service.UpdateSettingsInput{
		ExtendTTLBy: 2 * time.Hour,
	})
	require.NoError(t, err)

	// 默认 TTL 过了但续期没到:不回收
	intact, err := env.sweeper.Sweep(context.Background(), now.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, intact.Addresses)
	stored, err := env.store.ListEmails(addr.Address)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	// 续期也过了:级联回收地址、邮件和原文
	reclaimed, err := env.sweeper.Sweep(context.Background(), now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed.Addresses)
	assert.Equal(t, 1, reclaimed.Emails)
	assert.Equal(t, 0, reclaimed.Failures)

	_, err = env.store.GetAddress(addr.Address)
	assert.ErrorIs(t, err, domain.ErrAddressNotFound)
	_, err = env.blobs.GetRaw(addr.Address, "msg-life")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func addressWithIndex(i int) string {
	return string(rune('a'+i)) + ".box.20@drop.example"
}
