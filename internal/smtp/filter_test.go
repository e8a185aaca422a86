package smtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dropmail/backend/internal/config"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/storage/filesystem"
	"dropmail/backend/internal/storage/memory"
)

func newTestFilter(t *testing.T) (*Filter, *service.AddressService, *service.ProxyService, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	blobs, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		Mail: config.MailConfig{
			Domains:    []string{"drop.example"},
			DefaultTTL: time.Hour,
			MaxTTL:     72 * time.Hour,
		},
		Sweep: config.SweepConfig{PageSize: 100},
	}

	logger := zap.NewNop()
	addresses := service.NewAddressService(store, blobs, cfg, logger)
	proxies := service.NewProxyService(store, logger)
	return NewFilter(addresses, proxies, cfg.Mail.Domains), addresses, proxies, store
}

func TestFilterAcceptsLiveDisposableAddress(t *testing.T) {
	filter, addresses, _, _ := newTestFilter(t)

	addr, _, err := addresses.Create(service.CreateAddressInput{OwnerToken: "owner-1"})
	require.NoError(t, err)

	kind, err := filter.Check("<" + addr.Address + ">")
	require.NoError(t, err)
	assert.Equal(t, KindDisposable, kind)
}

func TestFilterAcceptsProxyAddress(t *testing.T) {
	filter, addresses, proxies, _ := newTestFilter(t)

	parent, _, err := addresses.Create(service.CreateAddressInput{OwnerToken: "owner-1"})
	require.NoError(t, err)
	mapping, _, err := proxies.ResolveOrCreate(parent, "sender@corp.example")
	require.NoError(t, err)

	kind, err := filter.Check(mapping.ProxyAddress)
	require.NoError(t, err)
	assert.Equal(t, KindProxy, kind)
}

func TestFilterRejectsForeignDomain(t *testing.T) {
	filter, _, _, _ := newTestFilter(t)

	_, err := filter.Check("anyone@elsewhere.example")
	assert.ErrorIs(t, err, ErrDomainNotManaged)
}

func TestFilterRejectsUnknownRecipient(t *testing.T) {
	filter, _, _, _ := newTestFilter(t)

	_, err := filter.Check("ghost@drop.example")
	assert.ErrorIs(t, err, ErrRecipientUnknown)
}

func TestFilterRejectsExpiredAddress(t *testing.T) {
	filter, addresses, _, store := newTestFilter(t)

	addr, _, err := addresses.Create(service.CreateAddressInput{OwnerToken: "owner-1"})
	require.NoError(t, err)

	// 地址过期后视为不存在
	record, err := store.GetAddress(addr.Address)
	require.NoError(t, err)
	record.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.UpdateAddress(record))

	_, err = filter.Check(addr.Address)
	assert.ErrorIs(t, err, ErrRecipientUnknown)
}

func TestFilterRejectsMalformedRecipient(t *testing.T) {
	filter, _, _, _ := newTestFilter(t)

	_, err := filter.Check("not-an-address")
	assert.ErrorIs(t, err, ErrRecipientUnknown)
}
