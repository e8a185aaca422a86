package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropmail/backend/internal/domain"
)

func newAddress(address string, ttl time.Duration) *domain.Address {
	now := time.Now().UTC()
	return &domain.Address{
		Address:       address,
		OwnerToken:    "owner-1",
		RedirectEmail: "user@example.com",
		Redirect:      true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

func TestAddressLifecycle(t *testing.T) {
	store := NewStore()

	addr := newAddress("Smith.Alice.42@drop.example", time.Hour)
	require.NoError(t, store.CreateAddress(addr))

	// 重复创建应冲突
	err := store.CreateAddress(addr)
	assert.ErrorIs(t, err, domain.ErrAddressTaken)

	// 查询大小写不敏感
	got, err := store.GetAddress("smith.alice.42@drop.example")
	require.NoError(t, err)
	assert.Equal(t, addr.Address, got.Address)
	assert.True(t, got.Redirect)

	got.Redirect = false
	require.NoError(t, store.UpdateAddress(got))
	got2, err := store.GetAddress(addr.Address)
	require.NoError(t, err)
	assert.False(t, got2.Redirect)

	require.NoError(t, store.DeleteAddress(addr.Address))
	_, err = store.GetAddress(addr.Address)
	assert.ErrorIs(t, err, domain.ErrAddressNotFound)

	// 删除幂等
	assert.NoError(t, store.DeleteAddress(addr.Address))
}

func TestListAddressesByOwnerSkipsExpired(t *testing.T) {
	store := NewStore()

	live := newAddress("live@drop.example", time.Hour)
	expired := newAddress("gone@drop.example", -time.Minute)
	require.NoError(t, store.CreateAddress(live))
	require.NoError(t, store.CreateAddress(expired))

	list, err := store.ListAddressesByOwner("owner-1", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "live@drop.example", list[0].Address)
}

func TestListExpiredAddressesPaging(t *testing.T) {
	store := NewStore()

	for i := 0; i < 5; i++ {
		addr := newAddress(fmt.Sprintf("old%d@drop.example", i), -time.Hour)
		require.NoError(t, store.CreateAddress(addr))
	}
	require.NoError(t, store.CreateAddress(newAddress("fresh@drop.example", time.Hour)))

	now := time.Now().UTC()
	page1, err := store.ListExpiredAddresses(now, 0, 3)
	require.NoError(t, err)
	assert.Len(t, page1, 3)

	page2, err := store.ListExpiredAddresses(now, 3, 3)
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	page3, err := store.ListExpiredAddresses(now, 6, 3)
	require.NoError(t, err)
	assert.Empty(t, page3)
}

func TestCreateProxyAddressInsertIfAbsent(t *testing.T) {
	store := NewStore()

	first := &domain.ProxyAddress{
		ProxyAddress:      "uuid-1+sender@drop.example",
		ActualAddress:     "sender@corp.example",
		DisposableAddress: "Smith.Alice.42@drop.example",
		CreatedAt:         time.Now().UTC(),
	}
	created, err := store.CreateProxyAddress(first)
	require.NoError(t, err)
	assert.True(t, created)

	// 同一映射对再次插入:不创建,且回写已有代理地址
	dup := &domain.ProxyAddress{
		ProxyAddress:      "uuid-2+sender@drop.example",
		ActualAddress:     "sender@corp.example",
		DisposableAddress: "Smith.Alice.42@drop.example",
		CreatedAt:         time.Now().UTC(),
	}
	created, err = store.CreateProxyAddress(dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "uuid-1+sender@drop.example", dup.ProxyAddress)

	got, err := store.FindProxyByPair("Smith.Alice.42@drop.example", "sender@corp.example")
	require.NoError(t, err)
	assert.Equal(t, "uuid-1+sender@drop.example", got.ProxyAddress)
}

func TestCreateProxyAddressConcurrent(t *testing.T) {
	store := NewStore()

	const workers = 16
	var wg sync.WaitGroup
	createdCount := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			proxy := &domain.ProxyAddress{
				ProxyAddress:      fmt.Sprintf("uuid-%d+sender@drop.example", i),
				ActualAddress:     "sender@corp.example",
				DisposableAddress: "box@drop.example",
				CreatedAt:         time.Now().UTC(),
			}
			created, err := store.CreateProxyAddress(proxy)
			assert.NoError(t, err)
			createdCount <- created
		}(i)
	}
	wg.Wait()
	close(createdCount)

	wins := 0
	for created := range createdCount {
		if created {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	proxies, err := store.ListProxiesByParent("box@drop.example")
	require.NoError(t, err)
	assert.Len(t, proxies, 1)
}

func TestDeleteProxiesByParent(t *testing.T) {
	store := NewStore()

	for i := 0; i < 3; i++ {
		_, err := store.CreateProxyAddress(&domain.ProxyAddress{
			ProxyAddress:      fmt.Sprintf("uuid-%d+s@drop.example", i),
			ActualAddress:     fmt.Sprintf("s%d@corp.example", i),
			DisposableAddress: "box@drop.example",
			CreatedAt:         time.Now().UTC(),
		})
		require.NoError(t, err)
	}
	_, err := store.CreateProxyAddress(&domain.ProxyAddress{
		ProxyAddress:      "uuid-x+t@drop.example",
		ActualAddress:     "t@corp.example",
		DisposableAddress: "other@drop.example",
		CreatedAt:         time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteProxiesByParent("box@drop.example"))

	proxies, err := store.ListProxiesByParent("box@drop.example")
	require.NoError(t, err)
	assert.Empty(t, proxies)

	// 其他地址的映射不受影响
	remaining, err := store.ListProxiesByParent("other@drop.example")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestEmailLifecycle(t *testing.T) {
	store := NewStore()
	now := time.Now().UTC()

	email := &domain.Email{
		Destination: "box@drop.example",
		MessageID:   "msg-1",
		Source:      "sender@corp.example",
		Subject:     "hello",
		ReceivedAt:  now,
		IsNew:       true,
		RawRef:      "box@drop.example/msg-1.eml",
	}
	require.NoError(t, store.SaveEmail(email))

	// 重复投递应冲突
	err := store.SaveEmail(email)
	assert.ErrorIs(t, err, domain.ErrMessageExists)

	got, err := store.GetEmail("box@drop.example", "msg-1")
	require.NoError(t, err)
	assert.True(t, got.IsNew)

	require.NoError(t, store.MarkEmailRead("box@drop.example", "msg-1"))
	got, err = store.GetEmail("box@drop.example", "msg-1")
	require.NoError(t, err)
	assert.False(t, got.IsNew)

	require.NoError(t, store.DeleteEmail("box@drop.example", "msg-1"))
	_, err = store.GetEmail("box@drop.example", "msg-1")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	// 删除幂等
	assert.NoError(t, store.DeleteEmail("box@drop.example", "msg-1"))
}

func TestListEmailsOrderedByReceivedAt(t *testing.T) {
	store := NewStore()
	base := time.Now().UTC()

	for i := 2; i >= 0; i-- {
		require.NoError(t, store.SaveEmail(&domain.Email{
			Destination: "box@drop.example",
			MessageID:   fmt.Sprintf("msg-%d", i),
			ReceivedAt:  base.Add(time.Duration(i) * time.Minute),
			IsNew:       true,
		}))
	}

	list, err := store.ListEmails("box@drop.example")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "msg-0", list[0].MessageID)
	assert.Equal(t, "msg-2", list[2].MessageID)
}
