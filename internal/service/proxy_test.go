package service

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage/memory"
)

var proxyAddressPattern = regexp.MustCompile(`^[0-9a-f-]{36}\+sender@drop\.example$`)

func testParent() *domain.Address {
	now := time.Now().UTC()
	return &domain.Address{
		Address:       "smith.james.42@drop.example",
		OwnerToken:    "owner-1",
		RedirectEmail: "real@example.com",
		Redirect:      true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
	}
}

func TestResolveOrCreateFormat(t *testing.T) {
	store := memory.NewStore()
	svc := NewProxyService(store, zap.NewNop())

	proxy, created, err := svc.ResolveOrCreate(testParent(), "Sender <sender@corp.example>")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Regexp(t, proxyAddressPattern, proxy.ProxyAddress)
	assert.Equal(t, "sender@corp.example", proxy.ActualAddress)
	assert.Equal(t, "smith.james.42@drop.example", proxy.DisposableAddress)
}

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	svc := NewProxyService(store, zap.NewNop())
	parent := testParent()

	first, created, err := svc.ResolveOrCreate(parent, "sender@corp.example")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.ResolveOrCreate(parent, "sender@corp.example")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ProxyAddress, second.ProxyAddress)

	// 不同的外部地址产生不同映射
	third, created, err := svc.ResolveOrCreate(parent, "other@corp.example")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ProxyAddress, third.ProxyAddress)
}

func TestResolveOrCreateConcurrentSingleMapping(t *testing.T) {
	store := memory.NewStore()
	svc := NewProxyService(store, zap.NewNop())
	parent := testParent()

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proxy, _, err := svc.ResolveOrCreate(parent, "sender@corp.example")
			assert.NoError(t, err)
			results <- proxy.ProxyAddress
		}()
	}
	wg.Wait()
	close(results)

	// 全部调用拿到同一个代理地址
	unique := make(map[string]struct{})
	for addr := range results {
		unique[addr] = struct{}{}
	}
	assert.Len(t, unique, 1)

	proxies, err := store.ListProxiesByParent(parent.Address)
	require.NoError(t, err)
	assert.Len(t, proxies, 1)
}

func TestResolveUnknownProxy(t *testing.T) {
	svc := NewProxyService(memory.NewStore(), zap.NewNop())

	_, err := svc.Resolve("nope+x@drop.example")
	assert.ErrorIs(t, err, domain.ErrProxyNotFound)
}
