package smtp

import (
	"bytes"
	"context"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dropmail/backend/internal/config"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/pipeline"
	"dropmail/backend/internal/relay"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/storage/filesystem"
	"dropmail/backend/internal/storage/memory"
)

var testMetrics = monitoring.NewMetrics()

type noopRelay struct{}

func (noopRelay) Send(context.Context, *relay.Message) error { return nil }
func (noopRelay) Name() string                               { return "noop" }

func newTestBackend(t *testing.T) (*Backend, *service.AddressService, *service.EmailService) {
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
	emails := service.NewEmailService(store, blobs, logger)
	p := pipeline.New(addresses, proxies, emails, blobs, noopRelay{}, testMetrics, nil, logger)
	filter := NewFilter(addresses, proxies, cfg.Mail.Domains)

	return NewBackend(filter, p, nil, testMetrics, logger, 10<<20), addresses, emails
}

func TestSessionRejectsUnknownRecipient(t *testing.T) {
	backend, _, _ := newTestBackend(t)
	s := &session{backend: backend}

	require.NoError(t, s.Mail("sender@corp.example", nil))

	err := s.Rcpt("ghost@drop.example", nil)
	require.Error(t, err)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
}

func TestSessionRejectsForeignDomain(t *testing.T) {
	backend, _, _ := newTestBackend(t)
	s := &session{backend: backend}

	err := s.Rcpt("anyone@elsewhere.example", nil)
	require.Error(t, err)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
}

func TestSessionStoresMailForAcceptedRecipient(t *testing.T) {
	backend, addresses, emails := newTestBackend(t)

	addr, _, err := addresses.Create(service.CreateAddressInput{
		OwnerToken:    "owner-1",
		RedirectEmail: "real@example.com",
	})
	require.NoError(t, err)

	s := &session{backend: backend}
	require.NoError(t, s.Mail("sender@corp.example", nil))
	require.NoError(t, s.Rcpt(addr.Address, nil))

	raw := "From: sender@corp.example\r\nTo: " + addr.Address + "\r\nSubject: =?utf-8?q?greetings?=\r\n\r\nhello"
	require.NoError(t, s.Data(bytes.NewReader([]byte(raw))))

	list, err := emails.List(addr.Address)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "greetings", list[0].Subject)
	assert.Equal(t, "sender@corp.example", list[0].Source)
	assert.NotEmpty(t, list[0].MessageID)
}

func TestConnectionLimiter(t *testing.T) {
	limiter := NewConnectionLimiter(2, 100, 100)

	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.False(t, limiter.Acquire())

	limiter.Release()
	assert.True(t, limiter.Acquire())
	assert.Equal(t, 2, limiter.Current())
}
