// Package pipeline 实现入站邮件的存储与转发管线。
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/relay"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/storage"
)

// Notifier 新邮件到达时的通知出口(WebSocket 推送)。
type Notifier interface {
	NotifyNewMail(destination string, email *domain.Email)
}

// Inbound 一封已通过收件过滤的入站邮件，按单个收件人处理。
type Inbound struct {
	MessageID  string
	From       string // 信封发件人
	To         string // 单个已接受的收件人
	Subject    string
	ReceivedAt time.Time
	Raw        []byte
}

// Pipeline 入站邮件处理管线。
//
// 原文先落盘,转发属于尽力而为:转发失败只记日志和指标,
// 不影响已接受的邮件。同一封邮件重复投递是幂等的。
type Pipeline struct {
	addresses *service.AddressService
	proxies   *service.ProxyService
	emails    *service.EmailService
	blobs     storage.BlobStore
	relay     relay.Relay
	metrics   *monitoring.Metrics
	notifier  Notifier
	logger    *zap.Logger
}

// New 创建入站处理管线。notifier 可以为 nil。
func New(
	addresses *service.AddressService,
	proxies *service.ProxyService,
	emails *service.EmailService,
	blobs storage.BlobStore,
	r relay.Relay,
	metrics *monitoring.Metrics,
	notifier Notifier,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		addresses: addresses,
		proxies:   proxies,
		emails:    emails,
		blobs:     blobs,
		relay:     r,
		metrics:   metrics,
		notifier:  notifier,
		logger:    logger,
	}
}

// Process 处理一封入站邮件。
//
// 收件人是一次性地址时存储并(按设置)转发给所有者;
// 收件人是代理地址时转发给外部发件人后不保留原文。
func (p *Pipeline) Process(ctx context.Context, msg Inbound) error {
	dest := domain.ExtractAddress(msg.To)

	addr, err := p.addresses.Get(dest)
	if err == nil {
		return p.processDisposable(ctx, addr, msg)
	}
	if !errors.Is(err, domain.ErrAddressNotFound) {
		return err
	}

	mapping, err := p.proxies.Resolve(dest)
	if err != nil {
		return err
	}
	return p.processProxyReply(ctx, mapping, msg)
}

// processDisposable 存储收到的邮件,转发开启时把它转给所有者。
func (p *Pipeline) processDisposable(ctx context.Context, addr *domain.Address, msg Inbound) error {
	email := &domain.Email{
		Destination: strings.ToLower(addr.Address),
		MessageID:   msg.MessageID,
		Source:      domain.ExtractAddress(msg.From),
		Subject:     msg.Subject,
		ReceivedAt:  msg.ReceivedAt,
		IsNew:       true,
	}

	if err := p.emails.Put(email, msg.Raw); err != nil {
		if errors.Is(err, domain.ErrMessageExists) {
			// 重复投递:前一次处理已经完成,不重复转发
			p.logger.Debug("duplicate delivery ignored",
				zap.String("destination", email.Destination),
				zap.String("message_id", email.MessageID),
			)
			return nil
		}
		return err
	}
	p.metrics.MessagesStored.Inc()

	if p.notifier != nil {
		p.notifier.NotifyNewMail(email.Destination, email)
	}

	if !addr.Redirect || addr.RedirectEmail == "" {
		return nil
	}

	proxy, _, err := p.proxies.ResolveOrCreate(addr, msg.From)
	if err != nil {
		p.metrics.RecordForwardFailure("redirect")
		p.logger.Error("proxy allocation failed, mail kept but not forwarded",
			zap.String("destination", email.Destination),
			zap.Error(err),
		)
		return nil
	}

	fwd := rewriteFrom(msg.Raw, proxy.ProxyAddress)
	err = p.relay.Send(ctx, &relay.Message{
		From: proxy.ProxyAddress,
		To:   []string{addr.RedirectEmail},
		Raw:  fwd,
	})
	if err != nil {
		// 转发失败不回滚已存储的邮件
		p.metrics.RecordForwardFailure("redirect")
		p.logger.Error("redirect forwarding failed",
			zap.String("destination", email.Destination),
			zap.String("redirect_email", addr.RedirectEmail),
			zap.Error(err),
		)
		return nil
	}
	p.metrics.RecordForwarded("redirect")
	return nil
}

// processProxyReply 把所有者的回信以一次性地址的身份转给外部发件人。
func (p *Pipeline) processProxyReply(ctx context.Context, mapping *domain.ProxyAddress, msg Inbound) error {
	parent, err := p.addresses.Get(mapping.DisposableAddress)
	if err != nil {
		if errors.Is(err, domain.ErrAddressNotFound) {
			// 父地址在过滤之后过期了,丢弃
			p.logger.Warn("proxy reply dropped, parent address gone",
				zap.String("proxy", mapping.ProxyAddress),
			)
			return nil
		}
		return err
	}

	// 转发前先落盘
	if _, err := p.blobs.SaveRaw(mapping.ProxyAddress, msg.MessageID, msg.Raw); err != nil {
		return err
	}

	fwd := rewriteFrom(msg.Raw, parent.Address)
	err = p.relay.Send(ctx, &relay.Message{
		From: parent.Address,
		To:   []string{mapping.ActualAddress},
		Raw:  fwd,
	})
	if err != nil {
		// 原文保留,等待重投
		p.metrics.RecordForwardFailure("proxy_reply")
		p.logger.Error("proxy reply forwarding failed",
			zap.String("proxy", mapping.ProxyAddress),
			zap.Error(err),
		)
		return nil
	}
	p.metrics.RecordForwarded("proxy_reply")

	// 代理回信转发完成后不保留原文
	if err := p.blobs.DeleteRaw(mapping.ProxyAddress, msg.MessageID); err != nil {
		p.logger.Warn("failed to delete forwarded proxy reply blob",
			zap.String("proxy", mapping.ProxyAddress),
			zap.Error(err),
		)
	}
	return nil
}
