package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dropmail/backend/internal/config"
	"dropmail/backend/internal/relay"
)

var (
	// ErrNoRecipients 请求没有收件人。
	ErrNoRecipients = errors.New("no recipients")
	// ErrInvalidAttachment 附件内容不是合法的 base64。
	ErrInvalidAttachment = errors.New("invalid attachment content")
)

// SendService 从所有者持有的一次性地址发出邮件。
type SendService struct {
	addresses *AddressService
	relay     relay.Relay
	cfg       *config.Config
	logger    *zap.Logger
}

// NewSendService 创建出站发送业务服务。
func NewSendService(addresses *AddressService, r relay.Relay, cfg *config.Config, logger *zap.Logger) *SendService {
	return &SendService{
		addresses: addresses,
		relay:     r,
		cfg:       cfg,
		logger:    logger,
	}
}

// SendAttachment 出站邮件附件，内容为 base64 编码
type SendAttachment struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"contentType"`
	ContentBase64 string `json:"content"`
}

// SendInput 定义出站发送的输入。
type SendInput struct {
	From        string           `json:"from"`
	To          []string         `json:"to"`
	Subject     string           `json:"subject"`
	TextBody    string           `json:"text"`
	HTMLBody    string           `json:"html"`
	Attachments []SendAttachment `json:"attachments"`
}

// Send 以一次性地址为发件人发出一封邮件。
//
// 发件地址必须归属调用方且未过期;附件内容为 base64,解码失败
// 视为参数错误。
func (s *SendService) Send(ctx context.Context, ownerToken string, input SendInput) error {
	from, err := s.addresses.GetOwned(ownerToken, input.From)
	if err != nil {
		return err
	}

	if len(input.To) == 0 {
		return ErrNoRecipients
	}

	attachments := make([]relay.Attachment, 0, len(input.Attachments))
	for _, att := range input.Attachments {
		content, err := base64.StdEncoding.DecodeString(att.ContentBase64)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAttachment, att.Filename)
		}
		attachments = append(attachments, relay.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     content,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Relay.SendTimeout)
	defer cancel()

	err = s.relay.Send(ctx, &relay.Message{
		From:        from.Address,
		To:          input.To,
		Subject:     input.Subject,
		TextBody:    input.TextBody,
		HTMLBody:    input.HTMLBody,
		Attachments: attachments,
	})
	if err != nil {
		return err
	}

	s.logger.Info("outbound mail sent",
		zap.String("from", from.Address),
		zap.Int("recipients", len(input.To)),
		zap.String("relay", s.relay.Name()),
	)
	return nil
}
