package service

import (
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage"
)

// EmailService 封装邮件元数据与原文的存取。
type EmailService struct {
	store  domain.Store
	blobs  storage.BlobStore
	logger *zap.Logger
}

// NewEmailService 创建邮件业务服务。
func NewEmailService(store domain.Store, blobs storage.BlobStore, logger *zap.Logger) *EmailService {
	return &EmailService{store: store, blobs: blobs, logger: logger}
}

// Put 持久化一封邮件:先落原文,再写元数据。
//
// 元数据主键 (destination, messageId) 冲突时返回 ErrMessageExists,
// 原文此时已是同一份内容,重复落盘无副作用——重复投递对调用方
// 等价于成功。
func (s *EmailService) Put(email *domain.Email, raw []byte) error {
	ref, err := s.blobs.SaveRaw(email.Destination, email.MessageID, raw)
	if err != nil {
		return err
	}
	email.RawRef = ref

	return s.store.SaveEmail(email)
}

// List 返回地址名下全部邮件的元数据，按接收时间升序。
func (s *EmailService) List(destination string) ([]domain.Email, error) {
	return s.store.ListEmails(destination)
}

// GetContent 读取单封邮件的原文并把它标记为已读。
func (s *EmailService) GetContent(destination, messageID string) (*domain.Email, []byte, error) {
	email, err := s.store.GetEmail(destination, messageID)
	if err != nil {
		return nil, nil, err
	}

	raw, err := s.blobs.GetRaw(destination, messageID)
	if err != nil {
		return nil, nil, err
	}

	if email.IsNew {
		if err := s.store.MarkEmailRead(destination, messageID); err != nil {
			// 标记失败不影响读取
			s.logger.Warn("failed to mark email read",
				zap.String("destination", destination),
				zap.String("message_id", messageID),
				zap.Error(err),
			)
		} else {
			email.IsNew = false
		}
	}

	return email, raw, nil
}

// Delete 删除单封邮件的元数据与原文，幂等。
func (s *EmailService) Delete(destination, messageID string) error {
	if err := s.store.DeleteEmail(destination, messageID); err != nil {
		return err
	}
	return s.blobs.DeleteRaw(destination, messageID)
}

// DeleteRawOnly 只删除原文,保留元数据。
//
// 代理转发场景:转发完成后原文不再保留。
func (s *EmailService) DeleteRawOnly(destination, messageID string) error {
	return s.blobs.DeleteRaw(destination, messageID)
}

// DeleteAll 删除地址名下全部邮件（元数据+原文），幂等。
func (s *EmailService) DeleteAll(destination string) error {
	emails, err := s.store.ListEmails(destination)
	if err != nil {
		return err
	}
	for _, email := range emails {
		if err := s.store.DeleteEmail(email.Destination, email.MessageID); err != nil {
			return err
		}
	}
	return s.blobs.DeleteAllRaw(destination)
}
