package smtp

import (
	"context"
	"errors"
	"io"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/pipeline"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器:收件人必须是本系统当前
// 有效的一次性地址或已登记的代理地址,其余一律 550 拒绝,
// 不做任何形式的邮件中继。过期地址视为不存在,判定在 RCPT
// 阶段实时完成;没有任何收件人通过时,会话到不了 DATA。
type Backend struct {
	filter   *Filter
	pipeline *pipeline.Pipeline
	limiter  *ConnectionLimiter
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	maxSize  int64
}

// NewBackend 创建 SMTP Backend。limiter 可以为 nil。
func NewBackend(
	filter *Filter,
	p *pipeline.Pipeline,
	limiter *ConnectionLimiter,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	maxSize int64,
) *Backend {
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &Backend{
		filter:   filter,
		pipeline: p,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
		maxSize:  maxSize,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []recipient
	released    bool
}

type recipient struct {
	address string
	kind    string // KindDisposable / KindProxy
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令，每个收件人独立判定。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	kind, err := s.backend.filter.Check(to)
	switch {
	case err == nil:
	case errors.Is(err, ErrDomainNotManaged):
		s.backend.metrics.RecordIntakeRejected("domain")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	case errors.Is(err, ErrRecipientUnknown):
		s.backend.metrics.RecordIntakeRejected("unknown")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient address not found",
		}
	default:
		// 存储故障:临时错误,让对端稍后重试
		s.backend.logger.Error("recipient check failed", zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary failure, try again later",
		}
	}

	s.backend.metrics.RecordIntakeAccepted(kind)
	s.recipients = append(s.recipients, recipient{address: to, kind: kind})
	return nil
}

// Data 处理邮件内容，对每个已接受的收件人走一遍存储管线。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, s.backend.maxSize))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		s.backend.logger.Warn("unparsable message, storing with empty subject", zap.Error(err))
		parsed = &ParsedEmail{}
	}

	messageID := uuid.NewString()
	receivedAt := time.Now().UTC()

	for _, rcpt := range s.recipients {
		err := s.backend.pipeline.Process(context.Background(), pipeline.Inbound{
			MessageID:  messageID,
			From:       s.fromAddress,
			To:         rcpt.address,
			Subject:    parsed.Subject,
			ReceivedAt: receivedAt,
			Raw:        raw,
		})
		if err != nil {
			s.backend.logger.Error("pipeline processing failed",
				zap.String("recipient", rcpt.address),
				zap.String("message_id", messageID),
				zap.Error(err),
			)
			return &gosmtp.SMTPError{
				Code:         451,
				EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
				Message:      "temporary failure, try again later",
			}
		}
	}
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if s.backend.limiter != nil && !s.released {
		s.backend.limiter.Release()
		s.released = true
	}
	return nil
}
