package httptransport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/middleware"
)

type messageResponse struct {
	MessageID  string    `json:"messageId"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	IsNew      bool      `json:"isNew"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type messageListResponse struct {
	Items []messageResponse `json:"items"`
	Count int               `json:"count"`
}

// listMessages godoc
// @Summary 获取邮件列表
// @Description 返回地址名下全部邮件的元数据，按接收时间升序
// @Tags Messages
// @Produce json
// @Param destination path string true "一次性地址"
// @Success 200 {object} messageListResponse
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/addresses/{destination}/messages [get]
func (h *Handler) listMessages(c *gin.Context) {
	destination := c.Param("destination")

	ownerID, _ := middleware.OwnerID(c)
	if _, err := h.addresses.GetOwned(ownerID, destination); err != nil {
		h.respondOwnershipError(c, err)
		return
	}

	emails, err := h.emails.List(destination)
	if err != nil {
		h.logger.Error("failed to list messages",
			zap.String("destination", destination),
			zap.Error(err),
		)
		InternalError(c, MsgMessageListFailed)
		return
	}

	items := make([]messageResponse, 0, len(emails))
	for _, email := range emails {
		items = append(items, messageResponse{
			MessageID:  email.MessageID,
			From:       email.Source,
			Subject:    email.Subject,
			IsNew:      email.IsNew,
			ReceivedAt: email.ReceivedAt,
		})
	}

	Success(c, messageListResponse{
		Items: items,
		Count: len(items),
	})
}

// getMessage godoc
// @Summary 获取邮件原文
// @Description 返回单封邮件的完整 RFC 822 原文，同时把邮件标记为已读
// @Tags Messages
// @Produce message/rfc822
// @Param destination path string true "一次性地址"
// @Param messageId path string true "邮件ID"
// @Success 200 {string} string "邮件原文"
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/addresses/{destination}/messages/{messageId} [get]
func (h *Handler) getMessage(c *gin.Context) {
	destination := c.Param("destination")
	messageID := c.Param("messageId")

	ownerID, _ := middleware.OwnerID(c)
	if _, err := h.addresses.GetOwned(ownerID, destination); err != nil {
		h.respondOwnershipError(c, err)
		return
	}

	_, raw, err := h.emails.GetContent(destination, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			NotFound(c, MsgMessageNotFound)
			return
		}
		h.logger.Error("failed to get message content",
			zap.String("destination", destination),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		InternalError(c, MsgMessageGetFailed)
		return
	}

	// 原文不使用统一响应格式，直接返回 RFC 822 字节流
	c.Data(http.StatusOK, "message/rfc822", raw)
}

// respondOwnershipError 把所有权校验错误映射为 HTTP 响应
func (h *Handler) respondOwnershipError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAddressNotFound):
		NotFound(c, MsgAddressNotFound)
	case errors.Is(err, domain.ErrNotOwner):
		Forbidden(c, GetErrorMessage(domain.ErrNotOwner))
	default:
		h.logger.Error("ownership check failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}
