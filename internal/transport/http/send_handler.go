package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/middleware"
	"dropmail/backend/internal/service"
)

// sendMessage godoc
// @Summary 发送邮件
// @Description 以名下的一次性地址为发件人发出一封邮件
// @Tags Send
// @Accept json
// @Produce json
// @Param request body service.SendInput true "邮件内容"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/send [post]
func (h *Handler) sendMessage(c *gin.Context) {
	var req service.SendInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	ownerID, _ := middleware.OwnerID(c)
	if err := h.send.Send(c.Request.Context(), ownerID, req); err != nil {
		switch {
		case errors.Is(err, domain.ErrAddressNotFound):
			NotFound(c, MsgAddressNotFound)
		case errors.Is(err, domain.ErrNotOwner):
			Forbidden(c, GetErrorMessage(domain.ErrNotOwner))
		case errors.Is(err, service.ErrNoRecipients), errors.Is(err, service.ErrInvalidAttachment):
			BadRequest(c, GetErrorMessage(err))
		default:
			h.metrics.OutboundFailed.Inc()
			h.logger.Error("failed to send message",
				zap.String("from", req.From),
				zap.Error(err),
			)
			InternalError(c, MsgSendFailed)
		}
		return
	}

	h.metrics.OutboundSent.Inc()
	Success(c, nil)
}
