package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/middleware"
	"dropmail/backend/internal/service"
)

type createAddressRequest struct {
	Address       string `json:"address"`       // 期望的地址，空或 "random" 表示随机生成
	RedirectEmail string `json:"redirectEmail"` // 转发目标邮箱
}

type addressResponse struct {
	Address       string    `json:"address"`
	RedirectEmail string    `json:"redirectEmail,omitempty"`
	Redirect      bool      `json:"redirect"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type createAddressResponse struct {
	Token     string            `json:"token,omitempty"` // 新签发的所有者令牌
	Address   addressResponse   `json:"address"`
	Addresses []addressResponse `json:"addresses"` // 所有者名下全部地址
}

type addressListResponse struct {
	Items []addressResponse `json:"items"`
	Count int               `json:"count"`
}

// createAddress godoc
// @Summary 创建一次性地址
// @Description 创建一个新的一次性邮箱地址。未携带所有者令牌时自动签发一个新令牌。
// @Tags Addresses
// @Accept json
// @Produce json
// @Param request body createAddressRequest true "地址参数"
// @Success 201 {object} createAddressResponse
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /v1/addresses [post]
func (h *Handler) createAddress(c *gin.Context) {
	var req createAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	// 没有令牌时为匿名所有者签发一个
	var issuedToken string
	ownerID, authenticated := middleware.OwnerID(c)
	if !authenticated {
		token, newOwnerID, err := h.tokens.Issue()
		if err != nil {
			h.logger.Error("failed to issue owner token", zap.Error(err))
			InternalError(c, MsgInternalError)
			return
		}
		issuedToken = token
		ownerID = newOwnerID
	}

	addr, all, err := h.addresses.Create(service.CreateAddressInput{
		OwnerToken:       ownerID,
		RedirectEmail:    req.RedirectEmail,
		RequestedAddress: req.Address,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDomainNotAllowed),
			errors.Is(err, domain.ErrInvalidEmail),
			errors.Is(err, domain.ErrInvalidLocalPart),
			errors.Is(err, domain.ErrInvalidDomain),
			errors.Is(err, domain.ErrEmailTooLong),
			errors.Is(err, domain.ErrLocalPartTooLong),
			errors.Is(err, domain.ErrDomainTooLong):
			BadRequest(c, GetErrorMessage(err))
		default:
			h.logger.Error("failed to create address", zap.Error(err))
			InternalError(c, MsgAddressCreateFailed)
		}
		return
	}

	h.metrics.AddressesCreated.Inc()

	Created(c, createAddressResponse{
		Token:     issuedToken,
		Address:   toAddressResponse(addr),
		Addresses: toAddressResponses(all),
	})
}

// listAddresses godoc
// @Summary 获取地址列表
// @Description 返回所有者名下全部未过期地址
// @Tags Addresses
// @Produce json
// @Success 200 {object} addressListResponse
// @Failure 401 {object} Response
// @Router /v1/addresses [get]
func (h *Handler) listAddresses(c *gin.Context) {
	ownerID, _ := middleware.OwnerID(c)

	addresses, err := h.addresses.List(ownerID)
	if err != nil {
		h.logger.Error("failed to list addresses", zap.Error(err))
		InternalError(c, MsgAddressListFailed)
		return
	}

	items := toAddressResponses(addresses)
	Success(c, addressListResponse{
		Items: items,
		Count: len(items),
	})
}

type updateAddressRequest struct {
	ExtendBy string `json:"extendBy"` // 续期时长，如 "24h"
	Redirect *bool  `json:"redirect"` // 转发开关
	Delete   bool   `json:"delete"`   // 删除地址及其全部数据
}

// updateAddress godoc
// @Summary 更新地址设置
// @Description 续期、切换转发开关或删除地址
// @Tags Addresses
// @Accept json
// @Produce json
// @Param destination path string true "一次性地址"
// @Param request body updateAddressRequest true "设置变更"
// @Success 200 {object} addressResponse
// @Success 204
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/addresses/{destination} [post]
func (h *Handler) updateAddress(c *gin.Context) {
	var req updateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	var extendBy time.Duration
	if req.ExtendBy != "" {
		d, err := time.ParseDuration(req.ExtendBy)
		if err != nil || d <= 0 {
			BadRequest(c, MsgInvalidDuration)
			return
		}
		extendBy = d
	}

	ownerID, _ := middleware.OwnerID(c)
	addr, err := h.addresses.UpdateSettings(ownerID, c.Param("destination"), service.UpdateSettingsInput{
		ExtendTTLBy: extendBy,
		Redirect:    req.Redirect,
		Delete:      req.Delete,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAddressNotFound):
			NotFound(c, MsgAddressNotFound)
		case errors.Is(err, domain.ErrNotOwner):
			Forbidden(c, GetErrorMessage(err))
		default:
			h.logger.Error("failed to update address", zap.Error(err))
			InternalError(c, MsgAddressUpdateFailed)
		}
		return
	}

	if req.Delete {
		h.metrics.AddressesDeleted.Inc()
		NoContent(c)
		return
	}
	Success(c, toAddressResponse(addr))
}

// toAddressResponse 转换实体为响应体。
func toAddressResponse(addr *domain.Address) addressResponse {
	return addressResponse{
		Address:       addr.Address,
		RedirectEmail: addr.RedirectEmail,
		Redirect:      addr.Redirect,
		CreatedAt:     addr.CreatedAt,
		ExpiresAt:     addr.ExpiresAt,
	}
}

func toAddressResponses(addresses []domain.Address) []addressResponse {
	items := make([]addressResponse, 0, len(addresses))
	for i := range addresses {
		items = append(items, toAddressResponse(&addresses[i]))
	}
	return items
}
