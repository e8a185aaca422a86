package httptransport

import (
	"errors"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 地址错误
	domain.ErrAddressNotFound:   "地址不存在或已过期",
	domain.ErrAddressTaken:      "地址已被占用",
	domain.ErrDomainNotAllowed:  "域名不在允许列表中",
	domain.ErrInvalidEmail:      "邮箱地址格式无效",
	domain.ErrNotOwner:          "您不是该地址的所有者",
	service.ErrAddressExhausted: "地址分配失败，请重试",

	// 邮件错误
	domain.ErrMessageNotFound: "邮件不存在",
	domain.ErrMessageExists:   "邮件已存在",

	// 代理错误
	domain.ErrProxyNotFound: "代理地址不存在",

	// 发信错误
	service.ErrNoRecipients:      "收件人不能为空",
	service.ErrInvalidAttachment: "附件内容不是合法的 base64",
}

// GetErrorMessage 获取错误的中文消息。用 errors.Is 匹配,
// 包装过的业务错误同样能命中映射表。
func GetErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest  = "请求参数格式错误"
	MsgInvalidDuration = "时长格式无效"

	// 认证相关
	MsgAuthRequired = "需要所有者令牌"
	MsgTokenInvalid = "无效的访问令牌"

	// 地址相关
	MsgAddressCreateFailed = "创建地址失败"
	MsgAddressNotFound     = "地址不存在或已过期"
	MsgAddressListFailed   = "获取地址列表失败"
	MsgAddressUpdateFailed = "更新地址设置失败"

	// 邮件相关
	MsgMessageNotFound   = "邮件不存在"
	MsgMessageListFailed = "获取邮件列表失败"
	MsgMessageGetFailed  = "获取邮件内容失败"

	// 发信相关
	MsgSendFailed = "发送邮件失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
