package domain

import "errors"

// 业务错误定义，各存储后端返回同一组哨兵错误。
var (
	// ErrAddressNotFound 一次性地址不存在（或已过期）。
	ErrAddressNotFound = errors.New("address not found")
	// ErrAddressTaken 请求的地址已被其他所有者占用。
	ErrAddressTaken = errors.New("address already taken")
	// ErrProxyNotFound 代理地址不存在。
	ErrProxyNotFound = errors.New("proxy address not found")
	// ErrMessageNotFound 邮件不存在。
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageExists 重复的 (destination, messageId)，重复投递时返回。
	ErrMessageExists = errors.New("message already exists")
	// ErrDomainNotAllowed 域名不在允许列表中。
	ErrDomainNotAllowed = errors.New("domain not allowed")
	// ErrNotOwner 调用者不拥有该地址。
	ErrNotOwner = errors.New("address owned by another caller")
)
