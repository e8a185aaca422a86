// Package relay 定义出站邮件投递的统一接口。
package relay

import "context"

// Attachment 出站邮件附件
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message 待投递的出站邮件。
//
// Raw 非空时表示完整的 RFC 822 原文(转发场景,From 已在原文中
// 重写),投递实现应原样发送并忽略结构化字段;否则按结构化字段
// 组装邮件。
type Message struct {
	From        string
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
	Raw         []byte
}

// Relay 出站投递后端需要实现的接口。
type Relay interface {
	// Send 投递一封邮件，失败时返回错误。
	Send(ctx context.Context, msg *Message) error

	// Name 返回投递后端名称。
	Name() string
}
