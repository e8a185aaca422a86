package domain

import "time"

// Email 表示一封已收取邮件的元数据。
//
// 原始 RFC 822 内容不入库，存放在 blob 存储中，RawRef 记录其引用。
// (Destination, MessageID) 为复合主键，重复投递会触发冲突而不是覆盖。
type Email struct {
	Destination string    `json:"destination" gorm:"primaryKey;type:varchar(255)"` // 收件的一次性地址
	MessageID   string    `json:"messageId" gorm:"primaryKey;type:varchar(255)"`
	Source      string    `json:"source" gorm:"type:varchar(255)"` // 发件人地址
	Subject     string    `json:"subject" gorm:"type:varchar(500)"`
	ReceivedAt  time.Time `json:"receivedAt" gorm:"index"`
	IsNew       bool      `json:"isNew" gorm:"default:true"`
	RawRef      string    `json:"-" gorm:"type:varchar(500)"` // blob 存储中的原始内容引用
}
