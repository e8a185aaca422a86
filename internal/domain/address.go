package domain

import (
	"strings"
	"time"
)

// Address 表示一个一次性邮箱地址记录。
type Address struct {
	Address       string    `json:"address" gorm:"primaryKey;type:varchar(255)"`
	OwnerToken    string    `json:"-" gorm:"type:varchar(255);index"` // 创建者的不透明标识
	RedirectEmail string    `json:"redirectEmail" gorm:"type:varchar(255)"`
	Redirect      bool      `json:"redirect" gorm:"default:true"` // 是否把收到的邮件转发给 RedirectEmail
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt" gorm:"index"`
}

// Expired 判断地址在给定时刻是否已过期。
func (a *Address) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// LocalPart 返回 @ 前面的本地部分。
func (a *Address) LocalPart() string {
	if i := strings.Index(a.Address, "@"); i >= 0 {
		return a.Address[:i]
	}
	return a.Address
}

// AddressDomain 返回 @ 后面的域名部分。
func (a *Address) AddressDomain() string {
	if i := strings.Index(a.Address, "@"); i >= 0 {
		return a.Address[i+1:]
	}
	return ""
}
