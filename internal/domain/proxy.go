package domain

import "time"

// ProxyAddress 表示回信代理映射。
//
// 每当一个一次性地址需要把邮件转发给外部联系人时，系统为这对
// (一次性地址, 外部真实地址) 分配一个唯一的代理地址。外部联系人
// 看到并回复的是代理地址，真实的转发目标不会暴露。
type ProxyAddress struct {
	ProxyAddress      string    `json:"proxyAddress" gorm:"primaryKey;type:varchar(255)"`
	ActualAddress     string    `json:"actualAddress" gorm:"type:varchar(255);uniqueIndex:idx_proxy_pair"`     // 外部真实地址
	DisposableAddress string    `json:"disposableAddress" gorm:"type:varchar(255);uniqueIndex:idx_proxy_pair"` // 所属的一次性地址
	CreatedAt         time.Time `json:"createdAt"`
}
