package model

import "time"

type AuditEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	AccountID uint64    `gorm:"index"`                  // internal account id, zero if unknown
	Email     string    `gorm:"size:256;index"`         // snapshot of login identifier at event time
	Action    string    `gorm:"size:64;not null;index"` // login_success, login_failure...
	Detail    string    `gorm:"size:512"`               // failure reason or context
	IP        string    `gorm:"size:45;not null"`       // IPv4/IPv6
	UserAgent string    `gorm:"size:512"`               // user agent string
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit"
}
