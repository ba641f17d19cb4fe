package storage

import (
	"time"

	"gorm.io/datatypes"
)

// SessionRecord 会话存储模型，Payload 保存完整的会话 JSON
type SessionRecord struct {
	ID        string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	Stage     string         `gorm:"type:varchar(16);index;not null" json:"stage"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	ExpiresAt time.Time      `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (SessionRecord) TableName() string { return "sessions" }

// DomainEvent 领域事件存储模型
type DomainEvent struct {
	ID        uint           `gorm:"primaryKey"`
	EventType string         `gorm:"index;not null"`
	SessionID string         `gorm:"index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}

func (DomainEvent) TableName() string { return "domain_events" }
