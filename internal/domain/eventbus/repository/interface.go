package repository

import (
	"context"
	"time"
)

// EventRepository 领域事件数据访问接口
type EventRepository interface {
	// Store 存储领域事件
	Store(ctx context.Context, event Event) error

	// FindBySessionID 按时间顺序返回会话的事件
	FindBySessionID(ctx context.Context, sessionID string) ([]Event, error)

	// DeleteOldEvents 删除指定时间之前的旧事件
	DeleteOldEvents(ctx context.Context, beforeTime time.Time) error

	// GetEventStats 按事件类型统计数量
	GetEventStats(ctx context.Context) (map[string]int64, error)
}

// Event 领域事件
type Event struct {
	ID        string
	EventType string
	SessionID string
	Data      interface{}
	CreatedAt time.Time
}
