package eventbus

import (
	"image-processor-go/internal/utils"
)

// Publisher is the narrow interface domain services publish through.
type Publisher interface {
	PublishAsync(topic string, args ...interface{})
}

// New 创建并启动异步事件总线
func New(workers int, logger *utils.Logger) *AsyncEventBus {
	bus := NewAsyncEventBus(workers, logger)
	bus.Start()
	return bus
}

// Discard drops every event.
type Discard struct{}

func (Discard) PublishAsync(string, ...interface{}) {}
