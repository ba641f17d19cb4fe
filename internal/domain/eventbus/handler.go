package eventbus

import (
	"context"
	"fmt"
	"time"

	"image-processor-go/internal/domain/eventbus/repository"
	"image-processor-go/internal/platform/observability"
	"image-processor-go/internal/utils"
)

// DefaultEventHandler turns domain events into log lines and metrics, and
// persists them when a repository is configured.
type DefaultEventHandler struct {
	logger *utils.Logger
	repo   repository.EventRepository
}

// NewDefaultEventHandler 创建默认事件处理器，repo 可为 nil
func NewDefaultEventHandler(logger *utils.Logger, repo repository.EventRepository) *DefaultEventHandler {
	return &DefaultEventHandler{logger: logger, repo: repo}
}

func (h *DefaultEventHandler) handleSession(topic string, data SessionEventData) {
	ctx := context.Background()
	switch topic {
	case EventSessionRejected:
		h.logger.WarnTag("Session", "transition rejected: session=%s action=%s stage=%s error=%s",
			data.SessionID, data.Action, data.From, data.Error)
		observability.RecordMetric(ctx, "session.rejected", 1, map[string]string{"action": data.Action})
	case EventSessionCreated:
		h.logger.DebugTag("Session", "session created: session=%s", data.SessionID)
		observability.RecordMetric(ctx, "session.created", 1, nil)
	default:
		h.logger.InfoTag("Session", "transition: session=%s action=%s %s -> %s",
			data.SessionID, data.Action, data.From, data.To)
		observability.RecordMetric(ctx, "session.transitions", 1, map[string]string{
			"action": data.Action,
			"to":     data.To,
		})
	}
	h.persist(topic, data.SessionID, data)
}

func (h *DefaultEventHandler) handleVision(topic string, data VisionEventData) {
	ctx := context.Background()
	switch topic {
	case EventVisionRequested:
		h.logger.DebugTag("Vision", "request: session=%s prompt_chars=%d image_bytes=%d",
			data.SessionID, data.PromptChars, data.ImageBytes)
		observability.RecordMetric(ctx, "vision.requests", 1, nil)
	case EventVisionCompleted:
		h.logger.InfoTiming("vision call: session=%s model=%s took=%s",
			data.SessionID, data.Model, data.Duration.Round(time.Millisecond))
		observability.RecordMetric(ctx, "vision.completed", 1, map[string]string{"model": data.Model})
	case EventVisionFailed:
		h.logger.WarnTag("Vision", "call failed: session=%s error=%s", data.SessionID, data.Error)
		observability.RecordMetric(ctx, "vision.failed", 1, map[string]string{"model": data.Model})
	}
	h.persist(topic, data.SessionID, data)
}

func (h *DefaultEventHandler) handleCamera(topic string, data CameraEventData) {
	h.logger.InfoTag("Camera", "%s: session=%s frames=%d reason=%s", topic, data.SessionID, data.Frames, data.Reason)
	observability.RecordMetric(context.Background(), "camera.events", 1, map[string]string{"event": topic})
	h.persist(topic, data.SessionID, data)
}

func (h *DefaultEventHandler) persist(topic, sessionID string, data interface{}) {
	if h.repo == nil {
		return
	}
	err := h.repo.Store(context.Background(), repository.Event{
		EventType: topic,
		SessionID: sessionID,
		Data:      data,
		CreatedAt: time.Now(),
	})
	if err != nil {
		h.logger.WarnTag("Event", "persist event failed: topic=%s error=%v", topic, err)
	}
}

// SetupEventHandlers 为所有主题注册默认处理器
func SetupEventHandlers(bus *AsyncEventBus, handler *DefaultEventHandler) error {
	for _, topic := range []string{EventSessionCreated, EventSessionTransition, EventSessionRejected} {
		topic := topic
		if err := bus.Subscribe(topic, func(data SessionEventData) { handler.handleSession(topic, data) }); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	for _, topic := range []string{EventVisionRequested, EventVisionCompleted, EventVisionFailed} {
		topic := topic
		if err := bus.Subscribe(topic, func(data VisionEventData) { handler.handleVision(topic, data) }); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	for _, topic := range []string{EventCameraOpened, EventCameraCaptured, EventCameraClosed} {
		topic := topic
		if err := bus.Subscribe(topic, func(data CameraEventData) { handler.handleCamera(topic, data) }); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}
