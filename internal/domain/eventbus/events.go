package eventbus

import "time"

// 事件类型定义
const (
	// 会话状态机
	EventSessionCreated    = "session:created"
	EventSessionTransition = "session:transition"
	EventSessionRejected   = "session:rejected"

	// 视觉模型调用
	EventVisionRequested = "vision:requested"
	EventVisionCompleted = "vision:completed"
	EventVisionFailed    = "vision:failed"

	// 实时拍照
	EventCameraOpened   = "camera:opened"
	EventCameraCaptured = "camera:captured"
	EventCameraClosed   = "camera:closed"
)

// Topics lists every topic the default handlers subscribe to.
var Topics = []string{
	EventSessionCreated,
	EventSessionTransition,
	EventSessionRejected,
	EventVisionRequested,
	EventVisionCompleted,
	EventVisionFailed,
	EventCameraOpened,
	EventCameraCaptured,
	EventCameraClosed,
}

// 事件数据结构

type SessionEventData struct {
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type VisionEventData struct {
	SessionID   string        `json:"session_id"`
	Model       string        `json:"model,omitempty"`
	PromptChars int           `json:"prompt_chars"`
	ImageBytes  int64         `json:"image_bytes"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}

type CameraEventData struct {
	SessionID string `json:"session_id"`
	Frames    uint64 `json:"frames"`
	Reason    string `json:"reason,omitempty"`
}
