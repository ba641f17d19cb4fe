package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"image-processor-go/internal/domain/capture"
	"image-processor-go/internal/domain/eventbus"
	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/session"
	"image-processor-go/internal/platform/errors"
	"image-processor-go/internal/utils"
)

// Message types exchanged on the camera socket. Binary messages carry
// encoded frames; text messages carry JSON control messages.
const (
	MessageReady     = "ready"
	MessageStreaming = "streaming"
	MessageCapture   = "capture"
	MessageCancel    = "cancel"
	MessageCaptured  = "captured"
	MessageError     = "error"
)

// ControlMessage is a JSON message on the camera socket.
type ControlMessage struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
	Frames  uint64 `json:"frames,omitempty"`
}

// SessionResolver maps a request to the caller's session id.
type SessionResolver interface {
	SessionID(r *http.Request) string
}

// CameraOptions configures the camera feed.
type CameraOptions struct {
	Sessions     *session.Service
	Resolver     SessionResolver
	Events       eventbus.Publisher
	Logger       *utils.Logger
	MaxFrameSize int64
	IdleTimeout  time.Duration
	// FrameFormat is the encoding browsers send, jpeg by default.
	FrameFormat string
}

// Camera turns websocket connections into live capture sessions.
type Camera struct {
	opts CameraOptions
}

// NewCamera builds the camera feed handler factory.
func NewCamera(opts CameraOptions) *Camera {
	if opts.Events == nil {
		opts.Events = eventbus.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}
	if opts.FrameFormat == "" {
		opts.FrameFormat = "jpeg"
	}
	return &Camera{opts: opts}
}

// Builder returns the HandlerBuilder for the websocket router.
func (cam *Camera) Builder() HandlerBuilder {
	return func(conn *Connection, req *http.Request) (FeedHandler, error) {
		id := cam.opts.Resolver.SessionID(req)
		if id == "" {
			return nil, ErrNoSession
		}
		conn.SetReadLimit(cam.opts.MaxFrameSize)
		conn.SetIdleTimeout(cam.opts.IdleTimeout)

		h := &cameraHandler{
			cam:       cam,
			conn:      conn,
			sessionID: id,
			trigger:   make(chan struct{}, 1),
		}
		h.stream = capture.NewChanStream(nil)
		return h, nil
	}
}

type cameraHandler struct {
	cam       *Camera
	conn      *Connection
	sessionID string
	stream    *capture.ChanStream
	trigger   chan struct{}
	frames    atomic.Uint64
}

func (h *cameraHandler) ID() string {
	return h.conn.ID()
}

func (h *cameraHandler) Owner() string {
	return h.sessionID
}

// Close releases the frame stream; Capture observes it as end of feed.
func (h *cameraHandler) Close() {
	_ = h.stream.Close()
}

// Handle runs one capture: frames are pulled until the client asks for a
// capture, the last frame goes through the image pipeline, and the result
// is reported back before the socket closes.
func (h *cameraHandler) Handle(ctx context.Context) error {
	opts := h.cam.opts
	logger := opts.Logger

	cur, err := opts.Sessions.Current(ctx, h.sessionID)
	if err != nil {
		h.reportError(err)
		return err
	}
	if cur.ID != h.sessionID {
		h.reportError(errors.New(errors.KindDomain, "camera.open", "session expired, reload the page"))
		return nil
	}
	if cur.Stage != session.StageInput {
		h.reportError(errors.New(errors.KindDomain, "camera.open", "an image has already been chosen; start over to take a new photo"))
		return nil
	}

	opts.Events.PublishAsync(eventbus.EventCameraOpened, eventbus.CameraEventData{SessionID: h.sessionID})
	logger.InfoTag("Camera", "feed opened session=%s conn=%s", h.sessionID, h.conn.ID())

	reason := "captured"
	defer func() {
		opts.Events.PublishAsync(eventbus.EventCameraClosed, eventbus.CameraEventData{
			SessionID: h.sessionID,
			Frames:    h.frames.Load(),
			Reason:    reason,
		})
	}()

	if err := h.conn.WriteJSON(ControlMessage{Type: MessageReady}); err != nil {
		reason = "write failed"
		return err
	}

	go h.readLoop()

	frame, err := capture.Capture(ctx, h.stream, h.trigger, func(capture.Frame) {
		// the first frame tells the client a capture can now succeed
		if h.frames.Add(1) == 1 {
			_ = h.conn.WriteJSON(ControlMessage{Type: MessageStreaming, Frames: 1})
		}
	})
	if err != nil {
		reason = errors.MessageOf(err)
		logger.InfoTag("Camera", "feed ended without capture session=%s: %s", h.sessionID, reason)
		h.reportError(err)
		return nil
	}

	sess, err := opts.Sessions.Acquire(ctx, h.sessionID, domainimage.Input{
		Reader:         bytes.NewReader(frame.Data),
		Filename:       fmt.Sprintf("camera-%d.%s", frame.Sequence, extension(frame.Format)),
		DeclaredFormat: frame.Format,
		Source:         domainimage.SourceCamera,
	})
	if err != nil {
		reason = errors.MessageOf(err)
		h.reportError(err)
		return nil
	}

	opts.Events.PublishAsync(eventbus.EventCameraCaptured, eventbus.CameraEventData{
		SessionID: h.sessionID,
		Frames:    h.frames.Load(),
	})
	logger.InfoTag("Camera", "captured frame %d session=%s", frame.Sequence, h.sessionID)

	return h.conn.WriteJSON(ControlMessage{
		Type:   MessageCaptured,
		Stage:  string(sess.Stage),
		Frames: h.frames.Load(),
	})
}

// readLoop feeds binary frames into the stream and turns control messages
// into capture triggers. Any read failure ends the stream.
func (h *cameraHandler) readLoop() {
	defer h.stream.Close()
	for {
		messageType, payload, err := h.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !h.conn.IsClosed() {
				h.cam.opts.Logger.DebugTag("Camera", "read ended conn=%s: %v", h.conn.ID(), err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if !h.stream.Push(payload, h.cam.opts.FrameFormat) {
				return
			}
		case websocket.TextMessage:
			var msg ControlMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case MessageCapture:
				select {
				case h.trigger <- struct{}{}:
				default:
				}
			case MessageCancel:
				return
			}
		}
	}
}

func (h *cameraHandler) reportError(err error) {
	_ = h.conn.WriteJSON(ControlMessage{Type: MessageError, Message: errors.MessageOf(err)})
}

func extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
