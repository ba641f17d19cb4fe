package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-processor-go/internal/domain/eventbus"
	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/session"
	"image-processor-go/internal/domain/session/store"
	"image-processor-go/internal/domain/vision"
	"image-processor-go/internal/platform/config"
	testhelpers "image-processor-go/internal/platform/testing"
)

type resolverFunc func(*http.Request) string

func (f resolverFunc) SessionID(r *http.Request) string { return f(r) }

type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) PublishAsync(topic string, _ ...interface{}) {
	b.mu.Lock()
	b.topics = append(b.topics, topic)
	b.mu.Unlock()
}

func (b *recordingBus) has(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		if t == topic {
			return true
		}
	}
	return false
}

type cameraFixture struct {
	sessions *session.Service
	feeds    *Feeds
	bus      *recordingBus
	server   *httptest.Server
	id       string
}

func newCameraFixture(t *testing.T, sessionID func(own string) string) *cameraFixture {
	t.Helper()

	pipeline, err := domainimage.NewPipeline(domainimage.Options{Security: config.DefaultSecurity()})
	require.NoError(t, err)
	repo := store.NewMemory(store.Config{TTL: time.Hour})
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	bus := &recordingBus{}
	sessions, err := session.NewService(session.Options{
		Repo:   repo,
		Images: pipeline,
		Vision: vision.ClientFunc(func(context.Context, domainimage.Image, string) (string, error) { return "ok", nil }),
		Events: bus,
	})
	require.NoError(t, err)

	cur, err := sessions.Current(context.Background(), "")
	require.NoError(t, err)

	cam := NewCamera(CameraOptions{
		Sessions: sessions,
		Resolver: resolverFunc(func(*http.Request) string { return sessionID(cur.ID) }),
		Events:   bus,
		// generous so a slow CI run never trips it
		IdleTimeout:  5 * time.Second,
		MaxFrameSize: 1 << 20,
		FrameFormat:  "png",
	})

	feeds := NewFeeds(nil)
	router := NewRouter(feeds, nil, RouterOptions{})
	router.SetHandlerBuilder(cam.Builder())

	server := httptest.NewServer(http.HandlerFunc(router.Handle))
	t.Cleanup(func() {
		feeds.CloseAll(nil)
		server.Close()
	})

	return &cameraFixture{sessions: sessions, feeds: feeds, bus: bus, server: server, id: cur.ID}
}

func (f *cameraFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readControl(t *testing.T, conn *websocket.Conn) ControlMessage {
	t.Helper()
	var msg ControlMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func own(id string) string { return id }

func TestCameraCapture(t *testing.T) {
	f := newCameraFixture(t, own)
	conn := f.dial(t)

	assert.Equal(t, MessageReady, readControl(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, testhelpers.PNGBytes(t, 6, 4)))
	assert.Equal(t, MessageStreaming, readControl(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ControlMessage{Type: MessageCapture}))
	msg := readControl(t, conn)
	require.Equal(t, MessageCaptured, msg.Type, msg.Message)
	assert.Equal(t, string(session.StageProcess), msg.Stage)

	cur, err := f.sessions.Current(context.Background(), f.id)
	require.NoError(t, err)
	assert.Equal(t, session.StageProcess, cur.Stage)
	require.NotNil(t, cur.Image)
	assert.Equal(t, domainimage.SourceCamera, cur.Image.Source)
	assert.Equal(t, 6, cur.Image.Width)

	require.Eventually(t, func() bool { return f.feeds.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.bus.has(eventbus.EventCameraCaptured))
	require.Eventually(t, func() bool { return f.bus.has(eventbus.EventCameraClosed) }, time.Second, 10*time.Millisecond)
}

func TestCameraClosedBeforeCapture(t *testing.T) {
	f := newCameraFixture(t, own)
	conn := f.dial(t)
	assert.Equal(t, MessageReady, readControl(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, testhelpers.PNGBytes(t, 2, 2)))
	assert.Equal(t, MessageStreaming, readControl(t, conn).Type)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return f.feeds.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	cur, err := f.sessions.Current(context.Background(), f.id)
	require.NoError(t, err)
	assert.Equal(t, session.StageInput, cur.Stage)
	assert.Nil(t, cur.Image)
}

func TestCameraCaptureWithoutFrame(t *testing.T) {
	f := newCameraFixture(t, own)
	conn := f.dial(t)
	assert.Equal(t, MessageReady, readControl(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ControlMessage{Type: MessageCapture}))
	msg := readControl(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Message, "no frame")
}

func TestCameraRejectsInvalidFrame(t *testing.T) {
	f := newCameraFixture(t, own)
	conn := f.dial(t)
	assert.Equal(t, MessageReady, readControl(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("not an image at all")))
	assert.Equal(t, MessageStreaming, readControl(t, conn).Type)
	require.NoError(t, conn.WriteJSON(ControlMessage{Type: MessageCapture}))

	msg := readControl(t, conn)
	assert.Equal(t, MessageError, msg.Type)

	cur, err := f.sessions.Current(context.Background(), f.id)
	require.NoError(t, err)
	assert.Equal(t, session.StageInput, cur.Stage)
	assert.NotEmpty(t, cur.LastError)
}

func TestCameraRequiresSession(t *testing.T) {
	f := newCameraFixture(t, func(string) string { return "" })
	conn := f.dial(t)

	msg := readControl(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Equal(t, ErrNoSession.Error(), msg.Message)
}

func TestCameraOnlyInInputStage(t *testing.T) {
	f := newCameraFixture(t, own)
	_, err := f.sessions.Acquire(context.Background(), f.id, domainimage.Input{
		Reader:   strings.NewReader(string(testhelpers.PNGBytes(t, 2, 2))),
		Filename: "a.png",
	})
	require.NoError(t, err)

	conn := f.dial(t)
	msg := readControl(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Message, "start over")
}

func TestCloseAllEndsFeeds(t *testing.T) {
	f := newCameraFixture(t, own)
	conn := f.dial(t)
	assert.Equal(t, MessageReady, readControl(t, conn).Type)
	require.Eventually(t, func() bool { return f.feeds.Count() == 1 }, time.Second, 10*time.Millisecond)

	f.feeds.CloseAll(nil)
	assert.Equal(t, 0, f.feeds.Count())

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestSecondTabReplacesFeed(t *testing.T) {
	f := newCameraFixture(t, own)
	first := f.dial(t)
	assert.Equal(t, MessageReady, readControl(t, first).Type)

	second := f.dial(t)
	assert.Equal(t, MessageReady, readControl(t, second).Type)

	msg := readControl(t, first)
	assert.Equal(t, MessageError, msg.Type)
	assert.Equal(t, ErrFeedReplaced.Error(), msg.Message)
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 1, f.feeds.Count())

	require.NoError(t, second.WriteMessage(websocket.BinaryMessage, testhelpers.PNGBytes(t, 3, 3)))
	assert.Equal(t, MessageStreaming, readControl(t, second).Type)
	require.NoError(t, second.WriteJSON(ControlMessage{Type: MessageCapture}))
	assert.Equal(t, MessageCaptured, readControl(t, second).Type)

	require.Eventually(t, func() bool { return f.feeds.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
