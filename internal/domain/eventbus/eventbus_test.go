package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-processor-go/internal/domain/eventbus/repository"
	"image-processor-go/internal/platform/observability"
)

type memoryRepo struct {
	mu     sync.Mutex
	events []repository.Event
}

func (m *memoryRepo) Store(_ context.Context, e repository.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryRepo) FindBySessionID(context.Context, string) ([]repository.Event, error) {
	return nil, nil
}

func (m *memoryRepo) DeleteOldEvents(context.Context, time.Time) error { return nil }

func (m *memoryRepo) GetEventStats(context.Context) (map[string]int64, error) { return nil, nil }

func TestAsyncBusDeliversToHandlers(t *testing.T) {
	observability.Reset()
	t.Cleanup(observability.Reset)

	bus := New(2, nil)
	defer bus.Stop()

	repo := &memoryRepo{}
	require.NoError(t, SetupEventHandlers(bus, NewDefaultEventHandler(nil, repo)))
	for _, topic := range Topics {
		assert.True(t, bus.HasCallback(topic), topic)
	}

	bus.PublishAsync(EventSessionTransition, SessionEventData{
		SessionID: "s1", Action: "acquired", From: "INPUT", To: "PROCESS",
	})
	bus.PublishAsync(EventVisionFailed, VisionEventData{SessionID: "s1", Model: "m", Error: "quota"})
	bus.PublishAsync(EventCameraClosed, CameraEventData{SessionID: "s1", Frames: 3, Reason: "captured"})
	bus.WaitAsync()

	repo.mu.Lock()
	assert.Len(t, repo.events, 3)
	repo.mu.Unlock()

	snap := observability.Snapshot()
	assert.Equal(t, 1.0, snap["session.transitions{action=acquired,to=PROCESS}"])
	assert.Equal(t, 1.0, snap["vision.failed{model=m}"])
}

func TestAsyncBusStopIsIdempotentAndDropsLateEvents(t *testing.T) {
	bus := New(1, nil)
	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.Subscribe("t", func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	bus.PublishAsync("t", 1)
	bus.Stop()
	bus.Stop()
	bus.PublishAsync("t", 2)
	bus.WaitAsync()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestAsyncBusRecoversFromPanics(t *testing.T) {
	bus := New(1, nil)
	defer bus.Stop()

	done := make(chan struct{})
	require.NoError(t, bus.Subscribe("boom", func(int) { panic("handler bug") }))
	require.NoError(t, bus.Subscribe("ok", func(int) { close(done) }))

	bus.PublishAsync("boom", 1)
	bus.PublishAsync("ok", 1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive handler panic")
	}
}
