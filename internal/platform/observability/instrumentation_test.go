package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMetricAccumulates(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	ctx := context.Background()
	RecordMetric(ctx, "session.transitions", 1, map[string]string{"to": "PROCESS", "from": "INPUT"})
	RecordMetric(ctx, "session.transitions", 1, map[string]string{"from": "INPUT", "to": "PROCESS"})
	RecordMetric(ctx, "http.requests", 1, nil)

	snap := Snapshot()
	assert.Equal(t, 2.0, snap["session.transitions{from=INPUT,to=PROCESS}"])
	assert.Equal(t, 1.0, snap["http.requests"])
}

func TestStartSpanLogsWhenEnabled(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := Setup(context.Background(), Config{Enabled: true}, logger)
	require.NoError(t, err)
	assert.True(t, Enabled())

	_, end := StartSpan(context.Background(), "vision", "generate")
	end(errors.New("quota exceeded"))

	out := buf.String()
	assert.Contains(t, out, "obs span start")
	assert.Contains(t, out, "obs span end")
	assert.Contains(t, out, "quota exceeded")

	found := false
	for k := range Snapshot() {
		if strings.HasPrefix(k, "vision.generate.duration_ms{outcome=error}") {
			found = true
		}
	}
	assert.True(t, found, "expected duration counter for failed span")
}

func TestStartSpanSilentWhenDisabled(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := Setup(context.Background(), Config{Enabled: false}, logger)
	require.NoError(t, err)

	_, end := StartSpan(context.Background(), "http", "request")
	end(nil)

	assert.NotContains(t, buf.String(), "obs span")
	assert.Contains(t, Snapshot(), "http.request.duration_ms{outcome=ok}")
}
