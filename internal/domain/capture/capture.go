// Package capture pulls frames from a live camera feed until the user
// triggers a capture.
package capture

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"image-processor-go/internal/platform/errors"
)

// Frame is one encoded still from a live feed.
type Frame struct {
	Data     []byte
	Format   string
	Sequence uint64
	At       time.Time
}

// Stream is a pull-based frame source. Next blocks until a frame is
// available, the stream ends (io.EOF) or ctx is done. Close releases the
// device and must be safe to call more than once.
type Stream interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// ErrNoFrame is returned when a capture is triggered before any frame arrived.
var ErrNoFrame = errors.New(errors.KindAcquisition, "capture.trigger", "no frame received from camera yet")

// Capture pulls frames from stream, handing each to onFrame for preview,
// until trigger fires. It returns the most recent frame at that moment.
// The stream is closed on every exit path.
func Capture(ctx context.Context, stream Stream, trigger <-chan struct{}, onFrame func(Frame)) (Frame, error) {
	const op = "capture.capture"
	defer stream.Close()

	type result struct {
		frame Frame
		err   error
	}

	pullCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan result)
	go func() {
		defer close(frames)
		for {
			f, err := stream.Next(pullCtx)
			select {
			case frames <- result{frame: f, err: err}:
			case <-pullCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var (
		latest Frame
		have   bool
	)
	for {
		select {
		case <-ctx.Done():
			return Frame{}, errors.Wrap(errors.KindAcquisition, op, "capture canceled", ctx.Err())

		case <-trigger:
			if !have {
				return Frame{}, ErrNoFrame
			}
			return latest, nil

		case r, ok := <-frames:
			if !ok {
				return Frame{}, errors.New(errors.KindAcquisition, op, "camera stream ended")
			}
			if r.err != nil {
				if stderrors.Is(r.err, io.EOF) {
					return Frame{}, errors.New(errors.KindAcquisition, op, "camera closed before capture")
				}
				return Frame{}, errors.Wrap(errors.KindAcquisition, op, "camera stream failed", r.err)
			}
			latest, have = r.frame, true
			if onFrame != nil {
				onFrame(r.frame)
			}
		}
	}
}
