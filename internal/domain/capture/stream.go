package capture

import (
	"context"
	"io"
	"sync"
	"time"
)

// ChanStream is a Stream fed by a producer goroutine, for example a
// websocket reader. Push never blocks: when the consumer lags, the older
// pending frame is replaced.
type ChanStream struct {
	frames chan Frame
	done   chan struct{}
	once   sync.Once
	seq    uint64
	mu     sync.Mutex

	onClose func()
}

// NewChanStream creates a stream. onClose runs once when the stream is closed.
func NewChanStream(onClose func()) *ChanStream {
	return &ChanStream{
		frames:  make(chan Frame, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Push offers a frame. It reports false once the stream is closed.
func (s *ChanStream) Push(data []byte, format string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return false
	default:
	}

	s.seq++
	f := Frame{Data: data, Format: format, Sequence: s.seq, At: time.Now()}
	select {
	case s.frames <- f:
	default:
		// drop the stale frame
		select {
		case <-s.frames:
		default:
		}
		s.frames <- f
	}
	return true
}

// Next implements Stream.
func (s *ChanStream) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		return Frame{}, io.EOF
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close implements Stream.
func (s *ChanStream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// Closed reports whether Close has been called.
func (s *ChanStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
