package ws

import (
	"context"
	"sync"
	"time"

	"image-processor-go/internal/utils"
)

const handlerCloseTimeout = 5 * time.Second

// FeedHandler drives one upgraded connection until it is done.
type FeedHandler interface {
	Handle(ctx context.Context) error
	Close()
	// ID names the connection.
	ID() string
	// Owner is the browser session the connection acts for.
	Owner() string
}

// Feed is one live camera connection bound to a browser session.
type Feed struct {
	handler FeedHandler
	conn    *Connection
	logger  *utils.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	once   sync.Once
}

// NewFeed binds handler and conn under a context derived from parent.
func NewFeed(parent context.Context, handler FeedHandler, conn *Connection, logger *utils.Logger) *Feed {
	ctx, cancel := context.WithCancelCause(parent)
	return &Feed{handler: handler, conn: conn, logger: logger, ctx: ctx, cancel: cancel}
}

func (f *Feed) ID() string { return f.handler.ID() }
func (f *Feed) Owner() string { return f.handler.Owner() }
func (f *Feed) Context() context.Context { return f.ctx }

// Run blocks until the handler returns, then closes the feed and reports
// the handler's error to onDone.
func (f *Feed) Run(onDone func(error)) {
	err := f.handler.Handle(f.ctx)
	f.Close(err)
	if onDone != nil {
		onDone(err)
	}
}

// Close cancels the feed with reason and releases the handler and socket.
// Only the first call has any effect.
func (f *Feed) Close(reason error) {
	f.once.Do(func() {
		if reason == nil {
			reason = ErrSessionShutdown
		}
		f.cancel(reason)

		released := make(chan struct{})
		go func() {
			defer close(released)
			f.handler.Close()
		}()
		select {
		case <-released:
		case <-time.After(handlerCloseTimeout):
			f.logger.WarnTag("WebSocket", "feed %s: handler still closing after %s (%v)", f.ID(), handlerCloseTimeout, reason)
		}

		if err := f.conn.Close(); err != nil {
			f.logger.DebugTag("WebSocket", "feed %s: socket close: %v", f.ID(), err)
		}
	})
}

// Feeds keeps at most one live feed per browser session. Opening the camera
// in a second tab ends the feed of the first.
type Feeds struct {
	logger  *utils.Logger
	mu      sync.Mutex
	byOwner map[string]*Feed
}

// NewFeeds returns an empty registry.
func NewFeeds(logger *utils.Logger) *Feeds {
	return &Feeds{logger: logger, byOwner: make(map[string]*Feed)}
}

// Attach registers feed for its owner and ends any feed it displaces.
func (r *Feeds) Attach(feed *Feed) {
	r.mu.Lock()
	prev := r.byOwner[feed.Owner()]
	r.byOwner[feed.Owner()] = feed
	r.mu.Unlock()

	if prev != nil && prev != feed {
		r.logger.InfoTag("WebSocket", "session %s: feed %s replaced by %s", feed.Owner(), prev.ID(), feed.ID())
		_ = prev.conn.WriteJSON(ControlMessage{Type: MessageError, Message: ErrFeedReplaced.Error()})
		prev.Close(ErrFeedReplaced)
	}
}

// Detach forgets feed unless a newer feed already took its place.
func (r *Feeds) Detach(feed *Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byOwner[feed.Owner()] == feed {
		delete(r.byOwner, feed.Owner())
	}
}

// CloseAll ends every live feed with reason.
func (r *Feeds) CloseAll(reason error) {
	r.mu.Lock()
	live := make([]*Feed, 0, len(r.byOwner))
	for owner, feed := range r.byOwner {
		live = append(live, feed)
		delete(r.byOwner, owner)
	}
	r.mu.Unlock()

	for _, feed := range live {
		feed.Close(reason)
	}
	r.logger.InfoTag("WebSocket", "closed %d camera feeds: %v", len(live), reason)
}

// Count reports the number of live feeds.
func (r *Feeds) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOwner)
}
