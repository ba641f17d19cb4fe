package ws

import "errors"

var (
	// ErrHandshakeTimeout indicates the websocket handshake exceeded the configured timeout.
	ErrHandshakeTimeout = errors.New("websocket handshake timed out")
	// ErrSessionShutdown is emitted when the server requests a session shutdown.
	ErrSessionShutdown = errors.New("websocket session shutdown")
	// ErrFeedReplaced ends a feed when the same session opens the camera elsewhere.
	ErrFeedReplaced = errors.New("camera opened in another tab")
	// ErrNoSession rejects camera feeds from browsers without a session cookie.
	ErrNoSession = errors.New("no session cookie; load the page first")
)
