package stream

import "errors"

// Stream errors signaled upward to the supervisor.
var (
	// ErrAuthFailed means the upstream rejected our credentials. Fatal for
	// the stream component.
	ErrAuthFailed = errors.New("stream authentication failed")

	// ErrRateLimited means the upstream asked us to slow down. Retryable
	// with a longer backoff.
	ErrRateLimited = errors.New("stream rate limited")

	// ErrStreamClosed means the connection closed normally; reconnect.
	ErrStreamClosed = errors.New("stream closed")
)
