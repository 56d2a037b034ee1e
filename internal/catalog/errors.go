package catalog

import "errors"

var (
	// ErrMarkerTimeout means a bounded wait elapsed before the selector matched.
	ErrMarkerTimeout = errors.New("marker wait timed out")
	// ErrElementMissing means a selector or ancestor lookup found nothing.
	ErrElementMissing = errors.New("element missing")
	// ErrMalformedRow means a table row could not be split into label and value.
	ErrMalformedRow = errors.New("malformed table row")
	// ErrSessionReleased is returned by sessions used after Release.
	ErrSessionReleased = errors.New("session released")
	// ErrQueueClosed is returned by Dequeue once a closed queue has drained.
	ErrQueueClosed = errors.New("queue closed")
)
