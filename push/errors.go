package push

import "errors"

var (
	// ErrEmpty is returned by Bridge.Build for an absent payload.
	ErrEmpty = errors.New("push: empty payload")
	// ErrNotFound is returned by Center for unknown or expired tags.
	ErrNotFound = errors.New("push: notification not found")
)
