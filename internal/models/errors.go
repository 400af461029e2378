// Sentinel errors shared across the pipeline. Callers should use errors.Is
// to match these values.
package models

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Activity guard errors.
	ErrFailedToStartBackgroundActivity = errors.New("failed to start background activity")

	// Transfer errors. A disconnected session is not a terminal upload
	// failure: the transfer continues in the background session while the
	// owning process suspends.
	ErrSessionDisconnected = errors.New("background session was disconnected")
	ErrSessionInvalidated  = errors.New("session invalidated")
)
