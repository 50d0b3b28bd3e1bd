package manager

import "errors"

var (
	// ErrNotRunning: the operation needs a started bot and there is none.
	ErrNotRunning = errors.New("bot is not running")
	// ErrNotConnected: the bot is running but its session has not reached the
	// connected state yet.
	ErrNotConnected = errors.New("session is not connected")
	// ErrTenantNotFound wraps the storage lookup miss for API friendliness.
	ErrTenantNotFound = errors.New("tenant not found")
)
