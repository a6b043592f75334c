// Package server exposes jobs over HTTP and streams their progress over
// WebSocket.
package server

import "time"

// Server configuration constants
const (
	// Per-connection sliding window for client WebSocket messages
	RateLimitMessages = 30
	RateLimitWindow   = time.Second

	// Body limit for POST /api/jobs
	MaxRequestBytes = 1 << 20

	// Deadline for a single WebSocket write
	WriteTimeout = 5 * time.Second

	// Messages buffered per WebSocket connection before events are dropped
	SendQueueSize = 256

	DefaultMaxJobs = 2
)
