package upstream

import "time"

// Config is the upstream adapter configuration.
type Config struct {
	// BaseURL of the inference backend (e.g., "http://localhost:8000")
	BaseURL string

	// DefaultModel is sent when a chat request names no model.
	DefaultModel string

	// Timeout bounds a single backend call, including reading the body.
	Timeout time.Duration
}
