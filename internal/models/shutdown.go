package models

import "time"

// Shutdown dispatch methods.
const (
	ShutdownMethodHTTP = "http"
	ShutdownMethodSSH  = "ssh"
)

// ShutdownConfig holds the shutdown dispatch configuration.
type ShutdownConfig struct {
	Method  string // "http" (default) or "ssh"
	URL     string // shutdown listener endpoint, for the http method
	Timeout time.Duration
	SSH     *SSHShutdownConfig // set when Method is "ssh"
}

// ShutdownResult holds the result of a single shutdown dispatch.
type ShutdownResult struct {
	Delivered  bool // a response was received (any status code)
	StatusCode int
	Duration   time.Duration
	Error      error
}
