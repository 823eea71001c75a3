// Package feedprobe drives a running feed service over HTTP and checks the
// feeds it serves.
package feedprobe

import "time"

// Config holds configuration for a probe run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Scope    string        // Feed scope: global or followers
	Viewer   string        // Viewer key for the followers scope
	Limit    int           // Feed size to request
	Requests int           // Number of feed requests
	Workers  int           // Number of concurrent workers
	Timeout  time.Duration // HTTP request timeout
	Refresh  bool          // Request a refresh before probing
	LogFile  string        // Log file for probe output
	Verbose  bool          // Log every violation
}

// FeedRequest is the body of POST /feed/refresh.
type FeedRequest struct {
	Scope  string `json:"scope"`
	Limit  int    `json:"limit"`
	Viewer string `json:"viewer,omitempty"`
}

// AckResponse is the response to a refresh request.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds probe statistics.
type Stats struct {
	Requests    int
	Successful  int
	Failed      int
	Invalid     int
	Activities  int
	Violations  int
	LatencyP50  time.Duration
	LatencyP95  time.Duration
	LatencyMax  time.Duration
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	RefreshSent bool
}
