package feedprobe

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/readfeed/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends structured logs to both stdout and a file. If logFile is
// empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "feedprobe_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the probe.
func ShowHelp() {
	os.Stdout.WriteString(`Feed Probe
==========

Fetches feeds from a running service concurrently and checks that every
feed is bounded by its limit, newest first, free of duplicate ids, and fully
rendered.

Usage:
  go run ./cmd/feedprobe [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -scope string
        Feed scope: global or followers (default "global")
  -viewer string
        Viewer key, required for the followers scope
  -limit int
        Feed size to request (default 20)
  -requests int
        Number of feed requests (default 100)
  -workers int
        Number of concurrent workers (default CPU cores)
  -timeout duration
        HTTP request timeout (default 30s)
  -refresh
        Request a background refresh before probing
  -log string
        Log file for probe output (default: feedprobe_TIMESTAMP.log)
  -verbose
        Log every failed request and violation
  -help
        Show this help message

Examples:
  go run ./cmd/feedprobe -requests 500 -workers 16
  go run ./cmd/feedprobe -scope followers -viewer <hex key> -refresh
`)
}
