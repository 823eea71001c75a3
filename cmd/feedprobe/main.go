package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/readfeed/internal/feedprobe"
)

const defaultProbeTimeout = 10 * time.Minute

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		scope    = flag.String("scope", feedprobe.DefaultScope, "Feed scope: global or followers")
		viewer   = flag.String("viewer", "", "Viewer key, required for the followers scope")
		limit    = flag.Int("limit", feedprobe.DefaultLimit, "Feed size to request")
		requests = flag.Int("requests", feedprobe.DefaultRequests, "Number of feed requests")
		workers  = flag.Int("workers", runtime.NumCPU(), "Number of concurrent workers")
		timeout  = flag.Duration("timeout", feedprobe.DefaultTimeout, "HTTP request timeout")
		refresh  = flag.Bool("refresh", false, "Request a background refresh before probing")
		logFile  = flag.String("log", "", "Log file for probe output (default: feedprobe_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Log every failed request and violation")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		feedprobe.ShowHelp()
		return
	}

	if err := feedprobe.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultProbeTimeout)
	defer cancel()

	config := &feedprobe.Config{
		BaseURL:  *baseURL,
		Scope:    *scope,
		Viewer:   *viewer,
		Limit:    *limit,
		Requests: *requests,
		Workers:  *workers,
		Timeout:  *timeout,
		Refresh:  *refresh,
		LogFile:  *logFile,
		Verbose:  *verbose,
	}

	if _, err := feedprobe.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Probe failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
