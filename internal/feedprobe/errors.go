package feedprobe

import "errors"

var (
	ErrUnhealthy      = errors.New("service unhealthy")
	ErrRefreshFailed  = errors.New("refresh request failed")
	ErrNoSuccess      = errors.New("no feed request succeeded")
	ErrFeedViolations = errors.New("feed violations found")
)
