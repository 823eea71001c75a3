package feedprobe

import "time"

// Defaults applied to zero-valued Config fields.
const (
	DefaultScope    = "global"
	DefaultLimit    = 20
	DefaultRequests = 100
	DefaultTimeout  = 30 * time.Second
)

// Runner configuration constants.
const (
	RefreshSettleDelay   = 2 * time.Second
	PercentageMultiplier = 100
	percentile50         = 50
	percentile95         = 95
)
