package limiter

import (
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allow      bool
	Remaining  int
	RetryAfter time.Duration
	ResetTime  time.Time
}

// Limiter answers the admission question for a client identifier. Hitting the
// limit is a routine outcome, not a failure, so there is no error return.
type Limiter interface {
	Allow(clientID string) Decision
}
