package logdict

import (
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// belowErrorFilter admits records strictly below ERROR (DEBUG, INFO and
// WARNING). The shipped debug file uses it to keep error traffic out.
type belowErrorFilter struct{}

func (belowErrorFilter) Allow(e Entry) bool { return e.Level < slog.LevelError }

type exactLevelFilter struct {
	level slog.Level
}

func (f exactLevelFilter) Allow(e Entry) bool { return e.Level == f.level }

// rateLimitFilter drops records once a token bucket runs dry. Allow
// consumes one token per record.
type rateLimitFilter struct {
	lim *rate.Limiter
}

func (f *rateLimitFilter) Allow(Entry) bool { return f.lim.Allow() }

func newBelowErrorFilter(FilterSpec) (Filter, error) { return belowErrorFilter{}, nil }

func newExactLevelFilter(spec FilterSpec) (Filter, error) {
	if spec.Level == "" {
		return nil, fmt.Errorf("level is required")
	}
	lvl, err := ParseLevel(spec.Level)
	if err != nil {
		return nil, err
	}
	return exactLevelFilter{level: lvl}, nil
}

func newRateLimitFilter(spec FilterSpec) (Filter, error) {
	if spec.Rate <= 0 {
		return nil, fmt.Errorf("rate must be positive")
	}
	burst := spec.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitFilter{lim: rate.NewLimiter(rate.Limit(spec.Rate), burst)}, nil
}
