// ABOUTME: Latency targets per request performance mode
// ABOUTME: Exceeding a target is logged, never enforced

package stream

import "time"

// Targets holds the latency target for each performance mode.
type Targets struct {
	Fast     time.Duration
	Balanced time.Duration
	Deep     time.Duration
}

// DefaultTargets are used when configuration leaves a target unset.
var DefaultTargets = Targets{
	Fast:     500 * time.Millisecond,
	Balanced: 2 * time.Second,
	Deep:     10 * time.Second,
}

// For returns the target for perfMode. Unknown or empty modes use Balanced.
func (t Targets) For(perfMode string) time.Duration {
	switch perfMode {
	case "fast":
		return orDefault(t.Fast, DefaultTargets.Fast)
	case "deep":
		return orDefault(t.Deep, DefaultTargets.Deep)
	default:
		return orDefault(t.Balanced, DefaultTargets.Balanced)
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
