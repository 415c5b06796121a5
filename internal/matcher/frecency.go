package matcher

import (
	"time"

	"github.com/0xADE/ade-launchd/internal/catalog"
)

const (
	// frecencyBlend scales frecency, which lies in [0,1), into text score units.
	frecencyBlend   = 40.0
	frequencyShare  = 0.6
	frequencyHalf   = 5.0
	recencyShare    = 0.4
	recencyHalfLife = 72 * time.Hour
)

// frecency combines launch count and recency relative to ref, the newest
// launch in the usage table.
func frecency(s catalog.UsageStats, ref time.Time) float64 {
	if s.LaunchCount == 0 {
		return 0
	}
	n := float64(s.LaunchCount)
	score := frequencyShare * n / (n + frequencyHalf)
	if s.LastLaunchedAt.IsZero() {
		return score
	}
	age := max(ref.Sub(s.LastLaunchedAt), 0)
	return score + recencyShare/(1+float64(age)/float64(recencyHalfLife))
}
