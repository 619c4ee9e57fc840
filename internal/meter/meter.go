// Package meter holds the pure math behind the two simulation gauges and
// their derived display values.
package meter

import (
	"fmt"
	"strconv"

	"resilience-sim/internal/model"
)

// ApplyDelta applies signed effects to the meters, clamping each field
// independently to [0,100].
func ApplyDelta(m model.Meters, d model.Effects) model.Meters {
	return model.Meters{
		MentalHealth:   clamp(m.MentalHealth + d.MentalHealth),
		CommunityTrust: clamp(m.CommunityTrust + d.CommunityTrust),
	}
}

// Stress is the inverse of mental health: stress + mentalHealth == 100.
func Stress(m model.Meters) int {
	return 100 - m.MentalHealth
}

// Followers maps community trust (0..100) onto the badge's configured
// follower range: floor(trust/100 * (max-min)) + min.
func Followers(m model.Meters, r model.FollowerRange) int {
	return m.CommunityTrust*(r.Max-r.Min)/100 + r.Min
}

// FormatFollowers renders a follower count the way the UI shows it:
// plain below 1K, one-decimal K up to 1M, one-decimal M above.
func FormatFollowers(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.Itoa(n)
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
