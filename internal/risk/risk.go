// Package risk derives the time-dependent part of a seller's trust: how far
// the baseline has decayed since it was last refreshed, how much past scores
// have swung, and which way they are heading.
//
// Everything here is pure computation over values the caller already holds.
package risk

import "time"

// Trend is the direction of a seller's recent trust scores.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Defaults for the temporal model.
const (
	// DefaultLambda is the daily exponential decay rate of an idle baseline.
	DefaultLambda = 0.05

	// DefaultTrendWindow is how many of the latest scores the trend fits.
	DefaultTrendWindow = 5

	// DefaultTrendThreshold is the per-step slope beyond which a trend is
	// improving or declining.
	DefaultTrendThreshold = 5.0

	// MaxVolatility caps the volatility index.
	MaxVolatility = 100.0

	// volatilitySpread is the standard deviation that maps to MaxVolatility.
	volatilitySpread = 50.0
)

// Assessment is the temporal view of one seller.
type Assessment struct {
	Baseline     float64   `json:"baseline"`
	Decayed      float64   `json:"decayed"`
	DecayApplied float64   `json:"decay_applied"`
	IdleDays     int       `json:"idle_days"`
	Volatility   float64   `json:"volatility_index"`
	Trend        Trend     `json:"trend"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}
