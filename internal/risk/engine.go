package risk

import (
	"math"
	"time"

	"github.com/mbd888/trustra/internal/marketplace"
)

// Engine applies temporal decay and summarises trust history.
type Engine struct {
	lambda         float64
	trendWindow    int
	trendThreshold float64
	now            func() time.Time
}

// NewEngine creates an engine with the default decay rate and trend settings.
func NewEngine() *Engine {
	return &Engine{
		lambda:         DefaultLambda,
		trendWindow:    DefaultTrendWindow,
		trendThreshold: DefaultTrendThreshold,
		now:            time.Now,
	}
}

// WithLambda overrides the daily decay rate. Non-positive values are ignored.
func (e *Engine) WithLambda(lambda float64) *Engine {
	if lambda > 0 {
		e.lambda = lambda
	}
	return e
}

// WithTrendThreshold overrides the slope that separates a trend from stable.
func (e *Engine) WithTrendThreshold(t float64) *Engine {
	if t > 0 {
		e.trendThreshold = t
	}
	return e
}

// WithClock replaces the time source used by Decay.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Lambda returns the decay rate in use.
func (e *Engine) Lambda() float64 { return e.lambda }

// IdleDays returns the whole days elapsed since lastUpdated, floored. A nil
// or future timestamp gives 0.
func (e *Engine) IdleDays(lastUpdated *time.Time) int {
	if lastUpdated == nil {
		return 0
	}
	days := math.Floor(e.now().Sub(*lastUpdated).Hours() / 24)
	if days <= 0 {
		return 0
	}
	return int(days)
}

// Decay returns baseline * e^(-lambda * days) where days are whole idle days.
// With no idle days the baseline comes back unchanged.
func (e *Engine) Decay(baseline float64, lastUpdated *time.Time) float64 {
	days := e.IdleDays(lastUpdated)
	if days == 0 {
		return baseline
	}
	return baseline * math.Exp(-e.lambda*float64(days))
}

// Volatility is the population standard deviation of the history scores
// scaled so that a spread of 50 points reads 100. Fewer than two entries
// read 0.
func (e *Engine) Volatility(history []marketplace.TrustHistoryEntry) float64 {
	n := len(history)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, h := range history {
		sum += h.Score
	}
	mean := sum / float64(n)
	var ss float64
	for _, h := range history {
		d := h.Score - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n))
	return math.Min(MaxVolatility, std/volatilitySpread*MaxVolatility)
}

// Trend fits a least-squares line through the last trend-window scores
// against their position and classifies its slope. Shorter histories are
// stable.
func (e *Engine) Trend(history []marketplace.TrustHistoryEntry) Trend {
	if len(history) < e.trendWindow {
		return TrendStable
	}
	slope := leastSquaresSlope(history[len(history)-e.trendWindow:])
	switch {
	case slope > e.trendThreshold:
		return TrendImproving
	case slope < -e.trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Assess runs Decay, Volatility and Trend together.
func (e *Engine) Assess(baseline float64, lastUpdated *time.Time, history []marketplace.TrustHistoryEntry) Assessment {
	decayed := e.Decay(baseline, lastUpdated)
	return Assessment{
		Baseline:     baseline,
		Decayed:      decayed,
		DecayApplied: baseline - decayed,
		IdleDays:     e.IdleDays(lastUpdated),
		Volatility:   e.Volatility(history),
		Trend:        e.Trend(history),
		EvaluatedAt:  e.now(),
	}
}

func leastSquaresSlope(points []marketplace.TrustHistoryEntry) float64 {
	n := float64(len(points))
	xMean := (n - 1) / 2
	var yMean float64
	for _, p := range points {
		yMean += p.Score
	}
	yMean /= n

	var num, den float64
	for i, p := range points {
		dx := float64(i) - xMean
		num += dx * (p.Score - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
