package trust

// Aggregator blends the behavioral and authenticity signals with a seller's
// decayed baseline.
type Aggregator struct {
	behavioralWeight   float64
	authenticityWeight float64
	alpha              float64
	highBelow          float64
	mediumBelow        float64
}

// NewAggregator creates an aggregator from p. Zero fields take defaults.
func NewAggregator(p Params) *Aggregator {
	p = p.WithDefaults()
	return &Aggregator{
		behavioralWeight:   p.BehavioralWeight,
		authenticityWeight: p.AuthenticityWeight,
		alpha:              p.Alpha,
		highBelow:          p.HighRiskBelow,
		mediumBelow:        p.MediumRiskBelow,
	}
}

// RawPerformance maps the two [0, 1] signals onto the 0-1000 scale.
func (a *Aggregator) RawPerformance(behavioral, authenticity float64) float64 {
	return (behavioral*a.behavioralWeight + authenticity*a.authenticityWeight) * MaxScore
}

// Aggregate returns the final score in [0, 1000]:
//
//	decayed*(1-alpha) + raw*alpha
func (a *Aggregator) Aggregate(behavioral, authenticity, decayed float64) float64 {
	raw := a.RawPerformance(behavioral, authenticity)
	return clamp(decayed*(1-a.alpha)+raw*a.alpha, 0, MaxScore)
}

// Level buckets a final score.
func (a *Aggregator) Level(score float64) RiskLevel {
	switch {
	case score < a.highBelow:
		return RiskHigh
	case score < a.mediumBelow:
		return RiskMedium
	default:
		return RiskLow
	}
}
