// Package trust turns a seller's transactions, reviews and trust history
// into one bounded trust score.
//
// Scoring combines three signals:
//   - behavioral: delivery punctuality and the share of refunded, cancelled
//     and disputed orders
//   - authenticity: review bursts and duplicated review text
//   - temporal: the seller's baseline, decayed by inactivity (see package risk)
//
// The scorers and the aggregator are pure. Service does the fetching.
package trust

import (
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/trustra/internal/risk"
)

// DefaultBaseline is the starting trust of a seller the datastore does not know.
const DefaultBaseline = 500.0

// MaxScore is the upper bound of a trust score.
const MaxScore = 1000.0

// RiskLevel buckets a trust score.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

// Components breaks a score down on the 0-1000 scale.
type Components struct {
	Behavioral           float64 `json:"behavioral"`
	Authenticity         float64 `json:"authenticity"`
	TemporalDecayApplied float64 `json:"temporal_decay_applied"`
}

// Result is the trust assessment of one seller.
type Result struct {
	SellerID        string     `json:"seller_id"`
	TrustScore      float64    `json:"trust_score"`
	RiskLevel       RiskLevel  `json:"risk_level"`
	Components      Components `json:"components"`
	VolatilityIndex float64    `json:"volatility_index"`
	Trend           risk.Trend `json:"trend"`
	BurstDetected   bool       `json:"burst_detected"`
	SpamScore       float64    `json:"spam_score"`
	Baseline        float64    `json:"baseline_trust_score"`
	KnownSeller     bool       `json:"known_seller"`
	CalculatedAt    time.Time  `json:"calculated_at"`
}

// Params are the tunable scoring parameters. Zero fields take defaults.
type Params struct {
	BehavioralWeight   float64 `yaml:"behavioral_weight"`
	AuthenticityWeight float64 `yaml:"authenticity_weight"`
	Alpha              float64 `yaml:"alpha"`
	HighRiskBelow      float64 `yaml:"high_risk_below"`
	MediumRiskBelow    float64 `yaml:"medium_risk_below"`
	OnTimeDays         int     `yaml:"on_time_days"`
	BurstThreshold     int     `yaml:"burst_threshold"`
	BurstWindowDays    int     `yaml:"burst_window_days"`
	DecayLambda        float64 `yaml:"decay_lambda"`
}

// DefaultParams returns the standard scoring parameters.
func DefaultParams() Params {
	return Params{
		BehavioralWeight:   0.6,
		AuthenticityWeight: 0.4,
		Alpha:              0.3,
		HighRiskBelow:      500,
		MediumRiskBelow:    750,
		OnTimeDays:         DefaultOnTimeDays,
		BurstThreshold:     DefaultBurstThreshold,
		BurstWindowDays:    DefaultBurstWindowDays,
		DecayLambda:        risk.DefaultLambda,
	}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.BehavioralWeight == 0 && p.AuthenticityWeight == 0 {
		p.BehavioralWeight, p.AuthenticityWeight = d.BehavioralWeight, d.AuthenticityWeight
	}
	if p.Alpha == 0 {
		p.Alpha = d.Alpha
	}
	if p.HighRiskBelow == 0 {
		p.HighRiskBelow = d.HighRiskBelow
	}
	if p.MediumRiskBelow == 0 {
		p.MediumRiskBelow = d.MediumRiskBelow
	}
	if p.OnTimeDays == 0 {
		p.OnTimeDays = d.OnTimeDays
	}
	if p.BurstThreshold == 0 {
		p.BurstThreshold = d.BurstThreshold
	}
	if p.BurstWindowDays == 0 {
		p.BurstWindowDays = d.BurstWindowDays
	}
	if p.DecayLambda == 0 {
		p.DecayLambda = d.DecayLambda
	}
	return p
}

// ErrInvalidParams is wrapped by Validate failures.
var ErrInvalidParams = errors.New("invalid scoring parameters")

// Validate checks that p, after defaults, describes a usable model.
func (p Params) Validate() error {
	p = p.WithDefaults()
	switch {
	case p.BehavioralWeight < 0 || p.AuthenticityWeight < 0:
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidParams)
	case p.BehavioralWeight+p.AuthenticityWeight > 1+1e-9:
		return fmt.Errorf("%w: behavioral and authenticity weights sum to more than 1", ErrInvalidParams)
	case p.Alpha < 0 || p.Alpha > 1:
		return fmt.Errorf("%w: alpha must be within [0, 1]", ErrInvalidParams)
	case p.HighRiskBelow >= p.MediumRiskBelow:
		return fmt.Errorf("%w: high risk threshold must be below the medium threshold", ErrInvalidParams)
	case p.MediumRiskBelow > MaxScore:
		return fmt.Errorf("%w: medium risk threshold above %v", ErrInvalidParams, MaxScore)
	case p.OnTimeDays < 0 || p.BurstThreshold < 0 || p.BurstWindowDays < 0 || p.DecayLambda < 0:
		return fmt.Errorf("%w: negative window, threshold or decay rate", ErrInvalidParams)
	}
	return nil
}
