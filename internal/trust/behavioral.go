package trust

import (
	"math"

	"github.com/mbd888/trustra/internal/marketplace"
)

// DefaultOnTimeDays is the longest delivery still counted as on time.
const DefaultOnTimeDays = 5

// BehavioralMetrics are the rates behind a behavioral score.
type BehavioralMetrics struct {
	Transactions     int     `json:"transactions"`
	OnTimeRate       float64 `json:"on_time_rate"`
	ReturnRate       float64 `json:"return_rate"`
	CancellationRate float64 `json:"cancellation_rate"`
	DisputeRate      float64 `json:"dispute_rate"`
	AverageRating    float64 `json:"average_rating"`
	ReviewCount      int     `json:"review_count"`
}

// BehavioralScorer rates how a seller fulfils orders.
type BehavioralScorer struct {
	onTimeDays int
}

// NewBehavioralScorer creates a scorer. Non-positive onTimeDays uses
// DefaultOnTimeDays.
func NewBehavioralScorer(onTimeDays int) *BehavioralScorer {
	if onTimeDays <= 0 {
		onTimeDays = DefaultOnTimeDays
	}
	return &BehavioralScorer{onTimeDays: onTimeDays}
}

// Score returns a value in [0, 1]:
//
//	0.5 + 0.3*onTime - 0.2*returns - 0.2*cancellations - 0.3*disputes
//
// clamped. A seller with no transactions scores 0. A transaction without a
// delivery time is not on time. Reviews only feed the metrics.
func (s *BehavioralScorer) Score(txns []marketplace.Transaction, reviews []marketplace.Review) (float64, BehavioralMetrics) {
	m := BehavioralMetrics{Transactions: len(txns), ReviewCount: len(reviews)}
	if len(reviews) > 0 {
		sum := 0
		for _, r := range reviews {
			sum += r.Rating
		}
		m.AverageRating = float64(sum) / float64(len(reviews))
	}
	if len(txns) == 0 {
		return 0, m
	}

	var onTime, returned, cancelled, disputed int
	for _, tx := range txns {
		if tx.DeliveryTimeDays != nil && *tx.DeliveryTimeDays <= s.onTimeDays {
			onTime++
		}
		switch tx.Status {
		case marketplace.StatusRefunded:
			returned++
		case marketplace.StatusCancelled:
			cancelled++
		case marketplace.StatusDisputed:
			disputed++
		}
	}
	n := float64(len(txns))
	m.OnTimeRate = float64(onTime) / n
	m.ReturnRate = float64(returned) / n
	m.CancellationRate = float64(cancelled) / n
	m.DisputeRate = float64(disputed) / n

	score := 0.5 + 0.3*m.OnTimeRate - 0.2*m.ReturnRate - 0.2*m.CancellationRate - 0.3*m.DisputeRate
	return clamp(score, 0, 1), m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
