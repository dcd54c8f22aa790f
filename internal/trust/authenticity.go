package trust

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mbd888/trustra/internal/marketplace"
)

// Review burst defaults.
const (
	DefaultBurstThreshold  = 10
	DefaultBurstWindowDays = 7

	burstPenalty   = 0.4
	spamTolerance  = 0.2
	spamPenaltyMul = 0.5
)

// Burst describes the densest review window of a seller.
type Burst struct {
	IsBurst bool    `json:"is_burst"`
	MaxRate float64 `json:"max_rate"`
}

// Authenticity is the review authenticity verdict.
type Authenticity struct {
	Score           float64 `json:"score"`
	Burst           Burst   `json:"burst"`
	UniquenessRatio float64 `json:"uniqueness_ratio"`
	SpamScore       float64 `json:"spam_score"`
}

// AuthenticityScorer looks for review bursts and copy-pasted review text.
type AuthenticityScorer struct {
	threshold  int
	windowDays int
}

// NewAuthenticityScorer creates a scorer flagging threshold or more reviews
// within windowDays whole days. Non-positive arguments use the defaults.
func NewAuthenticityScorer(threshold, windowDays int) *AuthenticityScorer {
	if threshold <= 0 {
		threshold = DefaultBurstThreshold
	}
	if windowDays <= 0 {
		windowDays = DefaultBurstWindowDays
	}
	return &AuthenticityScorer{threshold: threshold, windowDays: windowDays}
}

// DetectBurst counts, for every review, the reviews written between windowDays
// whole days before it and the review itself, inclusive. A count reaching the
// threshold is a burst; MaxRate is the highest such count per window day.
// Quadratic in the number of reviews.
func (s *AuthenticityScorer) DetectBurst(reviews []marketplace.Review) Burst {
	if len(reviews) < s.threshold {
		return Burst{}
	}
	ts := make([]time.Time, len(reviews))
	for i, r := range reviews {
		ts[i] = r.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	var b Burst
	for _, end := range ts {
		count := 0
		for _, t := range ts {
			if d := wholeDays(end.Sub(t)); d >= 0 && d <= s.windowDays {
				count++
			}
		}
		if count >= s.threshold {
			b.IsBurst = true
			b.MaxRate = math.Max(b.MaxRate, float64(count)/float64(s.windowDays))
		}
	}
	return b
}

// TextUniqueness returns distinct/total over case-folded review texts.
// No reviews read as fully unique.
func TextUniqueness(reviews []marketplace.Review) float64 {
	if len(reviews) == 0 {
		return 1
	}
	seen := make(map[string]struct{}, len(reviews))
	for _, r := range reviews {
		seen[strings.ToLower(r.Text)] = struct{}{}
	}
	return float64(len(seen)) / float64(len(reviews))
}

// Score rates review authenticity in [0, 1], 1 being authentic. A burst
// costs 0.4; a spam score above 0.2 costs half the spam score. Sellers
// without reviews score 1.
func (s *AuthenticityScorer) Score(reviews []marketplace.Review) Authenticity {
	a := Authenticity{Score: 1, UniquenessRatio: 1}
	if len(reviews) == 0 {
		return a
	}
	a.Burst = s.DetectBurst(reviews)
	a.UniquenessRatio = TextUniqueness(reviews)
	a.SpamScore = 1 - a.UniquenessRatio

	if a.Burst.IsBurst {
		a.Score -= burstPenalty
	}
	if a.SpamScore > spamTolerance {
		a.Score -= a.SpamScore * spamPenaltyMul
	}
	a.Score = math.Max(0, a.Score)
	return a
}

// wholeDays floors d to days, rounding toward negative infinity.
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}
