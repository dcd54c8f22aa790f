package trust

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mbd888/trustra/internal/marketplace"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func review(at time.Time, text string) marketplace.Review {
	return marketplace.Review{Rating: 5, Text: text, Timestamp: at}
}

func spaced(n int, step time.Duration) []marketplace.Review {
	out := make([]marketplace.Review, n)
	for i := range out {
		out[i] = review(t0.Add(time.Duration(i)*step), fmt.Sprintf("review number %d", i))
	}
	return out
}

func TestAuthenticity_NoReviews(t *testing.T) {
	a := NewAuthenticityScorer(0, 0).Score(nil)
	assert.Equal(t, Authenticity{Score: 1, UniquenessRatio: 1}, a)
}

func TestDetectBurst_IdenticalTimestamps(t *testing.T) {
	s := NewAuthenticityScorer(10, 7)
	reviews := make([]marketplace.Review, 10)
	for i := range reviews {
		reviews[i] = review(t0, fmt.Sprintf("r%d", i))
	}
	b := s.DetectBurst(reviews)
	assert.True(t, b.IsBurst)
	assert.InDelta(t, 10.0/7.0, b.MaxRate, 1e-9)
}

func TestDetectBurst_BelowThreshold(t *testing.T) {
	s := NewAuthenticityScorer(10, 7)
	b := s.DetectBurst(spaced(9, time.Minute))
	assert.Equal(t, Burst{}, b)
}

func TestDetectBurst_SpreadOut(t *testing.T) {
	s := NewAuthenticityScorer(10, 7)
	// One per day: any window holds at most 8.
	b := s.DetectBurst(spaced(40, 24*time.Hour))
	assert.False(t, b.IsBurst)
	assert.Equal(t, 0.0, b.MaxRate)
}

func TestDetectBurst_WindowIsInclusive(t *testing.T) {
	s := NewAuthenticityScorer(3, 2)
	// Offsets 0, 1 and 2 whole days: the last review sees all three.
	b := s.DetectBurst(spaced(3, 24*time.Hour))
	assert.True(t, b.IsBurst)
	assert.InDelta(t, 1.5, b.MaxRate, 1e-9)

	// Three days apart falls outside.
	reviews := []marketplace.Review{review(t0, "a"), review(t0.Add(24*time.Hour), "b"), review(t0.Add(72*time.Hour), "c")}
	assert.False(t, s.DetectBurst(reviews).IsBurst)
}

func TestDetectBurst_UnsortedInput(t *testing.T) {
	s := NewAuthenticityScorer(3, 1)
	reviews := []marketplace.Review{
		review(t0.Add(30*24*time.Hour), "x"),
		review(t0.Add(time.Hour), "y"),
		review(t0, "z"),
		review(t0.Add(2*time.Hour), "w"),
	}
	assert.True(t, s.DetectBurst(reviews).IsBurst)
}

func TestTextUniqueness(t *testing.T) {
	assert.Equal(t, 1.0, TextUniqueness(nil))

	same := []marketplace.Review{review(t0, "Great!"), review(t0, "great!"), review(t0, "GREAT!"), review(t0, "great!")}
	assert.InDelta(t, 0.25, TextUniqueness(same), 1e-9)

	assert.Equal(t, 1.0, TextUniqueness(spaced(5, time.Hour)))
}

func TestAuthenticity_Penalties(t *testing.T) {
	s := NewAuthenticityScorer(DefaultBurstThreshold, DefaultBurstWindowDays)

	// Unique, spread out: untouched.
	a := s.Score(spaced(20, 48*time.Hour))
	assert.Equal(t, 1.0, a.Score)
	assert.Equal(t, 0.0, a.SpamScore)

	// Spam of exactly 0.2 is tolerated.
	five := []marketplace.Review{
		review(t0, "a"), review(t0.Add(48*time.Hour), "b"), review(t0.Add(96*time.Hour), "c"),
		review(t0.Add(144*time.Hour), "d"), review(t0.Add(192*time.Hour), "A"),
	}
	a = s.Score(five)
	assert.InDelta(t, 0.2, a.SpamScore, 1e-9)
	assert.Equal(t, 1.0, a.Score)

	// Identical texts, no burst: 1 - 0.5*(1 - 1/4).
	dup := []marketplace.Review{review(t0, "same"), review(t0.Add(240*time.Hour), "same"), review(t0.Add(480*time.Hour), "same"), review(t0.Add(720*time.Hour), "same")}
	a = s.Score(dup)
	assert.InDelta(t, 0.75, a.SpamScore, 1e-9)
	assert.InDelta(t, 0.625, a.Score, 1e-9)
}

func TestAuthenticity_BurstAndSpamCombine(t *testing.T) {
	s := NewAuthenticityScorer(2, 7)
	reviews := make([]marketplace.Review, 100)
	for i := range reviews {
		reviews[i] = review(t0, "buy now")
	}
	a := s.Score(reviews)
	assert.True(t, a.Burst.IsBurst)
	assert.InDelta(t, 0.99, a.SpamScore, 1e-9)
	// 1 - 0.4 - 0.495
	assert.InDelta(t, 0.105, a.Score, 1e-9)

	// Two identical reviews: 1 - 0.4 - 0.5*0.5.
	assert.InDelta(t, 0.35, s.Score(reviews[:2]).Score, 1e-9)
}
