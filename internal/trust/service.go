package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/trustra/internal/marketplace"
	"github.com/mbd888/trustra/internal/metrics"
	"github.com/mbd888/trustra/internal/risk"
	"github.com/mbd888/trustra/internal/traces"
)

// DefaultBatchConcurrency bounds parallel seller scoring in ScoreBatch.
const DefaultBatchConcurrency = 8

// Publisher receives every computed result. realtime.Hub implements it.
type Publisher interface {
	PublishTrustUpdate(sellerID, riskLevel string, result any)
}

// Input is everything Score needs for one seller.
type Input struct {
	SellerID     string
	Baseline     float64
	LastUpdated  *time.Time
	KnownSeller  bool
	Transactions []marketplace.Transaction
	Reviews      []marketplace.Review
	History      []marketplace.TrustHistoryEntry
}

// Service fetches seller data and scores it.
type Service struct {
	source       marketplace.Source
	behavioral   *BehavioralScorer
	authenticity *AuthenticityScorer
	aggregator   *Aggregator
	engine       *risk.Engine
	publisher    Publisher
	logger       *slog.Logger
	concurrency  int
}

// NewService creates a scoring service over source using p.
func NewService(source marketplace.Source, p Params, logger *slog.Logger) *Service {
	p = p.WithDefaults()
	return &Service{
		source:       source,
		behavioral:   NewBehavioralScorer(p.OnTimeDays),
		authenticity: NewAuthenticityScorer(p.BurstThreshold, p.BurstWindowDays),
		aggregator:   NewAggregator(p),
		engine:       risk.NewEngine().WithLambda(p.DecayLambda),
		logger:       logger,
		concurrency:  DefaultBatchConcurrency,
	}
}

// WithPublisher sets where results are pushed.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithRiskEngine replaces the temporal engine.
func (s *Service) WithRiskEngine(e *risk.Engine) *Service {
	s.engine = e
	return s
}

// WithConcurrency bounds ScoreBatch parallelism.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Score computes the trust result for in without any I/O.
func (s *Service) Score(in Input) *Result {
	behavioral, _ := s.behavioral.Score(in.Transactions, in.Reviews)
	auth := s.authenticity.Score(in.Reviews)
	temporal := s.engine.Assess(in.Baseline, in.LastUpdated, in.History)

	final := s.aggregator.Aggregate(behavioral, auth.Score, temporal.Decayed)
	return &Result{
		SellerID:   in.SellerID,
		TrustScore: round2(final),
		RiskLevel:  s.aggregator.Level(final),
		Components: Components{
			Behavioral:           round2(behavioral * MaxScore),
			Authenticity:         round2(auth.Score * MaxScore),
			TemporalDecayApplied: round2(temporal.DecayApplied),
		},
		VolatilityIndex: round2(temporal.Volatility),
		Trend:           temporal.Trend,
		BurstDetected:   auth.Burst.IsBurst,
		SpamScore:       round2(auth.SpamScore),
		Baseline:        in.Baseline,
		KnownSeller:     in.KnownSeller,
		CalculatedAt:    temporal.EvaluatedAt.UTC(),
	}
}

// Compute fetches the seller's data and scores it. An unknown seller is
// scored from DefaultBaseline. The result is published when a publisher is
// set.
func (s *Service) Compute(ctx context.Context, sellerID string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "trust.Compute", traces.SellerID(sellerID))
	defer span.End()
	start := time.Now()

	in, err := s.load(ctx, sellerID)
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	res := s.Score(in)

	metrics.TrustScoreDuration.Observe(time.Since(start).Seconds())
	metrics.TrustScoresTotal.WithLabelValues(string(res.RiskLevel)).Inc()
	if res.BurstDetected {
		metrics.BurstsDetectedTotal.Inc()
		s.logger.WarnContext(ctx, "review burst detected", "seller_id", sellerID, "spam_score", res.SpamScore)
	}
	s.logger.DebugContext(ctx, "trust score computed",
		"seller_id", sellerID,
		"trust_score", res.TrustScore,
		"risk_level", res.RiskLevel,
		"transactions", len(in.Transactions),
		"reviews", len(in.Reviews),
	)

	if s.publisher != nil {
		s.publisher.PublishTrustUpdate(res.SellerID, string(res.RiskLevel), res)
	}
	return res, nil
}

// ScoreBatch computes results for ids in order, in parallel. The first
// failure cancels the rest.
func (s *Service) ScoreBatch(ctx context.Context, ids []string) ([]*Result, error) {
	ctx, span := traces.StartSpan(ctx, "trust.ScoreBatch", traces.BatchSize(len(ids)))
	defer span.End()

	results := make([]*Result, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.Compute(gctx, id)
			if err != nil {
				return fmt.Errorf("seller %s: %w", id, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	return results, nil
}

func (s *Service) load(ctx context.Context, sellerID string) (Input, error) {
	in := Input{SellerID: sellerID, Baseline: DefaultBaseline}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		seller, err := s.source.GetSeller(gctx, sellerID)
		switch {
		case errors.Is(err, marketplace.ErrSellerNotFound):
			return nil
		case errors.Is(err, marketplace.ErrSourceUnavailable):
			s.logger.WarnContext(gctx, "seller lookup unavailable, using default baseline", "seller_id", sellerID, "error", err)
			return nil
		case err != nil:
			return fmt.Errorf("get seller: %w", err)
		}
		in.Baseline = seller.BaselineTrustScore
		in.LastUpdated = seller.LastUpdated
		in.KnownSeller = true
		return nil
	})
	g.Go(func() error {
		txns, err := s.source.SellerTransactions(gctx, sellerID)
		if err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		in.Transactions = txns
		return nil
	})
	g.Go(func() error {
		reviews, err := s.source.SellerReviews(gctx, sellerID)
		if err != nil {
			return fmt.Errorf("reviews: %w", err)
		}
		in.Reviews = reviews
		return nil
	})
	g.Go(func() error {
		h, err := s.source.TrustHistory(gctx, sellerID)
		if err != nil {
			return fmt.Errorf("trust history: %w", err)
		}
		in.History = h
		return nil
	})
	if err := g.Wait(); err != nil {
		return Input{}, err
	}
	return in, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
