package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/trustra/internal/circuitbreaker"
	"github.com/mbd888/trustra/internal/metrics"
	"github.com/mbd888/trustra/internal/retry"
)

// Defaults for GuardedSource.
const (
	DefaultSourceTimeout = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 100 * time.Millisecond
)

// NamedInteractionSource labels an interaction source for logs and metrics.
type NamedInteractionSource struct {
	Name   string
	Source InteractionSource
}

// GuardedSource wraps a Source so that a slow or failing datastore degrades
// scoring instead of failing it. Every call is bounded by a timeout, retried
// with backoff, and short-circuited by a per-operation circuit breaker.
// Per-seller collections degrade to an empty slice with a warning.
type GuardedSource struct {
	src          Source
	interactions []NamedInteractionSource
	breaker      *circuitbreaker.Breaker
	timeout      time.Duration
	attempts     int
	delay        time.Duration
	logger       *slog.Logger
}

// Compile-time check.
var _ Source = (*GuardedSource)(nil)

// GuardOption configures a GuardedSource.
type GuardOption func(*GuardedSource)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *GuardedSource) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetry sets the attempt count and the base backoff delay.
func WithRetry(attempts int, delay time.Duration) GuardOption {
	return func(g *GuardedSource) {
		g.attempts = attempts
		g.delay = delay
	}
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) GuardOption {
	return func(g *GuardedSource) { g.breaker = b }
}

// WithInteractionSources sets the ordered interaction fallback chain. The
// first source that answers wins. Without it the wrapped Source is used.
func WithInteractionSources(sources ...NamedInteractionSource) GuardOption {
	return func(g *GuardedSource) { g.interactions = sources }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GuardOption {
	return func(g *GuardedSource) { g.logger = l }
}

// NewGuardedSource wraps src.
func NewGuardedSource(src Source, opts ...GuardOption) *GuardedSource {
	g := &GuardedSource{
		src:      src,
		breaker:  circuitbreaker.New(5, 30*time.Second),
		timeout:  DefaultSourceTimeout,
		attempts: DefaultRetryAttempts,
		delay:    DefaultRetryDelay,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if len(g.interactions) == 0 {
		g.interactions = []NamedInteractionSource{{Name: "primary", Source: src}}
	}
	return g
}

// call runs fn under the timeout, retry and breaker policy for key.
// ErrSellerNotFound is passed through without counting as a failure.
func call[T any](ctx context.Context, g *GuardedSource, key string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	if !g.breaker.Allow(key) {
		return out, fmt.Errorf("%s: circuit open: %w", key, ErrSourceUnavailable)
	}

	err := retry.Do(ctx, g.attempts, g.delay, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		v, err := fn(attemptCtx)
		if err != nil {
			if errors.Is(err, ErrSellerNotFound) {
				return retry.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	})
	if err == nil {
		g.breaker.RecordSuccess(key)
		return out, nil
	}
	if errors.Is(err, ErrSellerNotFound) {
		g.breaker.RecordSuccess(key)
		return out, err
	}
	g.breaker.RecordFailure(key)
	metrics.SourceFailuresTotal.WithLabelValues(key).Inc()
	return out, fmt.Errorf("%s: %w: %w", key, ErrSourceUnavailable, err)
}

func (g *GuardedSource) ListSellers(ctx context.Context, q SellerQuery) ([]*Seller, error) {
	return call(ctx, g, "list_sellers", func(ctx context.Context) ([]*Seller, error) {
		return g.src.ListSellers(ctx, q)
	})
}

// GetSeller returns ErrSellerNotFound for unknown sellers and an error
// wrapping ErrSourceUnavailable when the store cannot answer.
func (g *GuardedSource) GetSeller(ctx context.Context, id string) (*Seller, error) {
	return call(ctx, g, "get_seller", func(ctx context.Context) (*Seller, error) {
		return g.src.GetSeller(ctx, id)
	})
}

func (g *GuardedSource) SellerTransactions(ctx context.Context, sellerID string) ([]Transaction, error) {
	txns, err := call(ctx, g, "seller_transactions", func(ctx context.Context) ([]Transaction, error) {
		return g.src.SellerTransactions(ctx, sellerID)
	})
	if err != nil {
		g.logger.WarnContext(ctx, "transactions unavailable, scoring with none", "seller_id", sellerID, "error", err)
		return []Transaction{}, nil
	}
	return txns, nil
}

func (g *GuardedSource) SellerReviews(ctx context.Context, sellerID string) ([]Review, error) {
	reviews, err := call(ctx, g, "seller_reviews", func(ctx context.Context) ([]Review, error) {
		return g.src.SellerReviews(ctx, sellerID)
	})
	if err != nil {
		g.logger.WarnContext(ctx, "reviews unavailable, scoring with none", "seller_id", sellerID, "error", err)
		return []Review{}, nil
	}
	return reviews, nil
}

func (g *GuardedSource) TrustHistory(ctx context.Context, sellerID string) ([]TrustHistoryEntry, error) {
	h, err := call(ctx, g, "trust_history", func(ctx context.Context) ([]TrustHistoryEntry, error) {
		return g.src.TrustHistory(ctx, sellerID)
	})
	if err != nil {
		g.logger.WarnContext(ctx, "trust history unavailable", "seller_id", sellerID, "error", err)
		return []TrustHistoryEntry{}, nil
	}
	return h, nil
}

// Interactions walks the fallback chain and returns the first answer. When
// every source fails the result is empty.
func (g *GuardedSource) Interactions(ctx context.Context) ([]InteractionRecord, error) {
	for _, s := range g.interactions {
		recs, err := call(ctx, g, "interactions_"+s.Name, func(ctx context.Context) ([]InteractionRecord, error) {
			return s.Source.Interactions(ctx)
		})
		if err == nil {
			return recs, nil
		}
		g.logger.WarnContext(ctx, "interaction source failed, trying next", "source", s.Name, "error", err)
	}
	g.logger.WarnContext(ctx, "no interaction source available, graph will be empty")
	return []InteractionRecord{}, nil
}

// Ping checks the wrapped source when it supports it.
func (g *GuardedSource) Ping(ctx context.Context) error {
	if p, ok := g.src.(Pinger); ok {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return p.Ping(ctx)
	}
	return nil
}

// OpenCircuits lists the source operations currently short-circuited.
func (g *GuardedSource) OpenCircuits() []string {
	return g.breaker.OpenKeys()
}
