package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/trustra/internal/marketplace"
	"github.com/mbd888/trustra/internal/metrics"
	"github.com/mbd888/trustra/internal/traces"
)

// DefaultRefreshInterval is how often the graph is rebuilt.
const DefaultRefreshInterval = 5 * time.Minute

// Publisher receives refresh notifications. realtime.Hub implements it.
type Publisher interface {
	PublishGraphRefreshed(stats any)
	PublishFraudRings(rings any)
}

// Refresher rebuilds the graph from an interaction source on an interval,
// swaps it into the store and precomputes ring detection for the new
// generation.
type Refresher struct {
	source    marketplace.InteractionSource
	store     *Store
	interval  time.Duration
	logger    *slog.Logger
	publisher Publisher
	trigger   chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool
	refreshes atomic.Int64
}

// NewRefresher creates a refresher. A zero interval uses
// DefaultRefreshInterval.
func NewRefresher(source marketplace.InteractionSource, store *Store, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		source:   source,
		store:    store,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// WithPublisher sets where refresh events go.
func (r *Refresher) WithPublisher(p Publisher) *Refresher {
	r.publisher = p
	return r
}

// Running reports whether Start is active.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// Refreshes returns the number of completed rebuilds.
func (r *Refresher) Refreshes() int64 {
	return r.refreshes.Load()
}

// Start builds once immediately, then on every tick or trigger. Call in a
// goroutine.
func (r *Refresher) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	r.safeRefresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.safeRefresh(ctx)
		case <-r.trigger:
			r.safeRefresh(ctx)
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Trigger requests an out-of-band rebuild. Returns false if one is already
// pending.
func (r *Refresher) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Refresher) safeRefresh(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in graph refresher", "panic", fmt.Sprint(p))
		}
	}()
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("graph refresh failed", "error", err)
	}
}

// Refresh loads interactions, builds and swaps a new graph, then computes
// rings for it.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	ctx, span := traces.StartSpan(ctx, "graph.Refresh")
	defer span.End()

	start := time.Now()
	records, err := r.source.Interactions(ctx)
	if err != nil {
		traces.RecordError(span, err)
		return nil, fmt.Errorf("load interactions: %w", err)
	}

	g, stats := Build(records)
	metrics.GraphBuildDuration.Observe(time.Since(start).Seconds())
	snap := r.store.Swap(g, stats)
	r.refreshes.Add(1)
	span.SetAttributes(traces.Generation(snap.Generation), traces.NodeCount(stats.Nodes), traces.EdgeCount(stats.Edges))

	r.logger.Info("graph refreshed",
		"generation", snap.Generation,
		"records", stats.Records,
		"skipped", stats.Skipped,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"duration", time.Since(start),
	)
	if r.publisher != nil {
		r.publisher.PublishGraphRefreshed(StatsView(snap))
	}

	rings, err := r.store.Rings(ctx)
	if err != nil {
		return snap, fmt.Errorf("detect rings: %w", err)
	}
	if len(rings.Rings) > 0 {
		r.logger.Info("fraud rings detected", "generation", rings.Generation, "rings", len(rings.Rings))
	}
	if r.publisher != nil {
		r.publisher.PublishFraudRings(rings)
	}
	return snap, nil
}

// Stats is the public summary of a snapshot.
type Stats struct {
	Generation uint64    `json:"generation"`
	Nodes      int       `json:"nodes"`
	Edges      int       `json:"edges"`
	Records    int       `json:"records"`
	Skipped    int       `json:"skipped"`
	BuiltAt    time.Time `json:"built_at"`
}

// StatsView summarises snap.
func StatsView(snap *Snapshot) Stats {
	return Stats{
		Generation: snap.Generation,
		Nodes:      snap.Stats.Nodes,
		Edges:      snap.Stats.Edges,
		Records:    snap.Stats.Records,
		Skipped:    snap.Stats.Skipped,
		BuiltAt:    snap.BuiltAt,
	}
}
