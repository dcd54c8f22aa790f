package graph

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mbd888/trustra/internal/metrics"
	"github.com/mbd888/trustra/internal/syncutil"
	"github.com/mbd888/trustra/internal/traces"
)

// Snapshot is one built graph and its provenance.
type Snapshot struct {
	Graph      *Graph
	Generation uint64
	BuiltAt    time.Time
	Stats      BuildStats
}

// RingResult is the ring detection output for one generation.
type RingResult struct {
	Generation uint64     `json:"generation"`
	Rings      [][]string `json:"suspicious_communities"`
	ComputedAt time.Time  `json:"computed_at"`
}

// Store holds the active snapshot. Readers never block: the snapshot is
// swapped atomically and ring results are cached per generation.
type Store struct {
	current atomic.Pointer[Snapshot]
	rings   atomic.Pointer[RingResult]
	gen     atomic.Uint64
	locks   *syncutil.KeyedMutex
	opts    Options
	now     func() time.Time
}

// NewStore creates an empty store that detects rings with opts.
func NewStore(opts Options) *Store {
	return &Store{
		locks: syncutil.NewKeyedMutex(4),
		opts:  opts.withDefaults(),
		now:   time.Now,
	}
}

// Options returns the ring detection settings.
func (s *Store) Options() Options { return s.opts }

// Swap installs g as the active graph under a new generation.
func (s *Store) Swap(g *Graph, stats BuildStats) *Snapshot {
	snap := &Snapshot{
		Graph:      g,
		Generation: s.gen.Add(1),
		BuiltAt:    s.now().UTC(),
		Stats:      stats,
	}
	s.current.Store(snap)

	metrics.GraphNodes.Set(float64(g.NodeCount()))
	metrics.GraphEdges.Set(float64(g.EdgeCount()))
	metrics.GraphGeneration.Set(float64(snap.Generation))
	return snap
}

// Generation returns the number of graphs swapped in so far.
func (s *Store) Generation() uint64 { return s.gen.Load() }

// Current returns the active snapshot or ErrNoSnapshot.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// CachedRings returns the ring result for the active generation if one has
// been computed.
func (s *Store) CachedRings() (*RingResult, bool) {
	snap := s.current.Load()
	r := s.rings.Load()
	if snap == nil || r == nil || r.Generation != snap.Generation {
		return nil, false
	}
	return r, true
}

// Rings returns ring detection for the active generation. On a cache miss
// one caller computes it while the others wait on the same lock or give up
// when their context ends.
func (s *Store) Rings(ctx context.Context) (*RingResult, error) {
	snap, err := s.Current()
	if err != nil {
		return nil, err
	}
	if r, ok := s.cachedFor(snap.Generation); ok {
		return r, nil
	}

	unlock, err := s.locks.LockContext(ctx, "rings:"+strconv.FormatUint(snap.Generation, 10))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if r, ok := s.cachedFor(snap.Generation); ok {
		return r, nil
	}
	return s.computeRings(ctx, snap), nil
}

func (s *Store) cachedFor(gen uint64) (*RingResult, bool) {
	r := s.rings.Load()
	if r != nil && r.Generation == gen {
		return r, true
	}
	return nil, false
}

func (s *Store) computeRings(ctx context.Context, snap *Snapshot) *RingResult {
	_, span := traces.StartSpan(ctx, "graph.DetectRings",
		traces.Generation(snap.Generation),
		traces.NodeCount(snap.Graph.NodeCount()),
		traces.EdgeCount(snap.Graph.EdgeCount()),
	)
	defer span.End()

	start := time.Now()
	rings := DetectRings(snap.Graph, s.opts)
	metrics.RingDetectionDuration.Observe(time.Since(start).Seconds())
	if rings == nil {
		rings = [][]string{}
	}

	res := &RingResult{
		Generation: snap.Generation,
		Rings:      rings,
		ComputedAt: s.now().UTC(),
	}
	// A slower computation for an older generation must not replace a newer
	// result.
	for {
		old := s.rings.Load()
		if old != nil && old.Generation > res.Generation {
			return res
		}
		if s.rings.CompareAndSwap(old, res) {
			break
		}
	}
	metrics.RingsDetected.Set(float64(len(rings)))
	return res
}
