package graph

import "sort"

// Defaults for community detection and ring filtering.
const (
	DefaultResolution = 1.0
	DefaultMaxSweeps  = 100
	DefaultMinRing    = 3
	DefaultMaxRing    = 10
	DefaultMaxRings   = 5

	// moveEpsilon is the improvement a move must exceed over staying put.
	moveEpsilon = 1e-12
)

// Options tunes Partition and DetectRings.
type Options struct {
	Resolution  float64 `yaml:"resolution"`
	MaxSweeps   int     `yaml:"max_sweeps"`
	MinRingSize int     `yaml:"min_ring_size"`
	MaxRingSize int     `yaml:"max_ring_size"`
	MaxRings    int     `yaml:"max_rings"`
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		Resolution:  DefaultResolution,
		MaxSweeps:   DefaultMaxSweeps,
		MinRingSize: DefaultMinRing,
		MaxRingSize: DefaultMaxRing,
		MaxRings:    DefaultMaxRings,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Resolution <= 0 {
		o.Resolution = d.Resolution
	}
	if o.MaxSweeps <= 0 {
		o.MaxSweeps = d.MaxSweeps
	}
	if o.MinRingSize <= 0 {
		o.MinRingSize = d.MinRingSize
	}
	if o.MaxRingSize <= 0 {
		o.MaxRingSize = d.MaxRingSize
	}
	if o.MaxRings <= 0 {
		o.MaxRings = d.MaxRings
	}
	return o
}

// Partition splits the undirected projection of g into communities by
// greedy multilevel modularity optimisation (Louvain). Every node appears
// in exactly one community. Communities are ordered by their smallest
// member id and members are sorted. The result is deterministic for a
// given graph but not guaranteed to be globally optimal.
func Partition(g *Graph, opts Options) [][]string {
	if g == nil || g.NodeCount() == 0 {
		return nil
	}
	opts = opts.withDefaults()

	groups := louvain(g.und, opts.Resolution, opts.MaxSweeps)
	out := make([][]string, len(groups))
	for c, members := range groups {
		ids := make([]string, len(members))
		for k, m := range members {
			ids[k] = g.ids[m]
		}
		out[c] = ids
	}
	return out
}

// DetectRings returns the communities whose size lies in
// [MinRingSize, MaxRingSize], at most MaxRings of them, in partition order.
func DetectRings(g *Graph, opts Options) [][]string {
	opts = opts.withDefaults()
	var rings [][]string
	for _, c := range Partition(g, opts) {
		if len(c) < opts.MinRingSize || len(c) > opts.MaxRingSize {
			continue
		}
		rings = append(rings, c)
		if len(rings) == opts.MaxRings {
			break
		}
	}
	return rings
}

// Modularity scores a partition of g's undirected projection at resolution
// 1. Ids missing from g are ignored. A graph without edges scores 0.
func Modularity(g *Graph, communities [][]string) float64 {
	if g == nil || g.und.m2 == 0 {
		return 0
	}
	comm := make([]int, g.NodeCount())
	for i := range comm {
		comm[i] = -1
	}
	for c, members := range communities {
		for _, id := range members {
			if i, ok := g.index[id]; ok {
				comm[i] = c
			}
		}
	}
	return modularity(g.und, comm, 1.0)
}

func modularity(w *weighted, comm []int, resolution float64) float64 {
	m := w.m2 / 2
	internal := make(map[int]float64)
	degree := make(map[int]float64)
	for u := 0; u < w.n; u++ {
		cu := comm[u]
		if cu < 0 {
			continue
		}
		degree[cu] += w.deg[u]
		internal[cu] += w.self[u]
		for j, v := range w.nbr[u] {
			if v > u && comm[v] == cu {
				internal[cu] += w.w[u][j]
			}
		}
	}
	q := 0.0
	for c, d := range degree {
		q += internal[c]/m - resolution*(d/w.m2)*(d/w.m2)
	}
	return q
}

// louvain returns groups of node indices, ordered by smallest member.
func louvain(base *weighted, resolution float64, maxSweeps int) [][]int {
	membership := make([]int, base.n)
	for i := range membership {
		membership[i] = i
	}

	cur := base
	for {
		comm, moved := localMoving(cur, resolution, maxSweeps)
		if !moved {
			break
		}
		relabel, k := renumber(comm)
		for i := range membership {
			membership[i] = relabel[membership[i]]
		}
		if k == cur.n {
			break
		}
		cur = cur.aggregate(relabel, k)
	}

	byLabel := make(map[int][]int)
	for i, c := range membership {
		byLabel[c] = append(byLabel[c], i)
	}
	groups := make([][]int, 0, len(byLabel))
	for _, members := range byLabel {
		groups = append(groups, members) // indices appended ascending
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a][0] < groups[b][0] })
	return groups
}

// localMoving runs sweeps of single-node moves on w, starting from
// singletons. It reports whether any node changed community.
func localMoving(w *weighted, resolution float64, maxSweeps int) ([]int, bool) {
	comm := make([]int, w.n)
	tot := make([]float64, w.n)
	for i := range comm {
		comm[i] = i
		tot[i] = w.deg[i]
	}
	if w.m2 == 0 {
		return comm, false
	}

	moved := false
	links := make(map[int]float64)
	var cands []int
	for sweep := 0; sweep < maxSweeps; sweep++ {
		moves := 0
		for i := 0; i < w.n; i++ {
			own := comm[i]
			ki := w.deg[i]

			clear(links)
			cands = cands[:0]
			for j, v := range w.nbr[i] {
				c := comm[v]
				if _, ok := links[c]; !ok {
					cands = append(cands, c)
				}
				links[c] += w.w[i][j]
			}
			sort.Ints(cands)

			tot[own] -= ki
			best := own
			bestGain := links[own] - resolution*tot[own]*ki/w.m2
			for _, c := range cands {
				if c == own {
					continue
				}
				gain := links[c] - resolution*tot[c]*ki/w.m2
				if gain > bestGain+moveEpsilon {
					best, bestGain = c, gain
				}
			}
			tot[best] += ki
			comm[i] = best
			if best != own {
				moves++
				moved = true
			}
		}
		if moves == 0 {
			break
		}
	}
	return comm, moved
}

// renumber maps community labels to 0..k-1 in order of each community's
// smallest node index. It returns node -> new label.
func renumber(comm []int) ([]int, int) {
	next := 0
	labels := make(map[int]int)
	out := make([]int, len(comm))
	for i, c := range comm {
		l, ok := labels[c]
		if !ok {
			l = next
			labels[c] = l
			next++
		}
		out[i] = l
	}
	return out, next
}
