package graph

import "sort"

// weighted is an undirected weighted graph over dense indices. nbr lists
// exclude the node itself; self-loop weight lives in self.
type weighted struct {
	n    int
	nbr  [][]int
	w    [][]float64
	self []float64
	deg  []float64 // incident weight, self-loops counted twice
	m2   float64   // 2m = sum of deg
}

func newWeighted(acc []map[int]float64, self []float64) *weighted {
	n := len(self)
	g := &weighted{
		n:    n,
		nbr:  make([][]int, n),
		w:    make([][]float64, n),
		self: self,
		deg:  make([]float64, n),
	}
	for u := 0; u < n; u++ {
		keys := make([]int, 0, len(acc[u]))
		for v := range acc[u] {
			keys = append(keys, v)
		}
		sort.Ints(keys)
		g.nbr[u] = keys
		g.w[u] = make([]float64, len(keys))
		d := 2 * self[u]
		for k, v := range keys {
			g.w[u][k] = acc[u][v]
			d += acc[u][v]
		}
		g.deg[u] = d
		g.m2 += d
	}
	return g
}

// adjacent reports whether u and v share an edge.
func (g *weighted) adjacent(u, v int) bool {
	nb := g.nbr[u]
	k := sort.SearchInts(nb, v)
	return k < len(nb) && nb[k] == v
}

// aggregate collapses nodes into communities. comm maps node -> community in
// [0, k). Intra-community weight becomes the community's self-loop.
func (g *weighted) aggregate(comm []int, k int) *weighted {
	acc := make([]map[int]float64, k)
	for c := range acc {
		acc[c] = make(map[int]float64)
	}
	self := make([]float64, k)
	for u := 0; u < g.n; u++ {
		cu := comm[u]
		self[cu] += g.self[u]
		for j, v := range g.nbr[u] {
			if v < u {
				continue
			}
			cv := comm[v]
			if cu == cv {
				self[cu] += g.w[u][j]
				continue
			}
			acc[cu][cv] += g.w[u][j]
			acc[cv][cu] += g.w[u][j]
		}
	}
	return newWeighted(acc, self)
}
