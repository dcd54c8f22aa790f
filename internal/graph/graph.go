// Package graph builds the buyer->seller interaction graph and analyses it:
// popularity, local connectivity and modularity-based community detection
// for collusion rings.
//
// A Graph is immutable once built. Every query is safe for concurrent use
// without locks. Refreshing means building a new Graph and swapping it in
// through a Store.
package graph

import (
	"errors"
	"sort"

	"github.com/mbd888/trustra/internal/marketplace"
)

// ErrNoSnapshot is returned when no graph has been built yet.
var ErrNoSnapshot = errors.New("graph: no snapshot built yet")

// Role is a bit set of the positions an id has appeared in.
type Role uint8

const (
	RoleBuyer Role = 1 << iota
	RoleSeller
)

// String returns "buyer", "seller", "buyer,seller" or "".
func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	case RoleBuyer | RoleSeller:
		return "buyer,seller"
	}
	return ""
}

// Has reports whether r includes role.
func (r Role) Has(role Role) bool { return r&role != 0 }

// Node describes one vertex. Role is the position the id was first seen in;
// Roles accumulates every position.
type Node struct {
	ID    string `json:"id"`
	Role  Role   `json:"-"`
	Roles Role   `json:"-"`
}

// Edge is a directed buyer->seller edge. Weight is the number of interaction
// records for the pair.
type Edge struct {
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
	Weight int    `json:"weight"`
}

// BuildStats summarises a Build call.
type BuildStats struct {
	Records int `json:"records"`
	Skipped int `json:"skipped"`
	Nodes   int `json:"nodes"`
	Edges   int `json:"edges"`
}

type arc struct {
	to     int
	weight int
}

// Graph is a weighted directed interaction graph. Node indices follow
// ascending id order.
type Graph struct {
	ids   []string
	index map[string]int
	role  []Role
	roles []Role
	out   [][]arc // sorted by target
	in    [][]arc // sorted by source
	edges int
	total int

	// undirected projection, built once
	und *weighted
}

// Build groups records by exact (buyer, seller) pair; the group size becomes
// the edge weight. Records with an empty id on either side are skipped.
// The result does not depend on record order, apart from primary roles.
func Build(records []marketplace.InteractionRecord) (*Graph, BuildStats) {
	stats := BuildStats{Records: len(records)}

	type pair struct{ buyer, seller string }
	weights := make(map[pair]int)
	first := make(map[string]Role)
	seen := make(map[string]Role)

	touch := func(id string, r Role) {
		if _, ok := first[id]; !ok {
			first[id] = r
		}
		seen[id] |= r
	}

	for _, rec := range records {
		if rec.BuyerID == "" || rec.SellerID == "" {
			stats.Skipped++
			continue
		}
		touch(rec.BuyerID, RoleBuyer)
		touch(rec.SellerID, RoleSeller)
		weights[pair{rec.BuyerID, rec.SellerID}]++
	}

	ids := make([]string, 0, len(first))
	for id := range first {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g := &Graph{
		ids:   ids,
		index: make(map[string]int, len(ids)),
		role:  make([]Role, len(ids)),
		roles: make([]Role, len(ids)),
		out:   make([][]arc, len(ids)),
		in:    make([][]arc, len(ids)),
	}
	for i, id := range ids {
		g.index[id] = i
		g.role[i] = first[id]
		g.roles[i] = seen[id]
	}

	for p, w := range weights {
		b, s := g.index[p.buyer], g.index[p.seller]
		g.out[b] = append(g.out[b], arc{to: s, weight: w})
		g.in[s] = append(g.in[s], arc{to: b, weight: w})
		g.edges++
		g.total += w
	}
	for i := range ids {
		sortArcs(g.out[i])
		sortArcs(g.in[i])
	}
	g.und = project(g)

	stats.Nodes = len(ids)
	stats.Edges = g.edges
	return g, stats
}

func sortArcs(a []arc) {
	sort.Slice(a, func(i, j int) bool { return a[i].to < a[j].to })
}

// NodeCount returns the number of distinct ids.
func (g *Graph) NodeCount() int { return len(g.ids) }

// EdgeCount returns the number of distinct (buyer, seller) pairs.
func (g *Graph) EdgeCount() int { return g.edges }

// TotalWeight returns the sum of all edge weights, equal to the number of
// records that were not skipped.
func (g *Graph) TotalWeight() int { return g.total }

// Nodes returns every id in ascending order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Node looks up an id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return Node{ID: id, Role: g.role[i], Roles: g.roles[i]}, true
}

// Weight returns the weight of buyer->seller, or 0 when absent.
func (g *Graph) Weight(buyer, seller string) int {
	b, ok := g.index[buyer]
	if !ok {
		return 0
	}
	s, ok := g.index[seller]
	if !ok {
		return 0
	}
	arcs := g.out[b]
	k := sort.Search(len(arcs), func(i int) bool { return arcs[i].to >= s })
	if k < len(arcs) && arcs[k].to == s {
		return arcs[k].weight
	}
	return 0
}

// Edges returns every edge ordered by (buyer, seller).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for b, arcs := range g.out {
		for _, a := range arcs {
			out = append(out, Edge{Buyer: g.ids[b], Seller: g.ids[a.to], Weight: a.weight})
		}
	}
	return out
}

// Successors returns the sellers id bought from, in ascending order.
func (g *Graph) Successors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.out[i])
}

// Predecessors returns the buyers that bought from id, in ascending order.
func (g *Graph) Predecessors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.in[i])
}

func (g *Graph) names(arcs []arc) []string {
	out := make([]string, len(arcs))
	for k, a := range arcs {
		out[k] = g.ids[a.to]
	}
	return out
}

// project builds the undirected weighted view: the weight of {u, v} is
// w(u->v) + w(v->u); a self-loop keeps its directed weight.
func project(g *Graph) *weighted {
	n := len(g.ids)
	acc := make([]map[int]float64, n)
	self := make([]float64, n)
	for u := 0; u < n; u++ {
		for _, a := range g.out[u] {
			v := a.to
			if u == v {
				self[u] += float64(a.weight)
				continue
			}
			if acc[u] == nil {
				acc[u] = make(map[int]float64)
			}
			if acc[v] == nil {
				acc[v] = make(map[int]float64)
			}
			acc[u][v] += float64(a.weight)
			acc[v][u] += float64(a.weight)
		}
	}
	return newWeighted(acc, self)
}
