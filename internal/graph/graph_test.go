package graph

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/trustra/internal/marketplace"
)

func rec(buyer, seller string) marketplace.InteractionRecord {
	return marketplace.InteractionRecord{BuyerID: buyer, SellerID: seller}
}

// undirectedWeight reads the projected weight of {a, b}.
func undirectedWeight(g *Graph, a, b string) float64 {
	i, j := g.index[a], g.index[b]
	if i == j {
		return g.und.self[i]
	}
	for k, v := range g.und.nbr[i] {
		if v == j {
			return g.und.w[i][k]
		}
	}
	return 0
}

func TestBuild_Empty(t *testing.T) {
	g, stats := Build(nil)
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
	assert.Equal(t, BuildStats{}, stats)
	assert.Empty(t, Partition(g, DefaultOptions()))
	assert.Equal(t, 0, g.Popularity("x"))
	assert.Equal(t, 0.0, g.LocalConnectivity("x"))
}

func TestBuild_WeightsAreMultiplicities(t *testing.T) {
	records := []marketplace.InteractionRecord{
		rec("b1", "s1"), rec("b1", "s1"), rec("b1", "s1"),
		rec("b2", "s1"),
		rec("b1", "s2"),
	}
	g, stats := Build(records)

	assert.Equal(t, 3, g.Weight("b1", "s1"))
	assert.Equal(t, 1, g.Weight("b2", "s1"))
	assert.Equal(t, 1, g.Weight("b1", "s2"))
	assert.Equal(t, 0, g.Weight("s1", "b1"), "edges are directed")
	assert.Equal(t, 0, g.Weight("ghost", "s1"))

	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())
	assert.Equal(t, len(records), g.TotalWeight())
	assert.Equal(t, BuildStats{Records: 5, Nodes: 4, Edges: 3}, stats)
}

func TestBuild_SkipsEmptyIDs(t *testing.T) {
	g, stats := Build([]marketplace.InteractionRecord{
		rec("b1", "s1"), rec("", "s1"), rec("b2", ""),
	})
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, g.TotalWeight())
	assert.Equal(t, stats.Records-stats.Skipped, g.TotalWeight())
}

func TestBuild_OrderIndependent(t *testing.T) {
	var records []marketplace.InteractionRecord
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		records = append(records, rec(
			"b"+string(rune('a'+rng.Intn(12))),
			"s"+string(rune('a'+rng.Intn(8))),
		))
	}
	g1, _ := Build(records)

	shuffled := append([]marketplace.InteractionRecord(nil), records...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	g2, _ := Build(shuffled)

	assert.Equal(t, g1.Edges(), g2.Edges())
	assert.Equal(t, g1.Nodes(), g2.Nodes())
	assert.Equal(t, Partition(g1, DefaultOptions()), Partition(g2, DefaultOptions()))
}

func TestBuild_Roles(t *testing.T) {
	g, _ := Build([]marketplace.InteractionRecord{
		rec("alice", "bob"),
		rec("bob", "carol"),
		rec("dave", "dave"),
	})

	bob, ok := g.Node("bob")
	require.True(t, ok)
	assert.Equal(t, RoleSeller, bob.Role, "first seen as seller")
	assert.True(t, bob.Roles.Has(RoleBuyer))
	assert.True(t, bob.Roles.Has(RoleSeller))
	assert.Equal(t, "buyer,seller", bob.Roles.String())

	alice, _ := g.Node("alice")
	assert.Equal(t, RoleBuyer, alice.Role)
	assert.Equal(t, RoleBuyer, alice.Roles)

	// Buyer position is checked before seller position in one record.
	dave, _ := g.Node("dave")
	assert.Equal(t, RoleBuyer, dave.Role)
	assert.Equal(t, RoleBuyer|RoleSeller, dave.Roles)

	_, ok = g.Node("nobody")
	assert.False(t, ok)
}

func TestBuild_SelfLoopPreserved(t *testing.T) {
	g, _ := Build([]marketplace.InteractionRecord{rec("x", "x"), rec("x", "x")})
	assert.Equal(t, 1, g.NodeCount())
	assert.Equal(t, 2, g.Weight("x", "x"))
	assert.Equal(t, 2.0, undirectedWeight(g, "x", "x"))
	assert.Empty(t, g.und.nbr[0], "a node is not its own neighbour")
}

func TestProjection_SumsBothDirections(t *testing.T) {
	g, _ := Build([]marketplace.InteractionRecord{
		rec("a", "b"), rec("a", "b"), rec("b", "a"),
	})
	assert.Equal(t, 3.0, undirectedWeight(g, "a", "b"))
	assert.Equal(t, 3.0, undirectedWeight(g, "b", "a"))
}

func TestSuccessorsPredecessors(t *testing.T) {
	g, _ := Build([]marketplace.InteractionRecord{
		rec("b2", "s1"), rec("b1", "s1"), rec("b1", "s2"),
	})
	assert.Equal(t, []string{"b1", "b2"}, g.Predecessors("s1"))
	assert.Equal(t, []string{"s1", "s2"}, g.Successors("b1"))
	assert.Nil(t, g.Successors("ghost"))
}
