package graph

// HighClusteringThreshold marks a seller's neighbourhood as suspiciously
// closed.
const HighClusteringThreshold = 0.5

// Popularity returns the number of distinct predecessors of id (its
// in-degree). A self-loop counts the node as its own predecessor.
// Unknown ids return 0.
func (g *Graph) Popularity(id string) int {
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	return len(g.in[i])
}

// LocalConnectivity returns the unweighted clustering coefficient of id on
// the undirected projection: the fraction of neighbour pairs that are
// themselves adjacent. The node is never its own neighbour. Fewer than two
// neighbours, or an unknown id, gives 0.
func (g *Graph) LocalConnectivity(id string) float64 {
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	nb := g.und.nbr[i]
	k := len(nb)
	if k < 2 {
		return 0
	}
	links := 0
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			if g.und.adjacent(nb[a], nb[b]) {
				links++
			}
		}
	}
	return 2 * float64(links) / float64(k*(k-1))
}

// Profile is the graph view of one seller.
type Profile struct {
	SellerID              string  `json:"seller_id"`
	Centrality            int     `json:"centrality"`
	ClusteringCoefficient float64 `json:"clustering_coefficient"`
	FraudRisk             string  `json:"fraud_risk"`
	Known                 bool    `json:"-"`
}

// SellerProfile combines popularity and local connectivity. Unknown ids get
// zero values and a Low label.
func (g *Graph) SellerProfile(id string) Profile {
	_, known := g.index[id]
	cc := g.LocalConnectivity(id)
	risk := "Low"
	if cc > HighClusteringThreshold {
		risk = "High"
	}
	return Profile{
		SellerID:              id,
		Centrality:            g.Popularity(id),
		ClusteringCoefficient: cc,
		FraudRisk:             risk,
		Known:                 known,
	}
}
