package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrMissingGraphURI is returned when a Neo4j source is requested without a URI.
var ErrMissingGraphURI = errors.New("graph uri is required")

// Neo4jOptions configures the Bolt connection.
type Neo4jOptions struct {
	URI            string
	Username       string
	Password       string
	Database       string
	MaxConnections int
}

// Each PURCHASED relationship is one transaction between a buyer and a seller.
const interactionsCypher = `
MATCH (b:Buyer)-[t:PURCHASED]->(s:Seller)
RETURN b.id AS buyer_id, s.id AS seller_id
ORDER BY t.id
SKIP $skip LIMIT $limit`

// Neo4jInteractionSource loads interaction records from a property graph.
// Neptune's openCypher endpoint speaks Bolt, so the same driver serves both.
type Neo4jInteractionSource struct {
	driver   neo4j.DriverWithContext
	database string
	pageSize int
}

// Compile-time check.
var _ InteractionSource = (*Neo4jInteractionSource)(nil)

// NewNeo4jInteractionSource connects and verifies connectivity.
func NewNeo4jInteractionSource(ctx context.Context, opts Neo4jOptions) (*Neo4jInteractionSource, error) {
	if opts.URI == "" {
		return nil, ErrMissingGraphURI
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *neo4j.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}

	return &Neo4jInteractionSource{
		driver:   driver,
		database: opts.Database,
		pageSize: interactionPageSize,
	}, nil
}

func (n *Neo4jInteractionSource) Interactions(ctx context.Context) ([]InteractionRecord, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	var out []InteractionRecord
	for skip := 0; ; skip += n.pageSize {
		res, err := session.Run(ctx, interactionsCypher, map[string]any{
			"skip":  skip,
			"limit": n.pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("interactions page at %d: %w", skip, err)
		}

		page := 0
		for res.Next(ctx) {
			rec := res.Record()
			buyer, _ := rec.Get("buyer_id")
			seller, _ := rec.Get("seller_id")
			out = append(out, InteractionRecord{
				BuyerID:  asString(buyer),
				SellerID: asString(seller),
			})
			page++
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		if page < n.pageSize {
			return out, nil
		}
	}
}

func (n *Neo4jInteractionSource) Ping(ctx context.Context) error {
	return n.driver.VerifyConnectivity(ctx)
}

// Close releases the driver.
func (n *Neo4jInteractionSource) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
