// Package marketplace holds the marketplace records the scoring core consumes:
// sellers, transactions, reviews, buyer/seller interactions and trust history.
//
// The core packages (graph, trust, risk) never fetch anything themselves.
// Everything they see arrives through a Source as already-materialized slices.
package marketplace

import (
	"context"
	"errors"
	"time"
)

// Status is the outcome of a transaction.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusCancelled, StatusDisputed:
		return true
	}
	return false
}

// InteractionRecord is one buyer->seller interaction, one per transaction.
type InteractionRecord struct {
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
}

// Transaction is a completed, refunded, cancelled or disputed order.
type Transaction struct {
	ID               string    `json:"id"`
	SellerID         string    `json:"seller_id"`
	BuyerID          string    `json:"buyer_id"`
	Amount           float64   `json:"amount"`
	Status           Status    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	DeliveryTimeDays *int      `json:"delivery_time_days"`
}

// Review is a buyer's rating of a seller.
type Review struct {
	ID            string    `json:"id"`
	SellerID      string    `json:"seller_id"`
	BuyerID       string    `json:"buyer_id"`
	TransactionID *string   `json:"transaction_id"`
	Rating        int       `json:"rating"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
}

// Seller carries the baseline trust a seller starts scoring from.
type Seller struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	BaselineTrustScore float64    `json:"baseline_trust_score"`
	LastUpdated        *time.Time `json:"last_updated,omitempty"`
	JoinedAt           time.Time  `json:"joined_at"`
}

// TrustHistoryEntry is a past trust score. Entries are ordered by Timestamp.
type TrustHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// SellerQuery pages through sellers ordered by (joined_at, id).
type SellerQuery struct {
	Limit       int
	AfterJoined time.Time
	AfterID     string
}

var (
	// ErrSellerNotFound is returned by GetSeller for an unknown id.
	ErrSellerNotFound = errors.New("seller not found")

	// ErrSourceUnavailable is returned when a backing datastore cannot be reached.
	ErrSourceUnavailable = errors.New("data source unavailable")
)

// Source supplies marketplace data to the scoring core.
type Source interface {
	ListSellers(ctx context.Context, q SellerQuery) ([]*Seller, error)
	GetSeller(ctx context.Context, id string) (*Seller, error)
	SellerTransactions(ctx context.Context, sellerID string) ([]Transaction, error)
	SellerReviews(ctx context.Context, sellerID string) ([]Review, error)
	TrustHistory(ctx context.Context, sellerID string) ([]TrustHistoryEntry, error)
	InteractionSource
}

// InteractionSource supplies the full interaction dataset for a graph build.
type InteractionSource interface {
	Interactions(ctx context.Context) ([]InteractionRecord, error)
}

// Pinger is implemented by sources that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
