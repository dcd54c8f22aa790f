package marketplace

import (
	"fmt"
	"strings"
	"time"
)

// ParseError reports a record that could not be converted. It is local to one
// record: callers drop the record and keep going.
type ParseError struct {
	Kind  string // "transaction", "review", "seller", "history"
	ID    string
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: field %s=%q: %v", e.Kind, e.ID, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Accepted timestamp layouts. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// RawTransaction is a transaction as it arrives from ingestion, before
// timestamp parsing.
type RawTransaction struct {
	ID               string  `json:"id"`
	SellerID         string  `json:"seller_id"`
	BuyerID          string  `json:"buyer_id"`
	Amount           float64 `json:"amount"`
	Status           string  `json:"status"`
	Timestamp        string  `json:"timestamp"`
	DeliveryTimeDays *int    `json:"delivery_time_days"`
}

// RawReview is a review as it arrives from ingestion.
type RawReview struct {
	ID            string  `json:"id"`
	SellerID      string  `json:"seller_id"`
	BuyerID       string  `json:"buyer_id"`
	TransactionID *string `json:"transaction_id"`
	Rating        int     `json:"rating"`
	Text          string  `json:"text"`
	Timestamp     string  `json:"timestamp"`
}

// ParseTransaction converts a raw transaction.
func ParseTransaction(r RawTransaction) (Transaction, error) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Transaction{}, &ParseError{Kind: "transaction", ID: r.ID, Field: "timestamp", Value: r.Timestamp, Err: err}
	}
	status := Status(strings.ToLower(strings.TrimSpace(r.Status)))
	if !status.Valid() {
		return Transaction{}, &ParseError{Kind: "transaction", ID: r.ID, Field: "status", Value: r.Status, Err: fmt.Errorf("unknown status")}
	}
	if r.DeliveryTimeDays != nil && *r.DeliveryTimeDays < 0 {
		return Transaction{}, &ParseError{Kind: "transaction", ID: r.ID, Field: "delivery_time_days",
			Value: fmt.Sprint(*r.DeliveryTimeDays), Err: fmt.Errorf("must be >= 0")}
	}
	return Transaction{
		ID:               r.ID,
		SellerID:         r.SellerID,
		BuyerID:          r.BuyerID,
		Amount:           r.Amount,
		Status:           status,
		Timestamp:        ts,
		DeliveryTimeDays: r.DeliveryTimeDays,
	}, nil
}

// ParseReview converts a raw review.
func ParseReview(r RawReview) (Review, error) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Review{}, &ParseError{Kind: "review", ID: r.ID, Field: "timestamp", Value: r.Timestamp, Err: err}
	}
	if r.Rating < 1 || r.Rating > 5 {
		return Review{}, &ParseError{Kind: "review", ID: r.ID, Field: "rating", Value: fmt.Sprint(r.Rating), Err: fmt.Errorf("must be in [1,5]")}
	}
	return Review{
		ID:            r.ID,
		SellerID:      r.SellerID,
		BuyerID:       r.BuyerID,
		TransactionID: r.TransactionID,
		Rating:        r.Rating,
		Text:          r.Text,
		Timestamp:     ts,
	}, nil
}

// ParseTransactions converts a batch, dropping records that fail to parse.
// The returned errors describe every dropped record.
func ParseTransactions(raw []RawTransaction) ([]Transaction, []error) {
	out := make([]Transaction, 0, len(raw))
	var errs []error
	for _, r := range raw {
		tx, err := ParseTransaction(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, tx)
	}
	return out, errs
}

// ParseReviews converts a batch, dropping records that fail to parse.
func ParseReviews(raw []RawReview) ([]Review, []error) {
	out := make([]Review, 0, len(raw))
	var errs []error
	for _, r := range raw {
		rv, err := ParseReview(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, rv)
	}
	return out, errs
}
