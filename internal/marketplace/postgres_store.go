package marketplace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mbd888/trustra/internal/metrics"
)

// interactionPageSize bounds each keyset page read during a graph load.
const interactionPageSize = 1000

// PostgresStore implements Source backed by PostgreSQL. It only reads.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check.
var _ Source = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed source.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) ListSellers(ctx context.Context, q SellerQuery) ([]*Seller, error) {
	query := `
		SELECT id, name, baseline_trust_score, last_updated, joined_at
		FROM sellers`

	var args []interface{}
	argIdx := 1
	if !q.AfterJoined.IsZero() || q.AfterID != "" {
		query += " WHERE (joined_at, id) > ($" + strconv.Itoa(argIdx) + ", $" + strconv.Itoa(argIdx+1) + ")"
		args = append(args, q.AfterJoined, q.AfterID)
		argIdx += 2
	}
	query += " ORDER BY joined_at, id"

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT $" + strconv.Itoa(argIdx)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sellers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Seller
	for rows.Next() {
		s, err := scanSeller(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetSeller(ctx context.Context, id string) (*Seller, error) {
	const q = `
		SELECT id, name, baseline_trust_score, last_updated, joined_at
		FROM sellers
		WHERE id = $1`

	s, err := scanSeller(p.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSellerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get seller %s: %w", id, err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSeller(row rowScanner) (*Seller, error) {
	s := &Seller{}
	var lastUpdated sql.NullTime
	if err := row.Scan(&s.ID, &s.Name, &s.BaselineTrustScore, &lastUpdated, &s.JoinedAt); err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		t := lastUpdated.Time.UTC()
		s.LastUpdated = &t
	}
	s.JoinedAt = s.JoinedAt.UTC()
	return s, nil
}

func (p *PostgresStore) SellerTransactions(ctx context.Context, sellerID string) ([]Transaction, error) {
	const q = `
		SELECT id, seller_id, buyer_id, amount, status, occurred_at, delivery_time_days
		FROM transactions
		WHERE seller_id = $1
		ORDER BY id`

	rows, err := p.db.QueryContext(ctx, q, sellerID)
	if err != nil {
		return nil, fmt.Errorf("seller transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var raw []RawTransaction
	for rows.Next() {
		var r RawTransaction
		var delivery sql.NullInt64
		if err := rows.Scan(&r.ID, &r.SellerID, &r.BuyerID, &r.Amount, &r.Status, &r.Timestamp, &delivery); err != nil {
			return nil, err
		}
		if delivery.Valid {
			d := int(delivery.Int64)
			r.DeliveryTimeDays = &d
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	txns, errs := ParseTransactions(raw)
	ReportRejected(ctx, p.logger, errs)
	return txns, nil
}

func (p *PostgresStore) SellerReviews(ctx context.Context, sellerID string) ([]Review, error) {
	const q = `
		SELECT id, seller_id, buyer_id, transaction_id, rating, body, occurred_at
		FROM reviews
		WHERE seller_id = $1
		ORDER BY id`

	rows, err := p.db.QueryContext(ctx, q, sellerID)
	if err != nil {
		return nil, fmt.Errorf("seller reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var raw []RawReview
	for rows.Next() {
		var r RawReview
		var txID sql.NullString
		if err := rows.Scan(&r.ID, &r.SellerID, &r.BuyerID, &txID, &r.Rating, &r.Text, &r.Timestamp); err != nil {
			return nil, err
		}
		if txID.Valid {
			id := txID.String
			r.TransactionID = &id
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reviews, errs := ParseReviews(raw)
	ReportRejected(ctx, p.logger, errs)
	return reviews, nil
}

func (p *PostgresStore) TrustHistory(ctx context.Context, sellerID string) ([]TrustHistoryEntry, error) {
	const q = `
		SELECT recorded_at, score
		FROM trust_history
		WHERE seller_id = $1
		ORDER BY recorded_at ASC, id ASC`

	rows, err := p.db.QueryContext(ctx, q, sellerID)
	if err != nil {
		return nil, fmt.Errorf("trust history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TrustHistoryEntry
	for rows.Next() {
		var e TrustHistoryEntry
		if err := rows.Scan(&e.Timestamp, &e.Score); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Interactions reads every transaction's (buyer, seller) pair using keyset
// pages of interactionPageSize rows.
func (p *PostgresStore) Interactions(ctx context.Context) ([]InteractionRecord, error) {
	const q = `
		SELECT id, buyer_id, seller_id
		FROM transactions
		WHERE id > $1
		ORDER BY id
		LIMIT $2`

	var out []InteractionRecord
	after := ""
	for {
		rows, err := p.db.QueryContext(ctx, q, after, interactionPageSize)
		if err != nil {
			return nil, fmt.Errorf("interactions page after %q: %w", after, err)
		}
		n := 0
		for rows.Next() {
			var rec InteractionRecord
			if err := rows.Scan(&after, &rec.BuyerID, &rec.SellerID); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out = append(out, rec)
			n++
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
		if n < interactionPageSize {
			return out, nil
		}
	}
}

// ReportRejected logs and counts records dropped during parsing.
func ReportRejected(ctx context.Context, logger *slog.Logger, errs []error) {
	for _, err := range errs {
		var pe *ParseError
		if errors.As(err, &pe) {
			metrics.RecordsRejectedTotal.WithLabelValues(pe.Kind, pe.Field).Inc()
			logger.WarnContext(ctx, "record rejected", "kind", pe.Kind, "id", pe.ID, "field", pe.Field, "error", pe.Err)
			continue
		}
		metrics.RecordsRejectedTotal.WithLabelValues("unknown", "").Inc()
		logger.WarnContext(ctx, "record rejected", "error", err)
	}
}
