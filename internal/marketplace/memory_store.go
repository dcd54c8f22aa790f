package marketplace

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Source for tests and demo mode.
type MemoryStore struct {
	mu           sync.RWMutex
	sellers      map[string]*Seller
	transactions []Transaction
	reviews      []Review
	history      map[string][]TrustHistoryEntry
}

// Compile-time check.
var _ Source = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sellers: make(map[string]*Seller),
		history: make(map[string][]TrustHistoryEntry),
	}
}

// AddSeller inserts or replaces a seller.
func (m *MemoryStore) AddSeller(s *Seller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sellers[s.ID] = &cp
}

// AddTransactions appends transactions.
func (m *MemoryStore) AddTransactions(txns ...Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, txns...)
}

// AddReviews appends reviews.
func (m *MemoryStore) AddReviews(reviews ...Review) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, reviews...)
}

// AddHistory appends trust history for a seller, keeping it time ordered.
func (m *MemoryStore) AddHistory(sellerID string, entries ...TrustHistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := append(m.history[sellerID], entries...)
	sort.SliceStable(h, func(i, j int) bool { return h[i].Timestamp.Before(h[j].Timestamp) })
	m.history[sellerID] = h
}

func (m *MemoryStore) ListSellers(_ context.Context, q SellerQuery) ([]*Seller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Seller, 0, len(m.sellers))
	for _, s := range m.sellers {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].JoinedAt.Equal(all[j].JoinedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].JoinedAt.Before(all[j].JoinedAt)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []*Seller
	for _, s := range all {
		if !q.AfterJoined.IsZero() || q.AfterID != "" {
			if s.JoinedAt.Before(q.AfterJoined) {
				continue
			}
			if s.JoinedAt.Equal(q.AfterJoined) && s.ID <= q.AfterID {
				continue
			}
		}
		cp := *s
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) GetSeller(_ context.Context, id string) (*Seller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sellers[id]
	if !ok {
		return nil, ErrSellerNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) SellerTransactions(_ context.Context, sellerID string) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Transaction
	for _, tx := range m.transactions {
		if tx.SellerID == sellerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MemoryStore) SellerReviews(_ context.Context, sellerID string) ([]Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Review
	for _, r := range m.reviews {
		if r.SellerID == sellerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) TrustHistory(_ context.Context, sellerID string) ([]TrustHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[sellerID]
	out := make([]TrustHistoryEntry, len(h))
	copy(out, h)
	return out, nil
}

// Interactions returns one record per stored transaction, in insertion order.
func (m *MemoryStore) Interactions(_ context.Context) ([]InteractionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]InteractionRecord, 0, len(m.transactions))
	for _, tx := range m.transactions {
		out = append(out, InteractionRecord{BuyerID: tx.BuyerID, SellerID: tx.SellerID})
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
