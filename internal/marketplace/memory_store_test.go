package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *MemoryStore {
	m := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"s3", "s1", "s2", "s4"} {
		m.AddSeller(&Seller{ID: id, Name: "Seller " + id, BaselineTrustScore: 600, JoinedAt: base.Add(time.Duration(i%2) * time.Hour)})
	}
	m.AddTransactions(
		Transaction{ID: "t1", SellerID: "s1", BuyerID: "b1", Status: StatusCompleted, Timestamp: base},
		Transaction{ID: "t2", SellerID: "s2", BuyerID: "b1", Status: StatusDisputed, Timestamp: base},
		Transaction{ID: "t3", SellerID: "s1", BuyerID: "b2", Status: StatusRefunded, Timestamp: base},
	)
	m.AddReviews(Review{ID: "r1", SellerID: "s1", BuyerID: "b1", Rating: 5, Timestamp: base})
	return m
}

func TestMemoryStore_GetSeller(t *testing.T) {
	m := seededStore()
	ctx := context.Background()

	s, err := m.GetSeller(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Seller s1", s.Name)

	_, err = m.GetSeller(ctx, "nope")
	assert.ErrorIs(t, err, ErrSellerNotFound)
}

func TestMemoryStore_ListSellersPaged(t *testing.T) {
	m := seededStore()
	ctx := context.Background()

	// joined order: s2,s3 (base) then s1,s4 (base+1h)
	page, err := m.ListSellers(ctx, SellerQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []string{"s2", "s3", "s1"}, []string{page[0].ID, page[1].ID, page[2].ID})

	last := page[2]
	rest, err := m.ListSellers(ctx, SellerQuery{Limit: 3, AfterJoined: last.JoinedAt, AfterID: last.ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "s4", rest[0].ID)
}

func TestMemoryStore_PerSellerSlices(t *testing.T) {
	m := seededStore()
	ctx := context.Background()

	txns, err := m.SellerTransactions(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	reviews, err := m.SellerReviews(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, reviews, 1)

	none, err := m.SellerReviews(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_HistoryIsOrdered(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.AddHistory("s1",
		TrustHistoryEntry{Timestamp: base.Add(48 * time.Hour), Score: 3},
		TrustHistoryEntry{Timestamp: base, Score: 1},
		TrustHistoryEntry{Timestamp: base.Add(24 * time.Hour), Score: 2},
	)
	h, err := m.TrustHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{h[0].Score, h[1].Score, h[2].Score})
}

func TestMemoryStore_Interactions(t *testing.T) {
	recs, err := seededStore().Interactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []InteractionRecord{
		{BuyerID: "b1", SellerID: "s1"},
		{BuyerID: "b1", SellerID: "s2"},
		{BuyerID: "b2", SellerID: "s1"},
	}, recs)
}
