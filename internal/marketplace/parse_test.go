package marketplace

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-05T14:30:00Z", want},
		{"2024-03-05T16:30:00+02:00", want},
		{"2024-03-05T14:30:00", want},
		{"2024-03-05T14:30:00.000000", want},
		{"2024-03-05 14:30:00", want},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.in, got)
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "2024-13-40T00:00:00Z"} {
		_, err := ParseTimestamp(in)
		assert.Error(t, err, in)
	}
}

func TestParseTransaction(t *testing.T) {
	tx, err := ParseTransaction(RawTransaction{
		ID: "t1", SellerID: "s1", BuyerID: "b1", Amount: 12.5,
		Status: "Completed", Timestamp: "2024-01-02T03:04:05Z", DeliveryTimeDays: intPtr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, 3, *tx.DeliveryTimeDays)
	assert.Equal(t, 2024, tx.Timestamp.Year())
}

func TestParseTransaction_MalformedTimestamp(t *testing.T) {
	_, err := ParseTransaction(RawTransaction{ID: "t9", Status: "completed", Timestamp: "not-a-date"})
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "transaction", pe.Kind)
	assert.Equal(t, "t9", pe.ID)
	assert.Equal(t, "timestamp", pe.Field)
	assert.Equal(t, "not-a-date", pe.Value)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestParseTransaction_BadStatusAndDelivery(t *testing.T) {
	_, err := ParseTransaction(RawTransaction{ID: "t1", Status: "lost", Timestamp: "2024-01-02"})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "status", pe.Field)

	_, err = ParseTransaction(RawTransaction{ID: "t2", Status: "completed", Timestamp: "2024-01-02", DeliveryTimeDays: intPtr(-1)})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "delivery_time_days", pe.Field)
}

func TestParseReview(t *testing.T) {
	r, err := ParseReview(RawReview{ID: "r1", SellerID: "s1", Rating: 5, Text: "Great", Timestamp: "2024-01-02T00:00:00"})
	require.NoError(t, err)
	assert.Equal(t, 5, r.Rating)

	_, err = ParseReview(RawReview{ID: "r2", Rating: 6, Timestamp: "2024-01-02"})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "rating", pe.Field)

	_, err = ParseReview(RawReview{ID: "r3", Rating: 4, Timestamp: "02/01/2024"})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "review", pe.Kind)
	assert.Equal(t, "timestamp", pe.Field)
}

func TestParseTransactions_DropsBadRecordsAndContinues(t *testing.T) {
	raw := []RawTransaction{
		{ID: "a", Status: "completed", Timestamp: "2024-01-01T00:00:00Z"},
		{ID: "b", Status: "completed", Timestamp: "garbage"},
		{ID: "c", Status: "refunded", Timestamp: "2024-01-03T00:00:00Z"},
	}
	txns, errs := ParseTransactions(raw)
	require.Len(t, txns, 2)
	assert.Equal(t, "a", txns[0].ID)
	assert.Equal(t, "c", txns[1].ID)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `"b"`)
}

func TestParseReviews_DropsBadRecords(t *testing.T) {
	reviews, errs := ParseReviews([]RawReview{
		{ID: "a", Rating: 4, Timestamp: "2024-01-01"},
		{ID: "b", Rating: 4, Timestamp: ""},
	})
	assert.Len(t, reviews, 1)
	assert.Len(t, errs, 1)
}
