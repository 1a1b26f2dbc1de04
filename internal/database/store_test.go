package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codyseavey/pokefolio/internal/models"
)

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()

	db, err := Initialize(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data not available: %v", err)
	}

	store, err := NewStore(db, loc)
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2024, 6, 10, 12, 0, 0, 0, loc)}
	store.now = clock.Now
	return store, clock
}

func seedCard(t *testing.T, s *Store, id, price string) {
	t.Helper()
	now := s.now()
	require.NoError(t, s.SaveCard(context.Background(), &models.Card{
		ID:           id,
		Name:         "Card " + id,
		SetName:      "Base",
		CurrentPrice: decimal.RequireFromString(price),
		LastUpdated:  &now,
	}))
}

func seedHolding(t *testing.T, s *Store, userID, cardID string, qty int) *models.PortfolioHolding {
	t.Helper()
	h := &models.PortfolioHolding{
		UserID:        userID,
		CardID:        cardID,
		Quantity:      qty,
		PurchasePrice: decimal.RequireFromString("1.50"),
	}
	require.NoError(t, s.CreateHolding(context.Background(), h))
	return h
}

func TestNewStoreRequiresLocation(t *testing.T) {
	_, err := NewStore(nil, nil)
	assert.Error(t, err)
}

func TestSaveAndGetCard(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	seedCard(t, s, "base1-4", "12.345")

	card, err := s.GetCard(ctx, "base1-4")
	require.NoError(t, err)
	assert.Equal(t, "Card base1-4", card.Name)
	assert.Equal(t, "12.35", card.CurrentPrice.StringFixed(2))

	// Refresh updates the snapshot in place
	card.CurrentPrice = decimal.RequireFromString("20")
	card.Name = "Charizard"
	require.NoError(t, s.SaveCard(ctx, card))

	s.cards.Purge()
	reloaded, err := s.GetCard(ctx, "base1-4")
	require.NoError(t, err)
	assert.Equal(t, "Charizard", reloaded.Name)
	assert.Equal(t, "20.00", reloaded.CurrentPrice.StringFixed(2))

	var count int64
	s.db.Model(&models.Card{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestGetCardSeesWritesFromAnotherStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	open := func(ttl time.Duration) *Store {
		db, err := Initialize(DriverSQLite, path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = Close(db) })
		s, err := NewStore(db, time.UTC, WithCardCacheTTL(ttl))
		require.NoError(t, err)
		return s
	}
	server := open(50 * time.Millisecond)
	cli := open(time.Minute)

	seedCard(t, server, "base1-4", "1.00")
	card, err := server.GetCard(ctx, "base1-4")
	require.NoError(t, err)
	require.Equal(t, "1.00", card.CurrentPrice.StringFixed(2))

	// the cli process refreshes the price in the shared table
	seedCard(t, cli, "base1-4", "99.00")

	require.Eventually(t, func() bool {
		card, err := server.GetCard(ctx, "base1-4")
		return err == nil && card.CurrentPrice.StringFixed(2) == "99.00"
	}, 2*time.Second, 20*time.Millisecond, "server keeps serving the cached price")
}

func TestNewStoreRejectsNonPositiveCacheTTL(t *testing.T) {
	_, err := NewStore(nil, time.UTC, WithCardCacheTTL(0))
	assert.Error(t, err)
}

func TestGetCardNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetCard(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveCardRequiresID(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.SaveCard(context.Background(), &models.Card{Name: "No ID"})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestCreateHoldingValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedCard(t, s, "c1", "1")

	tests := []struct {
		name    string
		holding models.PortfolioHolding
		field   string
	}{
		{"zero quantity", models.PortfolioHolding{UserID: "u1", CardID: "c1", Quantity: 0}, "quantity"},
		{"negative quantity", models.PortfolioHolding{UserID: "u1", CardID: "c1", Quantity: -2}, "quantity"},
		{"too many", models.PortfolioHolding{UserID: "u1", CardID: "c1", Quantity: models.MaxQuantity + 1}, "quantity"},
		{"missing user", models.PortfolioHolding{CardID: "c1", Quantity: 1}, "user_id"},
		{"missing card", models.PortfolioHolding{UserID: "u1", Quantity: 1}, "card_id"},
		{"negative price", models.PortfolioHolding{UserID: "u1", CardID: "c1", Quantity: 1, PurchasePrice: decimal.NewFromInt(-1)}, "purchase_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.holding
			err := s.CreateHolding(ctx, &h)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestGetAllPortfolioCardsJoinsCard(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedCard(t, s, "c1", "10")
	seedHolding(t, s, "u1", "c1", 2)
	seedHolding(t, s, "u2", "c1", 5)

	holdings, err := s.GetAllPortfolioCards(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "Card c1", holdings[0].Name)
	assert.Equal(t, 2, holdings[0].Quantity)
	assert.Equal(t, "1.50", holdings[0].PurchasePrice.StringFixed(2))
	require.NotNil(t, holdings[0].LastUpdated)
	assert.True(t, holdings[0].LastUpdated.Equal(s.now()))
}

func TestUpdateHoldingScopedToUser(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedCard(t, s, "c1", "10")
	h := seedHolding(t, s, "u1", "c1", 2)

	qty := 4
	_, err := s.UpdateHolding(ctx, h.ID, "intruder", models.UpdateHoldingRequest{Quantity: &qty})
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := s.UpdateHolding(ctx, h.ID, "u1", models.UpdateHoldingRequest{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Quantity)

	zero := 0
	_, err = s.UpdateHolding(ctx, h.ID, "u1", models.UpdateHoldingRequest{Quantity: &zero})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestDeleteHoldingScopedToUser(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedCard(t, s, "c1", "10")
	h := seedHolding(t, s, "u1", "c1", 1)

	assert.ErrorIs(t, s.DeleteHolding(ctx, h.ID, "intruder"), ErrNotFound)
	_, err := s.GetHolding(ctx, h.ID, "u1")
	require.NoError(t, err, "holding should survive a delete by another user")

	require.NoError(t, s.DeleteHolding(ctx, h.ID, "u1"))
	assert.ErrorIs(t, s.DeleteHolding(ctx, h.ID, "u1"), ErrNotFound)

	// Card cache entry persists without any holdings
	_, err = s.GetCard(ctx, "c1")
	assert.NoError(t, err)
}

func TestRecordCardPriceOnePerDay(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	require.NoError(t, s.RecordCardPrice(ctx, "c1", decimal.RequireFromString("5.00")))
	clock.t = clock.t.Add(2 * time.Hour)
	require.NoError(t, s.RecordCardPrice(ctx, "c1", decimal.RequireFromString("7.25")))

	rows, err := s.GetCardPriceHistory(ctx, "c1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "7.25", rows[0].Price.StringFixed(2))
	assert.Equal(t, "2024-06-10", rows[0].Day)
}

func TestRecordCardPriceDayBoundaryInReferenceTimezone(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	// 11pm and 1am New York time share a UTC date but are different local days
	clock.t = time.Date(2024, 6, 10, 23, 0, 0, 0, s.loc)
	require.NoError(t, s.RecordCardPrice(ctx, "c1", decimal.NewFromInt(1)))
	clock.t = time.Date(2024, 6, 11, 1, 0, 0, 0, s.loc)
	require.NoError(t, s.RecordCardPrice(ctx, "c1", decimal.NewFromInt(2)))

	rows, err := s.GetCardPriceHistory(ctx, "c1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-06-10", rows[0].Day)
	assert.Equal(t, "2024-06-11", rows[1].Day)

	// 2am UTC on Jun 11 is still Jun 10 in New York
	clock.t = time.Date(2024, 6, 11, 2, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordCardPrice(ctx, "c2", decimal.NewFromInt(3)))
	rows, err = s.GetCardPriceHistory(ctx, "c2", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-06-10", rows[0].Day)
}

func TestRecordPortfolioValueOnePerDay(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	require.NoError(t, s.RecordPortfolioValue(ctx, "u1", decimal.NewFromInt(80)))
	require.NoError(t, s.RecordPortfolioValue(ctx, "u1", decimal.NewFromInt(95)))
	require.NoError(t, s.RecordPortfolioValue(ctx, "u2", decimal.NewFromInt(10)))

	rows, err := s.GetPortfolioValueHistory(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "95.00", rows[0].TotalValue.StringFixed(2))

	clock.t = clock.t.AddDate(0, 0, 1)
	require.NoError(t, s.RecordPortfolioValue(ctx, "u1", decimal.NewFromInt(100)))

	rows, err = s.GetPortfolioValueHistory(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// since filter excludes the first day
	rows, err = s.GetPortfolioValueHistory(ctx, "u1", clock.t)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "100.00", rows[0].TotalValue.StringFixed(2))
}

func TestGetAllUniqueCardIDsAndUsers(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	ids, err := s.GetAllUniqueCardIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	seedCard(t, s, "c1", "1")
	seedCard(t, s, "c2", "1")
	seedCard(t, s, "orphan", "1")
	seedHolding(t, s, "u2", "c2", 1)
	seedHolding(t, s, "u1", "c1", 1)
	seedHolding(t, s, "u1", "c2", 3)

	ids, err = s.GetAllUniqueCardIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	users, err := s.GetAllUsersWithPortfolios(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)
}

func TestBatchUpdatePortfolioCardPrices(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedCard(t, s, "c1", "1")
	seedCard(t, s, "c2", "1")
	a := seedHolding(t, s, "u1", "c1", 2)
	b := seedHolding(t, s, "u1", "c2", 3)
	other := seedHolding(t, s, "u2", "c1", 1)

	updated, err := s.BatchUpdatePortfolioCardPrices(ctx, []models.HoldingPriceUpdate{
		{HoldingID: a.ID, UserID: "u1", CurrentPrice: decimal.NewFromInt(10)},
		{HoldingID: b.ID, UserID: "u1", CurrentPrice: decimal.NewFromInt(20)},
		// wrong owner: must not touch u2's row
		{HoldingID: other.ID, UserID: "u1", CurrentPrice: decimal.NewFromInt(99)},
	})
	assert.Equal(t, 2, updated)
	assert.ErrorIs(t, err, ErrNotFound)

	holdings, err := s.GetAllPortfolioCards(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "10.00", holdings[0].CurrentPrice.StringFixed(2))
	assert.Equal(t, "20.00", holdings[1].CurrentPrice.StringFixed(2))

	untouched, err := s.GetHolding(ctx, other.ID, "u2")
	require.NoError(t, err)
	assert.True(t, untouched.CurrentPrice.IsZero())
}

func TestBatchUpdateEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	updated, err := s.BatchUpdatePortfolioCardPrices(context.Background(), nil)
	assert.NoError(t, err)
	assert.Zero(t, updated)
}

func TestMigrateIsRepeatable(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, Migrate(s.db))
	require.NoError(t, Migrate(s.db))
}

func TestBackfillHoldingPrices(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedCard(t, s, "c1", "4.20")
	h := seedHolding(t, s, "u1", "c1", 1)

	require.NoError(t, RunMigrations(s.db))

	got, err := s.GetHolding(ctx, h.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "4.20", got.CurrentPrice.StringFixed(2))
}
