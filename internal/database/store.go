package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/pokefolio/internal/models"
)

const (
	// cardCacheSize bounds the in-memory card snapshot cache
	cardCacheSize = 512

	// defaultCardCacheTTL bounds how long a snapshot written by another
	// process (pricectl, a second replica) can be served stale
	defaultCardCacheTTL = 30 * time.Second

	// batchUpdateConcurrency is the number of holding rows updated in parallel
	batchUpdateConcurrency = 8
)

// Store is the persistence gateway for cards, holdings and the two
// day-bucketed history tables.
type Store struct {
	db    *gorm.DB
	loc   *time.Location
	now   func() time.Time
	cards *expirable.LRU[string, models.Card]
}

// StoreOption customizes a Store
type StoreOption func(*storeOptions)

type storeOptions struct {
	cardCacheTTL time.Duration
}

// WithCardCacheTTL sets how long a card snapshot is served from memory
func WithCardCacheTTL(ttl time.Duration) StoreOption {
	return func(o *storeOptions) { o.cardCacheTTL = ttl }
}

// NewStore wraps db. Day buckets for history rows are computed in loc.
func NewStore(db *gorm.DB, loc *time.Location, opts ...StoreOption) (*Store, error) {
	if loc == nil {
		return nil, errors.New("store requires a reference timezone")
	}
	o := storeOptions{cardCacheTTL: defaultCardCacheTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cardCacheTTL <= 0 {
		return nil, fmt.Errorf("card cache ttl must be positive, got %s", o.cardCacheTTL)
	}
	return &Store{
		db:    db,
		loc:   loc,
		now:   time.Now,
		cards: expirable.NewLRU[string, models.Card](cardCacheSize, nil, o.cardCacheTTL),
	}, nil
}

// Location returns the reference timezone used for day buckets
func (s *Store) Location() *time.Location {
	return s.loc
}

// Today returns the current day bucket in the reference timezone
func (s *Store) Today() string {
	return models.DayKey(s.now(), s.loc)
}

// GetCard returns the cached snapshot for a card
func (s *Store) GetCard(ctx context.Context, id string) (*models.Card, error) {
	if card, ok := s.cards.Get(id); ok {
		return &card, nil
	}

	var card models.Card
	err := s.db.WithContext(ctx).First(&card, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get card %s: %w", id, err)
	}

	s.cards.Add(card.ID, card)
	return &card, nil
}

// SaveCard inserts or refreshes a card snapshot
func (s *Store) SaveCard(ctx context.Context, card *models.Card) error {
	if card.ID == "" {
		return &ValidationError{Field: "id", Message: "card id is required"}
	}
	card.CurrentPrice = card.CurrentPrice.Round(2)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "set_name", "card_number", "image_url", "image_url_large",
			"current_price", "last_updated", "updated_at",
		}),
	}).Create(card).Error
	if err != nil {
		s.cards.Remove(card.ID)
		return fmt.Errorf("save card %s: %w", card.ID, err)
	}

	s.cards.Add(card.ID, *card)
	return nil
}

// GetAllPortfolioCards returns a user's holdings joined with the cached card
func (s *Store) GetAllPortfolioCards(ctx context.Context, userID string) ([]models.PortfolioCard, error) {
	var holdings []models.PortfolioCard
	err := s.db.WithContext(ctx).
		Table("portfolio_holdings AS h").
		Select(`
			h.id, h.user_id, h.card_id, h.quantity, h.purchase_price, h.current_price, h.added_at,
			COALESCE(c.name, '') AS name,
			COALESCE(c.set_name, '') AS set_name,
			COALESCE(c.card_number, '') AS card_number,
			COALESCE(c.image_url, '') AS image_url,
			c.last_updated
		`).
		Joins("LEFT JOIN cards c ON c.id = h.card_id").
		Where("h.user_id = ?", userID).
		Order("h.id ASC").
		Scan(&holdings).Error
	if err != nil {
		return nil, fmt.Errorf("get portfolio for user %s: %w", userID, err)
	}
	return holdings, nil
}

// GetHolding returns one holding owned by userID
func (s *Store) GetHolding(ctx context.Context, id uint, userID string) (*models.PortfolioHolding, error) {
	var holding models.PortfolioHolding
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get holding %d: %w", id, err)
	}
	return &holding, nil
}

// CreateHolding adds a holding for holding.UserID
func (s *Store) CreateHolding(ctx context.Context, holding *models.PortfolioHolding) error {
	if holding.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user id is required"}
	}
	if holding.CardID == "" {
		return &ValidationError{Field: "card_id", Message: "card id is required"}
	}
	if err := validateQuantity(holding.Quantity); err != nil {
		return err
	}
	if err := validatePurchasePrice(holding.PurchasePrice); err != nil {
		return err
	}

	holding.PurchasePrice = holding.PurchasePrice.Round(2)
	holding.CurrentPrice = holding.CurrentPrice.Round(2)
	if holding.AddedAt.IsZero() {
		holding.AddedAt = s.now()
	}

	if err := s.db.WithContext(ctx).Create(holding).Error; err != nil {
		return fmt.Errorf("create holding: %w", err)
	}
	return nil
}

// UpdateHolding edits quantity and/or purchase price of a holding owned by userID.
// Returns ErrNotFound when the holding does not exist or belongs to another user.
func (s *Store) UpdateHolding(ctx context.Context, id uint, userID string, req models.UpdateHoldingRequest) (*models.PortfolioHolding, error) {
	updates := map[string]any{}
	if req.Quantity != nil {
		if err := validateQuantity(*req.Quantity); err != nil {
			return nil, err
		}
		updates["quantity"] = *req.Quantity
	}
	if req.PurchasePrice != nil {
		if err := validatePurchasePrice(*req.PurchasePrice); err != nil {
			return nil, err
		}
		updates["purchase_price"] = req.PurchasePrice.Round(2)
	}

	if len(updates) > 0 {
		updates["updated_at"] = s.now()
		result := s.db.WithContext(ctx).
			Model(&models.PortfolioHolding{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("update holding %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}

	return s.GetHolding(ctx, id, userID)
}

// DeleteHolding removes a holding owned by userID.
// Returns ErrNotFound when nothing matched (id, userID).
func (s *Store) DeleteHolding(ctx context.Context, id uint, userID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.PortfolioHolding{})
	if result.Error != nil {
		return fmt.Errorf("delete holding %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordCardPrice writes today's price for a card, replacing any price
// already recorded for the same day.
func (s *Store) RecordCardPrice(ctx context.Context, cardID string, price decimal.Decimal) error {
	now := s.now()
	row := models.CardPriceHistory{
		CardID:     cardID,
		Day:        models.DayKey(now, s.loc),
		Price:      price.Round(2),
		RecordedAt: now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "card_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "recorded_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record price for card %s: %w", cardID, err)
	}
	return nil
}

// RecordPortfolioValue writes today's total value for a user, replacing any
// value already recorded for the same day.
func (s *Store) RecordPortfolioValue(ctx context.Context, userID string, totalValue decimal.Decimal) error {
	now := s.now()
	row := models.PortfolioValueHistory{
		UserID:     userID,
		Day:        models.DayKey(now, s.loc),
		TotalValue: totalValue.Round(2),
		RecordedAt: now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_value", "recorded_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record portfolio value for user %s: %w", userID, err)
	}
	return nil
}

// GetCardPriceHistory returns a card's daily prices recorded at or after since,
// oldest first. A zero since returns everything.
func (s *Store) GetCardPriceHistory(ctx context.Context, cardID string, since time.Time) ([]models.CardPriceHistory, error) {
	var rows []models.CardPriceHistory
	query := s.db.WithContext(ctx).Where("card_id = ?", cardID).Order("day ASC")
	if !since.IsZero() {
		query = query.Where("day >= ?", models.DayKey(since, s.loc))
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get price history for card %s: %w", cardID, err)
	}
	return rows, nil
}

// GetPortfolioValueHistory returns a user's daily totals at or after since, oldest first
func (s *Store) GetPortfolioValueHistory(ctx context.Context, userID string, since time.Time) ([]models.PortfolioValueHistory, error) {
	var rows []models.PortfolioValueHistory
	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("day ASC")
	if !since.IsZero() {
		query = query.Where("day >= ?", models.DayKey(since, s.loc))
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get value history for user %s: %w", userID, err)
	}
	return rows, nil
}

// GetAllUniqueCardIDs lists every card referenced by at least one holding
func (s *Store) GetAllUniqueCardIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.PortfolioHolding{}).
		Distinct("card_id").
		Order("card_id ASC").
		Pluck("card_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list tracked card ids: %w", err)
	}
	return ids, nil
}

// GetAllUsersWithPortfolios lists every user owning at least one holding
func (s *Store) GetAllUsersWithPortfolios(ctx context.Context) ([]string, error) {
	var users []string
	err := s.db.WithContext(ctx).
		Model(&models.PortfolioHolding{}).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, fmt.Errorf("list users with portfolios: %w", err)
	}
	return users, nil
}

// BatchUpdatePortfolioCardPrices sets the current price on many holdings.
// Each row is its own statement scoped by (id, user_id), so one failing row
// leaves the others untouched. Returns the number of rows updated and the
// joined per-row errors.
func (s *Store) BatchUpdatePortfolioCardPrices(ctx context.Context, updates []models.HoldingPriceUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		updated int
		errs    []error
	)
	now := s.now()

	var g errgroup.Group
	g.SetLimit(batchUpdateConcurrency)
	for _, u := range updates {
		g.Go(func() error {
			result := s.db.WithContext(ctx).
				Model(&models.PortfolioHolding{}).
				Where("id = ? AND user_id = ?", u.HoldingID, u.UserID).
				Updates(map[string]any{
					"current_price": u.CurrentPrice.Round(2),
					"updated_at":    now,
				})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case result.Error != nil:
				errs = append(errs, fmt.Errorf("holding %d: %w", u.HoldingID, result.Error))
			case result.RowsAffected == 0:
				errs = append(errs, fmt.Errorf("holding %d for user %s: %w", u.HoldingID, u.UserID, ErrNotFound))
			default:
				updated++
			}
			return nil
		})
	}
	_ = g.Wait()

	return updated, errors.Join(errs...)
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return &ValidationError{Field: "quantity", Message: "quantity must be at least 1"}
	}
	if quantity > models.MaxQuantity {
		return &ValidationError{Field: "quantity", Message: fmt.Sprintf("quantity exceeds maximum allowed (%d)", models.MaxQuantity)}
	}
	return nil
}

func validatePurchasePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return &ValidationError{Field: "purchase_price", Message: "purchase price must not be negative"}
	}
	return nil
}
