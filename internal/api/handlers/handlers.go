package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codyseavey/pokefolio/internal/database"
	"github.com/codyseavey/pokefolio/internal/models"
	"github.com/codyseavey/pokefolio/internal/services"
)

// UserIDHeader carries the authenticated user id, set by the auth proxy in front of the API
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// Store is the persistence the handlers read and write
type Store interface {
	GetCard(ctx context.Context, id string) (*models.Card, error)
	GetAllPortfolioCards(ctx context.Context, userID string) ([]models.PortfolioCard, error)
	CreateHolding(ctx context.Context, holding *models.PortfolioHolding) error
	UpdateHolding(ctx context.Context, id uint, userID string, req models.UpdateHoldingRequest) (*models.PortfolioHolding, error)
	DeleteHolding(ctx context.Context, id uint, userID string) error
	GetCardPriceHistory(ctx context.Context, cardID string, since time.Time) ([]models.CardPriceHistory, error)
	GetPortfolioValueHistory(ctx context.Context, userID string, since time.Time) ([]models.PortfolioValueHistory, error)
}

// PriceUpdater is the price tracker as seen by the API
type PriceUpdater interface {
	TryRunCycle(ctx context.Context, trigger services.Trigger) (bool, error)
	Status() services.TrackerStatus
	UpdateCard(ctx context.Context, cardID string) (*models.Card, error)
}

// RequireUser rejects requests without a user id header
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserIDHeader + " header"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// respondError maps store and upstream errors onto HTTP statuses
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var validationErr *database.ValidationError
	var fetchErr *services.FetchError

	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
	case errors.As(err, &fetchErr):
		logger.Warn("Upstream fetch failed", zap.String("card_id", fetchErr.CardID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "price source unavailable"})
	default:
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
