package api

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codyseavey/pokefolio/internal/api/handlers"
	"github.com/codyseavey/pokefolio/internal/metrics"
)

// RouterConfig holds the dependencies of the HTTP API
type RouterConfig struct {
	Store          handlers.Store
	Updater        handlers.PriceUpdater
	Logger         *zap.Logger
	AllowedOrigins []string
	// BaseContext is cancelled on shutdown; long-running manual cycles use it
	BaseContext context.Context
}

func SetupRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.UserIDHeader}
	corsConfig.AllowCredentials = false
	router.Use(cors.New(corsConfig))

	cardHandler := handlers.NewCardHandler(cfg.Store, cfg.Updater, logger)
	portfolioHandler := handlers.NewPortfolioHandler(cfg.Store, cfg.Updater, logger)
	priceHandler := handlers.NewPriceHandler(cfg.Updater, logger, cfg.BaseContext)

	api := router.Group("/api")
	{
		cards := api.Group("/cards")
		{
			cards.GET("/:id", cardHandler.GetCard)
			cards.GET("/:id/history", cardHandler.GetPriceHistory)
			cards.POST("/:id/refresh-price", priceHandler.RefreshCardPrice)
		}

		portfolio := api.Group("/portfolio", handlers.RequireUser())
		{
			portfolio.GET("", portfolioHandler.GetPortfolio)
			portfolio.POST("", portfolioHandler.AddHolding)
			portfolio.GET("/history", portfolioHandler.GetValueHistory)
			portfolio.PUT("/:id", portfolioHandler.UpdateHolding)
			portfolio.DELETE("/:id", portfolioHandler.DeleteHolding)
		}

		prices := api.Group("/prices")
		{
			prices.GET("/status", priceHandler.GetPriceStatus)
			prices.POST("/update", priceHandler.TriggerUpdate)
		}
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
