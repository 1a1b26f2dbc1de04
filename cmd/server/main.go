package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codyseavey/pokefolio/internal/api"
	"github.com/codyseavey/pokefolio/internal/config"
	"github.com/codyseavey/pokefolio/internal/database"
	"github.com/codyseavey/pokefolio/internal/logger"
	"github.com/codyseavey/pokefolio/internal/services"
)

func main() {
	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := database.Initialize(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	store, err := database.NewStore(db, cfg.Tracker.Location)
	if err != nil {
		log.Fatal("Failed to create store", zap.Error(err))
	}

	pokemonTCG := services.NewPokemonTCGService(cfg.PokemonTCG.APIKey, cfg.PokemonTCG.BaseURL, cfg.PokemonTCG.RequestsPerSecond)

	tracker, err := services.NewPriceTracker(store, pokemonTCG, services.TrackerConfig{
		MaxAttempts:  cfg.Tracker.MaxAttempts,
		RetryDelay:   cfg.Tracker.RetryDelay,
		RequestDelay: cfg.Tracker.RequestDelay,
		Location:     cfg.Tracker.Location,
		Schedule:     cfg.Tracker.Schedule,
	}, log)
	if err != nil {
		log.Fatal("Failed to create price tracker", zap.Error(err))
	}

	// Create a cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracker.Enabled {
		if err := tracker.Start(ctx); err != nil {
			log.Fatal("Failed to start price tracker", zap.Error(err))
		}
	} else {
		log.Info("Price tracker schedule disabled; manual updates only")
	}

	if os.Getenv("APP_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(api.RouterConfig{
		Store:          store,
		Updater:        tracker,
		Logger:         log,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		BaseContext:    ctx,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Cancelling ends any retry wait so the scheduled cycle can return
	cancel()
	tracker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
