package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/codyseavey/pokefolio/internal/config"
	"github.com/codyseavey/pokefolio/internal/database"
	"github.com/codyseavey/pokefolio/internal/logger"
	"github.com/codyseavey/pokefolio/internal/services"
)

// env is what every subcommand needs: config, a migrated store and the price source
type env struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *gorm.DB
	store  *database.Store
	source *services.PokemonTCGService

	restoreGlobals func()
}

func openEnv() (*env, error) {
	log, err := logger.New()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	// migrations log through zap.L()
	restore := zap.ReplaceGlobals(log)

	cfg, err := config.Load()
	if err != nil {
		restore()
		return nil, err
	}

	db, err := database.Initialize(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		restore()
		return nil, err
	}

	store, err := database.NewStore(db, cfg.Tracker.Location)
	if err != nil {
		_ = database.Close(db)
		restore()
		return nil, err
	}

	return &env{
		cfg:    cfg,
		log:    log,
		db:     db,
		store:  store,
		source: services.NewPokemonTCGService(cfg.PokemonTCG.APIKey, cfg.PokemonTCG.BaseURL, cfg.PokemonTCG.RequestsPerSecond),

		restoreGlobals: restore,
	}, nil
}

func (e *env) tracker(maxAttempts int) (*services.PriceTracker, error) {
	tc := services.TrackerConfig{
		MaxAttempts:  e.cfg.Tracker.MaxAttempts,
		RetryDelay:   e.cfg.Tracker.RetryDelay,
		RequestDelay: e.cfg.Tracker.RequestDelay,
		Location:     e.cfg.Tracker.Location,
		Schedule:     e.cfg.Tracker.Schedule,
	}
	if maxAttempts > 0 {
		tc.MaxAttempts = maxAttempts
	}
	return services.NewPriceTracker(e.store, e.source, tc, e.log)
}

func (e *env) close() {
	_ = e.log.Sync()
	_ = database.Close(e.db)
	e.restoreGlobals()
}
