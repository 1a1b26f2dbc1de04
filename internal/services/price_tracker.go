package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/codyseavey/pokefolio/internal/metrics"
	"github.com/codyseavey/pokefolio/internal/models"
)

// Defaults for the price tracker
const (
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = 5 * time.Minute
	DefaultRequestDelay = 100 * time.Millisecond
	DefaultTimezone     = "America/New_York"
)

// DefaultSchedule is the local time of day of each recurring run
var DefaultSchedule = []string{"08:00", "13:00", "20:00"}

// Trigger names the entry point that started a cycle
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// ErrCycleRunning is returned when a trigger is dropped because a cycle is in flight
var ErrCycleRunning = errors.New("price update cycle already running")

// PortfolioStore is the persistence the tracker needs
type PortfolioStore interface {
	GetAllUniqueCardIDs(ctx context.Context) ([]string, error)
	GetAllUsersWithPortfolios(ctx context.Context) ([]string, error)
	GetAllPortfolioCards(ctx context.Context, userID string) ([]models.PortfolioCard, error)
	SaveCard(ctx context.Context, card *models.Card) error
	RecordCardPrice(ctx context.Context, cardID string, price decimal.Decimal) error
	RecordPortfolioValue(ctx context.Context, userID string, totalValue decimal.Decimal) error
	BatchUpdatePortfolioCardPrices(ctx context.Context, updates []models.HoldingPriceUpdate) (int, error)
}

// CardSource is the upstream price source
type CardSource interface {
	GetCardByID(ctx context.Context, id string) (*CardData, error)
	GetCardPrice(card *CardData) decimal.Decimal
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// TrackerConfig configures the retry policy and schedule
type TrackerConfig struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	RequestDelay time.Duration
	Location     *time.Location
	Schedule     []string // "HH:MM" in Location
}

// DefaultTrackerConfig returns the production defaults in the given location
func DefaultTrackerConfig(loc *time.Location) TrackerConfig {
	return TrackerConfig{
		MaxAttempts:  DefaultMaxAttempts,
		RetryDelay:   DefaultRetryDelay,
		RequestDelay: DefaultRequestDelay,
		Location:     loc,
		Schedule:     append([]string(nil), DefaultSchedule...),
	}
}

// AttemptError reports the cards that failed during one attempt
type AttemptError struct {
	Attempt int
	Failed  []string
	Total   int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d: %d of %d cards failed", e.Attempt, len(e.Failed), e.Total)
}

// TrackerStatus is a point-in-time view of the tracker
type TrackerStatus struct {
	Running         bool       `json:"running"`
	LastTrigger     Trigger    `json:"last_trigger,omitempty"`
	LastStarted     *time.Time `json:"last_started,omitempty"`
	LastFinished    *time.Time `json:"last_finished,omitempty"`
	LastSuccess     *time.Time `json:"last_success,omitempty"`
	LastResult      string     `json:"last_result,omitempty"` // "success" or "failed"
	LastAttempts    int        `json:"last_attempts"`
	LastFailedCards []string   `json:"last_failed_cards,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
	MaxAttempts     int        `json:"max_attempts"`
	Schedule        []string   `json:"schedule"`
	Timezone        string     `json:"timezone"`
}

// PriceTracker runs price update cycles on a fixed daily schedule or on demand.
// At most one cycle runs at a time; triggers that arrive while a cycle is
// running are dropped, not queued.
type PriceTracker struct {
	store  PortfolioStore
	source CardSource
	cfg    TrackerConfig
	times  []scheduleTime
	logger *zap.Logger
	sleep  SleepFunc
	now    func() time.Time

	running atomic.Bool

	mu     sync.RWMutex
	cron   *cron.Cron
	status TrackerStatus
}

// TrackerOption customizes a PriceTracker
type TrackerOption func(*PriceTracker)

// WithSleep replaces the delay function used between fetches and attempts
func WithSleep(fn SleepFunc) TrackerOption {
	return func(t *PriceTracker) { t.sleep = fn }
}

// WithClock replaces the time source used for snapshots and status
func WithClock(now func() time.Time) TrackerOption {
	return func(t *PriceTracker) { t.now = now }
}

// NewPriceTracker validates cfg and builds a tracker in the Idle state
func NewPriceTracker(store PortfolioStore, source CardSource, cfg TrackerConfig, logger *zap.Logger, opts ...TrackerOption) (*PriceTracker, error) {
	if store == nil || source == nil {
		return nil, errors.New("price tracker requires a store and a card source")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.RetryDelay < 0 || cfg.RequestDelay < 0 {
		return nil, errors.New("delays must not be negative")
	}
	if cfg.Location == nil {
		return nil, errors.New("price tracker requires a reference timezone")
	}
	times, err := parseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &PriceTracker{
		store:  store,
		source: source,
		cfg:    cfg,
		times:  times,
		logger: logger.Named("price_tracker"),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.status = TrackerStatus{
		MaxAttempts: cfg.MaxAttempts,
		Schedule:    append([]string(nil), cfg.Schedule...),
		Timezone:    cfg.Location.String(),
	}
	return t, nil
}

// Start registers the daily runs. Scheduled cycles use ctx, so cancelling it
// cuts short any retry wait during shutdown.
func (t *PriceTracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cron != nil {
		return errors.New("price tracker already started")
	}

	c := cron.New(cron.WithLocation(t.cfg.Location))
	for _, st := range t.times {
		spec := fmt.Sprintf("%d %d * * *", st.minute, st.hour)
		if _, err := c.AddFunc(spec, func() { t.runScheduled(ctx) }); err != nil {
			return fmt.Errorf("schedule %s: %w", st, err)
		}
	}
	c.Start()
	t.cron = c

	t.logger.Info("Price tracker started",
		zap.Strings("schedule", t.cfg.Schedule),
		zap.String("timezone", t.cfg.Location.String()),
		zap.Int("max_attempts", t.cfg.MaxAttempts),
		zap.Duration("retry_delay", t.cfg.RetryDelay))
	return nil
}

// Stop removes the schedule and waits for an in-flight scheduled cycle to return
func (t *PriceTracker) Stop() {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	t.logger.Info("Price tracker stopped")
}

// TriggerManual runs a full cycle synchronously and reports whether it succeeded.
// Returns false immediately if a cycle is already running.
func (t *PriceTracker) TriggerManual(ctx context.Context) bool {
	return t.RunCycle(ctx, TriggerManual)
}

// RunCycle runs one cycle and reports success. It never returns an error:
// failures are logged and reflected in Status.
func (t *PriceTracker) RunCycle(ctx context.Context, trigger Trigger) bool {
	ok, _ := t.TryRunCycle(ctx, trigger)
	return ok
}

// TryRunCycle is RunCycle but also returns ErrCycleRunning when the trigger was dropped
func (t *PriceTracker) TryRunCycle(ctx context.Context, trigger Trigger) (bool, error) {
	if !t.running.CompareAndSwap(false, true) {
		metrics.TrackerTriggersDropped.WithLabelValues(string(trigger)).Inc()
		t.logger.Warn("Price update already in progress, dropping trigger", zap.String("trigger", string(trigger)))
		return false, ErrCycleRunning
	}
	defer t.running.Store(false)

	return t.runCycle(ctx, trigger), nil
}

// IsRunning reports whether a cycle is in flight
func (t *PriceTracker) IsRunning() bool {
	return t.running.Load()
}

// Status returns a copy of the tracker state
func (t *PriceTracker) Status() TrackerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := t.status
	status.Running = t.running.Load()
	status.LastFailedCards = append([]string(nil), t.status.LastFailedCards...)
	status.Schedule = append([]string(nil), t.status.Schedule...)

	if t.cron != nil {
		var next time.Time
		for _, entry := range t.cron.Entries() {
			if next.IsZero() || (!entry.Next.IsZero() && entry.Next.Before(next)) {
				next = entry.Next
			}
		}
		if !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// UpdateCard fetches one card outside of a cycle, refreshing its cached
// snapshot and today's history row. It does not take the cycle lock.
func (t *PriceTracker) UpdateCard(ctx context.Context, cardID string) (*models.Card, error) {
	card, _, err := t.fetchAndRecord(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return card, nil
}

func (t *PriceTracker) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	t.RunCycle(ctx, TriggerSchedule)
}

func (t *PriceTracker) runCycle(ctx context.Context, trigger Trigger) bool {
	cycleID := uuid.NewString()
	log := t.logger.With(zap.String("cycle_id", cycleID), zap.String("trigger", string(trigger)))
	start := t.now()

	metrics.TrackerRunning.Set(1)
	defer metrics.TrackerRunning.Set(0)

	t.mu.Lock()
	t.status.LastTrigger = trigger
	t.status.LastStarted = &start
	t.status.LastAttempts = 0
	t.status.LastFailedCards = nil
	t.mu.Unlock()

	log.Info("Price update cycle started")

	success := false
	attempts := 0
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		metrics.TrackerAttemptsTotal.Inc()

		err := t.runAttempt(ctx, log.With(zap.Int("attempt", attempt)), attempt)
		if err == nil {
			success = true
			break
		}

		if attempt == t.cfg.MaxAttempts {
			log.Error("Price update failed after max attempts",
				zap.Int("max_attempts", t.cfg.MaxAttempts), zap.Error(err))
			break
		}

		log.Warn("Price update attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", t.cfg.MaxAttempts),
			zap.Duration("retry_in", t.cfg.RetryDelay),
			zap.Error(err))

		if err := t.sleep(ctx, t.cfg.RetryDelay); err != nil {
			log.Warn("Retry wait interrupted, abandoning cycle", zap.Error(err))
			break
		}
	}

	finished := t.now()
	result := "failed"
	if success {
		result = "success"
		metrics.LastSuccessTimestamp.Set(float64(finished.Unix()))
	}
	metrics.TrackerCyclesTotal.WithLabelValues(result).Inc()
	metrics.TrackerCycleDuration.Observe(finished.Sub(start).Seconds())

	t.mu.Lock()
	t.status.LastFinished = &finished
	t.status.LastResult = result
	t.status.LastAttempts = attempts
	if success {
		t.status.LastSuccess = &finished
	}
	t.mu.Unlock()

	log.Info("Price update cycle finished",
		zap.String("result", result),
		zap.Int("attempts", attempts),
		zap.Duration("duration", finished.Sub(start)))
	return success
}

// runAttempt fetches every tracked card and, only when all of them succeed,
// values every portfolio. Cards that did succeed keep their history rows even
// when the attempt as a whole fails.
func (t *PriceTracker) runAttempt(ctx context.Context, log *zap.Logger, attempt int) error {
	cardIDs, err := t.store.GetAllUniqueCardIDs(ctx)
	if err != nil {
		return fmt.Errorf("list tracked cards: %w", err)
	}
	metrics.TrackedCards.Set(float64(len(cardIDs)))

	if len(cardIDs) == 0 {
		log.Info("No tracked cards, nothing to update")
		return nil
	}

	log.Info("Fetching prices", zap.Int("cards", len(cardIDs)))

	prices := make(models.PriceMap, len(cardIDs))
	var failed []string
	for i, cardID := range cardIDs {
		if i > 0 {
			if err := t.sleep(ctx, t.cfg.RequestDelay); err != nil {
				return fmt.Errorf("request delay: %w", err)
			}
		}

		_, price, err := t.fetchAndRecord(ctx, cardID)
		if err != nil {
			metrics.CardFetchFailuresTotal.Inc()
			log.Warn("Failed to update card price", zap.String("card_id", cardID), zap.Error(err))
			failed = append(failed, cardID)
			continue
		}
		prices[cardID] = price
	}

	t.mu.Lock()
	t.status.LastFailedCards = append([]string(nil), failed...)
	t.mu.Unlock()

	if len(failed) > 0 {
		return &AttemptError{Attempt: attempt, Failed: failed, Total: len(cardIDs)}
	}

	log.Info("All card prices fetched", zap.Int("cards", len(prices)))
	t.valueAllPortfolios(ctx, log, prices)
	return nil
}

// fetchAndRecord fetches one card, refreshes its cache row and writes today's
// price history. A cache write failure is logged but does not fail the card.
func (t *PriceTracker) fetchAndRecord(ctx context.Context, cardID string) (*models.Card, decimal.Decimal, error) {
	data, err := t.source.GetCardByID(ctx, cardID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if data == nil {
		return nil, decimal.Zero, &FetchError{CardID: cardID, Err: errors.New("empty response")}
	}

	price := t.source.GetCardPrice(data)
	card := ToCard(data, price, t.now())
	card.ID = cardID

	if err := t.store.SaveCard(ctx, &card); err != nil {
		t.logger.Warn("Failed to refresh cached card", zap.String("card_id", cardID), zap.Error(err))
	}

	if err := t.store.RecordCardPrice(ctx, cardID, price); err != nil {
		return nil, decimal.Zero, err
	}
	metrics.CardPricesRecordedTotal.Inc()

	return &card, price, nil
}

// valueAllPortfolios is best effort: a failing user is logged and skipped
func (t *PriceTracker) valueAllPortfolios(ctx context.Context, log *zap.Logger, prices models.PriceMap) {
	users, err := t.store.GetAllUsersWithPortfolios(ctx)
	if err != nil {
		metrics.ValuationFailuresTotal.Inc()
		log.Error("Failed to list users with portfolios", zap.Error(err))
		return
	}

	valued := 0
	for _, userID := range users {
		if err := t.valuePortfolio(ctx, userID, prices); err != nil {
			metrics.ValuationFailuresTotal.Inc()
			log.Error("Failed to value portfolio", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		valued++
	}
	metrics.PortfoliosValued.Set(float64(valued))

	log.Info("Portfolio valuation complete", zap.Int("users", len(users)), zap.Int("valued", valued))
}

func (t *PriceTracker) valuePortfolio(ctx context.Context, userID string, prices models.PriceMap) error {
	holdings, err := t.store.GetAllPortfolioCards(ctx, userID)
	if err != nil {
		return err
	}

	result := ValuePortfolio(userID, holdings, prices)

	var errs []error
	if _, err := t.store.BatchUpdatePortfolioCardPrices(ctx, result.Updates); err != nil {
		errs = append(errs, fmt.Errorf("update holding prices: %w", err))
	}
	if err := t.store.RecordPortfolioValue(ctx, userID, result.TotalValue); err != nil {
		errs = append(errs, fmt.Errorf("record portfolio value: %w", err))
	}
	return errors.Join(errs...)
}

type scheduleTime struct {
	hour   int
	minute int
}

func (s scheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", s.hour, s.minute)
}

// parseSchedule parses "HH:MM" entries. At least one entry is required.
func parseSchedule(entries []string) ([]scheduleTime, error) {
	if len(entries) == 0 {
		return nil, errors.New("schedule must contain at least one time")
	}

	times := make([]scheduleTime, 0, len(entries))
	for _, entry := range entries {
		hourStr, minuteStr, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			return nil, fmt.Errorf("invalid schedule time %q: want HH:MM", entry)
		}
		hour, err := strconv.Atoi(hourStr)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid schedule time %q: bad hour", entry)
		}
		minute, err := strconv.Atoi(minuteStr)
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid schedule time %q: bad minute", entry)
		}
		times = append(times, scheduleTime{hour: hour, minute: minute})
	}
	return times, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
