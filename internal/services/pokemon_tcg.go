package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/codyseavey/pokefolio/internal/metrics"
	"github.com/codyseavey/pokefolio/internal/models"
)

const (
	pokemonTCGBaseURL        = "https://api.pokemontcg.io/v2"
	pokemonTCGDefaultTimeout = 30 * time.Second
)

// FetchError is returned when the upstream price source could not provide a card.
// StatusCode is 0 for transport and decode failures.
type FetchError struct {
	CardID     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch card %s: pokemon tcg API returned status %d", e.CardID, e.StatusCode)
	}
	return fmt.Sprintf("fetch card %s: %v", e.CardID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PokemonTCGService fetches card data and prices from the Pokemon TCG API
type PokemonTCGService struct {
	client  *http.Client
	apiKey  string
	baseURL string
	limiter *rate.Limiter
}

var _ CardSource = (*PokemonTCGService)(nil)

// NewPokemonTCGService creates a client. An empty baseURL uses the public API.
// requestsPerSecond <= 0 disables client-side rate limiting.
func NewPokemonTCGService(apiKey, baseURL string, requestsPerSecond float64) *PokemonTCGService {
	if baseURL == "" {
		baseURL = pokemonTCGBaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &PokemonTCGService{
		client: &http.Client{
			Timeout: pokemonTCGDefaultTimeout,
		},
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
	}
}

// CardData is the subset of the upstream card payload the tracker uses
type CardData struct {
	TCGPlayer *PokemonTCGPrices `json:"tcgplayer"`
	Set       pokemonSet        `json:"set"`
	Images    pokemonImages     `json:"images"`
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Number    string            `json:"number"`
	Rarity    string            `json:"rarity"`
}

type pokemonSet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type pokemonImages struct {
	Small string `json:"small"`
	Large string `json:"large"`
}

// PokemonTCGPrices is the tcgplayer block, keyed by printing variant
type PokemonTCGPrices struct {
	Prices    map[string]PriceSet `json:"prices"`
	URL       string              `json:"url"`
	UpdatedAt string              `json:"updatedAt"`
}

// PriceSet holds one variant's prices. Pointers distinguish a missing
// market price from an explicit zero.
type PriceSet struct {
	Low    *float64 `json:"low"`
	Mid    *float64 `json:"mid"`
	High   *float64 `json:"high"`
	Market *float64 `json:"market"`
}

// GetCardByID fetches one card. Any transport error, non-200 status or
// undecodable body is returned as a *FetchError.
func (s *PokemonTCGService) GetCardByID(ctx context.Context, id string) (*CardData, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{CardID: id, Err: err}
	}

	reqURL := fmt.Sprintf("%s/cards/%s", s.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{CardID: id, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	metrics.UpstreamRequestsTotal.Inc()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues("network").Inc()
		return nil, &FetchError{CardID: id, Err: fmt.Errorf("failed to get card from pokemon tcg: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamErrorsTotal.WithLabelValues("status").Inc()
		return nil, &FetchError{CardID: id, StatusCode: resp.StatusCode}
	}

	var response struct {
		Data CardData `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues("decode").Inc()
		return nil, &FetchError{CardID: id, Err: fmt.Errorf("failed to decode pokemon tcg response: %w", err)}
	}

	return &response.Data, nil
}

// GetCardPrice picks the single price the tracker records for a card
func (s *PokemonTCGService) GetCardPrice(card *CardData) decimal.Decimal {
	return SelectPrice(card)
}

// SelectPrice walks the variants in priority order and returns the first
// market price that is strictly positive once rounded to cents, or zero when
// no variant qualifies.
func SelectPrice(card *CardData) decimal.Decimal {
	if card == nil || card.TCGPlayer == nil || card.TCGPlayer.Prices == nil {
		return decimal.Zero
	}

	for _, variant := range models.PriceVariantPriority() {
		set, ok := card.TCGPlayer.Prices[string(variant)]
		if !ok || set.Market == nil {
			continue
		}
		// a market price that rounds to zero cents does not count
		if p := decimal.NewFromFloat(*set.Market).Round(2); p.IsPositive() {
			return p
		}
	}

	return decimal.Zero
}

// ToCard converts upstream data into a cached card snapshot
func ToCard(card *CardData, price decimal.Decimal, fetchedAt time.Time) models.Card {
	return models.Card{
		ID:            card.ID,
		Name:          card.Name,
		SetName:       card.Set.Name,
		CardNumber:    card.Number,
		ImageURL:      card.Images.Small,
		ImageURLLarge: card.Images.Large,
		CurrentPrice:  price,
		LastUpdated:   &fetchedAt,
	}
}
