// Package feed is the HTTP boundary to the market data provider. Every
// outbound call passes a token-bucket rate limiter and a circuit
// breaker; latest-quote reads are served from the cache when fresh.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/omxlab/equityrun/internal/data/cache"
	"github.com/omxlab/equityrun/internal/domain/market"
)

// Config tunes the provider client.
type Config struct {
	BaseURL        string        `yaml:"base_url" env:"FEED_BASE_URL"`
	APIKey         string        `yaml:"api_key" env:"FEED_API_KEY"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
	BreakerWindow  time.Duration `yaml:"breaker_window"`
	BreakerCooloff time.Duration `yaml:"breaker_cooloff"`
	MaxFailures    uint32        `yaml:"max_failures"`
}

// UnmarshalYAML accepts duration fields as strings like "10s".
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	aux := struct {
		BaseURL        string  `yaml:"base_url"`
		APIKey         string  `yaml:"api_key"`
		RequestTimeout string  `yaml:"request_timeout"`
		RatePerSecond  float64 `yaml:"rate_per_second"`
		Burst          int     `yaml:"burst"`
		BreakerWindow  string  `yaml:"breaker_window"`
		BreakerCooloff string  `yaml:"breaker_cooloff"`
		MaxFailures    uint32  `yaml:"max_failures"`
	}{
		BaseURL:       c.BaseURL,
		APIKey:        c.APIKey,
		RatePerSecond: c.RatePerSecond,
		Burst:         c.Burst,
		MaxFailures:   c.MaxFailures,
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	c.BaseURL = aux.BaseURL
	c.APIKey = aux.APIKey
	c.RatePerSecond = aux.RatePerSecond
	c.Burst = aux.Burst
	c.MaxFailures = aux.MaxFailures
	for dst, raw := range map[*time.Duration]string{
		&c.RequestTimeout: aux.RequestTimeout,
		&c.BreakerWindow:  aux.BreakerWindow,
		&c.BreakerCooloff: aux.BreakerCooloff,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*dst = d
	}
	return nil
}

// DefaultConfig returns conservative free-tier limits.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		RatePerSecond:  2,
		Burst:          5,
		BreakerWindow:  60 * time.Second,
		BreakerCooloff: 30 * time.Second,
		MaxFailures:    5,
	}
}

// Client fetches daily bars, quotes and macro readings.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	quotes  *cache.Quotes
}

// NewClient builds a client; quotes may be nil to disable caching.
func NewClient(cfg Config, quotes *cache.Quotes) *Client {
	settings := gobreaker.Settings{
		Name:     "market-feed",
		Interval: cfg.BreakerWindow,
		Timeout:  cfg.BreakerCooloff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Feed circuit breaker state change")
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		quotes:  quotes,
	}
}

// DailyBars returns the instrument's daily bars inside [from, to],
// oldest first.
func (c *Client) DailyBars(ctx context.Context, instrument string, from, to time.Time) ([]market.PriceBar, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))

	body, err := c.get(ctx, "/v1/history/"+url.PathEscape(instrument), q)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", instrument, err)
	}

	var payload struct {
		Bars []market.PriceBar `json:"bars"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", instrument, err)
	}
	for i := range payload.Bars {
		payload.Bars[i].Instrument = instrument
	}
	return payload.Bars, nil
}

// Quote returns the latest price view of the instrument, serving from
// the cache when a fresh entry exists.
func (c *Client) Quote(ctx context.Context, instrument string) (cache.Quote, error) {
	if c.quotes != nil {
		if quote, ok := c.quotes.Get(ctx, instrument); ok {
			return quote, nil
		}
	}

	body, err := c.get(ctx, "/v1/quote/"+url.PathEscape(instrument), nil)
	if err != nil {
		return cache.Quote{}, fmt.Errorf("fetch quote for %s: %w", instrument, err)
	}

	var quote cache.Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return cache.Quote{}, fmt.Errorf("decode quote for %s: %w", instrument, err)
	}
	quote.Instrument = instrument
	if quote.AsOf.IsZero() {
		quote.AsOf = time.Now()
	}

	if c.quotes != nil {
		c.quotes.Put(ctx, quote)
	}
	return quote, nil
}

// Macro returns the latest reading for a macro symbol.
func (c *Client) Macro(ctx context.Context, symbol string) (market.MacroReading, error) {
	body, err := c.get(ctx, "/v1/macro/"+url.PathEscape(symbol), nil)
	if err != nil {
		return market.MacroReading{}, fmt.Errorf("fetch macro %s: %w", symbol, err)
	}

	var reading market.MacroReading
	if err := json.Unmarshal(body, &reading); err != nil {
		return market.MacroReading{}, fmt.Errorf("decode macro %s: %w", symbol, err)
	}
	reading.Symbol = symbol
	if reading.Date.IsZero() {
		reading.Date = time.Now()
	}
	return reading, nil
}

// BreakerState exposes the circuit breaker state for health output.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doGet(ctx, path, query)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	log.Debug().Str("path", path).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).Msg("Feed request")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// truncate cuts on rune boundaries so an error body never splits a
// multi-byte sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
