// Package cache provides the short-lived quote cache in front of the
// market data feed. Backed by Redis when an address is configured,
// otherwise by an in-process map with the same interface.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Cache is a byte-level cache with per-key TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// Config selects and tunes the cache backend.
type Config struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	QuoteTTL time.Duration `yaml:"quote_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// UnmarshalYAML accepts duration fields as strings like "60s".
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	aux := struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		QuoteTTL string `yaml:"quote_ttl"`
		Timeout  string `yaml:"timeout"`
	}{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	c.Addr = aux.Addr
	c.Password = aux.Password
	c.DB = aux.DB
	for dst, raw := range map[*time.Duration]string{
		&c.QuoteTTL: aux.QuoteTTL,
		&c.Timeout:  aux.Timeout,
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

// DefaultConfig returns in-memory caching with a 60s quote TTL.
func DefaultConfig() Config {
	return Config{
		QuoteTTL: 60 * time.Second,
		Timeout:  500 * time.Millisecond,
	}
}

// New returns a Redis cache when an address is configured, an
// in-memory cache otherwise.
func New(cfg Config) Cache {
	if cfg.Addr != "" {
		log.Info().Str("addr", cfg.Addr).Msg("Using Redis quote cache")
		return &redisCache{
			client: redis.NewClient(&redis.Options{
				Addr:     cfg.Addr,
				Password: cfg.Password,
				DB:       cfg.DB,
			}),
			timeout: cfg.Timeout,
		}
	}
	return NewMemory()
}

// NewMemory returns a process-local cache.
func NewMemory() Cache {
	return &memory{m: make(map[string]entry)}
}

type entry struct {
	b   []byte
	exp time.Time
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

func (c *memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		delete(c.m, key)
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct {
	client  *redis.Client
	timeout time.Duration
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Get(opCtx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(opCtx, key, val, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Redis set failed")
	}
}

// Quotes is a typed view over a Cache for latest-quote lookups.
type Quotes struct {
	cache Cache
	ttl   time.Duration
}

// NewQuotes wraps a cache with the quote TTL.
func NewQuotes(c Cache, ttl time.Duration) *Quotes {
	return &Quotes{cache: c, ttl: ttl}
}

// Quote is the cached latest-price view of one instrument.
type Quote struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	ChangePct  float64   `json:"change_pct"`
	AsOf       time.Time `json:"as_of"`
}

func quoteKey(instrument string) string {
	return "quote:" + instrument
}

// Get returns the cached quote for the instrument, if fresh.
func (q *Quotes) Get(ctx context.Context, instrument string) (Quote, bool) {
	b, ok := q.cache.Get(ctx, quoteKey(instrument))
	if !ok {
		return Quote{}, false
	}
	var quote Quote
	if err := json.Unmarshal(b, &quote); err != nil {
		return Quote{}, false
	}
	return quote, true
}

// Put stores a quote under the configured TTL.
func (q *Quotes) Put(ctx context.Context, quote Quote) {
	b, err := json.Marshal(quote)
	if err != nil {
		return
	}
	q.cache.Set(ctx, quoteKey(quote.Instrument), b, q.ttl)
}
