package domain

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonwraymond/mt5gateway/cache"
)

// MarketCache holds the latest tick and a bounded OHLC ring per symbol,
// backed by a cache.Cache byte store. It is invalidated wholesale for a
// symbol on unsubscribe, per the subscribe/unsubscribe invalidation rule.
type MarketCache struct {
	store    cache.Cache
	policy   cache.Policy
	ringSize int

	mu   sync.Mutex
	ring map[string][]OHLC // symbol -> bounded bar history, newest last
}

// NewMarketCache wraps store with the tick/OHLC staleness policy and a
// bounded per-symbol OHLC ring of ringSize bars.
func NewMarketCache(store cache.Cache, policy cache.Policy, ringSize int) *MarketCache {
	if ringSize <= 0 {
		ringSize = 500
	}
	return &MarketCache{
		store:    store,
		policy:   policy,
		ringSize: ringSize,
		ring:     make(map[string][]OHLC),
	}
}

func tickKey(symbol string) string { return "tick:" + symbol }

// PutTick stores the latest tick for a symbol.
func (c *MarketCache) PutTick(ctx context.Context, tick Tick) error {
	if !c.policy.ShouldCache() {
		return nil
	}
	b, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, tickKey(tick.Symbol), b, c.policy.EffectiveTTL(0))
}

// LatestTick returns the most recently cached tick for symbol, if present
// and unexpired.
func (c *MarketCache) LatestTick(ctx context.Context, symbol string) (Tick, bool) {
	b, ok := c.store.Get(ctx, tickKey(symbol))
	if !ok {
		return Tick{}, false
	}
	var tick Tick
	if err := json.Unmarshal(b, &tick); err != nil {
		return Tick{}, false
	}
	return tick, true
}

// AppendOHLC pushes a new bar onto a symbol's bounded ring, evicting the
// oldest bar once ringSize is exceeded.
func (c *MarketCache) AppendOHLC(symbol string, bar OHLC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	series := append(c.ring[symbol], bar)
	if len(series) > c.ringSize {
		series = series[len(series)-c.ringSize:]
	}
	c.ring[symbol] = series
}

// OHLCSeries returns a copy of the cached bar history for symbol.
func (c *MarketCache) OHLCSeries(symbol string) []OHLC {
	c.mu.Lock()
	defer c.mu.Unlock()
	series := c.ring[symbol]
	out := make([]OHLC, len(series))
	copy(out, series)
	return out
}

// Invalidate drops all cached state for symbol, called on unsubscribe.
func (c *MarketCache) Invalidate(ctx context.Context, symbol string) {
	_ = c.store.Delete(ctx, tickKey(symbol))
	c.mu.Lock()
	delete(c.ring, symbol)
	c.mu.Unlock()
}
