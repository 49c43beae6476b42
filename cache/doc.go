// Package cache provides a deterministic, TTL-bounded byte cache used to
// avoid redundant broker round-trips.
//
// It exposes a Cache interface with an in-memory implementation,
// SHA-256-based key derivation, and TTL policies that can exempt
// side-effecting operations from caching entirely.
//
// # Position in the gateway
//
// cache backs two call paths:
//
//   - domain.MarketCache wraps a Cache directly to hold the latest tick and
//     a bounded OHLC ring per symbol, invalidated on unsubscribe.
//   - agent.Agent wraps a Cache in a CacheMiddleware to memoize
//     GetSymbolInfo lookups, since instrument properties change rarely but
//     are looked up before nearly every trade.
//
// # Core Components
//
//   - [Cache]: Interface for a byte-keyed cache (Get/Set/Delete)
//   - [MemoryCache]: Thread-safe in-memory cache with TTL support
//   - [Keyer]: Interface for deterministic cache key generation
//   - [DefaultKeyer]: SHA-256 based keyer with canonical JSON serialization
//   - [Policy]: Configures TTL defaults, maximums, and unsafe-operation handling
//   - [CacheMiddleware]: Transparent caching wrapper around an operation call
//
// # Quick Start
//
//	policy := cache.DefaultPolicy() // 5min TTL, 1hr max
//	memCache := cache.NewMemoryCache(policy)
//	keyer := cache.NewDefaultKeyer()
//	mw := cache.NewCacheMiddleware(memCache, keyer, policy, nil)
//
//	data, err := mw.Execute(ctx, "getSymbolInfo", symbol, nil,
//	    func(ctx context.Context, op string, input any) ([]byte, error) {
//	        return fetchFromBroker(ctx, op, input)
//	    })
//
// # Key Generation
//
// The [DefaultKeyer] generates deterministic cache keys using:
//
//	cache:<op>:<hash>
//
// Where hash is the first 16 hex characters of SHA-256(canonical JSON(input)).
// Canonical JSON ensures map keys are sorted for deterministic serialization.
//
// # TTL Policies
//
// The [Policy] type controls caching behavior:
//
//   - DefaultTTL: Applied when no specific TTL is provided
//   - MaxTTL: Upper bound for any TTL (prevents excessive caching)
//   - AllowUnsafe: Whether to cache operations tagged unsafe
//
// Preset policies:
//
//   - [DefaultPolicy]: 5 minute default, 1 hour max, unsafe=false
//   - [NoCachePolicy]: Disabled (0 TTL)
//
// # Unsafe Tag Handling
//
// Operations with side effects should never be cached:
//
//   - write, danger, unsafe, mutation, delete
//
// The [DefaultSkipRule] checks for these tags (case-insensitive) and skips
// caching. Override via [NewCacheMiddleware]'s skipRule parameter.
//
// # Thread Safety
//
// All exported types are safe for concurrent use:
//
//   - [MemoryCache]: sync.RWMutex protects all operations
//   - [DefaultKeyer]: Stateless, concurrent-safe
//   - [CacheMiddleware]: Delegates to thread-safe Cache/Keyer
//   - [Policy]: Immutable struct, concurrent-safe
//
// # Error Handling
//
// Sentinel errors (use errors.Is for checking):
//
//   - [ErrNilCache]: Cache is nil
//   - [ErrInvalidKey]: Key is empty, whitespace-only, or contains newlines
//   - [ErrKeyTooLong]: Key exceeds MaxKeyLength (512 characters)
//
// Note: Cache.Get never returns errors - it returns (nil, false) on miss.
// Key validation is performed via [ValidateKey] function.
package cache
