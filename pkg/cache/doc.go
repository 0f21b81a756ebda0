// Package cache provides an optional Redis-backed cache for upstream SWAPI
// response bodies.
//
// A single pass over the people collection references the same films,
// planets, species, starships and vehicles many times. Caching successful
// bodies by URL lets repeated references, and repeated runs, skip the
// upstream round trip.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{URL: "https://swapi.py4e.com/api/films/1/"}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from upstream, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, 200, resp.Header))
//	}
//
// # Expiry
//
// Entries live until the upstream Expires header, or DefaultTTL when the
// header is absent or unparseable. Redis removes them on expiry.
//
// # Metrics
//
//   - swapi_cache_hits_total{layer="redis"} - Cache hits
//   - swapi_cache_misses_total - Cache misses
//   - swapi_cache_size_bytes{layer="redis"} - Bytes written to cache
//   - swapi_cache_errors_total{operation} - Cache operation errors
package cache
