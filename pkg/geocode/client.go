// Package geocode resolves free-text place names to coordinates through an
// ordered chain of provider backends, caching successful results.
package geocode

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/reliefgrid/reliefgrid/internal/cache"
	"github.com/reliefgrid/reliefgrid/internal/model"
)

// ErrNotFound is returned when the entire provider chain is exhausted with no
// result. It is never cached: a later retry must not be stuck behind a
// negative entry.
var ErrNotFound = eris.New("geocode: location not found")

// Provider is a single location-lookup backend. Implementations return
// (nil, nil) when the backend answered but had no match for the name.
type Provider interface {
	// Name returns the provider identifier used in logs.
	Name() string
	// Resolve looks up a place name. A nil result with nil error means the
	// provider answered with no match.
	Resolve(ctx context.Context, name string) (*model.Coordinates, error)
	// Available reports whether the provider is configured (e.g. has a key).
	Available() bool
}

// ChainConfig enumerates the provider order and chain-wide settings. It is
// passed explicitly at construction; there is no process-wide provider state.
type ChainConfig struct {
	// ChainID distinguishes cache entries between differently-configured
	// chains.
	ChainID string
	// Providers are tried strictly in order; the first non-empty result wins.
	Providers []Provider
	// CacheTTL is how long successful resolutions stay cached.
	CacheTTL time.Duration
	// Timeout bounds each individual provider attempt.
	Timeout time.Duration
}

// Resolver runs the provider chain with caching.
type Resolver struct {
	cfg   ChainConfig
	cache cache.Cache
	sf    singleflight.Group
}

// NewResolver creates a Resolver. The cache may be nil, in which case every
// call goes to the providers.
func NewResolver(cfg ChainConfig, c cache.Cache) *Resolver {
	if cfg.ChainID == "" {
		cfg.ChainID = "default"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Resolver{cfg: cfg, cache: c}
}

// Resolve turns a free-text place name into coordinates. Provider failures
// and empty answers are swallowed per-provider and the next provider is
// tried; only chain exhaustion surfaces to the caller, as ErrNotFound. Cache
// errors are treated as misses.
func (r *Resolver) Resolve(ctx context.Context, locationName string) (*model.Coordinates, error) {
	normalized := Normalize(locationName)
	if normalized == "" {
		return nil, eris.New("geocode: empty location name")
	}
	key := cache.Key("geocode", r.cfg.ChainID, normalized)

	if coord := r.checkCache(ctx, key); coord != nil {
		return coord, nil
	}

	// Collapse concurrent misses for the same name into one chain walk.
	v, err, _ := r.sf.Do(key, func() (any, error) {
		return r.resolveChain(ctx, key, normalized)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Coordinates), nil
}

// resolveChain walks the providers in configured order.
func (r *Resolver) resolveChain(ctx context.Context, key, name string) (*model.Coordinates, error) {
	for _, p := range r.cfg.Providers {
		if !p.Available() {
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		coord, err := p.Resolve(attemptCtx, name)
		cancel()

		if err != nil {
			zap.L().Debug("geocode: provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("location", name),
				zap.Error(err),
			)
			continue
		}
		if coord == nil {
			zap.L().Debug("geocode: provider had no match",
				zap.String("provider", p.Name()),
				zap.String("location", name),
			)
			continue
		}

		r.storeCache(ctx, key, coord)
		return coord, nil
	}

	return nil, ErrNotFound
}

// checkCache returns a cached coordinate or nil. Any cache error counts as a
// miss.
func (r *Resolver) checkCache(ctx context.Context, key string) *model.Coordinates {
	if r.cache == nil {
		return nil
	}
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("geocode: cache get failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var coord model.Coordinates
	if err := json.Unmarshal(raw, &coord); err != nil {
		zap.L().Warn("geocode: cache entry corrupt", zap.String("key", key), zap.Error(err))
		_ = r.cache.Delete(ctx, key)
		return nil
	}
	return &coord
}

// storeCache writes a successful resolution. Failure is non-fatal.
func (r *Resolver) storeCache(ctx context.Context, key string, coord *model.Coordinates) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(coord)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.cfg.CacheTTL); err != nil {
		zap.L().Warn("geocode: cache set failed", zap.Error(err))
	}
}

// LatLng is the coordinate pair in the resolver output contract.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Result is the resolver output returned to API callers.
type Result struct {
	Coordinates    LatLng `json:"coordinates"`
	DisplayName    string `json:"displayName"`
	CanonicalPoint string `json:"canonicalPoint"`
}

// ToResult converts resolved coordinates into the output contract, including
// the canonical longitude-first point text.
func ToResult(c model.Coordinates) Result {
	return Result{
		Coordinates:    LatLng{Lat: c.Lat, Lng: c.Lng},
		DisplayName:    c.DisplayName,
		CanonicalPoint: c.CanonicalPoint(),
	}
}
