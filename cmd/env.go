package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/reliefgrid/reliefgrid/internal/bus"
	"github.com/reliefgrid/reliefgrid/internal/cache"
	"github.com/reliefgrid/reliefgrid/internal/db"
	"github.com/reliefgrid/reliefgrid/internal/store"
	"github.com/reliefgrid/reliefgrid/pkg/geocode"
)

// appEnv holds the initialized store, cache, resolver, and event bus needed
// by the serve/resolve/seed commands.
type appEnv struct {
	Store    store.Store
	Cache    cache.Cache
	Resolver *geocode.Resolver
	Bus      *bus.Bus
}

// Close releases resources held by the environment.
func (ae *appEnv) Close() {
	if ae.Bus != nil {
		ae.Bus.Close()
	}
	if ae.Cache != nil {
		_ = ae.Cache.Close()
	}
	if ae.Store != nil {
		_ = ae.Store.Close()
	}
}

// initEnv sets up the store, cache, provider chain, and bus from config.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	c, err := initCache(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	resolver := geocode.NewResolver(geocode.ChainConfig{
		ChainID:   cfg.Geocode.ChainID,
		Providers: buildProviderChain(),
		CacheTTL:  cfg.Geocode.CacheTTL(),
		Timeout:   cfg.Geocode.GeocodeTimeout(),
	}, c)

	return &appEnv{
		Store:    st,
		Cache:    c,
		Resolver: resolver,
		Bus:      bus.New(),
	}, nil
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initCache opens the configured cache backend.
func initCache(ctx context.Context) (cache.Cache, error) {
	switch cfg.Cache.Driver {
	case "memory":
		m := cache.NewMemory()
		if cfg.Cache.SweepIntervalMinutes > 0 {
			m.StartJanitor(time.Duration(cfg.Cache.SweepIntervalMinutes) * time.Minute)
		}
		return m, nil
	case "redis":
		return cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
	default:
		return nil, eris.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

// buildProviderChain assembles the configured provider order: the free
// provider first, keyed fallbacks after. Providers without credentials report
// unavailable and are skipped by the resolver.
func buildProviderChain() []geocode.Provider {
	nominatim := geocode.NewNominatim(cfg.Geocode.Nominatim.UserAgent,
		geocode.WithNominatimBaseURL(cfg.Geocode.Nominatim.BaseURL))
	locationIQ := geocode.NewLocationIQ(cfg.Geocode.LocationIQ.Key,
		geocode.WithLocationIQBaseURL(cfg.Geocode.LocationIQ.BaseURL))
	google := geocode.NewGoogle(cfg.Geocode.Google.Key,
		geocode.WithGoogleBaseURL(cfg.Geocode.Google.BaseURL))
	return []geocode.Provider{nominatim, locationIQ, google}
}
