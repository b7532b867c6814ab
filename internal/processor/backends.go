package processor

import (
	"context"

	"ewarn/internal/config"
	"ewarn/internal/feed"
	"ewarn/internal/logger"
	"ewarn/internal/state"
	"ewarn/internal/storage"
)

// Backends is the configured record source and the connections behind it
type Backends struct {
	Source   feed.Source
	Postgres *storage.Postgres // set for the postgres source
	Cache    *state.RedisStore // set when the redis cache is enabled
}

// OpenBackends opens the configured record source, wrapped by the Redis
// cache when enabled
func OpenBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	log := logger.WithComponent("processor")
	b := &Backends{}

	switch cfg.Feed.Source {
	case config.SourcePostgres:
		pg, err := storage.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		b.Postgres = pg
		b.Source = pg
		log.Info().Msg("using postgres record source")
	default:
		fields, err := feed.MergeFieldMaps(cfg.Feed.FieldMaps)
		if err != nil {
			return nil, err
		}
		b.Source = feed.NewClient(cfg.Feed, feed.WithFieldMaps(fields))
		log.Info().Str("base_url", cfg.Feed.BaseURL).Msg("using REST record source")
	}

	if cfg.Redis.Enabled {
		store, err := state.NewRedisStore(ctx, cfg.Redis, "ewarn:")
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Cache = store
		b.Source = feed.NewCachedSource(b.Source, store, cfg.Feed.CacheTTL)
		log.Info().
			Str("addr", cfg.Redis.Addr).
			Dur("ttl", cfg.Feed.CacheTTL).
			Msg("redis record cache enabled")
	}
	return b, nil
}

// Close releases the cache and database connections
func (b *Backends) Close() {
	if b == nil {
		return
	}
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			log := logger.WithComponent("processor")
			log.Error().Err(err).Msg("redis close error")
		}
	}
	if b.Postgres != nil {
		b.Postgres.Close()
	}
}
