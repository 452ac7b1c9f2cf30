package service

import (
	"context"
	"fmt"

	"github.com/okian/scoreboard/internal/adapters/store/memory"
	redisstore "github.com/okian/scoreboard/internal/adapters/store/redis"
	"github.com/okian/scoreboard/internal/adapters/store/sqlstore"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/internal/domain/ingest"
)

// Store is everything the service needs from a durable store adapter.
type Store interface {
	ingest.Store
	ingest.SeedSource
	Count(ctx context.Context) (int, error)
	Close() error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*redisstore.Store)(nil)
	_ Store = (*sqlstore.Store)(nil)
)

// OpenStore connects the adapter selected by cfg.Driver. SQL stores get
// their schema created if missing.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return memory.New(), nil

	case config.DriverRedis:
		rc := redisstore.DefaultConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		if cfg.KeyPrefix != "" {
			rc.KeyPrefix = cfg.KeyPrefix
		}
		return redisstore.New(ctx, rc)

	case config.DriverPostgres, config.DriverMySQL:
		s, err := sqlstore.New(ctx, sqlstore.Driver(cfg.Driver), cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidConfig, cfg.Driver)
	}
}
