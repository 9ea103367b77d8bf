package storage

import (
	"context"
	"fmt"

	"github.com/dkeye/Board/internal/config"
	"github.com/dkeye/Board/internal/core"
	"github.com/rs/zerolog/log"
)

// Open returns the durable log selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (core.DurableLog, error) {
	log.Info().Str("module", "adapters.storage").Str("driver", cfg.Driver).Msg("opening durable log")
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryLog(), nil
	case "bolt":
		l, err := OpenBolt(cfg.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "postgres":
		l, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "redis":
		l, err := OpenRedis(ctx, cfg.Addr, cfg.Password, cfg.DB)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
