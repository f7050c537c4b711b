// Package stores opens the store adapter selected by configuration.
package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimepinger/internal/config"
	"github.com/hamed0406/uptimepinger/internal/repo"
	"github.com/hamed0406/uptimepinger/internal/repo/memory"
	"github.com/hamed0406/uptimepinger/internal/repo/postgres"
	"github.com/hamed0406/uptimepinger/internal/repo/sqlite"
)

const (
	connectInitialBackoff = 500 * time.Millisecond
	connectMaxBackoff     = 10 * time.Second
	connectMaxElapsed     = 2 * time.Minute
)

// Open connects to the configured store and makes sure its schema exists.
// A postgres server that is still starting is retried with exponential
// backoff; a malformed DSN fails immediately.
func Open(ctx context.Context, sc config.StoreConfig, log *zap.Logger) (repo.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlite.New(ctx, sc.DatabaseURL, log)
	case config.DriverPostgres:
		return openPostgres(ctx, sc, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

func openPostgres(ctx context.Context, sc config.StoreConfig, log *zap.Logger) (*postgres.Store, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = connectInitialBackoff
	bo.MaxInterval = connectMaxBackoff

	attempt := 0
	operation := func() (*postgres.Store, error) {
		attempt++
		st, err := postgres.New(ctx, sc.DatabaseURL, postgres.Options{User: sc.Username, Password: sc.Password}, log)
		if err != nil {
			if errors.Is(err, postgres.ErrInvalidDSN) {
				return nil, backoff.Permanent(err)
			}
			log.Warn("store_connect_retry", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return st, nil
	}

	st, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(connectMaxElapsed))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
