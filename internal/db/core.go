package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewCorePool connects to the control-plane database and tags its sessions
// with application so pg_stat_activity shows which process holds them.
// maxConns of 0 keeps the pgxpool default.
func NewCorePool(ctx context.Context, databaseURL, application string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse core db config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if application != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = application
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create core db pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping core db: %w", err)
	}
	return pool, nil
}
