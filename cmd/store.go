package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dataminer/internal/config"
	"github.com/sells-group/dataminer/internal/store"
)

// openStore constructs the configured store backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
