package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options selects and configures a store backend.
type Options struct {
	Backend  Backend
	DB       *gorm.DB // required for BackendGorm
	MongoURI string   // required for BackendMongo
	MongoDB  string   // database name, defaults to "tideflow"
}

// Open creates a store for the configured backend.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendGorm:
		if opts.DB == nil {
			return nil, fmt.Errorf("store: database backend requires a gorm connection")
		}
		return NewGorm(opts.DB, logger)
	case BackendMongo:
		dbName := opts.MongoDB
		if dbName == "" {
			dbName = "tideflow"
		}
		return NewMongo(ctx, opts.MongoURI, dbName, logger)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", opts.Backend)
	}
}
