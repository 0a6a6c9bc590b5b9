package migration

import (
	"fmt"

	appconfig "github.com/tideflow-io/tideflow/config"
)

// NewMigratorFromConfig creates a migrator from the application configuration.
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig creates a migrator from database settings.
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	var dbURL string
	switch dbType {
	case DatabaseTypePostgres:
		dbURL = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	case DatabaseTypeMySQL:
		dbURL = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, "")
	case DatabaseTypeSQLite:
		// Name holds the file path for sqlite
		dbURL = BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}

// NewMigratorFromURL creates a migrator from a raw connection string.
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
