package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whatsapp-connector/internal/config"
)

// Connection represents a database connection
type Connection struct {
	DB    *gorm.DB
	SqlDB *sql.DB
}

// NewConnection creates a new database connection
func NewConnection(cfg *config.Config) (*Connection, error) {
	gormConfig := &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}

	// Set log level based on environment
	if cfg.IsProduction() {
		gormConfig.Logger = logger.Default.LogMode(logger.Error)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	// Route through the registered lib/pq driver rather than the default pgx.
	dialector := postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        cfg.Database.GetDSN(),
	})
	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{
		DB:    db,
		SqlDB: sqlDB,
	}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	if c.SqlDB != nil {
		return c.SqlDB.Close()
	}
	return nil
}

// HealthCheck performs a health check on the database
func (c *Connection) HealthCheck() error {
	if c.SqlDB == nil {
		return fmt.Errorf("database connection is nil")
	}
	return c.SqlDB.Ping()
}
