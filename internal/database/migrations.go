package database

import (
	"database/sql"
	"fmt"
)

// RunMigrations runs all database migrations
func RunMigrations(db *sql.DB) error {
	if err := createTables(db); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// One row per administrator; qr_code only while waiting_qr,
		// phone_number only while connected.
		`CREATE TABLE IF NOT EXISTS whatsapp_connections (
			id SERIAL PRIMARY KEY,
			admin_user_id VARCHAR(255) NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'not_initialized',
			phone_number VARCHAR(20),
			qr_code TEXT,
			last_connection TIMESTAMP,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			CONSTRAINT unique_admin_connection UNIQUE(admin_user_id),
			CONSTRAINT check_status CHECK (status IN ('not_initialized', 'waiting_qr', 'connecting', 'connected', 'auth_failed', 'disconnected'))
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func createIndexes(db *sql.DB) error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_connections_status ON whatsapp_connections(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
