package contracts

import "context"

// Database adalah transaction boundary untuk relational storage
// User tidak perlu tahu apakah ini PostgreSQL, MySQL, SQLite, dll.
// Relay only needs the commit hook: outbox rows and inbox marks are
// written through the same transaction as the caller's domain state.
type Database interface {
	// Transaction executes fn inside a transaction. The Database passed
	// to fn is scoped to that transaction; drivers expose their native
	// handle as an escape hatch for domain writes.
	Transaction(ctx context.Context, fn func(tx Database) error) error

	// Connection management
	Ping(ctx context.Context) error
	Close() error
}

// DatabaseConfig untuk konfigurasi database
type DatabaseConfig struct {
	Driver   string // postgres, mysql, sqlite
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSLMode  string

	// Connection pool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in seconds
}
