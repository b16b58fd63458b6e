// Package gorm provides a GORM implementation of the relay Database
// interface plus the relational outbox and inbox stores.
//
// Usage:
//
//	import (
//	    "github.com/madcok-co/relay/contrib/database/gorm"
//	    "gorm.io/driver/postgres"
//	    gormpkg "gorm.io/gorm"
//	)
//
//	db, _ := gormpkg.Open(postgres.Open(dsn), &gormpkg.Config{})
//	driver := gorm.NewDriver(db)
//	store := gorm.NewStore(driver)
package gorm

import (
	"context"

	"gorm.io/gorm"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// Driver implements contracts.Database using GORM
type Driver struct {
	db *gorm.DB
}

// NewDriver creates a new GORM database driver
func NewDriver(db *gorm.DB) *Driver {
	return &Driver{db: db}
}

// DB returns the underlying GORM database instance. Inside Transaction
// the returned handle is scoped to that transaction, so domain writes
// made through it commit together with outbox rows and inbox marks.
func (d *Driver) DB() *gorm.DB {
	return d.db
}

// Transaction executes a function within a database transaction
func (d *Driver) Transaction(ctx context.Context, fn func(tx contracts.Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Driver{db: tx})
	})
}

// Ping checks database connectivity
func (d *Driver) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *Driver) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure Driver implements contracts.Database
var _ contracts.Database = (*Driver)(nil)
