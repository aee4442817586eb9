package db

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/go-ledger/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// coreTables must exist once the schema has been created.
var coreTables = []string{"employees", "customers", "service_types", "memberships", "service_records", "raw_messages", "daily_summaries", "plugin_data"}

// CreateTables creates the schema. It is safe to call on an existing schema.
func (c *Conn) CreateTables(ctx context.Context) error {
	if c.opts.SQLMigrations && c.mode == ModeServer {
		c.log.Info("running sql migrations")
		if err := runSQLMigrations(c.migrateURL); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range models.All() {
			if err := c.gdb.WithContext(ctx).AutoMigrate(m); err != nil {
				c.log.Error("automigrate failed", zap.String("model", fmt.Sprintf("%T", m)), zap.Error(err))
				return fmt.Errorf("automigrate %T: %w", m, err)
			}
		}
	}

	migrator := c.gdb.WithContext(ctx).Migrator()
	for _, table := range coreTables {
		if !migrator.HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

// runSQLMigrations applies the embedded SQL migrations with golang-migrate.
func runSQLMigrations(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
