// Package db owns the connection to the ledger store: mode detection, pooling,
// transactional sessions, schema creation and seeding.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/diewo77/go-ledger/internal/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Options tunes the pool and schema handling. Pool settings only apply in
// server mode; the embedded store always runs on a single connection.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnectRetries is how many extra ping attempts are made while a server starts.
	ConnectRetries int
	RetryDelay     time.Duration
	// Debug traces every SQL statement.
	Debug bool
	// SQLMigrations makes CreateTables run the versioned SQL migrations in
	// server mode instead of AutoMigrate.
	SQLMigrations bool
	Logger        *zap.Logger
}

// Conn is an open ledger store.
type Conn struct {
	mode       Mode
	migrateURL string
	gdb        *gorm.DB
	opts       Options
	log        *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open detects the storage mode from rawURL and connects.
func Open(ctx context.Context, rawURL string, opts Options) (*Conn, error) {
	mode, err := DetectMode(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Conn{mode: mode, opts: opts, log: opts.Logger.Named("db")}

	var dialector gorm.Dialector
	switch mode {
	case ModeEmbedded:
		target := sqliteDSN(rawURL)
		if target.path != "" {
			if dir := filepath.Dir(target.path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create database directory: %w", err)
				}
			}
		}
		dialector = sqlite.Open(target.dsn)
	case ModeServer:
		dsn := NormalizeDSN(rawURL)
		c.migrateURL = ToURLDSN(dsn)
		dialector = postgres.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:               logger.NewGormLogger(opts.Logger, opts.Debug),
		TranslateError:       true,
		DisableAutomaticPing: true,
		NowFunc:              func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", mode, err)
	}
	c.gdb = gdb

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	c.configurePool(sqlDB)
	if err := c.ping(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	c.log.Info("database connected", zap.Stringer("mode", mode), zap.String("url", Redact(rawURL)))
	return c, nil
}

func (c *Conn) configurePool(sqlDB *sql.DB) {
	if c.mode == ModeEmbedded {
		// One writer at a time; an in-memory database also lives and dies with its connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return
	}
	maxOpen, maxIdle, lifetime := c.opts.MaxOpenConns, c.opts.MaxIdleConns, c.opts.ConnMaxLifetime
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
}

func (c *Conn) ping(ctx context.Context, sqlDB *sql.DB) error {
	delay := c.opts.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	var err error
	for attempt := 0; attempt <= c.opts.ConnectRetries; attempt++ {
		if err = sqlDB.PingContext(ctx); err == nil {
			return nil
		}
		if attempt == c.opts.ConnectRetries {
			break
		}
		c.log.Warn("database ping failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping database: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("ping database: %w", err)
}

// Mode reports which store this connection talks to.
func (c *Conn) Mode() Mode { return c.mode }

// DB returns the shared handle bound to ctx, for reads outside a transaction.
func (c *Conn) DB(ctx context.Context) *gorm.DB { return c.gdb.WithContext(ctx) }

// WithSession runs fn inside one transaction. It commits when fn returns nil and
// rolls back on error or panic; fn's error is returned unchanged.
func (c *Conn) WithSession(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.gdb.WithContext(ctx).Transaction(fn)
}

// RawResult is the outcome of RawExec. Rows is only set for statements that
// return a result set.
type RawResult struct {
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
}

// RawExec runs an arbitrary statement. Parameters are positional (?) or a
// single map[string]any for @name placeholders.
func (c *Conn) RawExec(ctx context.Context, stmt string, params ...any) (RawResult, error) {
	if !returnsRows(stmt) {
		res := c.gdb.WithContext(ctx).Exec(stmt, params...)
		if res.Error != nil {
			return RawResult{}, fmt.Errorf("exec: %w", res.Error)
		}
		return RawResult{RowsAffected: res.RowsAffected}, nil
	}

	rows, err := c.gdb.WithContext(ctx).Raw(stmt, params...).Rows()
	if err != nil {
		return RawResult{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return RawResult{}, fmt.Errorf("columns: %w", err)
	}
	out := RawResult{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return RawResult{}, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = vals[i]
			}
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return RawResult{}, fmt.Errorf("rows: %w", err)
	}
	out.RowsAffected = int64(len(out.Rows))
	return out, nil
}

func returnsRows(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(strings.TrimLeft(fields[0], "(")) {
	case "SELECT", "WITH", "PRAGMA", "EXPLAIN", "SHOW", "VALUES":
		return true
	}
	return false
}

// Close releases the pool. Calling it again is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	sqlDB, err := c.gdb.DB()
	if err != nil {
		return err
	}
	c.log.Info("database closed")
	return sqlDB.Close()
}
