package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"

	connectTimeout = 5 * time.Second
)

// Client owns the process-wide GORM handle.
type Client struct {
	conn *gorm.DB
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens and verifies the database. SQLite is chosen when useSQLite is set
// or cfg.Driver says so; anything else is postgres through pgx.
func New(ctx context.Context, cfg config.DBConfig, useSQLite bool, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	dialect := dialectPostgres
	if useSQLite || cfg.IsSQLite() {
		dialect = dialectSQLite
	}

	conn, err := gorm.Open(dialectorFor(dialect, cfg.DSN), &gorm.Config{
		Logger:                 newGormLogger(logg),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}

	if dialect == dialectSQLite {
		// one writer at a time or sqlite answers SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	client := &Client{conn: conn}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", dialect), "database connection established")
	}
	return client, nil
}

func dialectorFor(dialect, dsn string) gorm.Dialector {
	if dialect == dialectSQLite {
		return sqlite.Open(dsn)
	}
	return postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
}

// NewFromConn wraps an already opened handle, mostly for tests.
func NewFromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Dialect is "postgres" or "sqlite".
func (c *Client) Dialect() string {
	return c.conn.Dialector.Name()
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. Returning an error or panicking rolls it
// back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
