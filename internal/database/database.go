// Package database provides relational sinks and harvest bookkeeping on
// SQLite or MySQL.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/jmylchreest/harvest/internal/logger"
)

//go:embed migrations
var migrations embed.FS

// gooseMu guards goose's package-level dialect and filesystem.
var gooseMu sync.Mutex

// DB is an open harvest database.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to driver ("sqlite3" or "mysql") at dsn and applies
// migrations. For sqlite3 the dsn may be a plain file path.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	dsn, err = dialect.DSN(dsn)
	if err != nil {
		return nil, err
	}

	logger.Debug("opening database", "driver", dialect.Driver())
	conn, err := sql.Open(dialect.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect.Driver() == "sqlite3" {
		// One writer at a time.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(conn, dialect); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &DB{conn: conn, dialect: dialect}, nil
}

func migrate(conn *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := fs.Sub(migrations, "migrations/"+dialect.Driver())
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	goose.SetBaseFS(dir)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(log.New(io.Discard, "", 0))

	if err := goose.SetDialect(dialect.Driver()); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(conn, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("migrations completed", "driver", dialect.Driver())
	return nil
}

// Conn returns the underlying connection pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Dialect returns the SQL dialect in use.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect covers the differences between supported databases.
type Dialect interface {
	Driver() string
	DSN(dsn string) (string, error)
	ColumnType(t string) string
	UpsertCheckpoint() string
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return sqliteDialect{}, nil
	case "mysql":
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Driver() string { return "sqlite3" }

func (sqliteDialect) DSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("sqlite database path is required")
	}
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	return fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dsn), nil
}

func (sqliteDialect) ColumnType(t string) string {
	switch t {
	case "integer", "boolean":
		return "INTEGER"
	case "real":
		return "REAL"
	case "decimal":
		return "NUMERIC"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) UpsertCheckpoint() string {
	return `INSERT INTO harvest_checkpoints (name, page, url, watermark, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET page = excluded.page, url = excluded.url,
	watermark = excluded.watermark, updated_at = excluded.updated_at`
}

type mysqlDialect struct{}

func (mysqlDialect) Driver() string { return "mysql" }

func (mysqlDialect) DSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}

func (mysqlDialect) ColumnType(t string) string {
	switch t {
	case "integer":
		return "BIGINT"
	case "real":
		return "DOUBLE"
	case "decimal":
		return "DECIMAL(12,2)"
	case "boolean":
		return "BOOLEAN"
	case "date":
		return "DATE"
	case "timestamp":
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func (mysqlDialect) UpsertCheckpoint() string {
	return `INSERT INTO harvest_checkpoints (name, page, url, watermark, updated_at)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE page = VALUES(page), url = VALUES(url),
	watermark = VALUES(watermark), updated_at = VALUES(updated_at)`
}

// quote quotes an identifier with backticks, which both SQLite and MySQL
// accept.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
