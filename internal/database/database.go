// Package database opens the relational store shared by the metadata index
// and the grant table. PostgreSQL is the production backend; SQLite serves
// single-node installs and tests.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// sqliteDriver is go-sqlite3 with lower() replaced by a Unicode-aware
// version. The built-in folds ASCII only, which would make search case
// sensitive for names like "Übersicht" on SQLite but not on PostgreSQL.
const sqliteDriver = "sqlite3_filehub"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", unicodeLower, true)
		},
	})
}

func unicodeLower(v any) any {
	switch v := v.(type) {
	case string:
		return strings.ToLower(v)
	case []byte:
		if v == nil {
			return nil
		}
		return strings.ToLower(string(v))
	}
	return v
}

//go:embed migrations
var migrationsFS embed.FS

var placeholder = regexp.MustCompile(`\$(\d+)`)

// DB is a *sql.DB that knows which dialect it speaks.
type DB struct {
	*sql.DB
	driver string
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	name := driver
	if driver == DriverSQLite {
		name = sqliteDriver
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection keeps in-memory databases alive and serializes writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}

	return &DB{DB: db, driver: driver}, nil
}

// Driver returns the driver name the database was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// Rebind rewrites $N placeholders into the form the driver expects.
// SQLite takes ?N, which keeps numbered reuse working.
func (d *DB) Rebind(query string) string {
	if d.driver != DriverSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}

// ReportStats publishes connection pool gauges.
func (d *DB) ReportStats() {
	metrics.SetDBConnectionsOpen(d.Stats().OpenConnections)
}

// Migrate runs the embedded *.up.sql files for the active driver in order.
// Every statement is idempotent, so Migrate is safe on every start.
func (d *DB) Migrate(ctx context.Context) error {
	dir := path.Join("migrations", d.driver)
	files, err := fs.Glob(migrationsFS, dir+"/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		content, err := migrationsFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		logging.Info("running migration", zap.String("file", path.Base(f)), zap.String("driver", d.driver))
		if _, err := d.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("migration %s: %w", f, err)
		}
	}

	return nil
}

// EscapeLike escapes LIKE wildcards so s matches literally with ESCAPE '\'.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
