// Package db owns the relational schema and the queries over it.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlx.BindDriver("libsql", sqlx.QUESTION)
}

//go:embed migrations/*.sql
var migrations embed.FS

type Config struct {
	// File is a sqlite database path, ":memory:" is allowed.
	File string `json:"file"`
	// Url is a remote libsql database, it takes precedence over File.
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func wrapOpen(err error) error {
	return fmt.Errorf("open db: %w", err)
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		path,
	)
}

// Open opens the configured database with foreign keys enforced.
func Open(config Config) (*sqlx.DB, error) {
	if config.Url != "" {
		values := url.Values{}
		if config.AuthToken != "" {
			values.Add("authToken", config.AuthToken)
		}
		conn, err := sqlx.Open("libsql", config.Url+"?"+values.Encode())
		if err != nil {
			return nil, wrapOpen(err)
		}
		_, err = conn.Exec("PRAGMA foreign_keys = ON")
		if err != nil {
			conn.Close()
			return nil, wrapOpen(err)
		}
		return conn, nil
	}

	path := config.File
	if path == "" {
		return nil, wrapOpen(fmt.Errorf("neither a file nor a url was specified"))
	}
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0700)
		if err != nil {
			return nil, wrapOpen(err)
		}
	}

	conn, err := sqlx.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, wrapOpen(err)
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	// a single connection also keeps an in-memory database alive and shared.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	err = conn.Ping()
	if err != nil {
		conn.Close()
		return nil, wrapOpen(err)
	}
	return conn, nil
}

// Migrate applies the embedded migrations that have not been applied yet.
func Migrate(conn *sql.DB) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	// the driver is not closed, closing it would close conn
	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Debug("migration state is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("ran migrations successfully")
	return nil
}

// OpenAndMigrate opens the database and brings its schema up to date.
func OpenAndMigrate(config Config) (*sqlx.DB, error) {
	conn, err := Open(config)
	if err != nil {
		return nil, err
	}
	err = Migrate(conn.DB)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
