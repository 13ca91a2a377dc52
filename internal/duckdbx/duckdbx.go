// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package duckdbx opens file-backed DuckDB databases with consistent
// settings and provides bulk-load helpers.
package duckdbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
)

// Settings are applied to every connection when it is opened.
type Settings struct {
	MemoryLimitMB        int64  `mapstructure:"memory_limit"`
	Threads              int    `mapstructure:"threads"`
	TempDirectory        string `mapstructure:"temp_directory"`
	MaxTempDirectorySize string `mapstructure:"max_temp_directory_size"`
	PoolSize             int    `mapstructure:"pool_size"`
}

// DB is a DuckDB database stored in a single file.
type DB struct {
	path     string
	readOnly bool
	db       *sql.DB
}

type options struct {
	settings Settings
	readOnly bool
	connAge  time.Duration
}

type Option func(*options)

func WithSettings(s Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithReadOnly opens the file in DuckDB's read-only access mode. The file
// must already exist.
func WithReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

func WithConnectionMaxAge(d time.Duration) Option {
	return func(o *options) {
		if d < time.Minute {
			d = time.Minute
		}
		o.connAge = d
	}
}

// Open opens or creates the database file at path.
func Open(path string, opts ...Option) (*DB, error) {
	if path == "" {
		return nil, errors.New("duckdbx: database path must not be empty")
	}
	o := &options{connAge: 25 * time.Minute}
	for _, opt := range opts {
		opt(o)
	}
	s := o.settings

	if o.readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open read-only database: %w", err)
		}
	}

	threads := s.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	poolSize := s.PoolSize
	if poolSize <= 0 {
		poolSize = min(max(runtime.GOMAXPROCS(0)/2, 1), 8)
	}

	dsn := path
	if o.readOnly {
		dsn += "?access_mode=read_only"
	}

	slog.Debug("duckdbx: opening database",
		slog.String("path", path),
		slog.Bool("readOnly", o.readOnly),
		slog.Int("poolSize", poolSize),
		slog.Int("threads", threads),
		slog.Int64("memoryLimitMB", s.MemoryLimitMB))

	// The init hook must not use a request context.
	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		ctx := context.Background()
		stmts := []string{
			"SET autoinstall_known_extensions = false",
			"SET autoload_known_extensions = false",
			fmt.Sprintf("SET threads = %d", threads),
		}
		if s.MemoryLimitMB > 0 {
			stmts = append(stmts, fmt.Sprintf("SET memory_limit = '%dMB'", s.MemoryLimitMB))
		}
		if s.TempDirectory != "" {
			stmts = append(stmts, fmt.Sprintf("SET temp_directory = '%s'", EscapeString(s.TempDirectory)))
		}
		if s.MaxTempDirectorySize != "" {
			stmts = append(stmts, fmt.Sprintf("SET max_temp_directory_size = '%s'", EscapeString(s.MaxTempDirectorySize)))
		}
		for _, stmt := range stmts {
			if _, err := execer.ExecContext(ctx, stmt, nil); err != nil {
				return fmt.Errorf("%s: %w", stmt, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create duckdb connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(o.connAge)

	return &DB{path: path, readOnly: o.readOnly, db: db}, nil
}

func (d *DB) Path() string { return d.path }

func (d *DB) ReadOnly() bool { return d.readOnly }

// SQL exposes the underlying pool.
func (d *DB) SQL() *sql.DB { return d.db }

// GetConnection returns a dedicated connection and its release function.
func (d *DB) GetConnection(ctx context.Context) (*sql.Conn, func(), error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Append bulk-loads rows into table through DuckDB's appender on conn.
// The appender is flushed and closed before Append returns.
func Append(conn *sql.Conn, table string, fill func(a *duckdb.Appender) error) error {
	return conn.Raw(func(driverConn any) error {
		raw, ok := driverConn.(driver.Conn)
		if !ok {
			return errors.New("failed to get driver connection")
		}
		appender, err := duckdb.NewAppenderFromConn(raw, "main", table)
		if err != nil {
			return fmt.Errorf("create appender for %s: %w", table, err)
		}
		if err := fill(appender); err != nil {
			_ = appender.Close()
			return err
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("close appender for %s: %w", table, err)
		}
		return nil
	})
}

// EscapeString escapes s for use inside a single-quoted SQL literal.
func EscapeString(s string) string { return strings.ReplaceAll(s, `'`, `''`) }
