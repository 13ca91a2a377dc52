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

// Package pgsource reads reference tables from a Postgres database. A
// workspace is one schema; every base table in it is scanned and every
// cell is read as text.
package pgsource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/arret/internal/dbopen"
	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/retry"
)

// Config describes one database and the schemas to scan in it.
type Config struct {
	// Name labels the database in logs; it is the workspace namespace.
	Name string `mapstructure:"name"`
	// DSN is a postgres URL or keyword string. When empty, it is built from
	// DSNEnvPrefix_HOST, _PORT, _USER, _PASSWORD, _DBNAME, _SSLMODE.
	DSN          string   `mapstructure:"dsn"`
	DSNEnvPrefix string   `mapstructure:"dsn_env_prefix"`
	Schemas      []string `mapstructure:"schemas"`
	BestEffort   bool     `mapstructure:"best_effort"`
}

// Source scans tables through a pool.
type Source struct {
	pool  *pgxpool.Pool
	retry retry.Policy
}

// Open connects to the database named by cfg.
func Open(ctx context.Context, cfg Config, policy retry.Policy) (*Source, error) {
	dsn, err := dbopen.ResolveURL(cfg.DSN, cfg.DSNEnvPrefix)
	if err != nil {
		return nil, errkind.Permanent(fmt.Errorf("postgres source %s: %w", cfg.Name, err))
	}
	pool, err := dbopen.NewReadOnlyPool(ctx, dsn, "pgsource")
	if err != nil {
		return nil, errkind.Permanent(fmt.Errorf("postgres source %s: %w", cfg.Name, err))
	}
	return New(pool, policy), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, policy retry.Policy) *Source {
	return &Source{pool: pool, retry: policy}
}

func (s *Source) Close() { s.pool.Close() }

func (s *Source) Kind() string { return "postgres" }

const listTablesSQL = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`

// ListTables returns the base tables of the schema given as name.
func (s *Source) ListTables(ctx context.Context, _, schema string) ([]string, error) {
	return retry.Do(ctx, s.retry, "list postgres tables", func(ctx context.Context) ([]string, error) {
		return s.listTables(ctx, schema)
	})
}

func (s *Source) listTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := s.pool.Query(ctx, listTablesSQL, schema)
	if err != nil {
		return nil, classify(fmt.Errorf("list tables in %s: %w", schema, err))
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(fmt.Errorf("list tables in %s: %w", schema, err))
	}
	return tables, nil
}

const listColumnsSQL = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// ScanTable reads every row with each column cast to text and emits the
// non-null values. A scan that fails transiently is restarted from the
// beginning, so cells may be emitted more than once.
func (s *Source) ScanTable(ctx context.Context, _, schema, table string, fn func(cell any)) error {
	return retry.Run(ctx, s.retry, "scan postgres table", func(ctx context.Context) error {
		return s.scanTable(ctx, schema, table, fn)
	})
}

func (s *Source) scanTable(ctx context.Context, schema, table string, fn func(cell any)) error {
	colRows, err := s.pool.Query(ctx, listColumnsSQL, schema, table)
	if err != nil {
		return classify(fmt.Errorf("list columns of %s.%s: %w", schema, table, err))
	}
	columns, err := pgx.CollectRows(colRows, pgx.RowTo[string])
	if err != nil {
		return classify(fmt.Errorf("list columns of %s.%s: %w", schema, table, err))
	}
	if len(columns) == 0 {
		return nil
	}

	rows, err := s.pool.Query(ctx, selectAsText(schema, table, columns))
	if err != nil {
		return classify(fmt.Errorf("scan %s.%s: %w", schema, table, err))
	}
	defer rows.Close()

	cells := make([]*string, len(columns))
	dest := make([]any, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return classify(fmt.Errorf("scan %s.%s: %w", schema, table, err))
		}
		for _, c := range cells {
			if c != nil {
				fn(*c)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return classify(fmt.Errorf("scan %s.%s: %w", schema, table, err))
	}
	return nil
}

func selectAsText(schema, table string, columns []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c}.Sanitize())
		b.WriteString("::text")
	}
	b.WriteString(" FROM ")
	b.WriteString(pgx.Identifier{schema, table}.Sanitize())
	return b.String()
}

// classify marks connection-class and resource SQLSTATEs as transient.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"),  // insufficient resources
			strings.HasPrefix(pgErr.Code, "57P"), // operator intervention
			pgErr.Code == "40001", pgErr.Code == "40P01":
			return errkind.Transient(err)
		default:
			return errkind.Permanent(err)
		}
	}
	if pgconn.SafeToRetry(err) || errkind.IsTransient(err) {
		return errkind.Transient(err)
	}
	return err
}
