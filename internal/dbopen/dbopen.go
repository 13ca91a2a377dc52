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

// Package dbopen builds Postgres connection strings and read-only pools for
// the tables scanned as reference sources.
package dbopen

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"
)

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// URLFromEnv constructs a PostgreSQL URL from environment variables named
// PREFIX_HOST, PREFIX_PORT, PREFIX_USER, PREFIX_PASSWORD, PREFIX_DBNAME and
// optionally PREFIX_SSLMODE. PREFIX_URL, when set, is returned as-is. A
// trailing "_" is added to prefix if missing.
//
// HOST and DBNAME are required; PORT defaults to 5432.
func URLFromEnv(prefix string) (string, error) {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	if urlStr := os.Getenv(prefix + "URL"); urlStr != "" {
		return urlStr, nil
	}

	host := os.Getenv(prefix + "HOST")
	dbname := os.Getenv(prefix + "DBNAME")

	var missing []string
	if host == "" {
		missing = append(missing, prefix+"HOST")
	}
	if dbname == "" {
		missing = append(missing, prefix+"DBNAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", ErrDatabaseNotConfigured, strings.Join(missing, ", "))
	}

	port := os.Getenv(prefix + "PORT")
	if port == "" {
		port = "5432"
	}

	u := &url.URL{
		Scheme: "postgresql",
		Host:   host + ":" + port,
		Path:   dbname,
	}
	if user := os.Getenv(prefix + "USER"); user != "" {
		if pass := os.Getenv(prefix + "PASSWORD"); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}

	q := u.Query()
	if sslmode := os.Getenv(prefix + "SSLMODE"); sslmode != "" {
		q.Set("sslmode", sslmode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveURL returns dsn when set, otherwise the URL built from envPrefix.
func ResolveURL(dsn, envPrefix string) (string, error) {
	if dsn != "" {
		return dsn, nil
	}
	if envPrefix == "" {
		return "", ErrDatabaseNotConfigured
	}
	return URLFromEnv(envPrefix)
}

// NewReadOnlyPool opens a pool whose sessions default to read-only
// transactions. Queries are traced under name.
func NewReadOnlyPool(ctx context.Context, dsn, name string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{Name: name}
	cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = "arret"
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}
