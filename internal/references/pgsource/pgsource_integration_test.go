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

//go:build integration

package pgsource

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	pgpreset "github.com/orlangure/gnomock/preset/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/arret/internal/references"
	"github.com/cardinalhq/arret/internal/retry"
)

func TestPostgresSourceResolvesReferences(t *testing.T) {
	preset := pgpreset.Preset(
		pgpreset.WithUser("arret", "arret"),
		pgpreset.WithDatabase("refs"),
		pgpreset.WithQueries(
			`CREATE SCHEMA lab`,
			`CREATE TABLE lab.samples (id int PRIMARY KEY, bam text, extra jsonb, crams text[])`,
			`INSERT INTO lab.samples VALUES
				(1, 'gs://bkt/a.bam', '{"index": "gs://bkt/a.bam.bai"}', NULL),
				(2, NULL, '["gs://bkt/b.vcf"]', ARRAY['gs://bkt/c 1.cram', 'gs://bkt/d.cram']),
				(3, 'not a uri', NULL, NULL)`,
			`CREATE TABLE lab.empty (id int)`,
			`CREATE VIEW lab.v AS SELECT 'gs://bkt/from-view' AS u`,
		),
	)
	container, err := gnomock.Start(preset)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gnomock.Stop(container) })

	dsn := fmt.Sprintf("postgres://arret:arret@%s/refs?sslmode=disable", container.DefaultAddress())
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	src := New(pool, retry.Policy{MaxRetries: 1, Initial: 10 * time.Millisecond})
	defer src.Close()

	tables, err := src.ListTables(ctx, "db", "lab")
	require.NoError(t, err)
	assert.Equal(t, []string{"empty", "samples"}, tables)

	set, stats, err := references.Resolve(ctx, []references.Workspace{
		{Namespace: "db", Name: "lab", Source: src},
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Tables)
	for _, uri := range []string{
		"gs://bkt/a.bam", "gs://bkt/a.bam.bai", "gs://bkt/b.vcf",
		"gs://bkt/c 1.cram", "gs://bkt/d.cram",
	} {
		assert.True(t, set.Contains(uri), uri)
	}
	assert.False(t, set.Contains("gs://bkt/from-view"), "views are not scanned")
}

func TestOpenReadOnly(t *testing.T) {
	container, err := gnomock.Start(pgpreset.Preset(
		pgpreset.WithUser("arret", "arret"),
		pgpreset.WithDatabase("refs"),
	))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gnomock.Stop(container) })

	ctx := context.Background()
	src, err := Open(ctx, Config{
		Name: "refs",
		DSN:  fmt.Sprintf("postgres://arret:arret@%s/refs?sslmode=disable", container.DefaultAddress()),
	}, retry.DefaultPolicy())
	require.NoError(t, err)
	defer src.Close()

	_, err = src.pool.Exec(ctx, `CREATE TABLE nope (id int)`)
	assert.Error(t, err, "sessions must be read-only")
}
