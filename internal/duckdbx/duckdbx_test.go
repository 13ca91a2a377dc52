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

package duckdbx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/marcboeker/go-duckdb/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppendAndReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "t.duckdb")

	db, err := Open(path, WithSettings(Settings{Threads: 1, MemoryLimitMB: 256}))
	require.NoError(t, err)

	conn, release, err := db.GetConnection(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `CREATE TABLE t (name VARCHAR, n BIGINT)`)
	require.NoError(t, err)
	require.NoError(t, Append(conn, "t", func(a *duckdb.Appender) error {
		for i := range 10 {
			if err := a.AppendRow("row", int64(i)); err != nil {
				return err
			}
		}
		return nil
	}))

	var count, sum int64
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT count(*), sum(n) FROM t`).Scan(&count, &sum))
	assert.Equal(t, int64(10), count)
	assert.Equal(t, int64(45), sum)

	stats, err := DatabaseSize(ctx, conn)
	require.NoError(t, err)
	assert.NotEmpty(t, stats)

	release()
	require.NoError(t, db.Close())

	ro, err := Open(path, WithReadOnly())
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()
	assert.True(t, ro.ReadOnly())

	require.NoError(t, ro.SQL().QueryRowContext(ctx, `SELECT count(*) FROM t`).Scan(&count))
	assert.Equal(t, int64(10), count)
	_, err = ro.SQL().ExecContext(ctx, `INSERT INTO t VALUES ('x', 1)`)
	assert.Error(t, err)
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.duckdb"), WithReadOnly())
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	assert.Equal(t, int64(0), parseSize("0 bytes"))
	assert.Equal(t, int64(512), parseSize("512 bytes"))
	assert.Equal(t, int64(1536), parseSize("1.5 KiB"))
	assert.Equal(t, int64(2_000_000), parseSize("2 MB"))
	assert.Equal(t, int64(3<<30), parseSize("3 GiB"))
	assert.Equal(t, int64(42), parseSize("42"))
	assert.Equal(t, int64(0), parseSize("lots"))
	assert.Equal(t, int64(0), parseSize(""))
}

func TestEscapeString(t *testing.T) {
	assert.Equal(t, "it''s", EscapeString("it's"))
}
