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
	"database/sql"
	"strconv"
	"strings"
)

// SizeStats is one row of PRAGMA database_size with sizes in bytes.
type SizeStats struct {
	DatabaseName string
	DatabaseSize int64
	BlockSize    int64
	TotalBlocks  int64
	UsedBlocks   int64
	FreeBlocks   int64
	WALSize      int64
	MemoryUsage  int64
	MemoryLimit  int64
}

// DatabaseSize reports storage and memory usage for each attached database.
func DatabaseSize(ctx context.Context, conn *sql.Conn) ([]SizeStats, error) {
	rows, err := conn.QueryContext(ctx, "PRAGMA database_size")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SizeStats
	for rows.Next() {
		var (
			s                                   SizeStats
			dbSize, walSize, memUsage, memLimit string
		)
		if err := rows.Scan(&s.DatabaseName, &dbSize, &s.BlockSize, &s.TotalBlocks, &s.UsedBlocks, &s.FreeBlocks, &walSize, &memUsage, &memLimit); err != nil {
			return nil, err
		}
		s.DatabaseSize = parseSize(dbSize)
		s.WALSize = parseSize(walSize)
		s.MemoryUsage = parseSize(memUsage)
		s.MemoryLimit = parseSize(memLimit)
		out = append(out, s)
	}
	return out, rows.Err()
}

var sizeUnits = map[string]float64{
	"byte":  1,
	"bytes": 1,
	"kb":    1e3,
	"mb":    1e6,
	"gb":    1e9,
	"tb":    1e12,
	"pb":    1e15,
	"kib":   1 << 10,
	"mib":   1 << 20,
	"gib":   1 << 30,
	"tib":   1 << 40,
	"pib":   1 << 50,
}

// parseSize parses strings like "0 bytes", "1.2 MB" or "3.1 GiB" into
// bytes. Unparseable input yields 0.
func parseSize(s string) int64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	if len(fields) == 1 {
		return int64(v)
	}
	mult, ok := sizeUnits[strings.ToLower(fields[1])]
	if !ok {
		return 0
	}
	return int64(v * mult)
}
