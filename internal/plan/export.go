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

package plan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

// ExportRow is the Parquet layout of a plan row.
type ExportRow struct {
	Name         string    `parquet:"name"`
	SizeBytes    int64     `parquet:"size_bytes"`
	UpdatedAt    time.Time `parquet:"updated_at,timestamp(microsecond)"`
	AgeDays      int64     `parquet:"age_days"`
	PipelineLogs bool      `parquet:"pipeline_logs"`
	Old          bool      `parquet:"old"`
	Large        bool      `parquet:"large"`
	IsReferenced bool      `parquet:"is_referenced"`
	IsForceKept  bool      `parquet:"is_force_kept"`
	IsProtected  bool      `parquet:"is_protected"`
	ShouldDelete bool      `parquet:"should_delete"`
}

const exportBatchSize = 10_000

// Export writes every plan row to a zstd-compressed Parquet file at out,
// replacing it only once the file is complete.
func (s *Store) Export(ctx context.Context, out string) (int64, error) {
	f, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	w := parquet.NewGenericWriter[ExportRow](f,
		parquet.Compression(&parquet.Zstd),
		parquet.MaxRowsPerRowGroup(100_000),
		parquet.KeyValueMetadata("arret.run_id", s.meta.RunID),
		parquet.KeyValueMetadata("arret.uri_prefix", s.meta.URIPrefix),
		parquet.KeyValueMetadata("arret.expression", s.meta.Policy.Expression),
	)

	var written int64
	batch := make([]ExportRow, 0, exportBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.Write(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		written += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	err = s.Rows(ctx, func(r Row) error {
		batch = append(batch, ExportRow(r))
		if len(batch) == exportBatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		_ = w.Close()
		_ = f.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("close parquet writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		return 0, fmt.Errorf("replace export file: %w", err)
	}
	return written, nil
}
