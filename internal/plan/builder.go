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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/arret/internal/duckdbx"
	"github.com/cardinalhq/arret/internal/inventory"
	"github.com/cardinalhq/arret/internal/logctx"
	"github.com/cardinalhq/arret/internal/references"
)

var planRows metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/arret/internal/plan")

	var err error
	planRows, err = meter.Int64Counter(
		"arret.plan.rows",
		metric.WithDescription("Number of plan rows written"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create plan.rows counter: %w", err))
	}
}

// BuildInput is everything needed to build a plan.
type BuildInput struct {
	RunID         string
	InventoryPath string
	PlanPath      string
	// URIPrefix is scheme://bucket/ for the inventoried bucket.
	URIPrefix string
	Policy    Policy
	Refs      *references.Set
	Now       time.Time
	DuckDB    duckdbx.Settings
}

// Build evaluates every inventory record and writes the plan. The plan is
// built in a sibling file and renamed over PlanPath only when complete.
func Build(ctx context.Context, in BuildInput) (Counts, error) {
	ll := logctx.FromContext(ctx)
	start := time.Now()

	ev, err := NewEvaluator(in.Policy, in.URIPrefix, in.Refs, in.Now)
	if err != nil {
		return Counts{}, err
	}

	tmp := in.PlanPath + ".building"
	removeDBFiles(tmp)

	counts, err := build(ctx, tmp, in, ev)
	if err != nil {
		removeDBFiles(tmp)
		return Counts{}, err
	}
	if err := os.Rename(tmp, in.PlanPath); err != nil {
		removeDBFiles(tmp)
		return Counts{}, fmt.Errorf("replace plan: %w", err)
	}
	if err := os.Remove(in.PlanPath + ".wal"); err != nil && !errors.Is(err, os.ErrNotExist) {
		ll.Warn("Failed to remove stale plan WAL", slog.Any("error", err))
	}

	planRows.Add(ctx, counts.Rows)
	ll.Info("Plan written",
		slog.String("path", in.PlanPath),
		slog.String("expression", ev.Expression().String()),
		slog.Int64("rows", counts.Rows),
		slog.Int64("protected", counts.Protected),
		slog.Int64("eligible", counts.Eligible),
		slog.Int64("eligibleBytes", counts.EligibleBytes),
		slog.Duration("duration", time.Since(start)))
	return counts, nil
}

func build(ctx context.Context, path string, in BuildInput, ev *Evaluator) (Counts, error) {
	db, err := duckdbx.Open(path, duckdbx.WithSettings(in.DuckDB))
	if err != nil {
		return Counts{}, err
	}
	defer func() { _ = db.Close() }()

	conn, release, err := db.GetConnection(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("plan connection: %w", err)
	}
	defer release()

	if _, err := conn.ExecContext(ctx, createSchemaSQL); err != nil {
		return Counts{}, fmt.Errorf("create plan schema: %w", err)
	}

	err = duckdbx.Append(conn, "refs", func(a *duckdb.Appender) error {
		var appendErr error
		in.Refs.Each(func(uri string) bool {
			appendErr = a.AppendRow(uri)
			return appendErr == nil
		})
		return appendErr
	})
	if err != nil {
		return Counts{}, fmt.Errorf("load references: %w", err)
	}

	var scanned int64
	err = duckdbx.Append(conn, "plan", func(a *duckdb.Appender) error {
		return inventory.Scan(ctx, in.InventoryPath, func(rec inventory.BlobRecord) error {
			r := ev.Evaluate(rec)
			scanned++
			return a.AppendRow(r.Name, r.SizeBytes, r.UpdatedAt, r.AgeDays,
				r.PipelineLogs, r.Old, r.Large,
				r.IsReferenced, r.IsForceKept, r.IsProtected, r.ShouldDelete)
		})
	})
	if err != nil {
		return Counts{}, fmt.Errorf("load plan rows: %w", err)
	}

	meta := Meta{
		SchemaVersion: SchemaVersion,
		RunID:         in.RunID,
		URIPrefix:     in.URIPrefix,
		Policy:        in.Policy,
		EvaluatedAt:   ev.Now(),
		DecidedAt:     ev.Now(),
	}
	pairs, err := meta.pairs()
	if err != nil {
		return Counts{}, err
	}
	if err := writeMeta(ctx, conn, pairs); err != nil {
		return Counts{}, err
	}

	counts, err := readCounts(ctx, conn)
	if err != nil {
		return Counts{}, err
	}
	if counts.Rows != scanned {
		return Counts{}, fmt.Errorf("plan has %d rows for %d inventory records", counts.Rows, scanned)
	}

	if stats, err := duckdbx.DatabaseSize(ctx, conn); err == nil && len(stats) > 0 {
		logctx.FromContext(ctx).Debug("Plan database size",
			slog.Int64("bytes", stats[0].DatabaseSize),
			slog.Int64("memoryUsage", stats[0].MemoryUsage))
	}

	if _, err := conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return Counts{}, fmt.Errorf("checkpoint plan: %w", err)
	}
	return counts, nil
}

func removeDBFiles(path string) {
	for _, p := range []string{path, path + ".wal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove plan file", slog.String("path", p), slog.Any("error", err))
		}
	}
}
