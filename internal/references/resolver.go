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

package references

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/logctx"
)

// Source reads tables from one kind of tabular store. Implementations must
// be safe for concurrent use and must only read.
type Source interface {
	// Kind names the source for logs and metrics.
	Kind() string
	// ListTables returns the table names of a workspace.
	ListTables(ctx context.Context, namespace, name string) ([]string, error)
	// ScanTable calls fn with every cell of every row of a table. Cells may
	// be strings, numbers, lists or maps.
	ScanTable(ctx context.Context, namespace, name, table string, fn func(cell any)) error
}

// Workspace is one set of tables to scan for references.
type Workspace struct {
	Namespace string
	Name      string
	Source    Source
	// BestEffort workspaces may fail to read without failing resolution.
	BestEffort bool
}

func (w Workspace) String() string {
	return fmt.Sprintf("%s:%s/%s", w.Source.Kind(), w.Namespace, w.Name)
}

// Stats describes a resolution.
type Stats struct {
	Workspaces        int
	Tables            int
	Cells             int64
	Matches           int64
	SkippedWorkspaces int
	SkippedTables     int
	Duration          time.Duration
}

var resolvedURIs metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/arret/internal/references")

	var err error
	resolvedURIs, err = meter.Int64Counter(
		"arret.references.uris",
		metric.WithDescription("Number of storage URI matches found in workspace tables"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create references.uris counter: %w", err))
	}
}

type tableRef struct {
	ws    Workspace
	table string
}

// Resolve scans every table of every workspace and returns the frozen union
// of all storage URIs found. Listing tables and scanning them each run on a
// pool of at most workers goroutines. A workspace or table that cannot be
// read fails the whole resolution with an incomplete-data error, unless the
// workspace is best effort, in which case it is logged and skipped.
func Resolve(ctx context.Context, workspaces []Workspace, workers int) (*Set, Stats, error) {
	start := time.Now()
	ll := logctx.FromContext(ctx)
	workers = max(workers, 1)

	var (
		mu     sync.Mutex
		tables []tableRef
		stats  = Stats{Workspaces: len(workspaces)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, ws := range workspaces {
		g.Go(func() error {
			names, err := ws.Source.ListTables(gctx, ws.Namespace, ws.Name)
			if err != nil {
				if handled := skipOrFail(gctx, ws, "", err); handled != nil {
					return handled
				}
				mu.Lock()
				stats.SkippedWorkspaces++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			for _, n := range names {
				tables = append(tables, tableRef{ws: ws, table: n})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	stats.Tables = len(tables)

	set := NewSet()
	var cells, matches atomic.Int64

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range tables {
		g.Go(func() error {
			var local, found int64
			err := t.ws.Source.ScanTable(gctx, t.ws.Namespace, t.ws.Name, t.table, func(cell any) {
				local++
				found += int64(collect(set, cell))
			})
			cells.Add(local)
			matches.Add(found)
			resolvedURIs.Add(gctx, found, metric.WithAttributes(
				attribute.String("source", t.ws.Source.Kind()),
			))
			if err != nil {
				if handled := skipOrFail(gctx, t.ws, t.table, err); handled != nil {
					return handled
				}
				mu.Lock()
				stats.SkippedTables++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}

	stats.Cells = cells.Load()
	stats.Matches = matches.Load()
	stats.Duration = time.Since(start)

	ll.Info("Resolved references",
		slog.Int("workspaces", stats.Workspaces),
		slog.Int("tables", stats.Tables),
		slog.Int64("cells", stats.Cells),
		slog.Int("uris", set.Len()),
		slog.Int("skippedWorkspaces", stats.SkippedWorkspaces),
		slog.Int("skippedTables", stats.SkippedTables),
		slog.Duration("duration", stats.Duration))

	return set.Freeze(), stats, nil
}

// skipOrFail returns nil when the failure may be skipped, or the error that
// should abort resolution.
func skipOrFail(ctx context.Context, ws Workspace, table string, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	where := ws.String()
	if table != "" {
		where += "/" + table
	}
	if ws.BestEffort {
		logctx.FromContext(ctx).Warn("Skipping unreadable best-effort workspace data",
			slog.String("source", where),
			slog.Any("error", err))
		return nil
	}
	return errkind.IncompleteData(where, err)
}
