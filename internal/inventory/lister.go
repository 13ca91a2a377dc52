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

package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/arret/internal/cloudstorage"
	"github.com/cardinalhq/arret/internal/logctx"
	"github.com/cardinalhq/arret/internal/retry"
)

// Config controls how a bucket is listed into an inventory.
type Config struct {
	// Path is the inventory file. It is replaced only when a listing
	// completes.
	Path string `mapstructure:"path"`
	// Prefix restricts the listing to object names starting with it.
	Prefix   string `mapstructure:"prefix"`
	PageSize int    `mapstructure:"page_size"`
	// Workers bounds how many pages are being encoded and written at once.
	// The lister blocks when all workers are busy.
	Workers int `mapstructure:"workers"`
	// Jitter is the upper bound of a random pause between page requests.
	Jitter time.Duration `mapstructure:"jitter"`
	// ProgressEvery logs a progress line each time this many records
	// have been written. Zero disables progress logging.
	ProgressEvery int64        `mapstructure:"progress_every"`
	Retry         retry.Policy `mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		Path:          "inventory.ndjson",
		PageSize:      cloudstorage.DefaultPageSize,
		Workers:       8,
		Jitter:        50 * time.Millisecond,
		ProgressEvery: 100_000,
		Retry:         retry.DefaultPolicy(),
	}
}

// Validate checks the listing settings.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("inventory.path must be set")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("inventory.page_size must be positive, got %d", c.PageSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("inventory.workers must be positive, got %d", c.Workers)
	}
	if c.Jitter < 0 {
		return fmt.Errorf("inventory.jitter must not be negative")
	}
	return nil
}

// Stats summarises a completed listing.
type Stats struct {
	Records  int64
	Bytes    int64
	Pages    int64
	Duration time.Duration
}

var inventoryObjects metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/arret/internal/inventory")

	var err error
	inventoryObjects, err = meter.Int64Counter(
		"arret.inventory.objects",
		metric.WithDescription("Number of object records written to the inventory"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create inventory.objects counter: %w", err))
	}
}

// List enumerates every object in bucket and replaces the inventory at
// cfg.Path with the result. Pages are requested one after another, since
// each page needs the previous page's token, and are written by a bounded
// pool. Each page request is retried on transient errors; any failure that
// survives the retries aborts the listing and leaves the previous inventory
// in place.
func List(ctx context.Context, client cloudstorage.Client, bucket string, cfg Config) (Stats, error) {
	start := time.Now()
	ll := logctx.FromContext(ctx).With(slog.String("bucket", bucket), slog.String("prefix", cfg.Prefix))

	w, err := Create(cfg.Path)
	if err != nil {
		return Stats{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))

	var (
		pages   int64
		token   string
		listErr error
	)
	for {
		if err := gctx.Err(); err != nil {
			break
		}
		page, err := retry.Do(gctx, cfg.Retry, "list page", func(ctx context.Context) (cloudstorage.Page, error) {
			return client.ListPage(ctx, bucket, cfg.Prefix, token, cfg.PageSize)
		})
		if err != nil {
			listErr = fmt.Errorf("list bucket %s after %d pages: %w", bucket, pages, err)
			break
		}
		pages++

		records, err := fromPage(page.Objects)
		if err != nil {
			listErr = fmt.Errorf("list bucket %s page %d: %w", bucket, pages, err)
			break
		}
		g.Go(func() error {
			if err := w.Append(records); err != nil {
				return err
			}
			inventoryObjects.Add(gctx, int64(len(records)), metric.WithAttributes(attribute.String("bucket", bucket)))
			logProgress(ll, w, int64(len(records)), cfg.ProgressEvery)
			return nil
		})

		if page.NextToken == "" {
			break
		}
		token = page.NextToken

		if cfg.Jitter > 0 {
			select {
			case <-gctx.Done():
			case <-time.After(rand.N(cfg.Jitter)):
			}
		}
	}

	waitErr := g.Wait()
	if err := errors.Join(listErr, waitErr, ctx.Err()); err != nil {
		w.Abort()
		ll.Error("Listing failed, inventory not replaced", slog.Int64("pages", pages), slog.Any("error", err))
		return Stats{}, err
	}
	if err := w.Commit(); err != nil {
		return Stats{}, err
	}

	records, bytes := w.Count()
	stats := Stats{Records: records, Bytes: bytes, Pages: pages, Duration: time.Since(start)}
	ll.Info("Inventory written",
		slog.String("path", cfg.Path),
		slog.Int64("records", stats.Records),
		slog.Int64("bytes", stats.Bytes),
		slog.Int64("pages", stats.Pages),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

func logProgress(ll *slog.Logger, w *Writer, added, every int64) {
	if every <= 0 {
		return
	}
	n, _ := w.Count()
	if n/every > (n-added)/every {
		ll.Info("Inventory progress", slog.Int64("records", n))
	}
}
