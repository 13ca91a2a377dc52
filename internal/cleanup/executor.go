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

// Package cleanup deletes the objects a plan marks for deletion.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/arret/internal/cloudstorage"
	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/logctx"
	"github.com/cardinalhq/arret/internal/plan"
	"github.com/cardinalhq/arret/internal/retry"
)

var (
	objectCounter metric.Int64Counter
	bytesCounter  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/arret/internal/cleanup")

	var err error
	objectCounter, err = meter.Int64Counter(
		"arret.cleanup.objects",
		metric.WithDescription("Number of plan targets processed by result"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cleanup.objects counter: %w", err))
	}

	bytesCounter, err = meter.Int64Counter(
		"arret.cleanup.bytes",
		metric.WithDescription("Bytes removed from the bucket"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cleanup.bytes counter: %w", err))
	}
}

// ErrReferencedTarget is returned when a plan would delete an object that
// is in its own reference set. Nothing is deleted in that case.
var ErrReferencedTarget = errors.New("plan targets referenced objects")

// Plan is the part of a plan store the executor reads.
type Plan interface {
	Counts(ctx context.Context) (plan.Counts, error)
	Candidates(ctx context.Context, fn func(plan.Candidate) error) error
	ReferencedCandidates(ctx context.Context) ([]string, error)
}

var _ Plan = (*plan.Store)(nil)

type Config struct {
	Workers int `mapstructure:"workers"`
	// CallTimeout bounds a single delete request.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	Retry       retry.Policy  `mapstructure:"retry"`
	DryRun      bool          `mapstructure:"dry_run"`
	// FailuresOut, when set, receives the failed objects as NDJSON.
	FailuresOut string `mapstructure:"failures_out"`
}

func DefaultConfig() Config {
	return Config{
		Workers:     16,
		CallTimeout: 30 * time.Second,
		Retry:       retry.DefaultPolicy(),
	}
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("cleanup.workers must be positive, got %d", c.Workers)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("cleanup.call_timeout must be positive, got %s", c.CallTimeout)
	}
	return nil
}

// Execute deletes every plan row marked should_delete and not protected.
//
// Per-object failures do not stop the run; they are reported in the
// summary. The returned error is reserved for conditions that stop the
// run as a whole: an unreadable plan, a plan that targets referenced
// objects, or cancellation. Cancelling ctx stops new deletes from being
// scheduled; deletes already started run to completion.
func Execute(ctx context.Context, client cloudstorage.Client, bucket string, p Plan, cfg Config) (*Summary, error) {
	start := time.Now()
	ll := logctx.FromContext(ctx).With(slog.String("bucket", bucket))

	counts, err := p.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read plan counts: %w", err)
	}
	summary := newSummary(counts, cfg.DryRun)

	referenced, err := p.ReferencedCandidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(referenced) > 0 {
		ll.Error("Plan marks referenced objects for deletion, refusing to clean",
			slog.Int("count", len(referenced)),
			slog.Any("examples", referenced[:min(len(referenced), 10)]))
		return nil, fmt.Errorf("%w: %d objects, first %q", ErrReferencedTarget, len(referenced), referenced[0])
	}

	if cfg.DryRun {
		err := p.Candidates(ctx, func(c plan.Candidate) error {
			ll.Debug("Would delete", slog.String("name", c.Name), slog.Int64("size", c.SizeBytes))
			return ctx.Err()
		})
		summary.finish(start)
		return summary, err
	}

	ll.Info("Starting cleanup",
		slog.Int64("targets", counts.Eligible),
		slog.Int("workers", cfg.Workers))

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	scanErr := p.Candidates(ctx, func(c plan.Candidate) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			o := deleteOne(ctx, client, bucket, c, cfg)
			summary.record(o)
			recordOutcome(ctx, bucket, o)
			if o.Result == ResultFailed {
				ll.Warn("Delete failed", slog.String("name", o.Name), slog.String("reason", o.Reason))
			}
			return nil
		})
		return nil
	})
	_ = g.Wait()
	summary.finish(start)

	if cfg.FailuresOut != "" {
		if err := summary.WriteFailures(cfg.FailuresOut); err != nil {
			ll.Error("Failed to write failures file", slog.String("path", cfg.FailuresOut), slog.Any("error", err))
		}
	}

	if scanErr != nil {
		return summary, fmt.Errorf("cleanup interrupted: %w", scanErr)
	}
	return summary, nil
}

// deleteOne runs detached from ctx cancellation so an accepted delete is
// never abandoned halfway through its retries.
func deleteOne(ctx context.Context, client cloudstorage.Client, bucket string, c plan.Candidate, cfg Config) Outcome {
	o := Outcome{Name: c.Name, SizeBytes: c.SizeBytes}
	dctx := context.WithoutCancel(ctx)

	err := retry.Run(dctx, cfg.Retry, "delete object", func(rctx context.Context) error {
		cctx, cancel := context.WithTimeout(rctx, cfg.CallTimeout)
		defer cancel()
		err := client.DeleteObject(cctx, bucket, c.Name)
		if errors.Is(err, cloudstorage.ErrObjectNotFound) {
			return err
		}
		if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return errkind.Transient(err)
		}
		return err
	})

	switch {
	case err == nil:
		o.Result = ResultDeleted
	case errors.Is(err, cloudstorage.ErrObjectNotFound):
		o.Result = ResultAlreadyAbsent
	default:
		o.Result = ResultFailed
		o.Reason = err.Error()
	}
	return o
}

func recordOutcome(ctx context.Context, bucket string, o Outcome) {
	attrs := metric.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("status", string(o.Result)),
	)
	objectCounter.Add(ctx, 1, attrs)
	if o.Result == ResultDeleted {
		bytesCounter.Add(ctx, o.SizeBytes, metric.WithAttributes(attribute.String("bucket", bucket)))
	}
}
