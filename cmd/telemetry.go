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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/arret/internal/helpers"
)

const serviceName = "arret"

var (
	meter = otel.Meter("github.com/cardinalhq/arret")

	stageDuration metric.Float64Histogram
	stageRuns     metric.Int64Counter
)

func setupTelemetry(runID string) (context.Context, func() error, error) {
	// Catch signals to stop the process as gracefully as possible.
	doneCtx, doneCancel := handleSignals(context.Background())

	f := func() error {
		doneCancel()
		return nil
	}

	setupGlobalMetrics()

	var opts *slog.HandlerOptions
	if helpers.GetBoolEnv("DEBUG", false) || helpers.GetBoolEnv("ARRET_DEBUG", false) {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	if os.Getenv("OTEL_SERVICE_NAME") != "" && helpers.GetBoolEnv("ENABLE_OTLP_TELEMETRY", false) {
		slog.SetDefault(slog.New(slogmulti.Fanout(
			slog.NewTextHandler(os.Stdout, opts),
			otelslog.NewHandler(serviceName),
		)).With(
			slog.String("service", serviceName),
			slog.String("runID", runID),
		))
		slog.Info("OpenTelemetry exporting enabled")

		otelShutdown, err := telemetry.SetupOTelSDK(doneCtx)
		if err != nil {
			return doneCtx, f, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
		}

		if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(time.Second * 10)); err != nil {
			slog.Warn("failed to start runtime metrics", "error", err.Error())
		}

		if err := host.Start(); err != nil {
			slog.Warn("failed to start host metrics", "error", err.Error())
		}

		f = func() error {
			defer doneCancel()
			slog.Info("Shutting down OpenTelemetry SDK")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return otelShutdown(ctx)
		}
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)).With(
			slog.String("service", serviceName),
			slog.String("runID", runID),
		))
	}

	return doneCtx, f, nil
}

func setupGlobalMetrics() {
	h, err := meter.Float64Histogram(
		"arret.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a pipeline stage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create stage.duration histogram: %w", err))
	}
	stageDuration = h

	c, err := meter.Int64Counter(
		"arret.stage.runs",
		metric.WithDescription("Number of pipeline stage runs by result"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create stage.runs counter: %w", err))
	}
	stageRuns = c
}

func recordStage(ctx context.Context, stage string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("result", result),
	)
	stageDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	stageRuns.Add(ctx, 1, attrs)
}
