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

package cloudstorage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	listPageCount   metric.Int64Counter
	listObjectCount metric.Int64Counter
	listErrors      metric.Int64Counter
	deleteCount     metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/arret/internal/cloudstorage")

	var err error
	listPageCount, err = meter.Int64Counter(
		"arret.storage.list.pages",
		metric.WithDescription("Number of listing pages fetched"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create list.pages counter: %w", err))
	}

	listObjectCount, err = meter.Int64Counter(
		"arret.storage.list.objects",
		metric.WithDescription("Number of objects returned by listing pages"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create list.objects counter: %w", err))
	}

	listErrors, err = meter.Int64Counter(
		"arret.storage.list.errors",
		metric.WithDescription("Number of failed listing page requests"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create list.errors counter: %w", err))
	}

	deleteCount, err = meter.Int64Counter(
		"arret.storage.delete.count",
		metric.WithDescription("Number of delete requests by result"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create delete.count counter: %w", err))
	}
}

func recordPage(ctx context.Context, bucket string, n int) {
	listPageCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	listObjectCount.Add(ctx, int64(n), metric.WithAttributes(attribute.String("bucket", bucket)))
}

func recordListError(ctx context.Context, bucket string) {
	listErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
}

func recordDelete(ctx context.Context, bucket, result string) {
	deleteCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("result", result),
	))
}

func deleteResult(err error) string {
	switch {
	case err == nil:
		return "deleted"
	case err == ErrObjectNotFound:
		return "not_found"
	default:
		return "error"
	}
}
